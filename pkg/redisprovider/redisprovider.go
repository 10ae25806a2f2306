// Package redisprovider feeds an autofuel queue from a Redis list.
//
// Items are popped from the head of the list, so producers should RPUSH.
// LPOP with a count needs Redis 6.2 or newer.
package redisprovider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Config holds the connection settings.
type Config struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Key         string        `yaml:"key"`
}

func (c Config) options() *redis.Options {
	timeout := c.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &redis.Options{
		Addr:        c.Addr,
		Password:    c.Password,
		DB:          c.DB,
		DialTimeout: timeout,
	}
}

// Provider pops up to n strings per Fetch from one list.
type Provider struct {
	client *redis.Client
	key    string
}

// New wraps an existing client. The caller keeps ownership of client.
func New(client *redis.Client, key string) *Provider {
	return &Provider{client: client, key: key}
}

// Dial connects using cfg, checks the connection with PING and returns a
// provider that owns the client; release it with Close.
func Dial(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Key == "" {
		return nil, errors.New("redisprovider: empty list key")
	}
	opts := cfg.options()
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redisprovider: connect to %s: %w", opts.Addr, err)
	}
	return New(client, cfg.Key), nil
}

// Fetch pops up to n items. A missing or empty list yields an empty batch.
func (p *Provider) Fetch(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	items, err := p.client.LPopCount(ctx, p.key, n).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redisprovider: lpop %s: %w", p.key, err)
	}
	return items, nil
}

// Push appends items to the tail of the list.
func (p *Provider) Push(ctx context.Context, items ...string) error {
	if len(items) == 0 {
		return nil
	}
	args := make([]interface{}, len(items))
	for i, item := range items {
		args[i] = item
	}
	return p.client.RPush(ctx, p.key, args...).Err()
}

// Len returns the current list length.
func (p *Provider) Len(ctx context.Context) (int64, error) {
	return p.client.LLen(ctx, p.key).Result()
}

// Close closes the underlying client.
func (p *Provider) Close() error {
	return p.client.Close()
}
