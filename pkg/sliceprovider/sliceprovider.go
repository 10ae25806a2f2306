// Package sliceprovider implements a finite, in-memory autofuel.Provider.
package sliceprovider

import (
	"context"
	"sync"
	"time"
)

// SliceProvider hands out a fixed list of items in order, at most MaxBatch
// per call, optionally after an artificial delay.
type SliceProvider[T any] struct {
	mu       sync.Mutex
	items    []T
	next     int
	maxBatch int
	latency  time.Duration
	calls    int
}

// Option configures a SliceProvider.
type Option func(*config)

type config struct {
	maxBatch int
	latency  time.Duration
}

// WithMaxBatch caps every batch at n items (n <= 0 means no cap).
func WithMaxBatch(n int) Option {
	return func(c *config) { c.maxBatch = n }
}

// WithLatency delays every Fetch by d. The delay is cut short if ctx ends.
func WithLatency(d time.Duration) Option {
	return func(c *config) { c.latency = d }
}

// New creates a provider over a copy of items.
func New[T any](items []T, opts ...Option) *SliceProvider[T] {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	return &SliceProvider[T]{
		items:    append([]T(nil), items...),
		maxBatch: c.maxBatch,
		latency:  c.latency,
	}
}

// Fetch returns up to n of the remaining items. Once the list is used up every
// call returns an empty batch.
func (p *SliceProvider[T]) Fetch(ctx context.Context, n int) ([]T, error) {
	if p.latency > 0 {
		t := time.NewTimer(p.latency)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++

	if n <= 0 {
		return nil, nil
	}
	if p.maxBatch > 0 && n > p.maxBatch {
		n = p.maxBatch
	}
	end := p.next + n
	if end > len(p.items) {
		end = len(p.items)
	}
	batch := append([]T(nil), p.items[p.next:end]...)
	p.next = end
	return batch, nil
}

// Remaining returns how many items have not been handed out yet.
func (p *SliceProvider[T]) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items) - p.next
}

// Calls returns how many times Fetch got past its delay.
func (p *SliceProvider[T]) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
