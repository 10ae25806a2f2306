package redisprovider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/autofuel/pkg/autofuel"
)

// dial connects to the server named by AUTOFUEL_REDIS_ADDR or skips.
func dial(t *testing.T) *Provider {
	t.Helper()
	addr := os.Getenv("AUTOFUEL_REDIS_ADDR")
	if addr == "" {
		t.Skip("AUTOFUEL_REDIS_ADDR not set")
	}
	key := fmt.Sprintf("autofuel-test-%d", time.Now().UnixNano())
	p, err := Dial(context.Background(), Config{Addr: addr, Key: key})
	require.NoError(t, err)
	t.Cleanup(func() {
		p.client.Del(context.Background(), key)
		p.Close()
	})
	return p
}

func TestDialRejectsEmptyKey(t *testing.T) {
	_, err := Dial(context.Background(), Config{Addr: "127.0.0.1:0"})
	assert.Error(t, err)
}

func TestOptionsDefaultTimeout(t *testing.T) {
	opts := Config{Addr: "x:1", DB: 3}.options()
	assert.Equal(t, 5*time.Second, opts.DialTimeout)
	assert.Equal(t, 3, opts.DB)
}

func TestFetchFromEmptyList(t *testing.T) {
	p := dial(t)
	items, err := p.Fetch(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestQueueDrainsList(t *testing.T) {
	p := dial(t)
	ctx := context.Background()

	var want []string
	for i := 0; i < 12; i++ {
		want = append(want, fmt.Sprintf("item-%02d", i))
	}
	require.NoError(t, p.Push(ctx, want...))

	q, err := autofuel.New[string](5, p)
	require.NoError(t, err)
	require.NoError(t, q.Open(ctx))

	var got []string
	for {
		item, err := q.Dequeue(ctx, autofuel.Within(time.Second))
		if errors.Is(err, autofuel.ErrExhausted) {
			break
		}
		require.NoError(t, err)
		got = append(got, item)
	}
	assert.Equal(t, want, got)

	n, err := p.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
