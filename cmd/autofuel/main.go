package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"time"

	"github.com/i5heu/autofuel/internal/testbench"
	"github.com/i5heu/autofuel/pkg/autofuel"
	"github.com/i5heu/autofuel/pkg/redisprovider"
	"github.com/i5heu/autofuel/pkg/sliceprovider"
)

// Each queue item is a processing delay in milliseconds. Workers sleep for
// that long, which shows refills overlapping with downstream work.

type options struct {
	workers   int
	poolSize  int
	items     int
	maxDelay  time.Duration
	latency   time.Duration
	seed      int64
	redisAddr string
	redisKey  string
}

func main() {
	var o options
	flag.IntVar(&o.workers, "workers", 5, "number of concurrent consumers")
	flag.IntVar(&o.poolSize, "pool", 10, "refill target (pool size)")
	flag.IntVar(&o.items, "items", 100, "number of generated items when not using redis")
	flag.DurationVar(&o.maxDelay, "max-delay", 200*time.Millisecond, "upper bound for generated per-item delays")
	flag.DurationVar(&o.latency, "provider-latency", 0, "artificial delay on every provider fetch")
	flag.Int64Var(&o.seed, "seed", 1, "random seed for generated delays")
	flag.StringVar(&o.redisAddr, "redis", "", "read delays (milliseconds) from a redis list at this address instead of generating them")
	flag.StringVar(&o.redisKey, "key", "autofuel:delays", "redis list key")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	provider, closeProvider, err := newProvider(ctx, o)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeProvider()

	if err := run(ctx, os.Stdout, provider, o); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newProvider(ctx context.Context, o options) (autofuel.Provider[string], func(), error) {
	if o.redisAddr != "" {
		p, err := redisprovider.Dial(ctx, redisprovider.Config{Addr: o.redisAddr, Key: o.redisKey})
		if err != nil {
			return nil, nil, err
		}
		return p, func() { p.Close() }, nil
	}
	return sliceprovider.New(generateDelays(o.items, o.maxDelay, o.seed), sliceprovider.WithLatency(o.latency)), func() {}, nil
}

// generateDelays returns n delays in milliseconds, each below maxDelay.
func generateDelays(n int, maxDelay time.Duration, seed int64) []string {
	r := rand.New(rand.NewSource(seed))
	limit := maxDelay.Milliseconds()
	if limit < 1 {
		limit = 1
	}
	out := make([]string, n)
	for i := range out {
		out[i] = strconv.FormatInt(r.Int63n(limit), 10)
	}
	return out
}

// run drains the queue with o.workers consumers and writes one line per item:
// "mm:ss.fff;worker_N;delay", then "end_of_queue" per worker.
func run(ctx context.Context, w io.Writer, provider autofuel.Provider[string], o options) error {
	q, err := autofuel.New[string](o.poolSize, provider)
	if err != nil {
		return err
	}
	if err := q.Open(ctx); err != nil {
		return err
	}

	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(w, format, args...)
	}

	res, err := testbench.RunDrain[string](ctx, q, testbench.Config{NumConsumers: o.workers}, testbench.Hooks[string]{
		OnItem: func(ctx context.Context, worker int, item string) error {
			ms, err := strconv.Atoi(item)
			if err != nil {
				return fmt.Errorf("worker %d: bad delay %q: %w", worker, item, err)
			}
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
			printf("%s;worker_%d;%s\n", time.Now().Format("04:05.000"), worker, item)
			return nil
		},
		OnDone: func(worker int, delivered int64) {
			printf("%s;worker_%d;end_of_queue\n", time.Now().Format("04:05.000"), worker)
		},
	})
	if err != nil {
		return err
	}

	st := q.Stats()
	printf("Total time consumed: %s (%d items, %d refills)\n", res.Elapsed, res.Consumed, st.Refills)
	return nil
}
