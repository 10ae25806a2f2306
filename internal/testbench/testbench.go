package testbench

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/i5heu/autofuel/internal/queue"
	"github.com/i5heu/autofuel/pkg/autofuel"
)

// Config describes one drain run: how many consumers, and the shape of the
// provider feeding the queue.
type Config struct {
	NumConsumers    int           `yaml:"consumers" json:"num_consumers"`
	PoolSize        int           `yaml:"pool_size" json:"pool_size"`
	NumItems        int           `yaml:"items" json:"num_items"`
	MaxBatch        int           `yaml:"max_batch" json:"max_batch"`
	ProviderLatency time.Duration `yaml:"provider_latency" json:"provider_latency"`
	WorkPerItem     time.Duration `yaml:"work_per_item" json:"work_per_item"`
}

// Hooks lets callers observe a run. Both fields are optional.
type Hooks[T any] struct {
	// OnItem runs on the consumer goroutine after each successful Dequeue.
	// A non-nil error stops the whole run.
	OnItem func(ctx context.Context, consumer int, item T) error

	// OnDone runs when a consumer hits exhaustion.
	OnDone func(consumer int, delivered int64)
}

// Result is the outcome of RunDrain.
type Result struct {
	PerConsumer []int64
	Consumed    int64
	Elapsed     time.Duration
}

// RunDrain spawns cfg.NumConsumers consumers that dequeue until the queue
// reports exhaustion. Any other Dequeue error, or an OnItem error, cancels the
// remaining consumers and is returned.
func RunDrain[T any, Q queue.Interface[T]](
	ctx context.Context,
	q Q,
	cfg Config,
	hooks Hooks[T],
) (Result, error) {
	consumers := cfg.NumConsumers
	if consumers < 1 {
		consumers = 1
	}

	perConsumer := make([]atomic.Int64, consumers)
	var totalConsumed atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	start := time.Now()

	for i := 0; i < consumers; i++ {
		i := i
		g.Go(func() error {
			for {
				item, err := q.Dequeue(ctx, autofuel.Forever())
				if errors.Is(err, autofuel.ErrExhausted) {
					if hooks.OnDone != nil {
						hooks.OnDone(i, perConsumer[i].Load())
					}
					return nil
				}
				if err != nil {
					return err
				}
				perConsumer[i].Add(1)
				totalConsumed.Add(1)

				if hooks.OnItem != nil {
					if err := hooks.OnItem(ctx, i, item); err != nil {
						return err
					}
				}
				if cfg.WorkPerItem > 0 {
					select {
					case <-time.After(cfg.WorkPerItem):
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
		})
	}

	err := g.Wait()

	res := Result{
		PerConsumer: make([]int64, consumers),
		Consumed:    totalConsumed.Load(),
		Elapsed:     time.Since(start),
	}
	for i := range perConsumer {
		res.PerConsumer[i] = perConsumer[i].Load()
	}
	return res, err
}

// Throughput returns consumed items per second.
func (r Result) Throughput() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Consumed) / r.Elapsed.Seconds()
}
