// Package autofuel implements a self-replenishing concurrent FIFO queue.
//
// A Queue hands items to concurrent consumers and asks its Provider for a new
// batch whenever a consumer finds it empty. The decision "is it empty, should I
// refill, pop" is serialized by a binary admission gate, so only one consumer
// at a time inspects or refills the queue and at most one Provider call is in
// flight. What consumers do with an item after Dequeue returns is not
// serialized.
//
// Typical use:
//
//	q, err := autofuel.New[*Job](64, provider)
//	if err != nil { ... }
//	if err := q.Open(ctx); err != nil { ... }
//	for {
//		job, err := q.Dequeue(ctx, autofuel.Forever())
//		if errors.Is(err, autofuel.ErrExhausted) {
//			break
//		}
//		...
//	}
package autofuel

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/i5heu/autofuel/internal/gate"
	"github.com/i5heu/autofuel/internal/store"
)

// Queue is an auto-fueling FIFO. Create it with New and make it usable with Open.
type Queue[T any] struct {
	poolSize  int
	provider  Provider[T]
	eagerFill bool

	store  *store.Store[T]
	gate   *gate.Gate
	opened atomic.Bool

	enqueued         atomic.Int64
	refills          atomic.Int64
	fetched          atomic.Int64
	delivered        atomic.Int64
	exhaustions      atomic.Int64
	providerFailures atomic.Int64
}

// Option configures a Queue.
type Option func(*options)

type options struct {
	eagerFill bool
}

// WithEagerFill controls whether Open fetches the first batch before the queue
// admits consumers. It defaults to true.
func WithEagerFill(enabled bool) Option {
	return func(o *options) { o.eagerFill = enabled }
}

// New creates a queue that tops itself up to poolSize items from p.
//
// The queue does not admit consumers until Open is called, or until a manual
// Enqueue when eager fill is disabled.
func New[T any](poolSize int, p Provider[T], opts ...Option) (*Queue[T], error) {
	if poolSize < 0 {
		return nil, ErrInvalidPoolSize
	}
	if p == nil {
		return nil, ErrNilProvider
	}
	o := options{eagerFill: true}
	for _, opt := range opts {
		opt(&o)
	}

	q := &Queue[T]{
		poolSize:  poolSize,
		provider:  p,
		eagerFill: o.eagerFill,
		store:     store.New[T](),
	}
	if o.eagerFill {
		// Open owns the permit until the first batch is in.
		q.gate = gate.NewHeld()
	} else {
		q.gate = gate.New()
	}
	return q, nil
}

// Open finishes construction. With eager fill it fetches the first batch using
// ctx and blocks until the Provider answers; a Provider error is returned but
// the queue is opened regardless. Calls after the first return nil.
func (q *Queue[T]) Open(ctx context.Context) error {
	if !q.opened.CompareAndSwap(false, true) {
		return nil
	}
	if !q.eagerFill {
		q.gate.Signal()
		return nil
	}
	defer q.gate.Release()
	return q.refill(ctx)
}

// Enqueue appends item to the tail. It never blocks and never triggers a refill.
// A queue that was created without eager fill and has not been opened becomes
// usable after the first Enqueue.
func (q *Queue[T]) Enqueue(item T) error {
	if isNil(item) {
		return ErrNilItem
	}
	q.store.Append(item)
	q.enqueued.Add(1)
	q.gate.Signal()
	return nil
}

// Dequeue removes and returns the head of the queue, refilling from the
// Provider first if the queue is empty.
//
// It returns ErrWaitTimeout or ErrWaitCanceled if admission fails (nothing is
// changed in that case), ErrExhausted if a refill produced no items, or the
// Provider's own error unmodified. ctx and wait only bound the admission
// step: once admitted, a refill runs to completion even if ctx is cancelled.
func (q *Queue[T]) Dequeue(ctx context.Context, wait WaitPolicy) (T, error) {
	var zero T

	timeout, bounded := wait.Timeout()
	if err := q.gate.Acquire(ctx, timeout, bounded); err != nil {
		return zero, err
	}
	// One release per admission, whichever way we leave.
	defer q.gate.Release()

	if item, ok := q.store.TryTakeFront(); ok {
		q.delivered.Add(1)
		return item, nil
	}

	if err := q.refill(context.WithoutCancel(ctx)); err != nil {
		return zero, err
	}

	item, ok := q.store.TryTakeFront()
	if !ok {
		q.exhaustions.Add(1)
		return zero, ErrExhausted
	}
	q.delivered.Add(1)
	return item, nil
}

// refill asks the provider for the current deficit and appends the batch.
// The caller must hold the gate.
func (q *Queue[T]) refill(ctx context.Context) error {
	n := q.poolSize - q.store.Len()
	if n < 0 {
		n = 0
	}
	q.refills.Add(1)

	items, err := q.provider.Fetch(ctx, n)
	if err != nil {
		q.providerFailures.Add(1)
		return err
	}
	for i, item := range items {
		if isNil(item) {
			q.providerFailures.Add(1)
			return fmt.Errorf("autofuel: provider batch item %d: %w", i, ErrNilItem)
		}
	}

	q.store.AppendBatch(items)
	q.fetched.Add(int64(len(items)))
	return nil
}

// Len returns the number of buffered items. It is advisory under concurrency.
func (q *Queue[T]) Len() int {
	return q.store.Len()
}

// PoolSize returns the target the queue refills up to.
func (q *Queue[T]) PoolSize() int {
	return q.poolSize
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Enqueued         int64 // manual Enqueue calls that succeeded
	Refills          int64 // Provider calls made
	Fetched          int64 // items appended from Provider batches
	Delivered        int64 // items returned by Dequeue
	Exhaustions      int64 // Dequeue calls that returned ErrExhausted
	ProviderFailures int64
}

// Stats returns the current counters. Fields are read independently.
func (q *Queue[T]) Stats() Stats {
	return Stats{
		Enqueued:         q.enqueued.Load(),
		Refills:          q.refills.Load(),
		Fetched:          q.fetched.Load(),
		Delivered:        q.delivered.Load(),
		Exhaustions:      q.exhaustions.Load(),
		ProviderFailures: q.providerFailures.Load(),
	}
}

func isNil[T any](item T) bool {
	v := reflect.ValueOf(any(item))
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return v.IsNil()
	}
	return false
}
