package queue

import (
	"context"

	"github.com/i5heu/autofuel/internal/store"
	"github.com/i5heu/autofuel/pkg/autofuel"
)

// Prefilled is the baseline the auto-fueling queue is compared against: every
// item is loaded up front and consumers simply take from the front until it
// is empty. There is no gate and no provider.
type Prefilled[T any] struct {
	store *store.Store[T]
}

// NewPrefilled returns a queue holding items in order.
func NewPrefilled[T any](items []T) *Prefilled[T] {
	s := store.New[T]()
	s.AppendBatch(items)
	return &Prefilled[T]{store: s}
}

func (q *Prefilled[T]) Enqueue(item T) error {
	q.store.Append(item)
	return nil
}

// Dequeue never waits; ctx and wait are accepted for interface compatibility.
func (q *Prefilled[T]) Dequeue(ctx context.Context, wait autofuel.WaitPolicy) (T, error) {
	if item, ok := q.store.TryTakeFront(); ok {
		return item, nil
	}
	var zero T
	return zero, autofuel.ErrExhausted
}

func (q *Prefilled[T]) Len() int {
	return q.store.Len()
}
