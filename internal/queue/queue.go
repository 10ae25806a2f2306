package queue

import (
	"context"

	"github.com/i5heu/autofuel/pkg/autofuel"
)

// Interface is what the test bench drives. The harness takes it as a type
// constraint so it compiles against concrete queue types; cmd/bench also uses
// it as a plain interface to keep implementations in one table.
type Interface[T any] interface {
	// Enqueue adds an element to the tail. It must not block.
	Enqueue(T) error

	// Dequeue removes and returns the oldest element. It returns
	// autofuel.ErrExhausted once there is nothing left to hand out.
	Dequeue(ctx context.Context, wait autofuel.WaitPolicy) (T, error)

	// Len returns how many elements are currently buffered.
	Len() int
}

// Compile-time checks.
var (
	_ Interface[*int] = (*autofuel.Queue[*int])(nil)
	_ Interface[*int] = (*Prefilled[*int])(nil)
)
