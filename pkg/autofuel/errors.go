package autofuel

import (
	"errors"

	"github.com/i5heu/autofuel/internal/gate"
)

var (
	// ErrNilItem is returned when a nil item is offered to the queue.
	ErrNilItem = errors.New("autofuel: nil item")

	// ErrExhausted means the queue was empty and a refill produced nothing.
	// It is evaluated per call: a later Dequeue may succeed if the provider has
	// more data by then.
	ErrExhausted = errors.New("autofuel: queue exhausted")

	// ErrWaitTimeout means a bounded wait for admission elapsed.
	ErrWaitTimeout = gate.ErrTimeout

	// ErrWaitCanceled means the context ended while waiting for admission.
	// The returned error also wraps the context's own error.
	ErrWaitCanceled = gate.ErrCanceled

	ErrNilProvider     = errors.New("autofuel: nil provider")
	ErrInvalidPoolSize = errors.New("autofuel: pool size must not be negative")
)

// IsWaitFailure reports whether err came from failing to get admission
// (timeout or cancellation), as opposed to exhaustion or a provider failure.
func IsWaitFailure(err error) bool {
	return errors.Is(err, ErrWaitTimeout) || errors.Is(err, ErrWaitCanceled)
}
