package autofuel

import "context"

// Provider supplies batches of items on demand.
//
// Fetch returns up to n items in delivery order. A shorter batch, including an
// empty one, signals scarcity; it does not have to be permanent.
type Provider[T any] interface {
	Fetch(ctx context.Context, n int) ([]T, error)
}

// ProviderFunc adapts a plain function to the Provider interface.
type ProviderFunc[T any] func(ctx context.Context, n int) ([]T, error)

func (f ProviderFunc[T]) Fetch(ctx context.Context, n int) ([]T, error) {
	return f(ctx, n)
}
