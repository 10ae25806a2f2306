package store

import (
	"sync"

	"github.com/eapache/queue"
)

// Store is an unbounded, ordered, multi-producer/multi-consumer holding area.
// Every operation takes a short internal lock and none of them waits for space
// or for items.
type Store[T any] struct {
	mu    sync.Mutex
	items *queue.Queue
}

// New creates an empty Store.
func New[T any]() *Store[T] {
	return &Store[T]{items: queue.New()}
}

// Append adds item to the tail.
func (s *Store[T]) Append(item T) {
	s.mu.Lock()
	s.items.Add(item)
	s.mu.Unlock()
}

// AppendBatch adds items to the tail as one contiguous run, in slice order.
func (s *Store[T]) AppendBatch(items []T) {
	if len(items) == 0 {
		return
	}
	s.mu.Lock()
	for _, item := range items {
		s.items.Add(item)
	}
	s.mu.Unlock()
}

// TryTakeFront removes and returns the head, or reports false if the store is empty.
func (s *Store[T]) TryTakeFront() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.items.Length() == 0 {
		var zero T
		return zero, false
	}
	item, _ := s.items.Remove().(T)
	return item, true
}

// Len returns the current number of items. Under concurrency the value may be
// stale by the time the caller acts on it.
func (s *Store[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Length()
}
