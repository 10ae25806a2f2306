package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrTimeout is returned by Acquire when a bounded wait elapses.
	ErrTimeout = errors.New("gate: timed out waiting for permit")

	// ErrCanceled is returned (wrapping ctx.Err()) when the context ends first.
	ErrCanceled = errors.New("gate: wait canceled")
)

type state uint8

const (
	closed state = iota // no permit, nobody inside (never opened)
	open                // one permit available
	held                // permit taken by an acquirer
)

// Gate is a binary admission primitive. Its permit count is 0 or 1 at all times:
// Release hands the single permit back, and Signal can only make it available
// when nobody holds it.
type Gate struct {
	mu    sync.Mutex
	state state
	wake  chan struct{} // closed and replaced each time the permit appears
}

// New returns a closed gate. Use Signal to open it, or NewHeld when the creator
// wants to own the permit from the start.
func New() *Gate {
	return &Gate{state: closed, wake: make(chan struct{})}
}

// NewHeld returns a gate whose permit is already held by the caller.
// The caller must call Release exactly once.
func NewHeld() *Gate {
	return &Gate{state: held, wake: make(chan struct{})}
}

// Acquire waits for the permit. If bounded is true the wait gives up after
// timeout (a zero timeout means "try once"). A failed wait leaves the gate as it was.
func (g *Gate) Acquire(ctx context.Context, timeout time.Duration, bounded bool) error {
	var deadline <-chan time.Time
	if bounded {
		if timeout < 0 {
			timeout = 0
		}
		t := time.NewTimer(timeout)
		defer t.Stop()
		deadline = t.C
	}

	for {
		g.mu.Lock()
		if g.state == open {
			g.state = held
			g.mu.Unlock()
			return nil
		}
		wake := g.wake
		g.mu.Unlock()

		if bounded && timeout == 0 {
			return ErrTimeout
		}

		select {
		case <-wake:
			// permit appeared, race for it
		case <-deadline:
			return ErrTimeout
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
		}
	}
}

// Release returns the permit taken by a successful Acquire.
// It panics if the gate is not held, since that would break the {0,1} invariant.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != held {
		panic("gate: release of a gate that is not held")
	}
	g.openLocked()
}

// Signal makes the permit available if the gate is closed. It has no effect
// while the permit is held or already available.
func (g *Gate) Signal() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == closed {
		g.openLocked()
	}
}

func (g *Gate) openLocked() {
	g.state = open
	close(g.wake)
	g.wake = make(chan struct{})
}

// Permits reports how many permits are currently available (0 or 1).
func (g *Gate) Permits() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == open {
		return 1
	}
	return 0
}

// Held reports whether an acquirer currently owns the permit.
func (g *Gate) Held() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state == held
}
