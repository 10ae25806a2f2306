package autofuel

import "time"

// WaitPolicy bounds how long Dequeue waits for admission. Cancellation comes
// from the context passed alongside it, so a bounded and cancellable wait is
// Within(d) plus a cancellable context.
//
// The zero value waits without a bound.
type WaitPolicy struct {
	timeout time.Duration
	bounded bool
}

// Forever waits until admitted or the context ends.
func Forever() WaitPolicy { return WaitPolicy{} }

// Within waits at most d. Within(0) tries once without waiting.
func Within(d time.Duration) WaitPolicy {
	if d < 0 {
		d = 0
	}
	return WaitPolicy{timeout: d, bounded: true}
}

// WithinMillis waits at most ms milliseconds.
func WithinMillis(ms int) WaitPolicy {
	return Within(time.Duration(ms) * time.Millisecond)
}

// Timeout returns the bound and whether there is one.
func (p WaitPolicy) Timeout() (time.Duration, bool) {
	return p.timeout, p.bounded
}

func (p WaitPolicy) String() string {
	if !p.bounded {
		return "forever"
	}
	return "within " + p.timeout.String()
}
