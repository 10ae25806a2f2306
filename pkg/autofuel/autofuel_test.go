package autofuel

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/autofuel/pkg/sliceprovider"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func openQueue[T any](t *testing.T, poolSize int, p Provider[T], opts ...Option) *Queue[T] {
	t.Helper()
	q, err := New[T](poolSize, p, opts...)
	require.NoError(t, err)
	require.NoError(t, q.Open(context.Background()))
	return q
}

// drain dequeues until exhaustion and returns what it got.
func drain[T any](t *testing.T, q *Queue[T]) []T {
	t.Helper()
	var got []T
	for {
		item, err := q.Dequeue(context.Background(), Within(5*time.Second))
		if errors.Is(err, ErrExhausted) {
			return got
		}
		require.NoError(t, err)
		got = append(got, item)
	}
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New[int](-1, sliceprovider.New[int](nil))
	assert.ErrorIs(t, err, ErrInvalidPoolSize)

	_, err = New[int](1, nil)
	assert.ErrorIs(t, err, ErrNilProvider)
}

func TestEagerFillLoadsFirstBatch(t *testing.T) {
	p := sliceprovider.New(seq(30))
	q := openQueue[int](t, 10, p)

	assert.Equal(t, 10, q.Len())
	assert.Equal(t, 1, p.Calls())
	assert.Equal(t, 1, q.gate.Permits())
}

func TestOpenIsIdempotent(t *testing.T) {
	p := sliceprovider.New(seq(30))
	q := openQueue[int](t, 10, p)
	require.NoError(t, q.Open(context.Background()))
	assert.Equal(t, 1, p.Calls())
	assert.Equal(t, 10, q.Len())
}

func TestDequeueBeforeOpenWaits(t *testing.T) {
	q, err := New[int](5, sliceprovider.New(seq(5)))
	require.NoError(t, err)

	_, err = q.Dequeue(context.Background(), Within(20*time.Millisecond))
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.True(t, IsWaitFailure(err))
}

func TestDrainDeliversProviderOrder(t *testing.T) {
	p := sliceprovider.New(seq(23), sliceprovider.WithMaxBatch(4))
	q := openQueue[int](t, 4, p)

	assert.Equal(t, seq(23), drain(t, q))

	st := q.Stats()
	assert.EqualValues(t, 23, st.Fetched)
	assert.EqualValues(t, 23, st.Delivered)
	assert.EqualValues(t, 1, st.Exhaustions)
}

// Scenario A: pool 10, 25 items in batches of up to 10, three consumers.
func TestConcurrentConsumersDrainEverything(t *testing.T) {
	p := sliceprovider.New(seq(25), sliceprovider.WithMaxBatch(10))
	q := openQueue[int](t, 10, p)

	const consumers = 3
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		seen     = make(map[int]int)
		lastErrs = make([]error, consumers)
	)
	wg.Add(consumers)
	for c := 0; c < consumers; c++ {
		go func(c int) {
			defer wg.Done()
			for {
				item, err := q.Dequeue(context.Background(), Within(5*time.Second))
				if err != nil {
					lastErrs[c] = err
					return
				}
				mu.Lock()
				seen[item]++
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	assert.Len(t, seen, 25)
	for item, n := range seen {
		assert.Equalf(t, 1, n, "item %d delivered %d times", item, n)
	}
	for c, err := range lastErrs {
		assert.ErrorIsf(t, err, ErrExhausted, "consumer %d", c)
	}
	assert.Equal(t, 1, q.gate.Permits())
}

// Scenario B: a manual item on an unfuelled queue is immediately available.
func TestEnqueueOpensUnfuelledQueue(t *testing.T) {
	p := sliceprovider.New[string](nil)
	q, err := New[string](3, p, WithEagerFill(false))
	require.NoError(t, err)

	require.NoError(t, q.Enqueue("x"))
	item, err := q.Dequeue(context.Background(), Within(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "x", item)
	assert.Equal(t, 0, p.Calls())
}

// Scenario C: an empty provider yields exhaustion on every call, not a hang.
func TestExhaustionIsNotLatched(t *testing.T) {
	var calls atomic.Int32
	p := ProviderFunc[int](func(ctx context.Context, n int) ([]int, error) {
		calls.Add(1)
		return nil, nil
	})
	q := openQueue[int](t, 5, p)

	for i := 0; i < 2; i++ {
		_, err := q.Dequeue(context.Background(), Within(time.Second))
		assert.ErrorIs(t, err, ErrExhausted)
		assert.False(t, IsWaitFailure(err))
	}
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, 1, q.gate.Permits())
}

func TestProviderRecoversAfterExhaustion(t *testing.T) {
	var ready atomic.Bool
	p := ProviderFunc[int](func(ctx context.Context, n int) ([]int, error) {
		if !ready.Load() {
			return nil, nil
		}
		return []int{7}, nil
	})
	q := openQueue[int](t, 5, p)

	_, err := q.Dequeue(context.Background(), Forever())
	require.ErrorIs(t, err, ErrExhausted)

	ready.Store(true)
	item, err := q.Dequeue(context.Background(), Forever())
	require.NoError(t, err)
	assert.Equal(t, 7, item)
}

func TestEnqueueRejectsNil(t *testing.T) {
	q, err := New[*int](1, sliceprovider.New[*int](nil), WithEagerFill(false))
	require.NoError(t, err)

	assert.ErrorIs(t, q.Enqueue(nil), ErrNilItem)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0, q.gate.Permits())

	var iface error
	qi, err := New[error](1, sliceprovider.New[error](nil))
	require.NoError(t, err)
	assert.ErrorIs(t, qi.Enqueue(iface), ErrNilItem)
}

func TestManualAndFuelledItemsAreConserved(t *testing.T) {
	p := sliceprovider.New(seq(40), sliceprovider.WithMaxBatch(6))
	q := openQueue[int](t, 6, p)

	const manual = 50
	const consumers = 8

	var delivered atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < manual; i++ {
		require.NoError(t, q.Enqueue(1000+i))
	}

	wg.Add(consumers)
	for c := 0; c < consumers; c++ {
		go func() {
			defer wg.Done()
			for {
				_, err := q.Dequeue(context.Background(), Within(5*time.Second))
				if err != nil {
					assert.ErrorIs(t, err, ErrExhausted)
					return
				}
				delivered.Add(1)
			}
		}()
	}
	wg.Wait()

	st := q.Stats()
	assert.EqualValues(t, 40+manual, delivered.Load())
	assert.Equal(t, st.Enqueued+st.Fetched, st.Delivered)
	assert.Equal(t, 0, q.Len())
}

func TestSingleProviderCallInFlight(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	var remaining atomic.Int32
	remaining.Store(200)

	p := ProviderFunc[int](func(ctx context.Context, n int) ([]int, error) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := maxInFlight.Load()
			if cur <= old || maxInFlight.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)

		var batch []int
		for i := 0; i < n && remaining.Add(-1) >= 0; i++ {
			batch = append(batch, i)
		}
		return batch, nil
	})
	q := openQueue[int](t, 3, p)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	var permitViolations atomic.Int32
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				if n := q.gate.Permits(); n != 0 && n != 1 {
					permitViolations.Add(1)
				}
				runtime.Gosched()
			}
		}
	}()

	for c := 0; c < 16; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if _, err := q.Dequeue(context.Background(), Forever()); err != nil {
					return
				}
			}
		}()
	}
	wg.Wait()
	close(stop)

	assert.EqualValues(t, 1, maxInFlight.Load())
	assert.Zero(t, permitViolations.Load())
	assert.EqualValues(t, 200, q.Stats().Delivered)
}

func TestTimeoutWhileRefillIsSlow(t *testing.T) {
	p := sliceprovider.New(seq(5), sliceprovider.WithLatency(300*time.Millisecond))
	q := openQueue[int](t, 5, p, WithEagerFill(false))

	first := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background(), Forever())
		first <- err
	}()

	require.Eventually(t, q.gate.Held, time.Second, time.Millisecond)

	_, err := q.Dequeue(context.Background(), Within(20*time.Millisecond))
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 0, q.Len())
	assert.True(t, q.gate.Held())

	require.NoError(t, <-first)
	assert.Equal(t, 4, q.Len())
	assert.Equal(t, 1, q.gate.Permits())
}

func TestCancellationWhileWaiting(t *testing.T) {
	p := sliceprovider.New(seq(5), sliceprovider.WithLatency(200*time.Millisecond))
	q := openQueue[int](t, 5, p, WithEagerFill(false))

	go func() { _, _ = q.Dequeue(context.Background(), Forever()) }()
	require.Eventually(t, q.gate.Held, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	_, err := q.Dequeue(ctx, Within(time.Minute))
	assert.ErrorIs(t, err, ErrWaitCanceled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, IsWaitFailure(err))
}

func TestCancellationDoesNotAbortRefill(t *testing.T) {
	p := sliceprovider.New(seq(5), sliceprovider.WithLatency(100*time.Millisecond))
	q := openQueue[int](t, 5, p, WithEagerFill(false))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	item, err := q.Dequeue(ctx, Forever())
	require.NoError(t, err)
	assert.Equal(t, 0, item)
	assert.Equal(t, 4, q.Len())
}

func TestProviderErrorReleasesGate(t *testing.T) {
	boom := errors.New("boom")
	var fail atomic.Bool
	fail.Store(true)
	p := ProviderFunc[int](func(ctx context.Context, n int) ([]int, error) {
		if fail.Load() {
			return nil, boom
		}
		return []int{1, 2}, nil
	})
	q := openQueue[int](t, 2, p, WithEagerFill(false))

	_, err := q.Dequeue(context.Background(), Within(time.Second))
	assert.Same(t, boom, err)
	assert.Equal(t, 1, q.gate.Permits())
	assert.EqualValues(t, 1, q.Stats().ProviderFailures)

	fail.Store(false)
	item, err := q.Dequeue(context.Background(), Within(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, item)
}

func TestEagerFillErrorStillOpens(t *testing.T) {
	boom := errors.New("boom")
	p := ProviderFunc[int](func(ctx context.Context, n int) ([]int, error) {
		return nil, boom
	})
	q, err := New[int](2, p)
	require.NoError(t, err)
	assert.ErrorIs(t, q.Open(context.Background()), boom)
	assert.Equal(t, 1, q.gate.Permits())
}

func TestProviderPanicReleasesGate(t *testing.T) {
	p := ProviderFunc[int](func(ctx context.Context, n int) ([]int, error) {
		panic("provider exploded")
	})
	q := openQueue[int](t, 2, p, WithEagerFill(false))

	assert.Panics(t, func() {
		_, _ = q.Dequeue(context.Background(), Forever())
	})
	assert.Equal(t, 1, q.gate.Permits())
}

func TestNilInBatchRejectsWholeBatch(t *testing.T) {
	one := 1
	p := ProviderFunc[*int](func(ctx context.Context, n int) ([]*int, error) {
		return []*int{&one, nil}, nil
	})
	q := openQueue[*int](t, 2, p, WithEagerFill(false))

	_, err := q.Dequeue(context.Background(), Forever())
	assert.ErrorIs(t, err, ErrNilItem)
	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 1, q.gate.Permits())
}

func TestDeficitIsClampedToZero(t *testing.T) {
	var requested []int
	p := ProviderFunc[int](func(ctx context.Context, n int) ([]int, error) {
		requested = append(requested, n)
		return nil, nil
	})
	q, err := New[int](5, p)
	require.NoError(t, err)
	for i := 0; i < 7; i++ {
		require.NoError(t, q.Enqueue(i))
	}
	require.NoError(t, q.Open(context.Background()))

	assert.Equal(t, []int{0}, requested)
	assert.Equal(t, seq(7), drain(t, q))
	assert.Equal(t, []int{0, 5}, requested)
}

func TestWaitPolicy(t *testing.T) {
	d, bounded := Forever().Timeout()
	assert.False(t, bounded)
	assert.Zero(t, d)

	d, bounded = WithinMillis(250).Timeout()
	assert.True(t, bounded)
	assert.Equal(t, 250*time.Millisecond, d)

	d, _ = Within(-time.Second).Timeout()
	assert.Zero(t, d)

	assert.Equal(t, "within 1s", Within(time.Second).String())
	assert.Equal(t, "forever", WaitPolicy{}.String())
}
