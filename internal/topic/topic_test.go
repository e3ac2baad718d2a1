package topic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSubscribeDeliversRetainedValueImmediately(t *testing.T) {
	tp := New[int](nil, "test")
	tp.Publish(42)

	var got int
	var calls int
	sub := tp.Subscribe(func(_, _ uint64, v int) {
		got = v
		calls++
	})
	defer sub.Cancel()

	require.Equal(t, 1, calls)
	require.Equal(t, 42, got)
}

func TestPublishOrderAndSerialsAreMonotonic(t *testing.T) {
	tp := New[int](nil, "test")

	var mu sync.Mutex
	var seen []int
	var serials []uint64

	sub := tp.Subscribe(func(_, newSerial uint64, v int) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, v)
		serials = append(serials, newSerial)
	})
	defer sub.Cancel()

	for i := 1; i <= 5; i++ {
		tp.Publish(i)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3, 4, 5}, seen)
	for i := 1; i < len(serials); i++ {
		require.Greater(t, serials[i], serials[i-1])
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	tp := New[int](nil, "test")
	var calls int
	sub := tp.Subscribe(func(_, _ uint64, _ int) { calls++ })

	tp.Publish(1)
	require.Equal(t, 1, calls)

	sub.Cancel()
	tp.Publish(2)
	require.Equal(t, 1, calls, "no callback after cancel")
}

func TestRepublishOfEqualValueStillDelivers(t *testing.T) {
	tp := New[int](nil, "test")
	var calls int
	sub := tp.Subscribe(func(_, _ uint64, _ int) { calls++ })
	defer sub.Cancel()

	tp.Publish(7)
	tp.Publish(7)
	require.Equal(t, 2, calls, "heartbeat republish of an equal value is still delivered")
}

func TestReentrantPublishIsDeferredNotRecursive(t *testing.T) {
	tp := New[int](nil, "test")

	var order []int
	var depth int
	var maxDepth int

	sub := tp.Subscribe(func(_, _ uint64, v int) {
		depth++
		if depth > maxDepth {
			maxDepth = depth
		}
		order = append(order, v)
		if v == 1 {
			// Re-entrant publish from within a callback must not recurse
			// into another synchronous fan-out.
			tp.Publish(2)
		}
		depth--
	})
	defer sub.Cancel()

	tp.Publish(1)

	require.Equal(t, []int{1, 2}, order)
	require.Equal(t, 1, maxDepth, "fan-out must not recurse")
}

func TestPanickingSubscriberIsRemovedOthersStillNotified(t *testing.T) {
	tp := New[int](nil, "test")

	var secondCalls int
	bad := tp.Subscribe(func(_, _ uint64, _ int) { panic("boom") })
	defer bad.Cancel()
	good := tp.Subscribe(func(_, _ uint64, _ int) { secondCalls++ })
	defer good.Cancel()

	require.NotPanics(t, func() { tp.Publish(1) })
	require.Equal(t, 1, secondCalls)

	// The panicking subscriber should have been removed; publishing again
	// must not panic or re-invoke it.
	require.NotPanics(t, func() { tp.Publish(2) })
	require.Equal(t, 2, secondCalls)
}

func TestWaitForReturnsOnMatchingPublish(t *testing.T) {
	tp := New[int](nil, "test")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan int, 1)
	go func() {
		v, err := tp.WaitFor(ctx, func(v int) bool { return v >= 10 })
		require.NoError(t, err)
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	tp.Publish(1)
	tp.Publish(10)

	select {
	case v := <-done:
		require.Equal(t, 10, v)
	case <-time.After(time.Second):
		t.Fatal("WaitFor did not return in time")
	}
}

func TestWaitForMatchesRetainedValueImmediately(t *testing.T) {
	tp := New[int](nil, "test")
	tp.Publish(99)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := tp.WaitFor(ctx, func(v int) bool { return v == 99 })
	require.NoError(t, err)
	require.Equal(t, 99, v)
}

func TestGetReportsHasValue(t *testing.T) {
	tp := New[int](nil, "test")
	_, _, ok := tp.Get()
	require.False(t, ok)

	tp.Publish(5)
	v, serial, ok := tp.Get()
	require.True(t, ok)
	require.Equal(t, 5, v)
	require.Equal(t, uint64(1), serial)
}
