// Package topic implements the retained, strongly typed publish/subscribe
// cell that every observable quantity in the daemon is built from: a
// Topic[T] holds the last published value plus a monotonically increasing
// serial number, and fans changes out to subscribers synchronously in the
// publishing goroutine.
package topic

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Callback is invoked on every publish (and once, immediately, on
// subscribe if a retained value exists). On a publish newSerial is
// oldSerial+1; on the immediate retained-value delivery both equal the
// retained serial.
type Callback[T any] func(oldSerial, newSerial uint64, value T)

type subscriber[T any] struct {
	token    uint64
	cb       Callback[T]
	removed  bool
}

// Topic is the atomic unit of state described in spec.md §3. It is safe
// for concurrent use from any number of goroutines.
type Topic[T any] struct {
	logger *logrus.Logger
	name   string

	// Writable is not consulted by this package or by the broker; whether
	// an external PUT may publish is decided by the writable argument the
	// topic is registered with on the broker.
	Writable bool

	mu         sync.Mutex
	value      T
	hasValue   bool
	serial     uint64
	subs       []*subscriber[T]
	nextToken  uint64
	fanningOut bool
	queue      []T
}

// New returns a topic identified by name (used only for log messages; the
// broker is what gives a topic its externally visible path).
func New[T any](logger *logrus.Logger, name string) *Topic[T] {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Topic[T]{logger: logger, name: name}
}

// Publish strictly increments the topic's serial and fans the value out to
// every current subscriber, in subscription order, synchronously in the
// calling goroutine. A publish that equals the current value is still
// delivered — it may be a heartbeat.
//
// Publishes are totally ordered per topic. A publish issued from within a
// subscriber callback for the same topic (directly, or via a call chain
// that re-enters Publish before the outer fan-out has returned) is queued
// and delivered immediately after the in-progress fan-out completes,
// rather than recursing — this is the only subtlety in the concurrency
// model and it is what keeps deadlock-freedom a property of the design
// rather than of callback discipline.
func (t *Topic[T]) Publish(value T) {
	t.mu.Lock()
	if t.fanningOut {
		t.queue = append(t.queue, value)
		t.mu.Unlock()
		return
	}
	t.fanningOut = true
	t.mu.Unlock()

	t.deliver(value)

	for {
		t.mu.Lock()
		if len(t.queue) == 0 {
			t.fanningOut = false
			t.mu.Unlock()
			return
		}
		next := t.queue[0]
		t.queue = t.queue[1:]
		t.mu.Unlock()
		t.deliver(next)
	}
}

func (t *Topic[T]) deliver(value T) {
	t.mu.Lock()
	oldSerial := t.serial
	t.serial++
	newSerial := t.serial
	t.value = value
	t.hasValue = true
	subs := make([]*subscriber[T], 0, len(t.subs))
	for _, s := range t.subs {
		if !s.removed {
			subs = append(subs, s)
		}
	}
	t.mu.Unlock()

	for _, s := range subs {
		t.invoke(s, oldSerial, newSerial, value)
	}
}

// invoke calls a subscriber's callback, recovering from (and logging) a
// panic. A panicking subscriber is unsubscribed; other subscribers still
// receive the value, both this publish and all future ones.
func (t *Topic[T]) invoke(s *subscriber[T], oldSerial, newSerial uint64, value T) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.WithFields(logrus.Fields{
				"topic": t.name,
				"panic": r,
			}).Error("topic subscriber panicked; removing subscription")
			t.mu.Lock()
			s.removed = true
			t.mu.Unlock()
		}
	}()
	s.cb(oldSerial, newSerial, value)
}

// Get returns the retained value, its serial, and whether a value has ever
// been published.
func (t *Topic[T]) Get() (value T, serial uint64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.value, t.serial, t.hasValue
}

// Subscription is a token returned by Subscribe. Calling Cancel stops
// further delivery; a subscription whose token is dropped without Cancel
// keeps receiving. A callback already in flight when Cancel is called
// completes.
type Subscription struct {
	cancel func()
}

// Cancel unregisters the subscription. It is idempotent.
func (s *Subscription) Cancel() {
	if s != nil && s.cancel != nil {
		s.cancel()
	}
}

// Subscribe registers cb for every future publish. If the topic already
// has a retained value, cb is invoked once, synchronously, with that value
// before Subscribe returns.
func (t *Topic[T]) Subscribe(cb Callback[T]) *Subscription {
	t.mu.Lock()
	token := t.nextToken
	t.nextToken++
	sub := &subscriber[T]{token: token, cb: cb}
	t.subs = append(t.subs, sub)
	value, serial, has := t.value, t.serial, t.hasValue
	t.mu.Unlock()

	if has {
		t.invoke(sub, serial, serial, value)
	}

	return &Subscription{cancel: func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, s := range t.subs {
			if s == sub {
				s.removed = true
				t.subs = append(t.subs[:i], t.subs[i+1:]...)
				return
			}
		}
	}}
}

// WaitFor blocks until a publish whose value satisfies predicate occurs (or
// the retained value already satisfies it), or ctx is done.
func (t *Topic[T]) WaitFor(ctx context.Context, predicate func(T) bool) (T, error) {
	var zero T

	if value, _, ok := t.Get(); ok && predicate(value) {
		return value, nil
	}

	ch := make(chan T, 1)
	sub := t.Subscribe(func(_, _ uint64, value T) {
		if predicate(value) {
			select {
			case ch <- value:
			default:
			}
		}
	})
	defer sub.Cancel()

	select {
	case value := <-ch:
		return value, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// SubscriberCount reports the current number of live subscriptions, used by
// the arbiter and by metrics; it is not part of the external wire surface.
func (t *Topic[T]) SubscriberCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, s := range t.subs {
		if !s.removed {
			n++
		}
	}
	return n
}
