// Package measurement provides the analog-sample plumbing described in
// spec.md §4.2: a lock-free single-producer/single-consumer ring for the
// supervisor's fast path, and a ticker-driven Sampler for UI-facing
// channels that publish onto the topic bus.
package measurement

import "sync/atomic"

// Ring is a fixed-capacity SPSC ring buffer of T. Exactly one goroutine
// may call Push, and exactly one (possibly different) goroutine may call
// Pop; under that discipline both are lock-free and allocation-free in
// the steady state, which is what lets the supervisor's sample loop read
// from it without risking a GC pause or a blocked mutex on its hot path.
//
// When the ring is full, Push overwrites the oldest unread entry — the
// supervisor only ever cares about the freshest sample, so silently
// dropping a stale one it hasn't gotten around to reading yet is the
// correct behavior, not a bug.
type Ring[T any] struct {
	buf  []T
	mask uint64

	// head is the next slot Push will write; tail is the next slot Pop
	// will read. Both only ever increase; the modulo arithmetic for
	// indexing into buf happens via the mask.
	head atomic.Uint64
	tail atomic.Uint64
}

// NewRing returns a Ring whose capacity is the next power of two ≥ size
// (so index wrapping can use a bitmask instead of a division).
func NewRing[T any](size int) *Ring[T] {
	capacity := 1
	for capacity < size {
		capacity <<= 1
	}
	return &Ring[T]{
		buf:  make([]T, capacity),
		mask: uint64(capacity - 1),
	}
}

// Push writes value into the ring, overwriting the oldest unread entry if
// the ring is full (i.e. the consumer has fallen behind by a full
// capacity's worth of samples).
func (r *Ring[T]) Push(value T) {
	h := r.head.Load()
	r.buf[h&r.mask] = value
	r.head.Store(h + 1)

	// If the producer has lapped the consumer, advance tail so Pop never
	// reads a slot the next Push is about to overwrite concurrently.
	t := r.tail.Load()
	if h+1-t > uint64(len(r.buf)) {
		r.tail.Store(h + 1 - uint64(len(r.buf)))
	}
}

// Pop removes and returns the oldest unread entry, if any.
func (r *Ring[T]) Pop() (value T, ok bool) {
	t := r.tail.Load()
	h := r.head.Load()
	if t == h {
		return value, false
	}
	value = r.buf[t&r.mask]
	r.tail.Store(t + 1)
	return value, true
}

// Latest drains the ring and returns only the most recent entry, which is
// the access pattern the supervisor actually uses: it never needs the
// full history, only "what is V and I right now".
func (r *Ring[T]) Latest() (value T, ok bool) {
	for {
		v, popped := r.Pop()
		if !popped {
			return value, ok
		}
		value, ok = v, true
	}
}

// Len reports the number of unread entries, for diagnostics/metrics only.
func (r *Ring[T]) Len() int {
	return int(r.head.Load() - r.tail.Load())
}
