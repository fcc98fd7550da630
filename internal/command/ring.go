// ABOUTME: Lock-free single-producer/single-consumer command ring
// ABOUTME: Fixed-capacity ring buffer with acquire/release atomics, no allocation on push/pop
package command

import "sync/atomic"

// DefaultRingSize is the default command channel capacity.
const DefaultRingSize = 256

// Ring is a fixed-capacity single-producer/single-consumer queue.
//
// Exactly one goroutine may call TryPush and exactly one may call TryPop;
// that contract is not runtime-checked. The producer writes the slot before
// publishing the new tail (release), and the consumer loads the tail
// (acquire) before reading the slot, so the consumer never observes a torn
// command. Neither operation blocks or allocates, which keeps TryPop safe
// to call from the device render goroutine.
type Ring struct {
	buf  []Command
	mask uint64
	head atomic.Uint64 // next slot to pop, advanced only by the consumer
	tail atomic.Uint64 // next slot to push, advanced only by the producer
}

// NewRing creates a ring with the given capacity, rounded up to a power of
// two so index wrapping is a mask. Capacity below 2 is raised to the default.
func NewRing(capacity int) *Ring {
	if capacity < 2 {
		capacity = DefaultRingSize
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &Ring{
		buf:  make([]Command, size),
		mask: uint64(size - 1),
	}
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Len returns the number of queued commands. The value is advisory: it is
// exact only from the producer or consumer goroutine.
func (r *Ring) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// TryPush enqueues cmd. It returns false, dropping the command, when the
// ring is full; the caller retries on its next control tick.
func (r *Ring) TryPush(cmd Command) bool {
	tail := r.tail.Load()
	head := r.head.Load()
	if tail-head >= uint64(len(r.buf)) {
		return false
	}
	r.buf[tail&r.mask] = cmd
	r.tail.Store(tail + 1) // release: payload write above happens-before this store
	return true
}

// TryPop dequeues the oldest command, reporting false when the ring is empty.
func (r *Ring) TryPop() (Command, bool) {
	head := r.head.Load()
	tail := r.tail.Load() // acquire: pairs with the producer's tail store
	if head == tail {
		return Command{}, false
	}
	cmd := r.buf[head&r.mask]
	r.buf[head&r.mask] = Command{} // drop the Track reference once consumed
	r.head.Store(head + 1)
	return cmd, true
}
