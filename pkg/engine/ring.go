package engine

import (
	"sync/atomic"

	"github.com/tradewatch/cyclarb/pkg/types"
)

// tickRing is a fixed-capacity single-producer/single-consumer ring buffer
// carrying market ticks from the ingest boundary to the graph-update worker.
// Producer and consumer cursors live on separate cache lines, and each slot
// carries a sequence stamp so TryEnqueue/TryDequeue need no shared head/tail
// atomics.
//
// The single-producer contract is upheld by the feed pump, which serializes
// all provider updates through one goroutine before calling UpdatePrice.
type tickRing struct {
	_    [64]byte
	head uint64
	_    [64]byte
	tail uint64
	_    [64]byte
	mask uint64
	buf  []tickSlot
}

type tickSlot struct {
	seq  uint64
	tick types.Tick
}

// newTickRing allocates a ring of at least the requested capacity, rounded up
// to a power of two so the cursor arithmetic can mask instead of divide.
func newTickRing(capacity int) *tickRing {
	size := 1
	for size < capacity {
		size <<= 1
	}
	r := &tickRing{
		mask: uint64(size - 1),
		buf:  make([]tickSlot, size),
	}
	for i := range r.buf {
		r.buf[i].seq = uint64(i)
	}
	return r
}

// TryEnqueue publishes one tick, returning false when the ring is full. The
// incoming tick is the one rejected (drop-newest backpressure).
func (r *tickRing) TryEnqueue(t types.Tick) bool {
	tail := r.tail
	s := &r.buf[tail&r.mask]
	if atomic.LoadUint64(&s.seq) != tail {
		return false // consumer has not reclaimed the slot yet
	}
	s.tick = t
	atomic.StoreUint64(&s.seq, tail+1)
	r.tail = tail + 1
	return true
}

// TryDequeue removes the oldest tick, or returns ok=false when empty.
func (r *tickRing) TryDequeue() (types.Tick, bool) {
	head := r.head
	s := &r.buf[head&r.mask]
	if atomic.LoadUint64(&s.seq) != head+1 {
		return types.Tick{}, false // producer has not published to the slot
	}
	t := s.tick
	atomic.StoreUint64(&s.seq, head+uint64(len(r.buf)))
	r.head = head + 1
	return t, true
}

// Cap returns the ring capacity after power-of-two rounding.
func (r *tickRing) Cap() int {
	return len(r.buf)
}
