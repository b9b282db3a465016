package engine

import (
	"testing"

	"github.com/tradewatch/cyclarb/pkg/types"
)

// TestRingRoundTrip pushes one tick through a small ring and confirms the
// ring is empty afterwards.
func TestRingRoundTrip(t *testing.T) {
	r := newTickRing(8)

	in := types.Tick{Symbol: "BTC/USDT", Bid: 1, Ask: 2, Sequence: 7}
	if !r.TryEnqueue(in) {
		t.Fatal("first enqueue must succeed")
	}
	out, ok := r.TryDequeue()
	if !ok || out.Symbol != in.Symbol || out.Sequence != in.Sequence {
		t.Fatalf("got %+v, want %+v", out, in)
	}
	if _, ok := r.TryDequeue(); ok {
		t.Fatal("ring should now be empty")
	}
}

// TestRingDropNewestWhenFull fills the ring to capacity and checks that a
// further enqueue is rejected without disturbing the queued ticks.
func TestRingDropNewestWhenFull(t *testing.T) {
	r := newTickRing(4)
	for i := 0; i < 4; i++ {
		if !r.TryEnqueue(types.Tick{Sequence: uint64(i)}) {
			t.Fatalf("enqueue %d unexpectedly failed", i)
		}
	}
	if r.TryEnqueue(types.Tick{Sequence: 99}) {
		t.Fatal("enqueue into full ring should return false")
	}
	for i := 0; i < 4; i++ {
		tick, ok := r.TryDequeue()
		if !ok || tick.Sequence != uint64(i) {
			t.Fatalf("dequeue %d: got (%v, %v)", i, tick.Sequence, ok)
		}
	}
}

// TestRingFIFOAcrossWrap drives more ticks than the capacity through the ring
// and verifies delivery stays in enqueue order.
func TestRingFIFOAcrossWrap(t *testing.T) {
	r := newTickRing(4)
	next := uint64(0)
	for round := 0; round < 5; round++ {
		for i := 0; i < 3; i++ {
			if !r.TryEnqueue(types.Tick{Sequence: next + uint64(i)}) {
				t.Fatalf("round %d enqueue %d failed", round, i)
			}
		}
		for i := 0; i < 3; i++ {
			tick, ok := r.TryDequeue()
			if !ok || tick.Sequence != next {
				t.Fatalf("round %d: got (%v, %v), want %d", round, tick.Sequence, ok, next)
			}
			next++
		}
	}
}

// TestRingCapacityRounding confirms non-power-of-two capacities round up.
func TestRingCapacityRounding(t *testing.T) {
	cases := map[int]int{1: 1, 3: 4, 4: 4, 100: 128, 65536: 65536}
	for in, want := range cases {
		if got := newTickRing(in).Cap(); got != want {
			t.Errorf("capacity %d: got %d, want %d", in, got, want)
		}
	}
}
