package engine

import (
	"testing"
	"time"

	"github.com/tradewatch/cyclarb/pkg/types"
)

func testOpp(profit float64) *types.Opportunity {
	return &types.Opportunity{
		ID:         "test",
		Path:       []string{"BTC_0", "USDT_0", "ETH_0"},
		ProfitPct:  profit,
		DetectedAt: time.Now(),
	}
}

// TestSinkProfitabilityGate verifies opportunities at or below the threshold
// are classified unprofitable and kept out of history.
func TestSinkProfitabilityGate(t *testing.T) {
	s := newOpportunitySink(0.001, 100, 10)

	if got := s.offer(testOpp(0.001)); got != sinkUnprofitable {
		t.Fatalf("at-threshold offer: got %v, want sinkUnprofitable", got)
	}
	if got := s.offer(testOpp(0.0005)); got != sinkUnprofitable {
		t.Fatalf("below-threshold offer: got %v, want sinkUnprofitable", got)
	}
	if got := s.offer(testOpp(0.002)); got != sinkAccepted {
		t.Fatalf("above-threshold offer: got %v, want sinkAccepted", got)
	}
	if n := len(s.recent(-1)); n != 1 {
		t.Fatalf("history length: got %d, want 1", n)
	}
}

// TestSinkRateLimit verifies at most maxPerSec opportunities pass in a
// one-second window and rejected ones stay out of history.
func TestSinkRateLimit(t *testing.T) {
	s := newOpportunitySink(0.001, 2, 100)

	results := make([]sinkResult, 0, 5)
	for i := 0; i < 5; i++ {
		results = append(results, s.offer(testOpp(0.01)))
	}

	accepted := 0
	for _, r := range results {
		if r == sinkAccepted {
			accepted++
		} else if r != sinkRateLimited {
			t.Fatalf("unexpected result %v", r)
		}
	}
	if accepted != 2 {
		t.Fatalf("accepted: got %d, want 2", accepted)
	}
	if n := len(s.recent(-1)); n != 2 {
		t.Fatalf("history grew by %d, want 2", n)
	}
}

// TestSinkHistoryEviction verifies the ring keeps at most historyCap entries
// and evicts the oldest first.
func TestSinkHistoryEviction(t *testing.T) {
	s := newOpportunitySink(0, 0, 3) // maxPerSec 0 disables the limiter

	for i := 0; i < 5; i++ {
		opp := testOpp(0.01)
		opp.MaxVolume = float64(i)
		if got := s.offer(opp); got != sinkAccepted {
			t.Fatalf("offer %d: got %v", i, got)
		}
	}

	recent := s.recent(-1)
	if len(recent) != 3 {
		t.Fatalf("history length: got %d, want 3", len(recent))
	}
	for i, opp := range recent {
		if want := float64(i + 2); opp.MaxVolume != want {
			t.Fatalf("entry %d: got %v, want %v (oldest must go first)", i, opp.MaxVolume, want)
		}
	}

	// recent with a limit returns the newest slice, still oldest first.
	last2 := s.recent(2)
	if len(last2) != 2 || last2[0].MaxVolume != 3 || last2[1].MaxVolume != 4 {
		t.Fatalf("recent(2): got %+v", last2)
	}
}

// TestSinkCallbackPanicIsolation verifies a panicking subscriber does not
// abort fan-out to subscribers registered after it.
func TestSinkCallbackPanicIsolation(t *testing.T) {
	s := newOpportunitySink(0, 0, 10)

	var order []string
	s.register(func(*types.Opportunity) {
		order = append(order, "first")
		panic("boom")
	})
	s.register(func(*types.Opportunity) {
		order = append(order, "second")
	})

	if got := s.offer(testOpp(0.01)); got != sinkAccepted {
		t.Fatalf("offer: got %v", got)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("fan-out order: got %v", order)
	}
}
