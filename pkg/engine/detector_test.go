package engine

import (
	"math"
	"testing"

	"github.com/tradewatch/cyclarb/pkg/types"
)

// feed pushes a tick straight through the graph-update path, bypassing the
// channel, so sweep tests stay deterministic.
func feed(e *Engine, exchange types.Exchange, symbol string, bid, ask float64) {
	tick := types.Tick{Exchange: exchange, Symbol: symbol, Bid: bid, Ask: ask}
	e.updateGraph(&tick)
}

// collect registers a callback that appends every accepted opportunity.
func collect(e *Engine) *[]types.Opportunity {
	var got []types.Opportunity
	e.RegisterOpportunityCallback(func(o *types.Opportunity) {
		got = append(got, *o)
	})
	return &got
}

// TestSweepFindsTriangle reproduces the classic crypto triangle: three ticks
// on one exchange whose rates compose to a ~2.45% round trip.
func TestSweepFindsTriangle(t *testing.T) {
	e := New(DefaultConfig())
	got := collect(e)

	feed(e, types.ExchangeBinance, "BTC/USDT", 50000, 50010)
	feed(e, types.ExchangeBinance, "ETH/USDT", 2000, 2001)
	feed(e, types.ExchangeBinance, "ETH/BTC", 0.041, 0.0411)

	e.sweep()

	if len(*got) == 0 {
		t.Fatal("expected at least one opportunity")
	}

	wantProfit := math.Exp(math.Log(0.041*50000/2001)) - 1
	found := false
	for _, opp := range *got {
		if len(opp.Path) != 3 {
			continue
		}
		members := map[string]bool{}
		for _, label := range opp.Path {
			members[label] = true
		}
		if members["BTC_0"] && members["USDT_0"] && members["ETH_0"] {
			found = true
			if math.Abs(opp.ProfitPct-wantProfit) > 1e-9 {
				t.Fatalf("profit: got %v, want %v", opp.ProfitPct, wantProfit)
			}
			if opp.Confidence > 150 {
				t.Fatalf("confidence out of range: %d", opp.Confidence)
			}
			if opp.MaxVolume != e.cfg.MaxPositionSize/3 {
				t.Fatalf("max volume: got %v, want %v", opp.MaxVolume, e.cfg.MaxPositionSize/3)
			}
		}
	}
	if !found {
		t.Fatalf("no triangle over {BTC_0, USDT_0, ETH_0}; got %+v", *got)
	}
}

// TestSweepQuietMarket verifies a consistent market produces no
// opportunities.
func TestSweepQuietMarket(t *testing.T) {
	e := New(DefaultConfig())
	got := collect(e)

	feed(e, types.ExchangeBinance, "BTC/USDT", 50000, 50100)
	feed(e, types.ExchangeBinance, "ETH/USDT", 2000, 2010)
	feed(e, types.ExchangeBinance, "ETH/BTC", 0.04, 0.0401)

	e.sweep()

	if len(*got) != 0 {
		t.Fatalf("expected no opportunities, got %+v", *got)
	}
	if found := e.GetPerformanceStats().OpportunitiesFound; found != 0 {
		t.Fatalf("opportunities_found: got %d, want 0", found)
	}
}

// TestProfitMatchesLogSum checks the log-exp round trip: the reported profit
// must equal exp(-sum of edge weights)-1 to within 1e-12 relative error.
func TestProfitMatchesLogSum(t *testing.T) {
	e := New(DefaultConfig())
	got := collect(e)

	feed(e, types.ExchangeKraken, "AAA/BBB", 3, 3.0003)
	feed(e, types.ExchangeKraken, "BBB/CCC", 5, 5.0005)
	feed(e, types.ExchangeKraken, "CCC/AAA", 0.07, 0.070007)

	e.sweep()

	if len(*got) == 0 {
		t.Fatal("expected an opportunity")
	}
	opp := (*got)[0]

	// Recompute the log-sum from the opportunity's own path.
	sum := 0.0
	for i, label := range opp.Path {
		next := opp.Path[(i+1)%len(opp.Path)]
		u := e.index.forward[label]
		v := e.index.forward[next]
		sum += e.graph.weight(u, v)
	}
	want := math.Exp(-sum) - 1
	if rel := math.Abs(opp.ProfitPct-want) / math.Abs(want); rel > 1e-12 {
		t.Fatalf("round trip: got %v, want %v (rel err %v)", opp.ProfitPct, want, rel)
	}
	if sum >= 0 {
		t.Fatalf("emitted cycle has non-negative log sum %v", sum)
	}
}

// TestDiagonalInvariant verifies W[u][u] stays zero for every assigned node
// through a burst of updates.
func TestDiagonalInvariant(t *testing.T) {
	e := New(DefaultConfig())

	symbols := []string{"BTC/USDT", "ETH/USDT", "ETH/BTC", "SOL/USDT", "SOL/BTC"}
	for round := 0; round < 20; round++ {
		for _, sym := range symbols {
			feed(e, types.ExchangeBinance, sym, float64(round+1), float64(round+2))
		}
	}
	e.sweep()

	for id := uint32(0); id < e.index.count(); id++ {
		if w := e.graph.weight(id, id); w != 0 {
			t.Fatalf("diagonal of %s drifted to %v", e.index.label(id), w)
		}
	}
}

// TestExtractCycleRejectsShortCycles builds a two-node relaxation loop and
// confirms no opportunity shorter than three hops escapes.
func TestExtractCycleRejectsShortCycles(t *testing.T) {
	e := New(DefaultConfig())
	got := collect(e)

	// A wildly crossed two-currency market: profitable round trip, but only
	// two nodes.
	feed(e, types.ExchangeBinance, "BTC/USDT", 50000, 40000)

	e.sweep()

	for _, opp := range *got {
		if len(opp.Path) < 3 {
			t.Fatalf("emitted cycle of length %d: %v", len(opp.Path), opp.Path)
		}
	}
}
