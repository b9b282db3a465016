package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tradewatch/cyclarb/pkg/types"
)

// fakeEngine serves canned data for handler tests.
type fakeEngine struct {
	opps  []types.Opportunity
	stats types.PerformanceStats
}

func (f *fakeEngine) GetRecentOpportunities(limit int) []types.Opportunity {
	if limit < len(f.opps) {
		return f.opps[len(f.opps)-limit:]
	}
	return f.opps
}

func (f *fakeEngine) GetPerformanceStats() types.PerformanceStats {
	return f.stats
}

func newTestServer(eng EngineView) *httptest.Server {
	s := NewServer(Config{Port: 0}, eng)
	return httptest.NewServer(s.httpServer.Handler)
}

// TestOpportunitiesEndpoint checks the JSON array shape and the limit
// parameter.
func TestOpportunitiesEndpoint(t *testing.T) {
	eng := &fakeEngine{
		opps: []types.Opportunity{
			{ID: "1", Path: []string{"A_0", "B_0", "C_0"}, ProfitPct: 0.01, DetectedAt: time.Now()},
			{ID: "2", Path: []string{"B_0", "C_0", "D_0"}, ProfitPct: 0.02, DetectedAt: time.Now()},
		},
	}
	srv := newTestServer(eng)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/opportunities?limit=1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	var got []types.Opportunity
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("body: got %+v", got)
	}
}

// TestOpportunitiesBadLimit checks invalid limits are rejected.
func TestOpportunitiesBadLimit(t *testing.T) {
	srv := newTestServer(&fakeEngine{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/opportunities?limit=zero")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", resp.StatusCode)
	}
}

// TestStatsEndpoint checks the counters snapshot round-trips.
func TestStatsEndpoint(t *testing.T) {
	eng := &fakeEngine{stats: types.PerformanceStats{
		MessagesProcessed:  42,
		OpportunitiesFound: 7,
		AvgLatencyUs:       145.7,
	}}
	srv := newTestServer(eng)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got types.PerformanceStats
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.MessagesProcessed != 42 || got.OpportunitiesFound != 7 {
		t.Fatalf("stats: got %+v", got)
	}
}

// TestHealthEndpoint checks the liveness probe.
func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&fakeEngine{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
}
