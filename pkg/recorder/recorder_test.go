package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/tradewatch/cyclarb/pkg/types"
)

// TestRecorderPersistsOpportunities round-trips a few opportunities through
// the write queue into SQLite.
func TestRecorderPersistsOpportunities(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opps.db")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	cb := r.Callback()
	for i := 0; i < 3; i++ {
		cb(&types.Opportunity{
			ID:         string(rune('a' + i)),
			Path:       []string{"BTC_0", "USDT_0", "ETH_0"},
			ProfitPct:  0.01,
			MaxVolume:  333.0,
			Confidence: 100,
			DetectedAt: time.Now(),
		})
	}

	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopen and count.
	r2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer r2.Close()

	n, err := r2.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("rows: got %d, want 3", n)
	}
}

// TestRecorderIgnoresDuplicateIDs verifies the primary key dedupes repeated
// callback deliveries.
func TestRecorderIgnoresDuplicateIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "opps.db")
	r, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer r.Close()

	cb := r.Callback()
	opp := &types.Opportunity{
		ID:         "same",
		Path:       []string{"A_0", "B_0", "C_0"},
		DetectedAt: time.Now(),
	}
	cb(opp)
	cb(opp)

	// Wait for the idle flush.
	deadline := time.After(2 * time.Second)
	for {
		n, err := r.Count()
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n == 1 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("rows: got %d, want 1", n)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
