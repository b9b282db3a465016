package reporter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tradewatch/cyclarb/pkg/types"
)

func sampleOpp() *types.Opportunity {
	return &types.Opportunity{
		ID:         "abc",
		Path:       []string{"BTC_0", "USDT_0", "ETH_0"},
		ProfitPct:  0.0245,
		MaxVolume:  333.33,
		Confidence: 120,
		DetectedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// TestReportText checks the text format carries the path and profit.
func TestReportText(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, FormatText, false)
	r.ReportOpportunity(sampleOpp())

	out := buf.String()
	if !strings.Contains(out, "BTC_0 -> USDT_0 -> ETH_0") {
		t.Fatalf("path missing from output:\n%s", out)
	}
	if !strings.Contains(out, "2.4500%") {
		t.Fatalf("profit missing from output:\n%s", out)
	}
	if r.Reported() != 1 {
		t.Fatalf("reported: got %d", r.Reported())
	}
}

// TestReportJSONRoundTrip checks the JSON format is one parseable line.
func TestReportJSONRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, FormatJSON, false)
	r.ReportOpportunity(sampleOpp())

	var got types.Opportunity
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, buf.String())
	}
	if got.ProfitPct != 0.0245 || len(got.Path) != 3 {
		t.Fatalf("round trip: got %+v", got)
	}
}

// TestReportCSVHeaderOnce checks the header is written exactly once.
func TestReportCSVHeaderOnce(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf, FormatCSV, false)
	r.ReportOpportunity(sampleOpp())
	r.ReportOpportunity(sampleOpp())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines: got %d, want 3\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "detected_at,") {
		t.Fatalf("header: got %q", lines[0])
	}
}
