// Package reporter provides arbitrage opportunity reporting and output
// formatting.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tradewatch/cyclarb/pkg/types"
)

// OutputFormat specifies the output format for reports.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatCSV  OutputFormat = "csv"
)

// Reporter outputs detected opportunities in various formats and keeps
// simple session counters. It is safe to use as an engine opportunity
// callback.
type Reporter struct {
	output  io.Writer
	format  OutputFormat
	verbose bool

	mu         sync.Mutex
	startTime  time.Time
	reported   int64
	bestProfit float64
	csvHeader  bool
}

// NewReporter creates a new reporter.
func NewReporter(output io.Writer, format OutputFormat, verbose bool) *Reporter {
	if output == nil {
		output = os.Stdout
	}
	return &Reporter{
		output:    output,
		format:    format,
		verbose:   verbose,
		startTime: time.Now(),
	}
}

// ReportOpportunity writes one opportunity in the configured format.
func (r *Reporter) ReportOpportunity(opp *types.Opportunity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reported++
	if opp.ProfitPct > r.bestProfit {
		r.bestProfit = opp.ProfitPct
	}

	switch r.format {
	case FormatJSON:
		r.reportJSON(opp)
	case FormatCSV:
		r.reportCSV(opp)
	default:
		r.reportText(opp)
	}
}

// reportText outputs an opportunity in human-readable text format.
func (r *Reporter) reportText(opp *types.Opportunity) {
	fmt.Fprintln(r.output)
	fmt.Fprintln(r.output, strings.Repeat("=", 72))
	fmt.Fprintf(r.output, "ARBITRAGE OPPORTUNITY  %s\n", opp.DetectedAt.Format(time.RFC3339Nano))
	fmt.Fprintln(r.output, strings.Repeat("=", 72))
	fmt.Fprintf(r.output, "Path:       %s\n", opp.PathString())
	fmt.Fprintf(r.output, "Profit:     %.4f%%\n", opp.ProfitPct*100)
	fmt.Fprintf(r.output, "Max volume: %.2f\n", opp.MaxVolume)
	fmt.Fprintf(r.output, "Confidence: %d\n", opp.Confidence)
	if r.verbose {
		fmt.Fprintf(r.output, "ID:         %s\n", opp.ID)
	}
}

// reportJSON outputs an opportunity as a single JSON line.
func (r *Reporter) reportJSON(opp *types.Opportunity) {
	data, err := json.Marshal(opp)
	if err != nil {
		fmt.Fprintf(r.output, `{"error":%q}`+"\n", err.Error())
		return
	}
	fmt.Fprintln(r.output, string(data))
}

// reportCSV outputs an opportunity as a CSV row, emitting the header once.
func (r *Reporter) reportCSV(opp *types.Opportunity) {
	if !r.csvHeader {
		fmt.Fprintln(r.output, "detected_at,path,profit_pct,max_volume,confidence")
		r.csvHeader = true
	}
	fmt.Fprintf(r.output, "%s,%s,%.8f,%.2f,%d\n",
		opp.DetectedAt.Format(time.RFC3339Nano),
		strings.ReplaceAll(opp.PathString(), ",", ";"),
		opp.ProfitPct,
		opp.MaxVolume,
		opp.Confidence,
	)
}

// ReportStats writes a summary of the engine counters.
func (r *Reporter) ReportStats(stats types.PerformanceStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.format == FormatJSON {
		data, err := json.Marshal(stats)
		if err == nil {
			fmt.Fprintln(r.output, string(data))
		}
		return
	}

	fmt.Fprintln(r.output)
	fmt.Fprintln(r.output, strings.Repeat("-", 72))
	fmt.Fprintf(r.output, "STATS  uptime=%s\n", time.Since(r.startTime).Round(time.Second))
	fmt.Fprintf(r.output, "  messages processed:   %d\n", stats.MessagesProcessed)
	fmt.Fprintf(r.output, "  opportunities found:  %d\n", stats.OpportunitiesFound)
	fmt.Fprintf(r.output, "  false positives:      %d\n", stats.FalsePositives)
	fmt.Fprintf(r.output, "  avg ingest latency:   %.1fus\n", stats.AvgLatencyUs)
	fmt.Fprintf(r.output, "  best profit seen:     %.4f%%\n", r.bestProfit*100)
	fmt.Fprintln(r.output, strings.Repeat("-", 72))
}

// Reported returns the number of opportunities written so far.
func (r *Reporter) Reported() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reported
}
