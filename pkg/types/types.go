// Package types defines core data structures for the arbitrage detector.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Exchange identifies a trading venue. Values are dense so they can be folded
// into currency node keys.
type Exchange uint8

const (
	ExchangeBinance  Exchange = 0
	ExchangeCoinbase Exchange = 1
	ExchangeKraken   Exchange = 2
	ExchangeUnknown  Exchange = 255
)

// MaxExchanges is the number of exchanges the rate-graph capacity is sized
// for (engine.MaxNodes allots 256 nodes to each). The currency index does not
// check exchange ids against it.
const MaxExchanges = 16

func (e Exchange) String() string {
	switch e {
	case ExchangeBinance:
		return "binance"
	case ExchangeCoinbase:
		return "coinbase"
	case ExchangeKraken:
		return "kraken"
	default:
		return "unknown"
	}
}

// ParseExchange maps an exchange name to its identifier.
func ParseExchange(name string) (Exchange, error) {
	switch strings.ToLower(name) {
	case "binance":
		return ExchangeBinance, nil
	case "coinbase":
		return ExchangeCoinbase, nil
	case "kraken":
		return ExchangeKraken, nil
	default:
		return ExchangeUnknown, fmt.Errorf("unknown exchange %q", name)
	}
}

// Tick is one update of top-of-book bid/ask for a symbol on an exchange.
// Symbols use the "BASE/QUOTE" form, e.g. "BTC/USDT".
type Tick struct {
	Exchange  Exchange
	Symbol    string
	Bid       float64
	Ask       float64
	Last      float64 // (bid+ask)/2 when not otherwise known
	Volume    float64
	Timestamp time.Time
	Sequence  uint64
}

// Opportunity is a detected negative-sum cycle after the profitability gate.
// Path holds currency node labels in forward trading order; the last hop
// closes back to the first label.
type Opportunity struct {
	ID         string    `json:"id"`
	Path       []string  `json:"path"`
	ProfitPct  float64   `json:"profit_percentage"`
	MaxVolume  float64   `json:"max_volume"`
	Confidence uint32    `json:"confidence"`
	DetectedAt time.Time `json:"detected_at"`
}

// PathString renders the cycle in the "A -> B -> C" form used by the
// reporting surfaces.
func (o *Opportunity) PathString() string {
	return strings.Join(o.Path, " -> ")
}

// PerformanceStats is a point-in-time snapshot of engine counters.
type PerformanceStats struct {
	MessagesProcessed  uint64    `json:"messages_processed"`
	OpportunitiesFound uint64    `json:"opportunities_found"`
	FalsePositives     uint64    `json:"false_positives"`
	AvgLatencyUs       float64   `json:"avg_latency_us"`
	LastUpdate         time.Time `json:"last_update"`
}

// FeeStructure represents trading fees for an exchange. The engine's
// profitability gate handles fees through the configured threshold; the feed
// providers expose per-venue fees through GetFees, which no reporting surface
// shows.
type FeeStructure struct {
	Exchange    string `json:"exchange"`
	MakerFeeBps int    `json:"maker_fee_bps"`
	TakerFeeBps int    `json:"taker_fee_bps"`
}
