// Package engine implements the real-time cyclic arbitrage detection core: a
// currency-rate graph fed by market ticks and a periodic negative-cycle
// search that publishes qualifying opportunities.
package engine

import (
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradewatch/cyclarb/pkg/types"
)

// Config holds the tunables of the detection core.
type Config struct {
	// MinProfitThreshold is the profitability gate: opportunities with
	// profit_pct at or below it are dropped.
	MinProfitThreshold float64

	// MaxPositionSize caps the capital assumed available for a cycle; the
	// per-opportunity volume estimate divides it by the path length.
	MaxPositionSize float64

	// MaxOpportunitiesPerSecond bounds subscriber fan-out in any rolling
	// one-second window.
	MaxOpportunitiesPerSecond int

	// QueueCapacity is the tick channel capacity (rounded up to a power of
	// two).
	QueueCapacity int

	// DetectionInterval paces the Bellman-Ford sweeps.
	DetectionInterval time.Duration

	// PollInterval is how long the ingest worker sleeps when the tick
	// channel is empty.
	PollInterval time.Duration

	// HistoryCap bounds the ring of recent opportunities.
	HistoryCap int
}

// DefaultConfig returns the default core configuration.
func DefaultConfig() Config {
	return Config{
		MinProfitThreshold:        0.001, // 0.1%
		MaxPositionSize:           1000.0,
		MaxOpportunitiesPerSecond: 100,
		QueueCapacity:             65536,
		DetectionInterval:         10 * time.Millisecond,
		PollInterval:              100 * time.Microsecond,
		HistoryCap:                1000,
	}
}

// OpportunityCallback receives detected opportunities synchronously on the
// detection thread. Callbacks must copy out anything they retain and must not
// re-enter the engine.
type OpportunityCallback func(*types.Opportunity)

// Engine is the arbitrage detection core. All state is owned by the engine;
// two worker goroutines (ingest and detection) run between Start and Stop.
type Engine struct {
	cfg Config

	index *currencyIndex
	graph *rateGraph
	ring  *tickRing
	sink  *opportunitySink

	running atomic.Bool
	wg      sync.WaitGroup

	sequence        atomic.Uint64
	lastUpdateNanos atomic.Int64

	messagesProcessed  atomic.Uint64
	opportunitiesFound atomic.Uint64
	falsePositives     atomic.Uint64
	avgLatencyBits     atomic.Uint64

	// Detection scratch, reused across sweeps.
	dist   []float64
	parent []int32
}

// New creates an idle engine.
func New(cfg Config) *Engine {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = DefaultConfig().QueueCapacity
	}
	if cfg.DetectionInterval <= 0 {
		cfg.DetectionInterval = DefaultConfig().DetectionInterval
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = DefaultConfig().HistoryCap
	}

	e := &Engine{
		cfg:    cfg,
		index:  newCurrencyIndex(MaxNodes),
		graph:  newRateGraph(),
		ring:   newTickRing(cfg.QueueCapacity),
		dist:   make([]float64, MaxNodes),
		parent: make([]int32, MaxNodes),
	}
	e.sink = newOpportunitySink(cfg.MinProfitThreshold, cfg.MaxOpportunitiesPerSecond, cfg.HistoryCap)
	e.lastUpdateNanos.Store(time.Now().UnixNano())
	return e
}

// Start spawns the ingest and detection workers. Calling Start on a running
// engine is a no-op.
func (e *Engine) Start() {
	if e.running.Swap(true) {
		return
	}

	e.wg.Add(2)
	go e.ingestLoop()
	go e.detectLoop()

	log.Info().
		Int("queue_capacity", e.ring.Cap()).
		Dur("detection_interval", e.cfg.DetectionInterval).
		Msg("arbitrage engine started")
}

// Stop flips the running flag and joins both workers. Safe to call multiple
// times and on a never-started engine.
func (e *Engine) Stop() {
	if !e.running.Swap(false) {
		return
	}
	e.wg.Wait()
	log.Info().Msg("arbitrage engine stopped")
}

// UpdatePrice admits one top-of-book update into the tick channel. It returns
// false when the channel is full or the symbol is malformed; in either case
// the tick has no effect. Producers are expected to funnel through a single
// goroutine (the feed pump does this).
func (e *Engine) UpdatePrice(exchange types.Exchange, symbol string, bid, ask, volume float64) bool {
	start := time.Now()

	if _, _, ok := splitSymbol(symbol); !ok {
		return false
	}

	seq := e.sequence.Load()
	tick := types.Tick{
		Exchange:  exchange,
		Symbol:    symbol,
		Bid:       bid,
		Ask:       ask,
		Last:      (bid + ask) / 2,
		Volume:    volume,
		Timestamp: start,
		Sequence:  seq,
	}

	if !e.ring.TryEnqueue(tick) {
		return false
	}
	e.sequence.Store(seq + 1)

	e.messagesProcessed.Add(1)
	e.observeLatency(float64(time.Since(start).Microseconds()))
	return true
}

// RegisterOpportunityCallback appends a subscriber. Subscribers are invoked
// in registration order for the lifetime of the engine.
func (e *Engine) RegisterOpportunityCallback(cb OpportunityCallback) {
	e.sink.register(cb)
}

// GetRecentOpportunities returns up to limit most recent opportunities,
// oldest first, as a snapshot copy.
func (e *Engine) GetRecentOpportunities(limit int) []types.Opportunity {
	return e.sink.recent(limit)
}

// GetPerformanceStats returns a snapshot of the engine counters.
func (e *Engine) GetPerformanceStats() types.PerformanceStats {
	return types.PerformanceStats{
		MessagesProcessed:  e.messagesProcessed.Load(),
		OpportunitiesFound: e.opportunitiesFound.Load(),
		FalsePositives:     e.falsePositives.Load(),
		AvgLatencyUs:       math.Float64frombits(e.avgLatencyBits.Load()),
		LastUpdate:         time.Unix(0, e.lastUpdateNanos.Load()),
	}
}

// ingestLoop drains the tick channel into the rate graph, sleeping briefly
// when no data is available.
func (e *Engine) ingestLoop() {
	defer e.wg.Done()

	for e.running.Load() {
		tick, ok := e.ring.TryDequeue()
		if !ok {
			time.Sleep(e.cfg.PollInterval)
			continue
		}
		e.updateGraph(&tick)
		e.lastUpdateNanos.Store(tick.Timestamp.UnixNano())
	}
}

// updateGraph parses the tick's symbol, resolves both endpoints and
// overwrites the two corresponding edges. Malformed symbols and index
// overflow drop the tick silently.
func (e *Engine) updateGraph(tick *types.Tick) {
	base, quote, ok := splitSymbol(tick.Symbol)
	if !ok {
		return
	}

	baseIdx, ok := e.resolveNode(base, uint8(tick.Exchange))
	if !ok {
		return
	}
	quoteIdx, ok := e.resolveNode(quote, uint8(tick.Exchange))
	if !ok {
		return
	}

	e.graph.applyTick(baseIdx, quoteIdx, tick.Bid, tick.Ask)
}

// resolveNode maps one endpoint through the currency index, zeroing the
// diagonal of a freshly assigned id so the node becomes active the moment it
// is allocated.
func (e *Engine) resolveNode(currency string, exchange uint8) (uint32, bool) {
	before := e.index.count()
	id, ok := e.index.lookupOrInsert(currency, exchange)
	if !ok {
		return 0, false
	}
	if e.index.count() != before {
		e.graph.activate(id)
	}
	return id, true
}

// splitSymbol splits "BASE/QUOTE" on the first separator. The separator must
// be present and interior: "", "BTC", "/USDT" and "BTC/" are all rejected.
// Anything after the first slash belongs to the quote, so "BTC/USDT/EXTRA"
// parses as base "BTC", quote "USDT/EXTRA".
func splitSymbol(symbol string) (base, quote string, ok bool) {
	pos := strings.IndexByte(symbol, '/')
	if pos <= 0 || pos == len(symbol)-1 {
		return "", "", false
	}
	return symbol[:pos], symbol[pos+1:], true
}

// observeLatency folds one ingest latency sample into the exponential moving
// average.
func (e *Engine) observeLatency(us float64) {
	prev := math.Float64frombits(e.avgLatencyBits.Load())
	e.avgLatencyBits.Store(math.Float64bits(0.9*prev + 0.1*us))
}
