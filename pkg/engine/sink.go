package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradewatch/cyclarb/pkg/types"
)

// sinkResult classifies the outcome of offering an opportunity to the sink.
type sinkResult int

const (
	sinkAccepted sinkResult = iota
	sinkUnprofitable
	sinkRateLimited
)

// opportunitySink applies the profitability gate and rate limit, retains a
// bounded ring of recent opportunities, and fans accepted ones out to
// subscribers. All rate-limiting bookkeeping lives here so separate engine
// instances are fully isolated.
type opportunitySink struct {
	minProfit float64
	maxPerSec int

	mu         sync.Mutex
	history    []types.Opportunity
	historyCap int
	admitted   []time.Time // fan-out times within the last second

	cbMu      sync.Mutex
	callbacks []OpportunityCallback
}

func newOpportunitySink(minProfit float64, maxPerSec, historyCap int) *opportunitySink {
	return &opportunitySink{
		minProfit:  minProfit,
		maxPerSec:  maxPerSec,
		historyCap: historyCap,
	}
}

func (s *opportunitySink) register(cb OpportunityCallback) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.callbacks = append(s.callbacks, cb)
}

// offer runs one opportunity through gate, rate limit, history and fan-out.
// Called only from the detection worker.
func (s *opportunitySink) offer(opp *types.Opportunity) sinkResult {
	if opp.ProfitPct <= s.minProfit {
		return sinkUnprofitable
	}

	now := time.Now()

	s.mu.Lock()
	// Slide the one-second admission window forward.
	cutoff := now.Add(-time.Second)
	keep := 0
	for _, t := range s.admitted {
		if t.After(cutoff) {
			s.admitted[keep] = t
			keep++
		}
	}
	s.admitted = s.admitted[:keep]

	if s.maxPerSec > 0 && len(s.admitted) >= s.maxPerSec {
		s.mu.Unlock()
		return sinkRateLimited
	}
	s.admitted = append(s.admitted, now)

	s.history = append(s.history, *opp)
	if len(s.history) > s.historyCap {
		s.history = s.history[1:]
	}
	s.mu.Unlock()

	s.notify(opp)
	return sinkAccepted
}

// notify invokes each subscriber in registration order. A panicking
// subscriber is logged and must not abort the fan-out to the rest.
func (s *opportunitySink) notify(opp *types.Opportunity) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()

	for _, cb := range s.callbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().
						Interface("panic", r).
						Str("path", opp.PathString()).
						Msg("opportunity callback panicked")
				}
			}()
			cb(opp)
		}()
	}
}

// recent returns up to limit most recent opportunities, oldest first.
func (s *opportunitySink) recent(limit int) []types.Opportunity {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if limit >= 0 && len(s.history) > limit {
		start = len(s.history) - limit
	}
	out := make([]types.Opportunity, len(s.history)-start)
	copy(out, s.history[start:])
	return out
}
