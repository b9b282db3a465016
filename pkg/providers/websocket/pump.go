package websocket

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/tradewatch/cyclarb/pkg/types"
)

// Ingestor is the engine-side surface the pump feeds. UpdatePrice reports
// whether the tick was admitted into the engine's channel.
type Ingestor interface {
	UpdatePrice(exchange types.Exchange, symbol string, bid, ask, volume float64) bool
}

// Pump fans price updates from all connected providers into a single
// goroutine that feeds the engine. The single funnel goroutine is what
// upholds the engine channel's single-producer contract.
type Pump struct {
	ingestor  Ingestor
	providers map[string]WSProvider
	provMu    sync.RWMutex

	updates chan *PriceUpdate

	admitted atomic.Uint64
	dropped  atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPump creates a pump feeding the given ingestor.
func NewPump(ingestor Ingestor) *Pump {
	return &Pump{
		ingestor:  ingestor,
		providers: make(map[string]WSProvider),
		updates:   make(chan *PriceUpdate, 10000),
		done:      make(chan struct{}),
	}
}

// AddProvider registers a provider with the pump.
func (p *Pump) AddProvider(provider WSProvider) {
	p.provMu.Lock()
	defer p.provMu.Unlock()
	p.providers[provider.Name()] = provider
}

// Start connects every provider, subscribes to the given pairs, and begins
// pumping updates. Providers that fail to connect are logged and skipped; at
// least one must succeed.
func (p *Pump) Start(ctx context.Context, pairs []string) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.provMu.RLock()
	providers := make([]WSProvider, 0, len(p.providers))
	for _, prov := range p.providers {
		providers = append(providers, prov)
	}
	p.provMu.RUnlock()

	connected := 0
	for _, provider := range providers {
		if err := provider.Connect(p.ctx); err != nil {
			log.Warn().Err(err).Str("exchange", provider.Name()).Msg("feed connect failed")
			continue
		}
		if err := provider.Subscribe(pairs); err != nil {
			log.Warn().Err(err).Str("exchange", provider.Name()).Msg("feed subscribe failed")
			continue
		}
		go p.listenToProvider(provider)
		connected++
		log.Info().Str("exchange", provider.Name()).Strs("pairs", pairs).Msg("feed connected")
	}

	if connected == 0 {
		return fmt.Errorf("failed to connect to any providers")
	}

	go p.run()
	return nil
}

// Stop disconnects all providers and stops the funnel goroutine.
func (p *Pump) Stop() error {
	if p.cancel != nil {
		p.cancel()
	}
	close(p.done)

	p.provMu.RLock()
	defer p.provMu.RUnlock()

	var lastErr error
	for _, provider := range p.providers {
		if err := provider.Disconnect(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// listenToProvider moves one provider's updates into the shared funnel.
func (p *Pump) listenToProvider(provider WSProvider) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case update, ok := <-provider.PriceUpdates():
			if !ok {
				return
			}
			select {
			case p.updates <- update:
			default:
				p.dropped.Add(1)
			}
		case err, ok := <-provider.Errors():
			if !ok {
				return
			}
			log.Warn().Err(err).Str("exchange", provider.Name()).Msg("feed error")
		}
	}
}

// run is the single funnel goroutine feeding the engine.
func (p *Pump) run() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.done:
			return
		case update := <-p.updates:
			volume := update.BidSize + update.AskSize
			if p.ingestor.UpdatePrice(update.Exchange, update.Pair, update.BidPrice, update.AskPrice, volume) {
				p.admitted.Add(1)
			} else {
				p.dropped.Add(1)
			}
		}
	}
}

// Counts returns the number of ticks admitted into and dropped at the engine
// boundary since the pump started.
func (p *Pump) Counts() (admitted, dropped uint64) {
	return p.admitted.Load(), p.dropped.Load()
}

// ConnectionStatus returns the connection state of every provider.
func (p *Pump) ConnectionStatus() map[string]ConnectionState {
	p.provMu.RLock()
	defer p.provMu.RUnlock()

	status := make(map[string]ConnectionState, len(p.providers))
	for name, provider := range p.providers {
		status[name] = provider.State()
	}
	return status
}
