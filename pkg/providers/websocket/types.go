// Package websocket provides WebSocket-based real-time price feeds.
package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/tradewatch/cyclarb/pkg/types"
)

// ConnectionState represents the WebSocket connection state.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// PriceUpdate represents a real-time top-of-book update from an exchange.
// Prices are plain float64: the detection core works in log space and never
// needs more precision than the wire format carries.
type PriceUpdate struct {
	Exchange   types.Exchange `json:"exchange"`
	Pair       string         `json:"pair"`
	BidPrice   float64        `json:"bid_price"`
	AskPrice   float64        `json:"ask_price"`
	BidSize    float64        `json:"bid_size"`
	AskSize    float64        `json:"ask_size"`
	Timestamp  time.Time      `json:"timestamp"`
	SequenceID int64          `json:"sequence_id,omitempty"`
}

// WSProvider is the interface for WebSocket price providers.
type WSProvider interface {
	// Name returns the exchange name.
	Name() string

	// Exchange returns the exchange identifier.
	Exchange() types.Exchange

	// Connect establishes the WebSocket connection.
	Connect(ctx context.Context) error

	// Disconnect closes the WebSocket connection.
	Disconnect() error

	// Subscribe subscribes to ticker updates for the given pairs.
	Subscribe(pairs []string) error

	// Unsubscribe unsubscribes from ticker updates for the given pairs.
	Unsubscribe(pairs []string) error

	// State returns the current connection state.
	State() ConnectionState

	// PriceUpdates returns the channel for receiving price updates.
	PriceUpdates() <-chan *PriceUpdate

	// Errors returns the channel for receiving errors.
	Errors() <-chan error

	// GetFees returns the fee structure for this exchange.
	GetFees() *types.FeeStructure
}

// BaseWSProvider provides common functionality for WebSocket providers.
type BaseWSProvider struct {
	name            string
	exchange        types.Exchange
	state           ConnectionState
	stateMu         sync.RWMutex
	priceUpdates    chan *PriceUpdate
	errors          chan error
	subscribedPairs map[string]bool
	pairsMu         sync.RWMutex
	fees            *types.FeeStructure

	// Reconnection settings
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	reconnectAttempts int
}

// NewBaseWSProvider creates a new base WebSocket provider.
func NewBaseWSProvider(name string, exchange types.Exchange, fees *types.FeeStructure) *BaseWSProvider {
	return &BaseWSProvider{
		name:              name,
		exchange:          exchange,
		state:             StateDisconnected,
		priceUpdates:      make(chan *PriceUpdate, 1000),
		errors:            make(chan error, 100),
		subscribedPairs:   make(map[string]bool),
		fees:              fees,
		ReconnectDelay:    time.Second,
		MaxReconnectDelay: 30 * time.Second,
	}
}

// Name returns the provider name.
func (b *BaseWSProvider) Name() string {
	return b.name
}

// Exchange returns the exchange identifier.
func (b *BaseWSProvider) Exchange() types.Exchange {
	return b.exchange
}

// State returns the current connection state.
func (b *BaseWSProvider) State() ConnectionState {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state
}

// SetState sets the connection state.
func (b *BaseWSProvider) SetState(state ConnectionState) {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	b.state = state
}

// PriceUpdates returns the price updates channel.
func (b *BaseWSProvider) PriceUpdates() <-chan *PriceUpdate {
	return b.priceUpdates
}

// Errors returns the errors channel.
func (b *BaseWSProvider) Errors() <-chan error {
	return b.errors
}

// GetFees returns the fee structure.
func (b *BaseWSProvider) GetFees() *types.FeeStructure {
	return b.fees
}

// IsSubscribed checks if a pair is subscribed.
func (b *BaseWSProvider) IsSubscribed(pair string) bool {
	b.pairsMu.RLock()
	defer b.pairsMu.RUnlock()
	return b.subscribedPairs[pair]
}

// AddSubscription marks a pair as subscribed.
func (b *BaseWSProvider) AddSubscription(pair string) {
	b.pairsMu.Lock()
	defer b.pairsMu.Unlock()
	b.subscribedPairs[pair] = true
}

// RemoveSubscription marks a pair as unsubscribed.
func (b *BaseWSProvider) RemoveSubscription(pair string) {
	b.pairsMu.Lock()
	defer b.pairsMu.Unlock()
	delete(b.subscribedPairs, pair)
}

// GetSubscribedPairs returns all subscribed pairs.
func (b *BaseWSProvider) GetSubscribedPairs() []string {
	b.pairsMu.RLock()
	defer b.pairsMu.RUnlock()
	pairs := make([]string, 0, len(b.subscribedPairs))
	for pair := range b.subscribedPairs {
		pairs = append(pairs, pair)
	}
	return pairs
}

// EmitPriceUpdate sends a price update to the channel, evicting the oldest
// queued update when the channel is full.
func (b *BaseWSProvider) EmitPriceUpdate(update *PriceUpdate) {
	select {
	case b.priceUpdates <- update:
	default:
		select {
		case <-b.priceUpdates:
		default:
		}
		b.priceUpdates <- update
	}
}

// EmitError sends an error to the channel, dropping it if the channel is full.
func (b *BaseWSProvider) EmitError(err error) {
	select {
	case b.errors <- err:
	default:
	}
}

// CalculateReconnectDelay calculates the next reconnection delay with
// exponential backoff.
func (b *BaseWSProvider) CalculateReconnectDelay() time.Duration {
	b.reconnectAttempts++
	delay := b.ReconnectDelay * time.Duration(1<<uint(b.reconnectAttempts-1))
	if delay > b.MaxReconnectDelay {
		delay = b.MaxReconnectDelay
	}
	return delay
}

// ResetReconnectAttempts resets the reconnection attempt counter.
func (b *BaseWSProvider) ResetReconnectAttempts() {
	b.reconnectAttempts = 0
}
