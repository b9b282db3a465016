package websocket

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sugawarayuuta/sonnet"

	"github.com/tradewatch/cyclarb/pkg/types"
)

const krakenWSURL = "wss://ws.kraken.com"

// KrakenWSProvider provides real-time price feeds from Kraken.
type KrakenWSProvider struct {
	*BaseWSProvider
	conn    *websocket.Conn
	connMu  sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	reqID   int
	reqIDMu sync.Mutex
}

// NewKrakenWSProvider creates a new Kraken WebSocket provider.
func NewKrakenWSProvider() *KrakenWSProvider {
	return &KrakenWSProvider{
		BaseWSProvider: NewBaseWSProvider("kraken", types.ExchangeKraken, &types.FeeStructure{
			Exchange:    "kraken",
			MakerFeeBps: 16,
			TakerFeeBps: 26,
		}),
	}
}

// Connect establishes the WebSocket connection to Kraken.
func (k *KrakenWSProvider) Connect(ctx context.Context) error {
	k.connMu.Lock()
	defer k.connMu.Unlock()

	if k.State() == StateConnected {
		return nil
	}

	k.SetState(StateConnecting)
	k.ctx, k.cancel = context.WithCancel(ctx)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, krakenWSURL, nil)
	if err != nil {
		k.SetState(StateDisconnected)
		return fmt.Errorf("failed to connect to Kraken WebSocket: %w", err)
	}

	k.conn = conn
	k.SetState(StateConnected)
	k.ResetReconnectAttempts()

	go k.handleMessages()
	go k.pingHandler()

	return nil
}

// Disconnect closes the WebSocket connection.
func (k *KrakenWSProvider) Disconnect() error {
	k.connMu.Lock()
	defer k.connMu.Unlock()

	if k.cancel != nil {
		k.cancel()
	}

	if k.conn != nil {
		err := k.conn.Close()
		k.conn = nil
		k.SetState(StateDisconnected)
		return err
	}

	return nil
}

type krakenSubscribeMsg struct {
	Event        string             `json:"event"`
	Pair         []string           `json:"pair"`
	Subscription krakenSubscription `json:"subscription"`
	ReqID        int                `json:"reqid,omitempty"`
}

type krakenSubscription struct {
	Name string `json:"name"`
}

// Subscribe subscribes to ticker updates for the given pairs.
func (k *KrakenWSProvider) Subscribe(pairs []string) error {
	k.connMu.Lock()
	conn := k.conn
	k.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	krakenPairs := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		krakenPairs = append(krakenPairs, convertToKrakenPair(pair))
		k.AddSubscription(pair)
	}

	msg := krakenSubscribeMsg{
		Event: "subscribe",
		Pair:  krakenPairs,
		Subscription: krakenSubscription{
			Name: "ticker",
		},
		ReqID: k.nextReqID(),
	}

	return conn.WriteJSON(msg)
}

// Unsubscribe unsubscribes from ticker updates for the given pairs.
func (k *KrakenWSProvider) Unsubscribe(pairs []string) error {
	k.connMu.Lock()
	conn := k.conn
	k.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	krakenPairs := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		krakenPairs = append(krakenPairs, convertToKrakenPair(pair))
		k.RemoveSubscription(pair)
	}

	msg := krakenSubscribeMsg{
		Event: "unsubscribe",
		Pair:  krakenPairs,
		Subscription: krakenSubscription{
			Name: "ticker",
		},
		ReqID: k.nextReqID(),
	}

	return conn.WriteJSON(msg)
}

// handleMessages processes incoming WebSocket messages.
func (k *KrakenWSProvider) handleMessages() {
	for {
		select {
		case <-k.ctx.Done():
			return
		default:
		}

		k.connMu.Lock()
		conn := k.conn
		k.connMu.Unlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			k.EmitError(fmt.Errorf("read error: %w", err))
			k.reconnect()
			return
		}

		k.processMessage(message)
	}
}

// processMessage parses and processes a WebSocket message. Kraken sends
// events as JSON objects and ticker data as arrays.
func (k *KrakenWSProvider) processMessage(data []byte) {
	var event struct {
		Event        string `json:"event"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := sonnet.Unmarshal(data, &event); err == nil && event.Event != "" {
		if event.ErrorMessage != "" {
			k.EmitError(fmt.Errorf("kraken error: %s", event.ErrorMessage))
		}
		return
	}

	// Ticker array format: [channelID, tickerData, "ticker", "pair"]
	var tickerData []interface{}
	if err := sonnet.Unmarshal(data, &tickerData); err == nil && len(tickerData) >= 4 {
		k.handleTickerArray(tickerData)
	}
}

// handleTickerArray processes a Kraken ticker array message.
func (k *KrakenWSProvider) handleTickerArray(data []interface{}) {
	channelName, ok := data[2].(string)
	if !ok || channelName != "ticker" {
		return
	}
	pairName, ok := data[3].(string)
	if !ok {
		return
	}
	ticker, ok := data[1].(map[string]interface{})
	if !ok {
		return
	}

	bid, okBid := krakenLevelPrice(ticker, "b")
	ask, okAsk := krakenLevelPrice(ticker, "a")
	if !okBid || !okAsk {
		return
	}
	bidSize, _ := krakenLevelSize(ticker, "b")
	askSize, _ := krakenLevelSize(ticker, "a")

	k.EmitPriceUpdate(&PriceUpdate{
		Exchange:  k.Exchange(),
		Pair:      convertFromKrakenPair(pairName),
		BidPrice:  bid,
		AskPrice:  ask,
		BidSize:   bidSize,
		AskSize:   askSize,
		Timestamp: time.Now(),
	})
}

// krakenLevelPrice extracts the price from a ticker level like
// "b": ["50000.1", "1", "1.5"].
func krakenLevelPrice(ticker map[string]interface{}, key string) (float64, bool) {
	level, ok := ticker[key].([]interface{})
	if !ok || len(level) < 1 {
		return 0, false
	}
	s, ok := level[0].(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// krakenLevelSize extracts the volume component of a ticker level.
func krakenLevelSize(ticker map[string]interface{}, key string) (float64, bool) {
	level, ok := ticker[key].([]interface{})
	if !ok || len(level) < 3 {
		return 0, false
	}
	s, ok := level[2].(string)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// pingHandler sends periodic pings to keep the connection alive.
func (k *KrakenWSProvider) pingHandler() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-k.ctx.Done():
			return
		case <-ticker.C:
			k.connMu.Lock()
			conn := k.conn
			k.connMu.Unlock()

			if conn != nil {
				if err := conn.WriteJSON(map[string]string{"event": "ping"}); err != nil {
					k.EmitError(fmt.Errorf("ping failed: %w", err))
				}
			}
		}
	}
}

// reconnect attempts to reconnect to the WebSocket.
func (k *KrakenWSProvider) reconnect() {
	k.SetState(StateReconnecting)

	pairs := k.GetSubscribedPairs()

	for {
		select {
		case <-k.ctx.Done():
			return
		default:
		}

		delay := k.CalculateReconnectDelay()
		time.Sleep(delay)

		if err := k.Connect(k.ctx); err != nil {
			k.EmitError(fmt.Errorf("reconnect failed: %w", err))
			continue
		}

		if len(pairs) > 0 {
			if err := k.Subscribe(pairs); err != nil {
				k.EmitError(fmt.Errorf("resubscribe failed: %w", err))
			}
		}

		return
	}
}

// nextReqID returns the next request ID.
func (k *KrakenWSProvider) nextReqID() int {
	k.reqIDMu.Lock()
	defer k.reqIDMu.Unlock()
	k.reqID++
	return k.reqID
}

// convertToKrakenPair maps common symbols to Kraken's naming (XBT for BTC).
func convertToKrakenPair(pair string) string {
	return strings.ReplaceAll(pair, "BTC", "XBT")
}

// convertFromKrakenPair maps Kraken naming back to the standard form.
func convertFromKrakenPair(pair string) string {
	return strings.ReplaceAll(pair, "XBT", "BTC")
}
