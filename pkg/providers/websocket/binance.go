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

const (
	binanceWSURL   = "wss://stream.binance.com:9443/ws"
	binanceUSWSURL = "wss://stream.binance.us:9443/ws"
)

// BinanceWSProvider provides real-time price feeds from Binance.
type BinanceWSProvider struct {
	*BaseWSProvider
	conn    *websocket.Conn
	connMu  sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	msgID   int
	msgIDMu sync.Mutex
	useUS   bool // Use Binance.US endpoint
}

// NewBinanceWSProvider creates a new Binance WebSocket provider.
func NewBinanceWSProvider() *BinanceWSProvider {
	return &BinanceWSProvider{
		BaseWSProvider: NewBaseWSProvider("binance", types.ExchangeBinance, &types.FeeStructure{
			Exchange:    "binance",
			MakerFeeBps: 10,
			TakerFeeBps: 10,
		}),
	}
}

// Connect establishes the WebSocket connection to Binance. It tries the
// global endpoint first, then falls back to Binance.US if that fails.
func (b *BinanceWSProvider) Connect(ctx context.Context) error {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	if b.State() == StateConnected {
		return nil
	}

	b.SetState(StateConnecting)
	b.ctx, b.cancel = context.WithCancel(ctx)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	wsURL := binanceWSURL
	if b.useUS {
		wsURL = binanceUSWSURL
	}

	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if !b.useUS {
			conn, _, err = dialer.DialContext(ctx, binanceUSWSURL, nil)
			if err == nil {
				b.useUS = true // Remember to use US endpoint for reconnects
			}
		}
	}

	if err != nil {
		b.SetState(StateDisconnected)
		return fmt.Errorf("failed to connect to Binance WebSocket: %w", err)
	}

	b.conn = conn
	b.SetState(StateConnected)
	b.ResetReconnectAttempts()

	go b.handleMessages()
	go b.pingHandler()

	return nil
}

// Disconnect closes the WebSocket connection.
func (b *BinanceWSProvider) Disconnect() error {
	b.connMu.Lock()
	defer b.connMu.Unlock()

	if b.cancel != nil {
		b.cancel()
	}

	if b.conn != nil {
		err := b.conn.Close()
		b.conn = nil
		b.SetState(StateDisconnected)
		return err
	}

	return nil
}

// Subscribe subscribes to book ticker updates for the given pairs.
func (b *BinanceWSProvider) Subscribe(pairs []string) error {
	b.connMu.Lock()
	conn := b.conn
	b.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	streams := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		symbol := strings.ToLower(strings.ReplaceAll(pair, "/", ""))
		streams = append(streams, symbol+"@bookTicker") // Best bid/ask
		b.AddSubscription(pair)
	}

	msg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": streams,
		"id":     b.nextMsgID(),
	}

	return conn.WriteJSON(msg)
}

// Unsubscribe unsubscribes from book ticker updates for the given pairs.
func (b *BinanceWSProvider) Unsubscribe(pairs []string) error {
	b.connMu.Lock()
	conn := b.conn
	b.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	streams := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		symbol := strings.ToLower(strings.ReplaceAll(pair, "/", ""))
		streams = append(streams, symbol+"@bookTicker")
		b.RemoveSubscription(pair)
	}

	msg := map[string]interface{}{
		"method": "UNSUBSCRIBE",
		"params": streams,
		"id":     b.nextMsgID(),
	}

	return conn.WriteJSON(msg)
}

// handleMessages processes incoming WebSocket messages.
func (b *BinanceWSProvider) handleMessages() {
	for {
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		b.connMu.Lock()
		conn := b.conn
		b.connMu.Unlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			b.EmitError(fmt.Errorf("read error: %w", err))
			b.reconnect()
			return
		}

		b.processMessage(message)
	}
}

// binanceBookTicker represents Binance book ticker data.
type binanceBookTicker struct {
	UpdateID int64  `json:"u"`
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

type binanceCombinedStream struct {
	Stream string            `json:"stream"`
	Data   binanceBookTicker `json:"data"`
}

// processMessage parses and processes a WebSocket message.
func (b *BinanceWSProvider) processMessage(data []byte) {
	var ticker binanceBookTicker
	if err := sonnet.Unmarshal(data, &ticker); err == nil && ticker.Symbol != "" {
		b.handleBookTicker(&ticker)
		return
	}

	var combined binanceCombinedStream
	if err := sonnet.Unmarshal(data, &combined); err == nil && combined.Stream != "" {
		if strings.HasSuffix(combined.Stream, "@bookTicker") && combined.Data.Symbol != "" {
			b.handleBookTicker(&combined.Data)
		}
	}
}

// handleBookTicker processes a book ticker update.
func (b *BinanceWSProvider) handleBookTicker(ticker *binanceBookTicker) {
	bid, err1 := strconv.ParseFloat(ticker.BidPrice, 64)
	ask, err2 := strconv.ParseFloat(ticker.AskPrice, 64)
	if err1 != nil || err2 != nil {
		return
	}
	bidSize, _ := strconv.ParseFloat(ticker.BidQty, 64)
	askSize, _ := strconv.ParseFloat(ticker.AskQty, 64)

	b.EmitPriceUpdate(&PriceUpdate{
		Exchange:   b.Exchange(),
		Pair:       convertBinanceSymbolToPair(ticker.Symbol),
		BidPrice:   bid,
		AskPrice:   ask,
		BidSize:    bidSize,
		AskSize:    askSize,
		Timestamp:  time.Now(),
		SequenceID: ticker.UpdateID,
	})
}

// pingHandler sends periodic pings to keep the connection alive.
func (b *BinanceWSProvider) pingHandler() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.connMu.Lock()
			conn := b.conn
			b.connMu.Unlock()

			if conn != nil {
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					b.EmitError(fmt.Errorf("ping failed: %w", err))
				}
			}
		}
	}
}

// reconnect attempts to reconnect to the WebSocket.
func (b *BinanceWSProvider) reconnect() {
	b.SetState(StateReconnecting)

	pairs := b.GetSubscribedPairs()

	for {
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		delay := b.CalculateReconnectDelay()
		time.Sleep(delay)

		if err := b.Connect(b.ctx); err != nil {
			b.EmitError(fmt.Errorf("reconnect failed: %w", err))
			continue
		}

		if len(pairs) > 0 {
			if err := b.Subscribe(pairs); err != nil {
				b.EmitError(fmt.Errorf("resubscribe failed: %w", err))
			}
		}

		return
	}
}

// nextMsgID returns the next message ID.
func (b *BinanceWSProvider) nextMsgID() int {
	b.msgIDMu.Lock()
	defer b.msgIDMu.Unlock()
	b.msgID++
	return b.msgID
}

// convertBinanceSymbolToPair converts a Binance symbol to a standard pair
// format.
func convertBinanceSymbolToPair(symbol string) string {
	quotes := []string{"USDT", "USDC", "BUSD", "BTC", "ETH", "BNB"}

	for _, quote := range quotes {
		if strings.HasSuffix(symbol, quote) {
			base := strings.TrimSuffix(symbol, quote)
			return base + "/" + quote
		}
	}

	return symbol
}
