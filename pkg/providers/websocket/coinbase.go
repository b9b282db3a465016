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

const coinbaseWSURL = "wss://ws-feed.exchange.coinbase.com"

// CoinbaseWSProvider provides real-time price feeds from Coinbase.
type CoinbaseWSProvider struct {
	*BaseWSProvider
	conn   *websocket.Conn
	connMu sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCoinbaseWSProvider creates a new Coinbase WebSocket provider.
func NewCoinbaseWSProvider() *CoinbaseWSProvider {
	return &CoinbaseWSProvider{
		BaseWSProvider: NewBaseWSProvider("coinbase", types.ExchangeCoinbase, &types.FeeStructure{
			Exchange:    "coinbase",
			MakerFeeBps: 40,
			TakerFeeBps: 60,
		}),
	}
}

// Connect establishes the WebSocket connection to Coinbase.
func (c *CoinbaseWSProvider) Connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.State() == StateConnected {
		return nil
	}

	c.SetState(StateConnecting)
	c.ctx, c.cancel = context.WithCancel(ctx)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, coinbaseWSURL, nil)
	if err != nil {
		c.SetState(StateDisconnected)
		return fmt.Errorf("failed to connect to Coinbase WebSocket: %w", err)
	}

	c.conn = conn
	c.SetState(StateConnected)
	c.ResetReconnectAttempts()

	go c.handleMessages()

	return nil
}

// Disconnect closes the WebSocket connection.
func (c *CoinbaseWSProvider) Disconnect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		c.SetState(StateDisconnected)
		return err
	}

	return nil
}

type coinbaseSubscribeMsg struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

// Subscribe subscribes to ticker updates for the given pairs.
func (c *CoinbaseWSProvider) Subscribe(pairs []string) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	productIDs := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		productIDs = append(productIDs, convertToCoinbaseProduct(pair))
		c.AddSubscription(pair)
	}

	msg := coinbaseSubscribeMsg{
		Type:       "subscribe",
		ProductIDs: productIDs,
		Channels:   []string{"ticker"},
	}

	return conn.WriteJSON(msg)
}

// Unsubscribe unsubscribes from ticker updates for the given pairs.
func (c *CoinbaseWSProvider) Unsubscribe(pairs []string) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	if conn == nil {
		return fmt.Errorf("not connected")
	}

	productIDs := make([]string, 0, len(pairs))
	for _, pair := range pairs {
		productIDs = append(productIDs, convertToCoinbaseProduct(pair))
		c.RemoveSubscription(pair)
	}

	msg := coinbaseSubscribeMsg{
		Type:       "unsubscribe",
		ProductIDs: productIDs,
		Channels:   []string{"ticker"},
	}

	return conn.WriteJSON(msg)
}

// handleMessages processes incoming WebSocket messages.
func (c *CoinbaseWSProvider) handleMessages() {
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			c.EmitError(fmt.Errorf("read error: %w", err))
			c.reconnect()
			return
		}

		c.processMessage(message)
	}
}

// coinbaseTicker represents Coinbase ticker channel data.
type coinbaseTicker struct {
	Type        string `json:"type"`
	Sequence    int64  `json:"sequence"`
	ProductID   string `json:"product_id"`
	Price       string `json:"price"`
	BestBid     string `json:"best_bid"`
	BestAsk     string `json:"best_ask"`
	BestBidSize string `json:"best_bid_size"`
	BestAskSize string `json:"best_ask_size"`
	Volume24h   string `json:"volume_24h"`
	Time        string `json:"time"`
}

// processMessage parses and processes a WebSocket message.
func (c *CoinbaseWSProvider) processMessage(data []byte) {
	var ticker coinbaseTicker
	if err := sonnet.Unmarshal(data, &ticker); err != nil {
		return
	}

	switch ticker.Type {
	case "ticker":
		c.handleTicker(&ticker)
	case "error":
		c.EmitError(fmt.Errorf("coinbase error message: %s", string(data)))
	}
}

// handleTicker processes a ticker update.
func (c *CoinbaseWSProvider) handleTicker(ticker *coinbaseTicker) {
	bid, err1 := strconv.ParseFloat(ticker.BestBid, 64)
	ask, err2 := strconv.ParseFloat(ticker.BestAsk, 64)
	if err1 != nil || err2 != nil {
		return
	}
	bidSize, _ := strconv.ParseFloat(ticker.BestBidSize, 64)
	askSize, _ := strconv.ParseFloat(ticker.BestAskSize, 64)

	c.EmitPriceUpdate(&PriceUpdate{
		Exchange:   c.Exchange(),
		Pair:       convertFromCoinbaseProduct(ticker.ProductID),
		BidPrice:   bid,
		AskPrice:   ask,
		BidSize:    bidSize,
		AskSize:    askSize,
		Timestamp:  time.Now(),
		SequenceID: ticker.Sequence,
	})
}

// reconnect attempts to reconnect to the WebSocket.
func (c *CoinbaseWSProvider) reconnect() {
	c.SetState(StateReconnecting)

	pairs := c.GetSubscribedPairs()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		delay := c.CalculateReconnectDelay()
		time.Sleep(delay)

		if err := c.Connect(c.ctx); err != nil {
			c.EmitError(fmt.Errorf("reconnect failed: %w", err))
			continue
		}

		if len(pairs) > 0 {
			if err := c.Subscribe(pairs); err != nil {
				c.EmitError(fmt.Errorf("resubscribe failed: %w", err))
			}
		}

		return
	}
}

// convertToCoinbaseProduct converts "BTC/USDT" to Coinbase's "BTC-USDT".
func convertToCoinbaseProduct(pair string) string {
	return strings.ReplaceAll(pair, "/", "-")
}

// convertFromCoinbaseProduct converts "BTC-USDT" back to "BTC/USDT".
func convertFromCoinbaseProduct(product string) string {
	return strings.ReplaceAll(product, "-", "/")
}
