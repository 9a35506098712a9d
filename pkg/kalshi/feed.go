package kalshi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// DefaultFeedURL is the public websocket endpoint.
	DefaultFeedURL = "wss://api.elections.kalshi.com/trade-api/ws/v2"

	feedHandshakeTimeout = 10 * time.Second
	feedReconnectDelay   = 5 * time.Second
	feedMaxReconnects    = 10
)

// PriceUpdate is one ticker price change from the feed.
type PriceUpdate struct {
	Ticker   string
	YesPrice float64 // 0..1
	At       time.Time
}

// Feed streams ticker price updates over websocket so the scanner sees
// fresher prices than the REST catalog's poll interval provides.
type Feed struct {
	url     string
	tickers []string
	handler func(PriceUpdate)
	log     zerolog.Logger

	reconnectDelay time.Duration
	maxReconnects  int // consecutive failed connection attempts before giving up
}

// NewFeed creates a price feed for the given market tickers. handler is
// invoked from the read loop for every price update.
func NewFeed(feedURL string, tickers []string, handler func(PriceUpdate), logger zerolog.Logger) *Feed {
	if feedURL == "" {
		feedURL = DefaultFeedURL
	}
	return &Feed{
		url:            feedURL,
		tickers:        tickers,
		handler:        handler,
		log:            logger.With().Str("component", "feed").Logger(),
		reconnectDelay: feedReconnectDelay,
		maxReconnects:  feedMaxReconnects,
	}
}

type feedRequest struct {
	ID     int    `json:"id"`
	Cmd    string `json:"cmd"`
	Params any    `json:"params,omitempty"`
}

type subscribeParams struct {
	Channels      []string `json:"channels"`
	MarketTickers []string `json:"market_tickers,omitempty"`
}

type feedMessage struct {
	Type string `json:"type"`
	Msg  struct {
		MarketTicker string `json:"market_ticker"`
		YesBid       int    `json:"yes_bid"` // cents
		Timestamp    int64  `json:"ts"`
	} `json:"msg"`
}

// Run connects and consumes the feed until the context is canceled,
// reconnecting with a fixed delay on connection loss. The attempt counter
// only accumulates across connections that never got established, so a
// healthy stream can drop and reconnect indefinitely; it returns nil on
// context cancellation and an error once consecutive attempts are exhausted.
func (f *Feed) Run(ctx context.Context) error {
	attempts := 0

	for {
		established := false
		err := f.runOnce(ctx, &established)
		if ctx.Err() != nil {
			return nil
		}
		if established {
			attempts = 0
		}
		attempts++
		if attempts > f.maxReconnects {
			return fmt.Errorf("feed: giving up after %d reconnect attempts: %w", attempts, err)
		}
		f.log.Warn().Err(err).Int("attempt", attempts).Msg("feed disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.reconnectDelay):
		}
	}
}

// runOnce sets established once the connection is dialed and subscribed.
func (f *Feed) runOnce(ctx context.Context, established *bool) error {
	dialer := websocket.Dialer{HandshakeTimeout: feedHandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	sub := feedRequest{
		ID:  1,
		Cmd: "subscribe",
		Params: subscribeParams{
			Channels:      []string{"ticker"},
			MarketTickers: f.tickers,
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	*established = true

	f.log.Info().Int("tickers", len(f.tickers)).Msg("feed connected")

	// Close the connection when the context ends so ReadMessage unblocks.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var msg feedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			f.log.Debug().Err(err).Msg("feed: unparseable message")
			continue
		}
		if msg.Type != "ticker" || msg.Msg.MarketTicker == "" {
			continue
		}

		f.handler(PriceUpdate{
			Ticker:   msg.Msg.MarketTicker,
			YesPrice: float64(msg.Msg.YesBid) / 100,
			At:       time.Unix(msg.Msg.Timestamp, 0).UTC(),
		})
	}
}
