package kalshi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/brendanplayford/edgescan/pkg/venue"
)

// apiMarket is the wire shape of a market.
type apiMarket struct {
	Ticker         string `json:"ticker"`
	EventTicker    string `json:"event_ticker"`
	Title          string `json:"title"`
	Category       string `json:"category"`
	Status         string `json:"status"`
	YesBid         int    `json:"yes_bid"` // cents
	Volume         int    `json:"volume"`
	Result         string `json:"result"`
	ExpirationTime string `json:"expiration_time"`
}

type getMarketsResponse struct {
	Markets []apiMarket `json:"markets"`
	Cursor  string      `json:"cursor"`
}

type getMarketResponse struct {
	Market apiMarket `json:"market"`
}

// ListMarkets returns open markets matching the filters, following cursor
// pagination to the end.
func (c *Client) ListMarkets(ctx context.Context, f venue.Filters) ([]venue.Market, error) {
	var out []venue.Market
	cursor := ""

	for {
		q := url.Values{}
		q.Set("status", "open")
		q.Set("limit", "200")
		if f.Category != "" {
			q.Set("category", f.Category)
		}
		if cursor != "" {
			q.Set("cursor", cursor)
		}

		body, err := c.request(ctx, http.MethodGet, "/markets", q, nil)
		if err != nil {
			return nil, fmt.Errorf("list markets: %w", err)
		}

		var resp getMarketsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("parse markets response: %w", err)
		}

		for _, am := range resp.Markets {
			m := toVenueMarket(am)
			if f.MinVolume > 0 && m.Volume < f.MinVolume {
				continue
			}
			if f.MaxDaysToExpiry > 0 && !m.Expiration.IsZero() &&
				time.Until(m.Expiration) > time.Duration(f.MaxDaysToExpiry)*24*time.Hour {
				continue
			}
			out = append(out, m)
		}

		if resp.Cursor == "" || len(resp.Markets) == 0 {
			break
		}
		cursor = resp.Cursor
	}

	return out, nil
}

// GetMarket looks up one market by ticker.
func (c *Client) GetMarket(ctx context.Context, ticker string) (venue.Market, error) {
	body, err := c.request(ctx, http.MethodGet, "/markets/"+ticker, nil, nil)
	if err != nil {
		var aerr *apiError
		if errors.As(err, &aerr) && aerr.Status == http.StatusNotFound {
			return venue.Market{}, fmt.Errorf("%w: %s", venue.ErrMarketNotFound, ticker)
		}
		return venue.Market{}, fmt.Errorf("get market %s: %w", ticker, err)
	}

	var resp getMarketResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return venue.Market{}, fmt.Errorf("parse market response: %w", err)
	}
	return toVenueMarket(resp.Market), nil
}

func toVenueMarket(am apiMarket) venue.Market {
	m := venue.Market{
		Ticker:      am.Ticker,
		EventTicker: am.EventTicker,
		Title:       am.Title,
		Category:    am.Category,
		YesPrice:    float64(am.YesBid) / 100,
		Volume:      am.Volume,
	}

	switch am.Status {
	case "active", "open":
		m.Status = venue.StatusOpen
	case "settled", "finalized":
		m.Status = venue.StatusSettled
	default:
		m.Status = venue.StatusClosed
	}

	switch am.Result {
	case "yes":
		m.Result = venue.SideYes
	case "no":
		m.Result = venue.SideNo
	}

	if am.ExpirationTime != "" {
		if t, err := time.Parse(time.RFC3339, am.ExpirationTime); err == nil {
			m.Expiration = t
		}
	}

	// Series is recoverable from the parsed condition; keep the event prefix
	// as a fallback for markets the parser rejects.
	if cond, err := venue.ParseTicker(am.Ticker, am.Title); err == nil {
		m.Series = cond.Series
	}

	return m
}

// apiPosition is the wire shape of a portfolio position.
type apiPosition struct {
	Ticker      string `json:"ticker"`
	MarketTitle string `json:"market_title"`
	YesPosition int    `json:"yes_position"`
	NoPosition  int    `json:"no_position"`
	TotalCost   int    `json:"total_cost"` // cents
}

type getPositionsResponse struct {
	Positions []apiPosition `json:"market_positions"`
	Cursor    string        `json:"cursor"`
}

// ListOpenPositions returns the exchange's view of current positions, the
// authoritative input to reconciliation.
func (c *Client) ListOpenPositions(ctx context.Context) ([]venue.ExternalPosition, error) {
	body, err := c.request(ctx, http.MethodGet, "/portfolio/positions", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}

	var resp getPositionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse positions response: %w", err)
	}

	var out []venue.ExternalPosition
	for _, ap := range resp.Positions {
		count := ap.YesPosition
		side := venue.SideYes
		if ap.NoPosition > 0 {
			count = ap.NoPosition
			side = venue.SideNo
		}
		if count == 0 {
			continue
		}
		out = append(out, venue.ExternalPosition{
			Ticker:      ap.Ticker,
			Side:        side,
			Count:       count,
			AvgPrice:    float64(ap.TotalCost) / float64(count) / 100,
			MarketTitle: ap.MarketTitle,
		})
	}
	return out, nil
}

type createOrderRequest struct {
	Ticker   string `json:"ticker"`
	Action   string `json:"action"`
	Side     string `json:"side"`
	Type     string `json:"type"`
	Count    int    `json:"count"`
	YesPrice int    `json:"yes_price,omitempty"` // cents
	NoPrice  int    `json:"no_price,omitempty"`  // cents
}

type createOrderResponse struct {
	Order struct {
		OrderID  string `json:"order_id"`
		Status   string `json:"status"`
		YesPrice int    `json:"yes_price"`
		NoPrice  int    `json:"no_price"`
		Count    int    `json:"count"`
	} `json:"order"`
}

// PlaceOrder submits a limit buy for the given side. Rejections come back as
// *venue.OrderRejectedError so callers can mark the position failed with the
// venue's reason.
func (c *Client) PlaceOrder(ctx context.Context, ticker string, side venue.Side, count int, price float64) (venue.FillResult, error) {
	cents := int(price*100 + 0.5)
	req := createOrderRequest{
		Ticker: ticker,
		Action: "buy",
		Type:   "limit",
		Count:  count,
	}
	if side == venue.SideYes {
		req.Side = "yes"
		req.YesPrice = cents
	} else {
		req.Side = "no"
		req.NoPrice = cents
	}

	body, err := c.request(ctx, http.MethodPost, "/portfolio/orders", nil, req)
	if err != nil {
		var aerr *apiError
		if errors.As(err, &aerr) && aerr.Status >= 400 && aerr.Status < 500 {
			return venue.FillResult{}, &venue.OrderRejectedError{
				Ticker: ticker,
				Reason: "status " + strconv.Itoa(aerr.Status) + ": " + aerr.Body,
			}
		}
		return venue.FillResult{}, fmt.Errorf("place order: %w", err)
	}

	var resp createOrderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return venue.FillResult{}, fmt.Errorf("parse order response: %w", err)
	}

	filled := float64(resp.Order.YesPrice) / 100
	if side == venue.SideNo {
		filled = float64(resp.Order.NoPrice) / 100
	}

	return venue.FillResult{
		OrderID: resp.Order.OrderID,
		Price:   filled,
		Count:   resp.Order.Count,
	}, nil
}
