// Package venue defines the narrow interfaces through which the engine talks to
// a prediction-market venue: the market catalog and the order execution adapter.
package venue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMarketNotFound is returned by Catalog.GetMarket for unknown tickers.
var ErrMarketNotFound = errors.New("venue: market not found")

// Side represents the side of a binary contract.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Opposite returns the other side of the contract.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	StatusOpen    MarketStatus = "open"
	StatusClosed  MarketStatus = "closed"
	StatusSettled MarketStatus = "settled"
)

// Market is a single binary market as reported by the catalog. It is refreshed
// every scan cycle and never persisted by the engine.
type Market struct {
	Ticker      string
	EventTicker string
	Series      string
	Title       string
	Category    string
	Status      MarketStatus
	YesPrice    float64 // probability-scaled, 0..1
	Volume      int
	Expiration  time.Time
	Result      Side // set when Status == StatusSettled
}

// Filters narrows a catalog listing.
type Filters struct {
	Category        string
	MinVolume       int
	MaxDaysToExpiry int
}

// Catalog lists and looks up markets. Implementations own market data; the
// engine only reads it.
type Catalog interface {
	ListMarkets(ctx context.Context, f Filters) ([]Market, error)
	GetMarket(ctx context.Context, ticker string) (Market, error)
}

// FillResult reports a confirmed order fill.
type FillResult struct {
	OrderID string
	Price   float64 // executed price, 0..1
	Count   int
}

// ExternalPosition is a position as reported by the venue, used during
// reconciliation.
type ExternalPosition struct {
	Ticker      string
	Side        Side
	Count       int
	AvgPrice    float64
	MarketTitle string
}

// Executor places real orders. Absent in dry-run mode.
type Executor interface {
	PlaceOrder(ctx context.Context, ticker string, side Side, count int, price float64) (FillResult, error)
	ListOpenPositions(ctx context.Context) ([]ExternalPosition, error)
}

// OrderRejectedError is returned by Executor.PlaceOrder when the venue refuses
// an order. The reason is retained on the failed position.
type OrderRejectedError struct {
	Ticker string
	Reason string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("venue: order rejected for %s: %s", e.Ticker, e.Reason)
}
