package kalshi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/brendanplayford/edgescan/pkg/venue"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(WithBaseURL(srv.URL), WithRateLimit(rate.Inf, 1))
}

func TestListMarketsPaginatesAndFilters(t *testing.T) {
	expiry := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
	farExpiry := time.Now().Add(30 * 24 * time.Hour).UTC().Format(time.RFC3339)

	pages := map[string]getMarketsResponse{
		"": {
			Markets: []apiMarket{
				{Ticker: "KXHIGHLAX-25DEC27-B60.5", Title: "High temp in LA", Status: "active", YesBid: 20, Volume: 500, ExpirationTime: expiry},
				{Ticker: "KXHIGHNY-25DEC27-B40.5", Title: "High temp in NY", Status: "active", YesBid: 35, Volume: 5, ExpirationTime: expiry},
			},
			Cursor: "next",
		},
		"next": {
			Markets: []apiMarket{
				{Ticker: "KXHIGHCHI-26JAN15-T30", Title: "Above 30 in Chicago", Status: "active", YesBid: 50, Volume: 900, ExpirationTime: farExpiry},
			},
		},
	}

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/markets", r.URL.Path)
		assert.Equal(t, "open", r.URL.Query().Get("status"))
		json.NewEncoder(w).Encode(pages[r.URL.Query().Get("cursor")])
	}))

	markets, err := client.ListMarkets(context.Background(), venue.Filters{
		MinVolume:       100,
		MaxDaysToExpiry: 7,
	})
	require.NoError(t, err)

	// Low-volume NY market and far-expiry Chicago market are filtered out.
	require.Len(t, markets, 1)
	m := markets[0]
	assert.Equal(t, "KXHIGHLAX-25DEC27-B60.5", m.Ticker)
	assert.Equal(t, venue.StatusOpen, m.Status)
	assert.InDelta(t, 0.20, m.YesPrice, 1e-9)
	assert.Equal(t, "KXHIGH", m.Series)
}

func TestGetMarketNotFound(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	}))

	_, err := client.GetMarket(context.Background(), "KXHIGHLAX-25DEC27-B60.5")
	assert.ErrorIs(t, err, venue.ErrMarketNotFound)
}

func TestGetMarketSettled(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/markets/KXHIGHLAX-25DEC27-B60.5", r.URL.Path)
		json.NewEncoder(w).Encode(getMarketResponse{Market: apiMarket{
			Ticker: "KXHIGHLAX-25DEC27-B60.5",
			Title:  "High temp in LA",
			Status: "settled",
			Result: "yes",
		}})
	}))

	m, err := client.GetMarket(context.Background(), "KXHIGHLAX-25DEC27-B60.5")
	require.NoError(t, err)
	assert.Equal(t, venue.StatusSettled, m.Status)
	assert.Equal(t, venue.SideYes, m.Result)
}

func TestPlaceOrderFill(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/portfolio/orders", r.URL.Path)

		var req createOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "buy", req.Action)
		assert.Equal(t, "no", req.Side)
		assert.Equal(t, 40, req.NoPrice)

		var resp createOrderResponse
		resp.Order.OrderID = "ORD-42"
		resp.Order.NoPrice = req.NoPrice
		resp.Order.Count = req.Count
		json.NewEncoder(w).Encode(resp)
	}))

	fill, err := client.PlaceOrder(context.Background(), "KXHIGHLAX-25DEC27-B60.5", venue.SideNo, 10, 0.40)
	require.NoError(t, err)
	assert.Equal(t, "ORD-42", fill.OrderID)
	assert.InDelta(t, 0.40, fill.Price, 1e-9)
	assert.Equal(t, 10, fill.Count)
}

func TestPlaceOrderRejected(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"insufficient_balance"}`, http.StatusBadRequest)
	}))

	_, err := client.PlaceOrder(context.Background(), "KXHIGHLAX-25DEC27-B60.5", venue.SideYes, 10, 0.40)

	var rej *venue.OrderRejectedError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "KXHIGHLAX-25DEC27-B60.5", rej.Ticker)
	assert.Contains(t, rej.Reason, "insufficient_balance")
}

func TestListOpenPositionsMapsSides(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/portfolio/positions", r.URL.Path)
		json.NewEncoder(w).Encode(getPositionsResponse{Positions: []apiPosition{
			{Ticker: "KXHIGHLAX-25DEC27-B60.5", YesPosition: 10, TotalCost: 200},
			{Ticker: "KXHIGHNY-25DEC27-B40.5", NoPosition: 5, TotalCost: 300},
			{Ticker: "KXHIGHCHI-25DEC27-B20.5"}, // flat, skipped
		}})
	}))

	positions, err := client.ListOpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, venue.SideYes, positions[0].Side)
	assert.Equal(t, 10, positions[0].Count)
	assert.InDelta(t, 0.02, positions[0].AvgPrice, 1e-9)

	assert.Equal(t, venue.SideNo, positions[1].Side)
	assert.Equal(t, 5, positions[1].Count)
	assert.InDelta(t, 0.60, positions[1].AvgPrice, 1e-9)
}
