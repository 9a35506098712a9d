package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// spotDeviationPct is the expected move of a crypto spot price over a short
// settlement window, as a fraction of price.
const spotDeviationPct = 0.015

// SpotSource supplies "forecasts" for crypto threshold markets: the current
// spot price is the point estimate for where the asset settles. The location
// argument is the asset symbol ("BTC", "ETH").
type SpotSource struct {
	httpClient *http.Client
	baseURL    string
}

// NewSpotSource creates a Coinbase exchange-rate backed spot source.
func NewSpotSource(timeout time.Duration) *SpotSource {
	return &SpotSource{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    "https://api.coinbase.com/v2/exchange-rates",
	}
}

type exchangeRatesResponse struct {
	Data struct {
		Currency string            `json:"currency"`
		Rates    map[string]string `json:"rates"`
	} `json:"data"`
}

// GetForecast fetches the current USD spot price for the asset.
func (s *SpotSource) GetForecast(ctx context.Context, asset string, date time.Time) (Forecast, error) {
	url := fmt.Sprintf("%s?currency=%s", s.baseURL, asset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Forecast{}, fmt.Errorf("create spot request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return Forecast{}, fmt.Errorf("%w: fetch %s spot: %v", ErrUnavailable, asset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Forecast{}, fmt.Errorf("%w: %s spot returned status %d", ErrUnavailable, asset, resp.StatusCode)
	}

	var rates exchangeRatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&rates); err != nil {
		return Forecast{}, fmt.Errorf("%w: parse %s spot: %v", ErrUnavailable, asset, err)
	}

	usd, ok := rates.Data.Rates["USD"]
	if !ok {
		return Forecast{}, fmt.Errorf("%w: no USD rate for %s", ErrUnavailable, asset)
	}

	price, err := strconv.ParseFloat(usd, 64)
	if err != nil || price <= 0 {
		return Forecast{}, fmt.Errorf("%w: bad USD rate %q for %s", ErrUnavailable, usd, asset)
	}

	return Forecast{
		Location:    asset,
		Date:        date,
		Value:       price,
		Deviation:   price * spotDeviationPct,
		RetrievedAt: time.Now().UTC(),
	}, nil
}
