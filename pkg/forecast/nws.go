package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultDeviationF is the expected absolute error of an NWS point forecast a
// day out, in °F.
const DefaultDeviationF = 3.5

// climatologyDeviationF is the deviation used when falling back to monthly
// averages, which are far less informative than a fresh forecast.
const climatologyDeviationF = 8.0

// NWSSource fetches daily high temperature forecasts from the National
// Weather Service gridpoint API.
type NWSSource struct {
	httpClient *http.Client
	deviation  float64
}

// NewNWSSource creates an NWS forecast source with the given per-call timeout.
func NewNWSSource(timeout time.Duration) *NWSSource {
	return &NWSSource{
		httpClient: &http.Client{Timeout: timeout},
		deviation:  DefaultDeviationF,
	}
}

type nwsForecastResponse struct {
	Properties struct {
		Periods []struct {
			Name          string    `json:"name"`
			StartTime     time.Time `json:"startTime"`
			IsDaytime     bool      `json:"isDaytime"`
			Temperature   int       `json:"temperature"`
			ShortForecast string    `json:"shortForecast"`
		} `json:"periods"`
	} `json:"properties"`
}

// GetForecast returns the forecasted daily high for the station on the target
// date. When the NWS is unreachable it degrades to the station's climatology
// with a wider deviation; only an unknown location is ErrUnavailable outright.
func (s *NWSSource) GetForecast(ctx context.Context, location string, date time.Time) (Forecast, error) {
	station, ok := StationFor(location)
	if !ok {
		return Forecast{}, fmt.Errorf("%w: no station for location %q", ErrUnavailable, location)
	}

	temp, err := s.fetchHighForDate(ctx, station, date)
	if err != nil {
		temp = station.ClimatologyHigh(date.Month())
		if temp == 0 {
			return Forecast{}, fmt.Errorf("%w: %s: %v", ErrUnavailable, station.Code, err)
		}
		return Forecast{
			Location:    station.Code,
			Date:        date,
			Value:       temp,
			Deviation:   climatologyDeviationF,
			RetrievedAt: time.Now().UTC(),
		}, nil
	}

	return Forecast{
		Location:    station.Code,
		Date:        date,
		Value:       temp,
		Deviation:   s.deviation,
		RetrievedAt: time.Now().UTC(),
	}, nil
}

func (s *NWSSource) fetchHighForDate(ctx context.Context, station *Station, date time.Time) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, station.NWSForecastURL(), nil)
	if err != nil {
		return 0, fmt.Errorf("create NWS request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch NWS forecast: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("NWS returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read NWS response: %w", err)
	}

	var nws nwsForecastResponse
	if err := json.Unmarshal(body, &nws); err != nil {
		return 0, fmt.Errorf("parse NWS response: %w", err)
	}

	loc := station.Location()
	targetDay := date.In(loc).Format("2006-01-02")

	for _, p := range nws.Properties.Periods {
		if p.IsDaytime && p.StartTime.In(loc).Format("2006-01-02") == targetDay {
			return float64(p.Temperature), nil
		}
	}

	return 0, fmt.Errorf("no daytime period for %s", targetDay)
}
