// Package forecast provides point forecasts for the real-world quantities that
// markets settle on: daily temperatures from the NWS and spot prices for crypto
// threshold markets.
package forecast

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrUnavailable is returned when a forecast cannot be fetched. It is a
// transient condition; the affected markets are skipped for the cycle.
var ErrUnavailable = errors.New("forecast: unavailable")

// Forecast is a point forecast for one location and target date. Immutable
// once fetched; a newer fetch for the same (location, date) supersedes it.
type Forecast struct {
	Location    string
	Date        time.Time
	Value       float64 // point estimate in the market's settlement unit
	Deviation   float64 // expected absolute deviation of the estimate
	RetrievedAt time.Time
}

// Source supplies forecasts for a location and date.
type Source interface {
	GetForecast(ctx context.Context, location string, date time.Time) (Forecast, error)
}

// Cache wraps a Source with a latest-wins in-memory cache so one scan cycle
// fetches each (location, date) pair at most once per TTL.
type Cache struct {
	src Source
	ttl time.Duration

	mu      sync.Mutex
	entries map[cacheKey]Forecast
}

type cacheKey struct {
	location string
	date     string
}

// NewCache creates a caching wrapper around src. Entries older than ttl are
// refetched.
func NewCache(src Source, ttl time.Duration) *Cache {
	return &Cache{
		src:     src,
		ttl:     ttl,
		entries: make(map[cacheKey]Forecast),
	}
}

// GetForecast returns a cached forecast when fresh, otherwise fetches and
// stores a new one.
func (c *Cache) GetForecast(ctx context.Context, location string, date time.Time) (Forecast, error) {
	key := cacheKey{location: location, date: date.Format("2006-01-02")}

	c.mu.Lock()
	if f, ok := c.entries[key]; ok && time.Since(f.RetrievedAt) < c.ttl {
		c.mu.Unlock()
		return f, nil
	}
	c.mu.Unlock()

	f, err := c.src.GetForecast(ctx, location, date)
	if err != nil {
		return Forecast{}, err
	}

	c.mu.Lock()
	c.entries[key] = f
	c.mu.Unlock()

	return f, nil
}
