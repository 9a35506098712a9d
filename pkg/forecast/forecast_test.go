package forecast

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	calls int
	value float64
	err   error
}

func (s *stubSource) GetForecast(ctx context.Context, loc string, date time.Time) (Forecast, error) {
	s.calls++
	if s.err != nil {
		return Forecast{}, s.err
	}
	return Forecast{
		Location:    loc,
		Date:        date,
		Value:       s.value,
		Deviation:   3.5,
		RetrievedAt: time.Now().UTC(),
	}, nil
}

func TestCacheHitsWithinTTL(t *testing.T) {
	src := &stubSource{value: 72}
	cache := NewCache(src, time.Minute)

	date := time.Date(2026, time.February, 2, 0, 0, 0, 0, time.UTC)

	first, err := cache.GetForecast(context.Background(), "NYC", date)
	require.NoError(t, err)
	second, err := cache.GetForecast(context.Background(), "NYC", date)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	assert.Equal(t, first.Value, second.Value)

	// Different date misses
	_, err = cache.GetForecast(context.Background(), "NYC", date.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	src := &stubSource{err: ErrUnavailable}
	cache := NewCache(src, time.Minute)

	date := time.Date(2026, time.February, 2, 0, 0, 0, 0, time.UTC)

	_, err := cache.GetForecast(context.Background(), "NYC", date)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))

	src.err = nil
	src.value = 40
	f, err := cache.GetForecast(context.Background(), "NYC", date)
	require.NoError(t, err)
	assert.Equal(t, 40.0, f.Value)
	assert.Equal(t, 2, src.calls)
}

func TestNormalizeLocation(t *testing.T) {
	assert.Equal(t, "NYC", NormalizeLocation("NY"))
	assert.Equal(t, "NYC", NormalizeLocation("new york"))
	assert.Equal(t, "NYC", NormalizeLocation("NYC"))
	assert.Equal(t, "CHI", NormalizeLocation("ord"))
	assert.Equal(t, "PHIL", NormalizeLocation("PHL"))
	// unknown locations pass through uppercased
	assert.Equal(t, "SEA", NormalizeLocation("sea"))
}

func TestNWSSourceFallsBackToClimatology(t *testing.T) {
	// Point the client at nothing; the fetch fails and climatology takes over.
	src := NewNWSSource(10 * time.Millisecond)

	station := Stations["NYC"]
	station2, ok := StationFor("NY")
	require.True(t, ok)
	assert.Same(t, station, station2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	date := time.Date(2026, time.July, 10, 0, 0, 0, 0, time.UTC)
	f, err := src.GetForecast(ctx, "NYC", date)
	require.NoError(t, err)
	assert.Equal(t, station.ClimatologyHigh(time.July), f.Value)
	assert.Equal(t, climatologyDeviationF, f.Deviation)
}

func TestNWSSourceUnknownLocation(t *testing.T) {
	src := NewNWSSource(time.Second)
	_, err := src.GetForecast(context.Background(), "ATLANTIS", time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}
