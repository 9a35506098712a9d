package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettleVersionsState(t *testing.T) {
	s := NewState(decimal.NewFromInt(100))
	require.Equal(t, 1, s.Version)

	won := s.Settle(decimal.NewFromFloat(12.5))
	assert.Equal(t, 2, won.Version)
	assert.True(t, won.Bankroll.Equal(decimal.NewFromFloat(112.5)))
	assert.Equal(t, 1, won.Wins)
	assert.Equal(t, 1, won.ConsecutiveWins)

	// The prior snapshot is untouched.
	assert.Equal(t, 1, s.Version)
	assert.True(t, s.Bankroll.Equal(decimal.NewFromInt(100)))

	lost := won.Settle(decimal.NewFromFloat(-5))
	assert.Equal(t, 3, lost.Version)
	assert.Equal(t, 0, lost.ConsecutiveWins)
	assert.Equal(t, 1, lost.ConsecutiveLosses)
	assert.InDelta(t, 0.5, lost.WinRate(), 1e-9)
}

func TestProfileTiers(t *testing.T) {
	base := NewState(decimal.NewFromInt(100))

	tests := []struct {
		name      string
		bankroll  float64
		wins      int
		closed    int
		wantLevel string
	}{
		{"downswing tightens", 75, 0, 5, "tight"},
		{"underwater is conservative", 90, 2, 5, "conservative"},
		{"flat is moderate", 110, 2, 5, "moderate"},
		{"winning gets aggressive", 130, 4, 6, "moderate-aggressive"},
		{"hot streak maxes out", 180, 7, 10, "aggressive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			s.Bankroll = decimal.NewFromFloat(tt.bankroll)
			s.Wins = tt.wins
			s.ClosedTrades = tt.closed
			assert.Equal(t, tt.wantLevel, ProfileFor(s).Level)
		})
	}
}

func TestSize(t *testing.T) {
	s := NewState(decimal.NewFromInt(1000))
	prof := Profile{MaxPositionPct: 0.05, KellyMultiplier: 0.25}

	// Positive edge sizes a position.
	n := Size(s, prof, 0.70, 0.50, decimal.Zero)
	assert.Greater(t, n, 0)

	// No edge, no position.
	assert.Equal(t, 0, Size(s, prof, 0.40, 0.50, decimal.Zero))

	// The strategy dollar cap binds.
	capped := Size(s, prof, 0.70, 0.50, decimal.NewFromInt(2))
	assert.LessOrEqual(t, capped, 4)
	assert.Less(t, capped, n)

	// Degenerate inputs never size.
	assert.Equal(t, 0, Size(s, prof, 0.70, 0, decimal.Zero))
	assert.Equal(t, 0, Size(s, prof, 0.70, 1, decimal.Zero))
}
