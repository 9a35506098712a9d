// Package risk models bankroll state and position sizing. State is an
// explicit versioned value: every sizing decision reads one immutable snapshot
// and closing a trade produces the next version. Simulated and real trading
// carry independent states.
package risk

import (
	"math"

	"github.com/shopspring/decimal"
)

// State is a versioned snapshot of bankroll and streak information.
type State struct {
	Version           int             `json:"version"`
	Bankroll          decimal.Decimal `json:"bankroll"`
	InitialBankroll   decimal.Decimal `json:"initial_bankroll"`
	ClosedTrades      int             `json:"closed_trades"`
	Wins              int             `json:"wins"`
	ConsecutiveWins   int             `json:"consecutive_wins"`
	ConsecutiveLosses int             `json:"consecutive_losses"`
}

// NewState creates version 1 of a risk state with the given starting bankroll.
func NewState(bankroll decimal.Decimal) State {
	return State{
		Version:         1,
		Bankroll:        bankroll,
		InitialBankroll: bankroll,
	}
}

// WinRate returns the fraction of closed trades with positive P&L.
func (s State) WinRate() float64 {
	if s.ClosedTrades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.ClosedTrades)
}

// Settle returns the next state version after a trade closes with the given
// realized P&L. The receiver is unchanged.
func (s State) Settle(pnl decimal.Decimal) State {
	next := s
	next.Version++
	next.Bankroll = s.Bankroll.Add(pnl)
	next.ClosedTrades++
	if pnl.IsPositive() {
		next.Wins++
		next.ConsecutiveWins++
		next.ConsecutiveLosses = 0
	} else {
		next.ConsecutiveWins = 0
		next.ConsecutiveLosses++
	}
	return next
}

// Profile gates how aggressively the engine trades at a given state. Poker
// style: tighten on a downswing, loosen on a hot streak.
type Profile struct {
	Level           string
	MaxPositionPct  float64 // max fraction of bankroll per trade
	MinEVThreshold  float64 // floor on accepted EV, may exceed strategy config
	KellyMultiplier float64 // fraction of full Kelly to bet
}

// ProfileFor maps bankroll and win rate to a risk profile.
func ProfileFor(s State) Profile {
	ratio := 1.0
	if s.InitialBankroll.IsPositive() {
		ratio, _ = s.Bankroll.Div(s.InitialBankroll).Float64()
	}
	winRate := s.WinRate()

	switch {
	case ratio < 0.8:
		return Profile{Level: "tight", MaxPositionPct: 0.01, MinEVThreshold: 0.10, KellyMultiplier: 0.10}
	case ratio < 1.0:
		return Profile{Level: "conservative", MaxPositionPct: 0.02, MinEVThreshold: 0.07, KellyMultiplier: 0.15}
	case ratio < 1.5:
		if winRate > 0.55 {
			return Profile{Level: "moderate-aggressive", MaxPositionPct: 0.04, MinEVThreshold: 0.05, KellyMultiplier: 0.25}
		}
		return Profile{Level: "moderate", MaxPositionPct: 0.03, MinEVThreshold: 0.05, KellyMultiplier: 0.20}
	case winRate > 0.60:
		return Profile{Level: "aggressive", MaxPositionPct: 0.05, MinEVThreshold: 0.04, KellyMultiplier: 0.30}
	default:
		return Profile{Level: "moderate-aggressive", MaxPositionPct: 0.04, MinEVThreshold: 0.05, KellyMultiplier: 0.25}
	}
}

// Size returns the contract count for a trade, using fractional Kelly capped
// by profile and strategy limits. price is the cost per contract of the taken
// side (0..1 dollars), maxPosition the strategy's dollar cap per trade.
func Size(s State, prof Profile, pModel, price float64, maxPosition decimal.Decimal) int {
	if price <= 0 || price >= 1 || pModel <= 0 || pModel >= 1 {
		return 0
	}

	b := (1 - price) / price // net odds
	kelly := (pModel*b - (1 - pModel)) / b
	if kelly <= 0 {
		return 0
	}

	bankroll, _ := s.Bankroll.Float64()
	stake := bankroll * math.Min(kelly*prof.KellyMultiplier, prof.MaxPositionPct)

	if cap, _ := maxPosition.Float64(); cap > 0 && stake > cap {
		stake = cap
	}

	contracts := int(stake / price)
	if contracts < 1 && stake > 0 && stake >= price {
		contracts = 1
	}
	return contracts
}
