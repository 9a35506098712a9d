// Package perf rolls ledger positions up into per-strategy performance
// summaries. Pure and read-only over a ledger snapshot; simulated and real
// results are never mixed into one total.
package perf

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brendanplayford/edgescan/pkg/ledger"
)

// Period bounds a report by entry time. Zero values mean unbounded.
type Period struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	if !p.From.IsZero() && t.Before(p.From) {
		return false
	}
	if !p.To.IsZero() && !t.Before(p.To) {
		return false
	}
	return true
}

// Day returns the period covering one calendar day in the given location.
func Day(date time.Time, loc *time.Location) Period {
	d := date.In(loc)
	from := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return Period{From: from, To: from.AddDate(0, 0, 1)}
}

// StrategySummary aggregates one strategy in one trading mode.
type StrategySummary struct {
	Strategy    string
	Simulated   bool
	Open        int
	Closed      int
	Failed      int
	Wins        int
	WinRate     float64 // wins / closed
	TotalPnL    decimal.Decimal
	AvgPnL      decimal.Decimal // per closed trade
	TotalStaked decimal.Decimal
}

// Report is the full performance rollup for a period.
type Report struct {
	Period     Period
	Strategies []StrategySummary
}

// Totals sums realized P&L across strategies for one trading mode.
func (r Report) Totals(simulated bool) decimal.Decimal {
	total := decimal.Zero
	for _, s := range r.Strategies {
		if s.Simulated == simulated {
			total = total.Add(s.TotalPnL)
		}
	}
	return total
}

type groupKey struct {
	strategy  string
	simulated bool
}

// Summarize aggregates positions entered inside the period, grouped by
// strategy and trading mode. Output order is deterministic: real before
// simulated, then total P&L descending, then strategy name.
func Summarize(positions []ledger.Position, period Period) Report {
	groups := make(map[groupKey]*StrategySummary)

	for _, p := range positions {
		if !period.Contains(p.EntryTime) {
			continue
		}

		key := groupKey{strategy: p.Strategy, simulated: p.Simulated}
		s, ok := groups[key]
		if !ok {
			s = &StrategySummary{
				Strategy:    p.Strategy,
				Simulated:   p.Simulated,
				TotalPnL:    decimal.Zero,
				AvgPnL:      decimal.Zero,
				TotalStaked: decimal.Zero,
			}
			groups[key] = s
		}

		stake := decimal.NewFromFloat(p.EntryPrice).Mul(decimal.NewFromInt(int64(p.Size)))

		switch p.Status {
		case ledger.StatusClosed:
			s.Closed++
			s.TotalStaked = s.TotalStaked.Add(stake)
			if p.RealizedPnL != nil {
				s.TotalPnL = s.TotalPnL.Add(*p.RealizedPnL)
				if p.RealizedPnL.IsPositive() {
					s.Wins++
				}
			}
		case ledger.StatusFailed:
			s.Failed++
		default:
			s.Open++
			s.TotalStaked = s.TotalStaked.Add(stake)
		}
	}

	out := make([]StrategySummary, 0, len(groups))
	for _, s := range groups {
		if s.Closed > 0 {
			s.WinRate = float64(s.Wins) / float64(s.Closed)
			s.AvgPnL = s.TotalPnL.Div(decimal.NewFromInt(int64(s.Closed))).Round(4)
		}
		out = append(out, *s)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Simulated != out[j].Simulated {
			return !out[i].Simulated
		}
		if !out[i].TotalPnL.Equal(out[j].TotalPnL) {
			return out[i].TotalPnL.GreaterThan(out[j].TotalPnL)
		}
		return out[i].Strategy < out[j].Strategy
	})

	return Report{Period: period, Strategies: out}
}
