// Package model converts point forecasts into win probabilities for market
// settlement conditions.
package model

import (
	"fmt"

	"github.com/brendanplayford/edgescan/pkg/forecast"
	"github.com/brendanplayford/edgescan/pkg/venue"
)

// Default probability clamps. A point forecast is never treated as certain;
// degenerate 0/1 probabilities would blow EV out to its bounds.
const (
	DefaultMinProb = 0.01
	DefaultMaxProb = 0.99
)

// minDeviation guards the interpolation when a source reports no uncertainty.
const minDeviation = 0.5

// Model computes the probability that a settlement condition holds, given a
// point forecast with a deviation band.
type Model struct {
	MinProb float64
	MaxProb float64
}

// New returns a model with the default clamps.
func New() Model {
	return Model{MinProb: DefaultMinProb, MaxProb: DefaultMaxProb}
}

// Probability returns p(condition holds at settlement) for a forecast. The
// forecast value is modeled as uniformly distributed over
// [value-deviation, value+deviation]; the probability is the mass of that band
// satisfying the condition, clamped to (MinProb, MaxProb).
func (m Model) Probability(cond venue.Condition, f forecast.Forecast) (float64, error) {
	dev := f.Deviation
	if dev < minDeviation {
		dev = minDeviation
	}

	lo := f.Value - dev
	hi := f.Value + dev
	width := hi - lo

	var p float64
	switch cond.Op {
	case venue.OpGreater:
		p = (hi - cond.Lower) / width
	case venue.OpLess:
		p = (cond.Lower - lo) / width
	case venue.OpBetween:
		overlap := min(hi, cond.Upper) - max(lo, cond.Lower)
		p = overlap / width
	default:
		return 0, fmt.Errorf("model: unsupported operator %q", cond.Op)
	}

	return m.clamp(p), nil
}

func (m Model) clamp(p float64) float64 {
	if p < m.MinProb {
		return m.MinProb
	}
	if p > m.MaxProb {
		return m.MaxProb
	}
	return p
}
