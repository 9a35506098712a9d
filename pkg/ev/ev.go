// Package ev scores market opportunities: expected value of each side of a
// binary contract given a model probability, and mutual-exclusivity filtering
// of overlapping markets.
package ev

import (
	"errors"
	"time"

	"github.com/brendanplayford/edgescan/pkg/venue"
)

// ErrIlliquidPrice is returned for prices at exactly 0 or 1; such markets have
// no tradable edge and are skipped.
var ErrIlliquidPrice = errors.New("ev: price outside (0,1)")

// Opportunity is the ephemeral result of scoring one market in one scan
// cycle. Only opportunities that become positions are ever persisted.
type Opportunity struct {
	Ticker        string
	MarketTitle   string
	EventGroupKey string
	Side          venue.Side
	ModelProb     float64
	MarketPrice   float64 // YES price; NO cost is its complement
	Score         float64
	Volume        int
	Expiration    time.Time
	Condition     venue.Condition
}

// Evaluation holds both sides' expected values and the recommendation.
type Evaluation struct {
	EVYes float64
	EVNo  float64
	Side  venue.Side
	Score float64
}

// Evaluate computes the expected value of taking each side of a binary
// contract at the given price, per contract unit:
//
//	ev_yes = p·(1-price) - (1-p)·price
//	ev_no  = (1-p)·price - p·(1-price)
//
// The recommended side is the one with the greater EV; ties break toward YES.
// Pure function, no side effects.
func Evaluate(pModel, price float64) (Evaluation, error) {
	if price <= 0 || price >= 1 {
		return Evaluation{}, ErrIlliquidPrice
	}

	evYes := pModel*(1-price) - (1-pModel)*price
	evNo := (1-pModel)*price - pModel*(1-price)

	e := Evaluation{EVYes: evYes, EVNo: evNo}
	if evYes >= evNo {
		e.Side = venue.SideYes
		e.Score = evYes
	} else {
		e.Side = venue.SideNo
		e.Score = evNo
	}

	return e, nil
}
