package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brendanplayford/edgescan/pkg/venue"
)

// Status is the lifecycle state of a position.
type Status string

const (
	StatusPending Status = "pending"
	StatusOpen    Status = "open"
	StatusClosed  Status = "closed"
	StatusFailed  Status = "failed"
)

// legalTransitions enumerates the allowed status changes. Anything else is a
// bug surfaced as an error, never silently applied.
var legalTransitions = map[Status][]Status{
	StatusPending: {StatusOpen, StatusFailed},
	StatusOpen:    {StatusClosed, StatusFailed},
}

func canTransition(from, to Status) bool {
	for _, s := range legalTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Position is the durable record of one trade, simulated or real.
type Position struct {
	ID                 string           `json:"id"`
	Ticker             string           `json:"ticker"`
	Side               venue.Side       `json:"side"`
	Size               int              `json:"size"`
	EntryPrice         float64          `json:"entry_price"`
	EntryTime          time.Time        `json:"entry_time"`
	Strategy           string           `json:"strategy"`
	Simulated          bool             `json:"simulated"`
	Status             Status           `json:"status"`
	MarketTitle        string           `json:"market_title,omitempty"`
	ExpectedSettlement time.Time        `json:"expected_settlement,omitzero"`
	SettlementOutcome  venue.Side       `json:"settlement_outcome,omitempty"`
	RealizedPnL        *decimal.Decimal `json:"realized_pnl,omitempty"`
	OrderID            string           `json:"order_id,omitempty"`
	FailReason         string           `json:"fail_reason,omitempty"`
	ClosedAt           time.Time        `json:"closed_at,omitzero"`

	// OutOfBand marks positions adopted from the exchange during
	// reconciliation; they need manual review.
	OutOfBand bool `json:"out_of_band,omitempty"`
}

// IsLive reports whether the position still represents exposure.
func (p Position) IsLive() bool {
	return p.Status == StatusPending || p.Status == StatusOpen
}

// settlementPnL computes realized P&L for a binary contract: each contract
// pays 1 when the taken side wins and 0 otherwise, against the entry price.
func settlementPnL(p Position, outcome venue.Side) decimal.Decimal {
	settlementValue := 0.0
	if outcome == p.Side {
		settlementValue = 1.0
	}
	perContract := decimal.NewFromFloat(settlementValue - p.EntryPrice)
	return perContract.Mul(decimal.NewFromInt(int64(p.Size))).Round(4)
}

// TransitionError reports an illegal status change attempt.
type TransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("ledger: illegal transition %s -> %s for position %s", e.From, e.To, e.ID)
}
