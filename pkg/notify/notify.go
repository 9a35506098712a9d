// Package notify pushes engine events to chat webhooks. Every method is
// best-effort: delivery failures are logged and never block the scan loop.
package notify

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/brendanplayford/edgescan/pkg/ev"
	"github.com/brendanplayford/edgescan/pkg/ledger"
	"github.com/brendanplayford/edgescan/pkg/perf"
)

// Sink delivers a single formatted message to one destination.
type Sink interface {
	Name() string
	Enabled() bool
	Post(msg Message) error
}

// Severity colors the message on sinks that support it.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityGood
	SeverityWarn
	SeverityCritical
)

// Field is one labeled value in a structured message.
type Field struct {
	Title string
	Value string
	Short bool
}

// Message is a sink-agnostic notification.
type Message struct {
	Severity Severity
	Title    string
	Text     string
	Fields   []Field
}

// Notifier fans messages out to all enabled sinks.
type Notifier struct {
	sinks []Sink
	log   zerolog.Logger
}

// New creates a notifier over the given sinks. Disabled sinks (empty
// webhook URL) are dropped up front.
func New(logger zerolog.Logger, sinks ...Sink) *Notifier {
	n := &Notifier{log: logger.With().Str("component", "notify").Logger()}
	for _, s := range sinks {
		if s.Enabled() {
			n.sinks = append(n.sinks, s)
			n.log.Info().Str("sink", s.Name()).Msg("notifications enabled")
		}
	}
	return n
}

// Enabled reports whether at least one sink will receive messages.
func (n *Notifier) Enabled() bool { return len(n.sinks) > 0 }

func (n *Notifier) post(msg Message) {
	for _, s := range n.sinks {
		if err := s.Post(msg); err != nil {
			n.log.Warn().Err(err).Str("sink", s.Name()).Msg("notification failed")
		}
	}
}

// Startup announces engine start with the active strategies.
func (n *Notifier) Startup(strategies []string, dryRun bool) {
	mode := "LIVE"
	if dryRun {
		mode = "DRY-RUN"
	}
	n.post(Message{
		Severity: SeverityGood,
		Title:    "Engine started",
		Fields: []Field{
			{Title: "Mode", Value: mode, Short: true},
			{Title: "Strategies", Value: fmt.Sprintf("%v", strategies), Short: true},
		},
	})
}

// Shutdown announces engine stop.
func (n *Notifier) Shutdown(reason string) {
	n.post(Message{
		Severity: SeverityInfo,
		Title:    "Engine stopped",
		Text:     reason,
	})
}

// Opportunity announces a surviving opportunity a cycle produced.
func (n *Notifier) Opportunity(opp ev.Opportunity) {
	n.post(Message{
		Severity: SeverityInfo,
		Title:    "Opportunity: " + opp.Ticker,
		Fields: []Field{
			{Title: "Side", Value: string(opp.Side), Short: true},
			{Title: "Score", Value: fmt.Sprintf("%.3f", opp.Score), Short: true},
			{Title: "Model prob", Value: fmt.Sprintf("%.2f", opp.ModelProb), Short: true},
			{Title: "Price", Value: fmt.Sprintf("%.2f", opp.MarketPrice), Short: true},
		},
	})
}

// PositionOpened announces a confirmed fill.
func (n *Notifier) PositionOpened(pos ledger.Position) {
	sev := SeverityGood
	title := "Position opened: " + pos.Ticker
	if pos.Simulated {
		sev = SeverityInfo
		title = "Simulated position: " + pos.Ticker
	}
	n.post(Message{
		Severity: sev,
		Title:    title,
		Fields: []Field{
			{Title: "Side", Value: string(pos.Side), Short: true},
			{Title: "Size", Value: fmt.Sprintf("%d", pos.Size), Short: true},
			{Title: "Entry", Value: fmt.Sprintf("%.2f", pos.EntryPrice), Short: true},
			{Title: "Strategy", Value: pos.Strategy, Short: true},
			{Title: "Order", Value: pos.OrderID, Short: true},
		},
	})
}

// PositionClosed announces settlement with realized P&L.
func (n *Notifier) PositionClosed(pos ledger.Position) {
	sev := SeverityGood
	pnl := decimal.Zero
	if pos.RealizedPnL != nil {
		pnl = *pos.RealizedPnL
	}
	if pnl.IsNegative() {
		sev = SeverityWarn
	}
	n.post(Message{
		Severity: sev,
		Title:    "Position closed: " + pos.Ticker,
		Fields: []Field{
			{Title: "Outcome", Value: string(pos.SettlementOutcome), Short: true},
			{Title: "P&L", Value: "$" + pnl.StringFixed(2), Short: true},
			{Title: "Strategy", Value: pos.Strategy, Short: true},
		},
	})
}

// LedgerRecovery flags that the position snapshot could not be read
// cleanly at startup. RecoveryEmpty is the high-severity case: state
// was lost and reconciliation must rebuild it.
func (n *Notifier) LedgerRecovery(rec ledger.Recovery) {
	switch rec {
	case ledger.RecoveryFromBackup:
		n.post(Message{
			Severity: SeverityWarn,
			Title:    "Ledger recovered from backup",
			Text:     "Primary snapshot was unreadable. Positions loaded from the backup copy.",
		})
	case ledger.RecoveryEmpty:
		n.post(Message{
			Severity: SeverityCritical,
			Title:    "Ledger state lost",
			Text:     "Both snapshot and backup were unreadable. Starting empty; exchange reconciliation will adopt live positions.",
		})
	}
}

// Error flags a component failure.
func (n *Notifier) Error(component, message string) {
	n.post(Message{
		Severity: SeverityCritical,
		Title:    "Error in " + component,
		Text:     message,
	})
}

// DailySummary reports per-strategy performance for the day.
func (n *Notifier) DailySummary(report perf.Report) {
	total := report.Totals(false)
	sev := SeverityGood
	if total.IsNegative() {
		sev = SeverityWarn
	}
	fields := []Field{
		{Title: "Net P&L", Value: "$" + total.StringFixed(2), Short: true},
	}
	for _, s := range report.Strategies {
		if s.Simulated {
			continue
		}
		fields = append(fields, Field{
			Title: s.Strategy,
			Value: fmt.Sprintf("%d closed, $%s", s.Closed, s.TotalPnL.StringFixed(2)),
			Short: true,
		})
	}
	n.post(Message{
		Severity: sev,
		Title:    "Daily summary",
		Fields:   fields,
	})
}
