// Package ledger is the durable record of opened and closed positions,
// simulated and real. Every mutation is persisted synchronously with an
// atomic write before the call returns; a crash at any point leaves either
// the previous snapshot or the new one, never a torn file.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/brendanplayford/edgescan/pkg/ev"
	"github.com/brendanplayford/edgescan/pkg/risk"
	"github.com/brendanplayford/edgescan/pkg/venue"
)

const (
	snapshotFile = "positions.json"
	backupSuffix = ".bak"
)

// ErrPositionNotFound is returned for lookups of unknown position ids.
var ErrPositionNotFound = errors.New("ledger: position not found")

// ErrDuplicatePosition is returned when a live position already exists for
// the same (ticker, strategy) pair and scaling in is not enabled.
var ErrDuplicatePosition = errors.New("ledger: live position already exists for ticker/strategy")

// IOError wraps a persistence failure. It is fatal to the triggering
// operation and must never be swallowed.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string { return fmt.Sprintf("ledger: %s: %v", e.Op, e.Err) }
func (e *IOError) Unwrap() error { return e.Err }

// Recovery describes what Open had to do to produce a usable snapshot.
type Recovery int

const (
	RecoveryNone       Recovery = iota // primary loaded cleanly
	RecoveryFromBackup                 // primary corrupt, backup loaded
	RecoveryEmpty                      // primary and backup unreadable, started empty
)

// Config controls ledger behavior.
type Config struct {
	// AllowScalingIn permits multiple live positions per (ticker, strategy).
	AllowScalingIn bool
	// InitialBankroll seeds the risk states on first run.
	InitialBankroll decimal.Decimal
}

// snapshotDoc is the on-disk layout of one ledger snapshot.
type snapshotDoc struct {
	Positions  map[string]Position   `json:"positions"`
	RiskStates map[string]risk.State `json:"risk_states"`
}

// Ledger owns the position snapshot and the append-only trade history. All
// mutations are serialized behind one mutex: a single-writer discipline so two
// scan cycles can never race the duplicate check.
type Ledger struct {
	dir     string
	path    string
	bakPath string
	cfg     Config
	hist    *History
	log     zerolog.Logger

	mu         sync.Mutex
	positions  map[string]Position
	riskStates map[string]risk.State
	recovery   Recovery
}

// Open loads (or creates) the ledger in dataDir. A corrupted primary snapshot
// falls back to the retained backup; if both are unreadable the ledger starts
// empty and reports the data loss through the Recovery result so callers can
// surface it. hist may be nil to skip audit recording.
func Open(dataDir string, hist *History, cfg Config, logger zerolog.Logger) (*Ledger, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, &IOError{Op: "create data dir", Err: err}
	}

	l := &Ledger{
		dir:        dataDir,
		path:       filepath.Join(dataDir, snapshotFile),
		bakPath:    filepath.Join(dataDir, snapshotFile+backupSuffix),
		cfg:        cfg,
		hist:       hist,
		log:        logger.With().Str("component", "ledger").Logger(),
		positions:  make(map[string]Position),
		riskStates: make(map[string]risk.State),
	}

	if err := l.load(); err != nil {
		return nil, err
	}

	for _, key := range []string{riskKeyReal, riskKeySimulated} {
		if _, ok := l.riskStates[key]; !ok {
			bankroll := cfg.InitialBankroll
			if bankroll.IsZero() {
				bankroll = decimal.NewFromInt(100)
			}
			l.riskStates[key] = risk.NewState(bankroll)
		}
	}

	return l, nil
}

func (l *Ledger) load() error {
	doc, err := readSnapshot(l.path)
	if err == nil {
		l.apply(doc)
		l.log.Info().Int("positions", len(l.positions)).Msg("loaded ledger snapshot")
		return nil
	}
	if os.IsNotExist(err) {
		// A backup without a primary means a snapshot existed before; treat
		// it as recoverable state, not a fresh start.
		if bakDoc, bakErr := readSnapshot(l.bakPath); bakErr == nil {
			l.apply(bakDoc)
			l.recovery = RecoveryFromBackup
			l.log.Warn().Int("positions", len(l.positions)).
				Msg("primary snapshot missing, recovered ledger from backup")
			return nil
		}
		l.log.Info().Str("path", l.path).Msg("no ledger snapshot, starting fresh")
		return nil
	}

	l.log.Error().Err(err).Str("path", l.path).Msg("primary snapshot unreadable, trying backup")

	bakDoc, bakErr := readSnapshot(l.bakPath)
	if bakErr == nil {
		l.apply(bakDoc)
		l.recovery = RecoveryFromBackup
		l.log.Warn().Int("positions", len(l.positions)).Msg("recovered ledger from backup snapshot")
		return nil
	}

	l.recovery = RecoveryEmpty
	l.log.Error().AnErr("primary", err).AnErr("backup", bakErr).
		Msg("ledger snapshot and backup both unreadable, starting empty: possible data loss")
	return nil
}

func (l *Ledger) apply(doc snapshotDoc) {
	if doc.Positions != nil {
		l.positions = doc.Positions
	}
	if doc.RiskStates != nil {
		l.riskStates = doc.RiskStates
	}
}

func readSnapshot(path string) (snapshotDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return snapshotDoc{}, err
	}
	var doc snapshotDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return snapshotDoc{}, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return doc, nil
}

// RecoveryState reports what Open had to do at startup.
func (l *Ledger) RecoveryState() Recovery {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recovery
}

// persistLocked writes the full snapshot atomically: marshal, write to a temp
// file, retain the previous snapshot as backup, then rename into place.
// Callers hold l.mu and must roll back in-memory state when this fails.
func (l *Ledger) persistLocked() error {
	doc := snapshotDoc{Positions: l.positions, RiskStates: l.riskStates}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return &IOError{Op: "marshal snapshot", Err: err}
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &IOError{Op: "write snapshot temp", Err: err}
	}

	// Copy rather than rename: the primary must exist at every instant, so a
	// crash anywhere in this sequence leaves either the old or new snapshot
	// in place, never neither.
	if prev, err := os.ReadFile(l.path); err == nil {
		if err := os.WriteFile(l.bakPath, prev, 0o644); err != nil {
			os.Remove(tmp)
			return &IOError{Op: "rotate snapshot backup", Err: err}
		}
	} else if !os.IsNotExist(err) {
		os.Remove(tmp)
		return &IOError{Op: "read previous snapshot", Err: err}
	}

	if err := os.Rename(tmp, l.path); err != nil {
		return &IOError{Op: "swap snapshot", Err: err}
	}
	return nil
}

// OpenPosition records a new pending position for an accepted opportunity and
// persists it before returning. Write-before-act: the caller only talks to
// the execution adapter after this succeeds, so a crash in between leaves a
// recoverable pending record instead of a silently lost trade.
func (l *Ledger) OpenPosition(o ev.Opportunity, strategy string, size int, simulated bool) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.cfg.AllowScalingIn {
		for _, p := range l.positions {
			if p.Ticker == o.Ticker && p.Strategy == strategy && p.Simulated == simulated && p.IsLive() {
				return Position{}, fmt.Errorf("%w: %s/%s", ErrDuplicatePosition, o.Ticker, strategy)
			}
		}
	}

	pos := Position{
		ID:                 uuid.NewString(),
		Ticker:             o.Ticker,
		Side:               o.Side,
		Size:               size,
		EntryPrice:         entryPrice(o),
		EntryTime:          time.Now().UTC(),
		Strategy:           strategy,
		Simulated:          simulated,
		Status:             StatusPending,
		MarketTitle:        o.MarketTitle,
		ExpectedSettlement: o.Expiration,
	}

	l.positions[pos.ID] = pos
	if err := l.persistLocked(); err != nil {
		delete(l.positions, pos.ID)
		return Position{}, err
	}

	l.appendHistory("created", pos)
	l.log.Info().Str("id", pos.ID).Str("ticker", pos.Ticker).Str("side", string(pos.Side)).
		Int("size", pos.Size).Float64("entry_price", pos.EntryPrice).
		Bool("simulated", simulated).Str("strategy", strategy).Msg("position opened")
	return pos, nil
}

// entryPrice is what a contract on the taken side costs: the market price for
// YES, its complement for NO.
func entryPrice(o ev.Opportunity) float64 {
	if o.Side == venue.SideYes {
		return o.MarketPrice
	}
	return 1 - o.MarketPrice
}

// ConfirmFill transitions a pending position to open. Simulated positions are
// confirmed synchronously; real ones only after the execution adapter reports
// success.
func (l *Ledger) ConfirmFill(id string, fill venue.FillResult) (Position, error) {
	return l.mutate(id, func(p *Position) error {
		if !canTransition(p.Status, StatusOpen) {
			return &TransitionError{ID: id, From: p.Status, To: StatusOpen}
		}
		p.Status = StatusOpen
		p.OrderID = fill.OrderID
		if fill.Price > 0 {
			p.EntryPrice = fill.Price
		}
		if fill.Count > 0 {
			p.Size = fill.Count
		}
		return nil
	}, "filled")
}

// MarkFailed transitions a position to failed, retaining the reason. Used for
// rejected orders and for live positions the exchange does not know about.
func (l *Ledger) MarkFailed(id, reason string) (Position, error) {
	return l.mutate(id, func(p *Position) error {
		if !canTransition(p.Status, StatusFailed) {
			return &TransitionError{ID: id, From: p.Status, To: StatusFailed}
		}
		p.Status = StatusFailed
		p.FailReason = reason
		return nil
	}, "failed")
}

// ClosePosition settles an open position against the market outcome, computes
// realized P&L, and rolls the matching risk state forward one version.
func (l *Ledger) ClosePosition(id string, outcome venue.Side) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[id]
	if !ok {
		return Position{}, fmt.Errorf("%w: %s", ErrPositionNotFound, id)
	}
	if !canTransition(p.Status, StatusClosed) {
		return Position{}, &TransitionError{ID: id, From: p.Status, To: StatusClosed}
	}

	prev := p
	prevRisk := l.riskStates[riskKey(p.Simulated)]

	pnl := settlementPnL(p, outcome)
	p.Status = StatusClosed
	p.SettlementOutcome = outcome
	p.RealizedPnL = &pnl
	p.ClosedAt = time.Now().UTC()

	l.positions[id] = p
	l.riskStates[riskKey(p.Simulated)] = prevRisk.Settle(pnl)

	if err := l.persistLocked(); err != nil {
		l.positions[id] = prev
		l.riskStates[riskKey(p.Simulated)] = prevRisk
		return Position{}, err
	}

	l.appendHistory("closed", p)
	l.log.Info().Str("id", id).Str("ticker", p.Ticker).Str("outcome", string(outcome)).
		Str("pnl", pnl.String()).Bool("simulated", p.Simulated).Msg("position closed")
	return p, nil
}

// mutate applies fn to a position under the writer lock and persists, rolling
// back on write failure.
func (l *Ledger) mutate(id string, fn func(*Position) error, event string) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[id]
	if !ok {
		return Position{}, fmt.Errorf("%w: %s", ErrPositionNotFound, id)
	}

	prev := p
	if err := fn(&p); err != nil {
		return Position{}, err
	}

	l.positions[id] = p
	if err := l.persistLocked(); err != nil {
		l.positions[id] = prev
		return Position{}, err
	}

	l.appendHistory(event, p)
	l.log.Info().Str("id", id).Str("ticker", p.Ticker).Str("status", string(p.Status)).
		Str("reason", p.FailReason).Msg("position " + event)
	return p, nil
}

func (l *Ledger) appendHistory(event string, p Position) {
	if l.hist == nil {
		return
	}
	if err := l.hist.Append(event, p); err != nil {
		// History is an audit trail, not the source of truth; a failed append
		// must be visible but does not fail the mutation.
		l.log.Error().Err(err).Str("id", p.ID).Str("event", event).Msg("trade history append failed")
	}
}

// Get returns a position by id.
func (l *Ledger) Get(id string) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[id]
	if !ok {
		return Position{}, fmt.Errorf("%w: %s", ErrPositionNotFound, id)
	}
	return p, nil
}

// Positions returns a copy of all positions, sorted by entry time then id.
func (l *Ledger) Positions() []Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryTime.Equal(out[j].EntryTime) {
			return out[i].EntryTime.Before(out[j].EntryTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// LivePositions returns pending and open positions, optionally filtered to
// one trading mode.
func (l *Ledger) LivePositions(simulated bool) []Position {
	var out []Position
	for _, p := range l.Positions() {
		if p.IsLive() && p.Simulated == simulated {
			out = append(out, p)
		}
	}
	return out
}

const (
	riskKeyReal      = "real"
	riskKeySimulated = "simulated"
)

func riskKey(simulated bool) string {
	if simulated {
		return riskKeySimulated
	}
	return riskKeyReal
}

// RiskState returns the current risk-state snapshot for a trading mode.
func (l *Ledger) RiskState(simulated bool) risk.State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.riskStates[riskKey(simulated)]
}
