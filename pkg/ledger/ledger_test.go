package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brendanplayford/edgescan/pkg/ev"
	"github.com/brendanplayford/edgescan/pkg/venue"
)

func newTestLedger(t *testing.T, dir string, cfg Config) *Ledger {
	t.Helper()
	l, err := Open(dir, nil, cfg, zerolog.Nop())
	require.NoError(t, err)
	return l
}

func testOpportunity(ticker string, side venue.Side, price float64) ev.Opportunity {
	return ev.Opportunity{
		Ticker:      ticker,
		MarketTitle: "High temp in NYC above 36°F",
		Side:        side,
		ModelProb:   0.8,
		MarketPrice: price,
		Score:       0.3,
	}
}

func TestOpenPositionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := newTestLedger(t, dir, Config{})

	pos, err := l.OpenPosition(testOpportunity("KXHIGHNY-26FEB02-T36", venue.SideYes, 0.40), "weather-ev", 10, true)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, pos.Status)
	assert.True(t, pos.Simulated)
	assert.NotEmpty(t, pos.ID)

	// A fresh load from durable storage reproduces the identical position.
	reloaded := newTestLedger(t, dir, Config{})
	got, err := reloaded.Get(pos.ID)
	require.NoError(t, err)
	assert.Equal(t, pos.ID, got.ID)
	assert.Equal(t, StatusPending, got.Status)
	assert.Equal(t, pos.Ticker, got.Ticker)
	assert.Equal(t, pos.Side, got.Side)
	assert.Equal(t, pos.Size, got.Size)
	assert.Equal(t, pos.EntryPrice, got.EntryPrice)
	assert.True(t, got.EntryTime.Equal(pos.EntryTime))
	assert.Equal(t, RecoveryNone, reloaded.RecoveryState())
}

func TestDryRunLifecycle(t *testing.T) {
	l := newTestLedger(t, t.TempDir(), Config{})

	pos, err := l.OpenPosition(testOpportunity("KXHIGHNY-26FEB02-T36", venue.SideYes, 0.40), "weather-ev", 10, true)
	require.NoError(t, err)

	filled, err := l.ConfirmFill(pos.ID, venue.FillResult{OrderID: "DRY-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, filled.Status)
	assert.Nil(t, filled.RealizedPnL)

	closed, err := l.ClosePosition(pos.ID, venue.SideYes)
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, closed.Status)
	require.NotNil(t, closed.RealizedPnL)
	// 10 contracts, entry 0.40, settled at 1: pnl = 10 * 0.60
	assert.True(t, closed.RealizedPnL.Equal(decimal.NewFromFloat(6.0)), closed.RealizedPnL.String())
}

func TestLosingNoSidePnL(t *testing.T) {
	l := newTestLedger(t, t.TempDir(), Config{})

	// NO side at market price 0.30 costs 0.70 per contract.
	pos, err := l.OpenPosition(testOpportunity("KXHIGHCHI-26FEB02-T20", venue.SideNo, 0.30), "weather-ev", 5, true)
	require.NoError(t, err)
	assert.InDelta(t, 0.70, pos.EntryPrice, 1e-9)

	_, err = l.ConfirmFill(pos.ID, venue.FillResult{OrderID: "DRY-2"})
	require.NoError(t, err)

	closed, err := l.ClosePosition(pos.ID, venue.SideYes) // NO side lost
	require.NoError(t, err)
	assert.True(t, closed.RealizedPnL.Equal(decimal.NewFromFloat(-3.5)), closed.RealizedPnL.String())
}

func TestDuplicatePrevention(t *testing.T) {
	l := newTestLedger(t, t.TempDir(), Config{})
	o := testOpportunity("KXHIGHNY-26FEB02-T36", venue.SideYes, 0.40)

	_, err := l.OpenPosition(o, "weather-ev", 10, true)
	require.NoError(t, err)

	_, err = l.OpenPosition(o, "weather-ev", 10, true)
	assert.ErrorIs(t, err, ErrDuplicatePosition)

	// A different strategy on the same ticker is fine.
	_, err = l.OpenPosition(o, "longshot", 10, true)
	require.NoError(t, err)

	// So is the same strategy in the other trading mode.
	_, err = l.OpenPosition(o, "weather-ev", 10, false)
	require.NoError(t, err)
}

func TestScalingInAllowed(t *testing.T) {
	l := newTestLedger(t, t.TempDir(), Config{AllowScalingIn: true})
	o := testOpportunity("KXHIGHNY-26FEB02-T36", venue.SideYes, 0.40)

	_, err := l.OpenPosition(o, "weather-ev", 10, true)
	require.NoError(t, err)
	_, err = l.OpenPosition(o, "weather-ev", 10, true)
	require.NoError(t, err)
}

func TestIllegalTransitions(t *testing.T) {
	l := newTestLedger(t, t.TempDir(), Config{})

	pos, err := l.OpenPosition(testOpportunity("KXHIGHNY-26FEB02-T36", venue.SideYes, 0.40), "weather-ev", 10, true)
	require.NoError(t, err)

	// pending cannot close directly.
	_, err = l.ClosePosition(pos.ID, venue.SideYes)
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)

	_, err = l.ConfirmFill(pos.ID, venue.FillResult{OrderID: "DRY-1"})
	require.NoError(t, err)

	// open cannot fill again.
	_, err = l.ConfirmFill(pos.ID, venue.FillResult{OrderID: "DRY-1"})
	require.ErrorAs(t, err, &terr)

	_, err = l.ClosePosition(pos.ID, venue.SideNo)
	require.NoError(t, err)

	// closed is terminal.
	_, err = l.MarkFailed(pos.ID, "nope")
	require.ErrorAs(t, err, &terr)
	_, err = l.ClosePosition(pos.ID, venue.SideNo)
	require.ErrorAs(t, err, &terr)
}

func TestMarkFailedLeavesPnLUnset(t *testing.T) {
	l := newTestLedger(t, t.TempDir(), Config{})

	pos, err := l.OpenPosition(testOpportunity("KXHIGHNY-26FEB02-T36", venue.SideYes, 0.40), "weather-ev", 10, false)
	require.NoError(t, err)

	failed, err := l.MarkFailed(pos.ID, "order rejected: insufficient balance")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Nil(t, failed.RealizedPnL)
	assert.Equal(t, "order rejected: insufficient balance", failed.FailReason)
}

func TestRecoveryFromBackup(t *testing.T) {
	dir := t.TempDir()
	l := newTestLedger(t, dir, Config{})

	first, err := l.OpenPosition(testOpportunity("KXHIGHNY-26FEB02-T36", venue.SideYes, 0.40), "weather-ev", 10, true)
	require.NoError(t, err)

	// A second write rotates the first snapshot into the backup.
	_, err = l.ConfirmFill(first.ID, venue.FillResult{OrderID: "DRY-1"})
	require.NoError(t, err)

	primary := filepath.Join(dir, "positions.json")
	require.NoError(t, os.WriteFile(primary, []byte("{garbage"), 0o644))

	recovered := newTestLedger(t, dir, Config{})
	assert.Equal(t, RecoveryFromBackup, recovered.RecoveryState())

	got, err := recovered.Get(first.ID)
	require.NoError(t, err)
	// The backup holds the snapshot prior to the corrupted write.
	assert.Equal(t, StatusPending, got.Status)
}

func TestRecoveryFromBackupWhenPrimaryMissing(t *testing.T) {
	// A crash can leave the backup in place with no primary at all; that
	// state must recover from the backup, never start fresh.
	dir := t.TempDir()
	l := newTestLedger(t, dir, Config{})

	first, err := l.OpenPosition(testOpportunity("KXHIGHNY-26FEB02-T36", venue.SideYes, 0.40), "weather-ev", 10, false)
	require.NoError(t, err)
	_, err = l.ConfirmFill(first.ID, venue.FillResult{OrderID: "ORD-1"})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "positions.json")))

	recovered := newTestLedger(t, dir, Config{})
	assert.Equal(t, RecoveryFromBackup, recovered.RecoveryState())

	got, err := recovered.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
}

func TestRecoveryBothUnreadableStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	l := newTestLedger(t, dir, Config{})
	_, err := l.OpenPosition(testOpportunity("KXHIGHNY-26FEB02-T36", venue.SideYes, 0.40), "weather-ev", 10, true)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "positions.json"), []byte("{garbage"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "positions.json.bak"), []byte("also garbage"), 0o644))

	recovered := newTestLedger(t, dir, Config{})
	assert.Equal(t, RecoveryEmpty, recovered.RecoveryState())
	assert.Empty(t, recovered.Positions())
}

func TestRiskStateVersionsPerMode(t *testing.T) {
	l := newTestLedger(t, t.TempDir(), Config{InitialBankroll: decimal.NewFromInt(100)})

	simBefore := l.RiskState(true)
	realBefore := l.RiskState(false)
	assert.Equal(t, 1, simBefore.Version)
	assert.Equal(t, 1, realBefore.Version)

	pos, err := l.OpenPosition(testOpportunity("KXHIGHNY-26FEB02-T36", venue.SideYes, 0.40), "weather-ev", 10, true)
	require.NoError(t, err)
	_, err = l.ConfirmFill(pos.ID, venue.FillResult{OrderID: "DRY-1"})
	require.NoError(t, err)
	_, err = l.ClosePosition(pos.ID, venue.SideYes)
	require.NoError(t, err)

	// Only the simulated state moved; real sizing never sees simulated results.
	simAfter := l.RiskState(true)
	assert.Equal(t, 2, simAfter.Version)
	assert.True(t, simAfter.Bankroll.GreaterThan(simBefore.Bankroll))
	assert.Equal(t, realBefore, l.RiskState(false))
}

func TestHistoryRecordsEveryEvent(t *testing.T) {
	dir := t.TempDir()
	hist, err := OpenHistory(dir)
	require.NoError(t, err)
	defer hist.Close()

	// OpenHistory takes the data directory and owns the file name.
	_, err = os.Stat(filepath.Join(dir, "history.db"))
	require.NoError(t, err)

	l, err := Open(dir, hist, Config{}, zerolog.Nop())
	require.NoError(t, err)

	pos, err := l.OpenPosition(testOpportunity("KXHIGHNY-26FEB02-T36", venue.SideYes, 0.40), "weather-ev", 10, true)
	require.NoError(t, err)
	_, err = l.ConfirmFill(pos.ID, venue.FillResult{OrderID: "DRY-1"})
	require.NoError(t, err)
	_, err = l.ClosePosition(pos.ID, venue.SideNo)
	require.NoError(t, err)

	events, err := hist.EventsFor(pos.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "created", events[0].Event)
	assert.Equal(t, "filled", events[1].Event)
	assert.Equal(t, "closed", events[2].Event)
}
