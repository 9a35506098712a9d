package scanner

import (
	"context"
	"errors"
	"fmt"

	"github.com/brendanplayford/edgescan/pkg/ledger"
	"github.com/brendanplayford/edgescan/pkg/venue"
)

// SweepResult summarizes one settlement sweep.
type SweepResult struct {
	Checked int
	Settled int
}

// Sweep checks every open position's market and closes positions whose
// markets have settled. It covers both real and simulated positions; the
// catalog is the settlement authority for both.
func (s *Scanner) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	for _, simulated := range []bool{false, true} {
		for _, pos := range s.ledger.LivePositions(simulated) {
			if pos.Status != ledger.StatusOpen {
				continue
			}
			res.Checked++

			m, err := s.catalog.GetMarket(ctx, pos.Ticker)
			if err != nil {
				if errors.Is(err, venue.ErrMarketNotFound) {
					// Reconciliation decides what to do with vanished markets.
					continue
				}
				s.log.Warn().Err(err).Str("ticker", pos.Ticker).Msg("sweep: market lookup failed")
				continue
			}
			if m.Status != venue.StatusSettled {
				continue
			}

			closed, err := s.ledger.ClosePosition(pos.ID, m.Result)
			if err != nil {
				return res, fmt.Errorf("scanner: close %s: %w", pos.ID, err)
			}
			res.Settled++
			if s.notifier != nil {
				s.notifier.PositionClosed(closed)
			}
		}
	}

	if res.Settled > 0 {
		s.log.Info().Int("checked", res.Checked).Int("settled", res.Settled).Msg("settlement sweep")
	}
	return res, nil
}

// Reconcile aligns the ledger's real positions with the venue's view. It is
// a no-op when no executor is configured (pure dry-run deployments).
func (s *Scanner) Reconcile(ctx context.Context) (ledger.ReconcileReport, error) {
	if s.executor == nil {
		return ledger.ReconcileReport{}, nil
	}

	external, err := s.executor.ListOpenPositions(ctx)
	if err != nil {
		return ledger.ReconcileReport{}, fmt.Errorf("scanner: list exchange positions: %w", err)
	}

	report, err := s.ledger.Reconcile(ctx, external, s.catalog)
	if err != nil {
		return report, fmt.Errorf("scanner: reconcile: %w", err)
	}
	if report.Changed() {
		s.log.Info().
			Int("matched", report.Matched).
			Int("closed", len(report.Closed)).
			Int("failed", len(report.Failed)).
			Int("adopted", len(report.Adopted)).
			Msg("exchange reconciliation")
	}
	return report, nil
}
