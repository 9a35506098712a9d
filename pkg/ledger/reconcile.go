package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/brendanplayford/edgescan/pkg/venue"
)

// reasonNotOnExchange is recorded on local positions the exchange denies
// knowing about.
const reasonNotOnExchange = "not found on exchange"

// OutOfBandStrategy names positions adopted from the exchange that no local
// strategy opened.
const OutOfBandStrategy = "out-of-band"

// ReconcileReport summarizes what a reconciliation pass changed.
type ReconcileReport struct {
	Matched int
	Closed  []Position // local positions closed from settled markets
	Failed  []Position // local positions the exchange does not know
	Adopted []Position // exchange positions with no local record
}

// Changed reports whether the pass mutated the ledger.
func (r ReconcileReport) Changed() bool {
	return len(r.Closed)+len(r.Failed)+len(r.Adopted) > 0
}

// Reconcile aligns the ledger's real live positions with the authoritative
// list from the execution adapter. Local live positions absent from the
// exchange are re-queried against the catalog: settled markets close them
// with the settled outcome, anything else marks them failed. External
// positions with no local record are adopted as out-of-band open positions
// flagged for manual review. Running the same snapshot twice is a no-op the
// second time.
func (l *Ledger) Reconcile(ctx context.Context, external []venue.ExternalPosition, catalog venue.Catalog) (ReconcileReport, error) {
	var report ReconcileReport

	extIdx := make(map[string]venue.ExternalPosition, len(external))
	for _, e := range external {
		extIdx[e.Ticker+"|"+string(e.Side)] = e
	}

	local := l.LivePositions(false)
	localIdx := make(map[string]bool, len(local))
	for _, p := range local {
		localIdx[p.Ticker+"|"+string(p.Side)] = true
	}

	for _, p := range local {
		if _, ok := extIdx[p.Ticker+"|"+string(p.Side)]; ok {
			report.Matched++
			continue
		}

		// Confirm absence before acting: the mismatch may just be catalog lag.
		market, err := catalog.GetMarket(ctx, p.Ticker)
		switch {
		case err == nil && market.Status == venue.StatusSettled && market.Result != "":
			closed, cerr := l.ClosePosition(p.ID, market.Result)
			if cerr != nil {
				return report, cerr
			}
			report.Closed = append(report.Closed, closed)
		case err == nil || errors.Is(err, venue.ErrMarketNotFound):
			failed, ferr := l.MarkFailed(p.ID, reasonNotOnExchange)
			if ferr != nil {
				return report, ferr
			}
			report.Failed = append(report.Failed, failed)
		default:
			// Transient catalog error: leave the position alone this pass
			// rather than inferring anything from missing data.
			l.log.Warn().Err(err).Str("id", p.ID).Str("ticker", p.Ticker).
				Msg("reconcile: market re-query failed, deferring")
		}
	}

	for _, e := range external {
		if localIdx[e.Ticker+"|"+string(e.Side)] {
			continue
		}
		adopted, err := l.adopt(e)
		if err != nil {
			return report, err
		}
		report.Adopted = append(report.Adopted, adopted)
	}

	if report.Changed() {
		l.log.Info().Int("matched", report.Matched).Int("closed", len(report.Closed)).
			Int("failed", len(report.Failed)).Int("adopted", len(report.Adopted)).
			Msg("reconciliation applied changes")
	}
	return report, nil
}

// adopt records an exchange position the ledger has no record of. Real
// capital exposure is never dropped: it enters as open, flagged for review.
func (l *Ledger) adopt(e venue.ExternalPosition) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := Position{
		ID:          uuid.NewString(),
		Ticker:      e.Ticker,
		Side:        e.Side,
		Size:        e.Count,
		EntryPrice:  e.AvgPrice,
		EntryTime:   time.Now().UTC(),
		Strategy:    OutOfBandStrategy,
		Simulated:   false,
		Status:      StatusOpen,
		MarketTitle: e.MarketTitle,
		OutOfBand:   true,
	}

	l.positions[pos.ID] = pos
	if err := l.persistLocked(); err != nil {
		delete(l.positions, pos.ID)
		return Position{}, err
	}

	l.appendHistory("adopted", pos)
	l.log.Warn().Str("id", pos.ID).Str("ticker", pos.Ticker).Str("side", string(pos.Side)).
		Int("size", pos.Size).Msg("adopted out-of-band exchange position, manual review needed")
	return pos, nil
}
