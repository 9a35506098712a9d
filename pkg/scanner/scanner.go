// Package scanner runs the scan cycle: list markets, fetch forecasts, model
// probabilities, score expected value, resolve overlapping markets, and hand
// survivors to the position ledger for execution.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/brendanplayford/edgescan/pkg/ev"
	"github.com/brendanplayford/edgescan/pkg/forecast"
	"github.com/brendanplayford/edgescan/pkg/ledger"
	"github.com/brendanplayford/edgescan/pkg/model"
	"github.com/brendanplayford/edgescan/pkg/notify"
	"github.com/brendanplayford/edgescan/pkg/risk"
	"github.com/brendanplayford/edgescan/pkg/venue"
)

const (
	fetchWorkers     = 4
	perCallTimeout   = 20 * time.Second
	dryOrderIDPrefix = "DRY-"
)

// Strategy is one scanning strategy's runtime parameters.
type Strategy struct {
	Name           string
	DryRun         bool
	Series         []string // series roots this strategy trades, e.g. KXHIGH
	MaxPosition    decimal.Decimal
	MinEVThreshold float64
}

// Scanner owns one full scan cycle over the catalog.
type Scanner struct {
	catalog    venue.Catalog
	executor   venue.Executor // nil when every strategy is dry-run
	sources    map[string]forecast.Source
	model      model.Model
	ledger     *ledger.Ledger
	notifier   *notify.Notifier
	strategies []Strategy
	filters    venue.Filters
	groupKey   ev.GroupKeyFunc
	log        zerolog.Logger
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithExecutor enables live order placement.
func WithExecutor(e venue.Executor) Option {
	return func(s *Scanner) { s.executor = e }
}

// WithFilters sets the catalog listing filters.
func WithFilters(f venue.Filters) Option {
	return func(s *Scanner) { s.filters = f }
}

// WithNotifier attaches a notifier for position events.
func WithNotifier(n *notify.Notifier) Option {
	return func(s *Scanner) { s.notifier = n }
}

// WithGroupKey overrides the mutual-exclusivity grouping function.
func WithGroupKey(fn ev.GroupKeyFunc) Option {
	return func(s *Scanner) { s.groupKey = fn }
}

// New creates a scanner. sources maps series roots to forecast sources
// (typically wrapped in a forecast.Cache).
func New(catalog venue.Catalog, sources map[string]forecast.Source, led *ledger.Ledger, strategies []Strategy, logger zerolog.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		catalog:    catalog,
		sources:    sources,
		model:      model.New(),
		ledger:     led,
		strategies: strategies,
		groupKey:   ev.DefaultGroupKey,
		log:        logger.With().Str("component", "scanner").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CycleResult summarizes one scan cycle.
type CycleResult struct {
	Markets       int
	Invalid       int // tickers the parser rejected
	Evaluated     int
	Opportunities int
	Opened        int
	Failed        int
}

// Scan runs one full cycle for every strategy.
func (s *Scanner) Scan(ctx context.Context) (CycleResult, error) {
	var res CycleResult

	markets, err := s.catalog.ListMarkets(ctx, s.filters)
	if err != nil {
		return res, fmt.Errorf("scanner: list markets: %w", err)
	}
	res.Markets = len(markets)

	for _, strat := range s.strategies {
		sr := s.scanStrategy(ctx, strat, markets)
		res.Invalid += sr.Invalid
		res.Evaluated += sr.Evaluated
		res.Opportunities += sr.Opportunities
		res.Opened += sr.Opened
		res.Failed += sr.Failed
	}

	s.log.Info().
		Int("markets", res.Markets).
		Int("invalid", res.Invalid).
		Int("opportunities", res.Opportunities).
		Int("opened", res.Opened).
		Msg("scan cycle complete")
	return res, nil
}

// candidate pairs a market with its parsed condition.
type candidate struct {
	market venue.Market
	cond   venue.Condition
}

func (s *Scanner) scanStrategy(ctx context.Context, strat Strategy, markets []venue.Market) CycleResult {
	var res CycleResult
	log := s.log.With().Str("strategy", strat.Name).Logger()

	wanted := make(map[string]bool, len(strat.Series))
	for _, root := range strat.Series {
		wanted[root] = true
	}

	var cands []candidate
	for _, m := range markets {
		cond, err := venue.ParseTicker(m.Ticker, m.Title)
		if err != nil {
			var perr *venue.ParseError
			if errors.As(err, &perr) {
				res.Invalid++
				log.Debug().Str("ticker", m.Ticker).Str("reason", perr.Reason).Msg("skipping unparseable ticker")
			}
			continue
		}
		if !wanted[cond.Series] {
			continue
		}
		cands = append(cands, candidate{market: m, cond: cond})
	}
	if len(cands) == 0 {
		return res
	}

	forecasts := s.fetchForecasts(ctx, cands)

	state := s.ledger.RiskState(strat.DryRun)
	profile := risk.ProfileFor(state)
	threshold := strat.MinEVThreshold
	if profile.MinEVThreshold > threshold {
		threshold = profile.MinEVThreshold
	}

	var opps []ev.Opportunity
	for _, c := range cands {
		f, ok := forecasts[forecastKey(c.cond)]
		if !ok {
			continue
		}

		p, err := s.model.Probability(c.cond, f)
		if err != nil {
			log.Debug().Err(err).Str("ticker", c.market.Ticker).Msg("probability model rejected market")
			continue
		}
		res.Evaluated++

		eval, err := ev.Evaluate(p, c.market.YesPrice)
		if err != nil {
			continue
		}
		if eval.Score < threshold {
			continue
		}

		opps = append(opps, ev.Opportunity{
			Ticker:        c.market.Ticker,
			MarketTitle:   c.market.Title,
			EventGroupKey: s.groupKey(c.cond),
			Side:          eval.Side,
			ModelProb:     p,
			MarketPrice:   c.market.YesPrice,
			Score:         eval.Score,
			Volume:        c.market.Volume,
			Expiration:    c.market.Expiration,
			Condition:     c.cond,
		})
	}

	survivors := ev.Resolve(opps)
	res.Opportunities = len(survivors)
	log.Info().
		Int("candidates", len(cands)).
		Int("above_threshold", len(opps)).
		Int("survivors", len(survivors)).
		Str("risk_profile", profile.Level).
		Msg("strategy scan")

	for _, opp := range survivors {
		if s.notifier != nil {
			s.notifier.Opportunity(opp)
		}
		opened, err := s.execute(ctx, strat, state, profile, opp)
		if err != nil {
			log.Warn().Err(err).Str("ticker", opp.Ticker).Msg("execution failed")
			res.Failed++
			continue
		}
		if opened {
			res.Opened++
		}
	}
	return res
}

// fetchForecasts retrieves forecasts for every distinct (subject, date) among
// the candidates, a few in flight at a time, each with its own timeout.
func (s *Scanner) fetchForecasts(ctx context.Context, cands []candidate) map[string]forecast.Forecast {
	type request struct {
		key     string
		series  string
		subject string
		date    time.Time
	}

	seen := make(map[string]bool)
	var reqs []request
	for _, c := range cands {
		key := forecastKey(c.cond)
		if seen[key] {
			continue
		}
		seen[key] = true
		reqs = append(reqs, request{key: key, series: c.cond.Series, subject: forecastSubject(c.cond), date: c.cond.Date})
	}

	var (
		mu  sync.Mutex
		out = make(map[string]forecast.Forecast, len(reqs))
		wg  sync.WaitGroup
		sem = make(chan struct{}, fetchWorkers)
	)
	for _, r := range reqs {
		src, ok := s.sources[r.series]
		if !ok {
			s.log.Warn().Str("series", r.series).Msg("no forecast source for series")
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(r request, src forecast.Source) {
			defer wg.Done()
			defer func() { <-sem }()

			callCtx, cancel := context.WithTimeout(ctx, perCallTimeout)
			defer cancel()

			f, err := src.GetForecast(callCtx, r.subject, r.date)
			if err != nil {
				s.log.Warn().Err(err).Str("subject", r.subject).Msg("forecast unavailable")
				return
			}
			mu.Lock()
			out[r.key] = f
			mu.Unlock()
		}(r, src)
	}
	wg.Wait()
	return out
}

// execute records the position first, then places the order. Dry-run skips
// the venue entirely and confirms a synthetic fill.
func (s *Scanner) execute(ctx context.Context, strat Strategy, state risk.State, profile risk.Profile, opp ev.Opportunity) (bool, error) {
	// Sizing and orders work in terms of the taken side: its win probability
	// and its cost per contract.
	winProb := opp.ModelProb
	cost := opp.MarketPrice
	if opp.Side == venue.SideNo {
		winProb = 1 - winProb
		cost = 1 - cost
	}

	size := risk.Size(state, profile, winProb, cost, strat.MaxPosition)
	if size < 1 {
		s.log.Debug().Str("ticker", opp.Ticker).Msg("sizing produced zero contracts")
		return false, nil
	}

	pos, err := s.ledger.OpenPosition(opp, strat.Name, size, strat.DryRun)
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicatePosition) {
			s.log.Debug().Str("ticker", opp.Ticker).Msg("already holding position")
			return false, nil
		}
		return false, err
	}

	if strat.DryRun {
		fill := venue.FillResult{
			OrderID: dryOrderIDPrefix + strconv.FormatInt(time.Now().UnixNano(), 10),
			Price:   cost,
			Count:   size,
		}
		filled, err := s.ledger.ConfirmFill(pos.ID, fill)
		if err != nil {
			return false, err
		}
		if s.notifier != nil {
			s.notifier.PositionOpened(filled)
		}
		return true, nil
	}

	if s.executor == nil {
		_, _ = s.ledger.MarkFailed(pos.ID, "no executor configured")
		return false, errors.New("scanner: live strategy without executor")
	}

	fill, err := s.executor.PlaceOrder(ctx, opp.Ticker, opp.Side, size, cost)
	if err != nil {
		reason := err.Error()
		var rej *venue.OrderRejectedError
		if errors.As(err, &rej) {
			reason = rej.Reason
		}
		if _, ferr := s.ledger.MarkFailed(pos.ID, reason); ferr != nil {
			return false, ferr
		}
		return false, err
	}

	filled, err := s.ledger.ConfirmFill(pos.ID, fill)
	if err != nil {
		return false, err
	}
	if s.notifier != nil {
		s.notifier.PositionOpened(filled)
	}
	return true, nil
}

func forecastKey(c venue.Condition) string {
	return forecastSubject(c) + "|" + c.Date.Format("2006-01-02")
}

// forecastSubject maps a condition to what the forecast source is asked
// about: the station location for weather series, the asset for crypto.
func forecastSubject(c venue.Condition) string {
	switch c.Series {
	case "KXBTC", "KXETH":
		return strings.TrimPrefix(c.Series, "KX")
	default:
		return c.Location
	}
}
