// Command edgescan runs the autonomous opportunity engine: it scans the
// market catalog on an interval, scores expected value against model
// probabilities, and manages positions through the crash-safe ledger.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/brendanplayford/edgescan/internal/config"
	"github.com/brendanplayford/edgescan/pkg/forecast"
	"github.com/brendanplayford/edgescan/pkg/kalshi"
	"github.com/brendanplayford/edgescan/pkg/ledger"
	"github.com/brendanplayford/edgescan/pkg/notify"
	"github.com/brendanplayford/edgescan/pkg/scanner"
	"github.com/brendanplayford/edgescan/pkg/venue"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "path to YAML config")
		once       = flag.Bool("once", false, "run a single scan cycle and exit")
		httpAddr   = flag.String("http", "", "health endpoint listen address, e.g. :8080 (disabled if empty)")
	)
	flag.Parse()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("configuration")
	}
	if cfg.Debug {
		logger = logger.Level(zerolog.DebugLevel)
	} else {
		logger = logger.Level(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *once, *httpAddr); err != nil {
		logger.Fatal().Err(err).Msg("engine exited")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, once bool, httpAddr string) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	hist, err := ledger.OpenHistory(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open trade history: %w", err)
	}
	defer hist.Close()

	led, err := ledger.Open(cfg.DataDir, hist, ledger.Config{
		AllowScalingIn:  cfg.Engine.AllowScalingIn,
		InitialBankroll: cfg.Engine.InitialBankroll,
	}, logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}

	notifier := notify.New(logger,
		notify.NewSlack(cfg.SlackWebhook),
		notify.NewDiscord(cfg.DiscordWebhook),
	)
	notifier.LedgerRecovery(led.RecoveryState())

	var clientOpts []kalshi.Option
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, kalshi.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		clientOpts = append(clientOpts, kalshi.WithAPIKey(cfg.APIKey))
	}
	client := kalshi.New(clientOpts...)

	strategies := make([]scanner.Strategy, 0, len(cfg.EnabledStrategies()))
	names := make([]string, 0, len(strategies))
	allDry := true
	for _, s := range cfg.EnabledStrategies() {
		strategies = append(strategies, scanner.Strategy{
			Name:           s.Name,
			DryRun:         s.DryRun,
			Series:         s.Series,
			MaxPosition:    s.MaxPosition,
			MinEVThreshold: s.MinEVThreshold,
		})
		names = append(names, s.Name)
		if !s.DryRun {
			allDry = false
		}
	}

	sources := map[string]forecast.Source{
		"KXHIGH": forecast.NewCache(forecast.NewNWSSource(15*time.Second), 30*time.Minute),
		"KXLOWT": forecast.NewCache(forecast.NewNWSSource(15*time.Second), 30*time.Minute),
		"KXBTC":  forecast.NewCache(forecast.NewSpotSource(15*time.Second), time.Minute),
		"KXETH":  forecast.NewCache(forecast.NewSpotSource(15*time.Second), time.Minute),
	}

	opts := []scanner.Option{
		scanner.WithNotifier(notifier),
		scanner.WithFilters(venue.Filters{
			MinVolume:       cfg.Engine.MinVolume,
			MaxDaysToExpiry: cfg.Engine.MaxDaysToExpiry,
		}),
	}
	if !allDry {
		opts = append(opts, scanner.WithExecutor(client))
	}
	sc := scanner.New(client, sources, led, strategies, logger, opts...)

	if httpAddr != "" {
		startHealthServer(ctx, httpAddr, logger)
	}

	notifier.Startup(names, allDry)
	defer notifier.Shutdown("engine stopped")

	// Align local state with the exchange before the first cycle.
	if _, err := sc.Reconcile(ctx); err != nil {
		logger.Warn().Err(err).Msg("startup reconciliation failed")
		notifier.Error("reconcile", err.Error())
	}

	cycle := func() {
		if _, err := sc.Scan(ctx); err != nil {
			logger.Error().Err(err).Msg("scan cycle failed")
			notifier.Error("scan", err.Error())
		}
		if _, err := sc.Sweep(ctx); err != nil {
			logger.Error().Err(err).Msg("settlement sweep failed")
			notifier.Error("sweep", err.Error())
		}
	}

	cycle()
	if once {
		return nil
	}

	startPriceWatch(ctx, led, logger)

	logger.Info().
		Dur("interval", cfg.Engine.ScanInterval.Std()).
		Strs("strategies", names).
		Bool("dry_run", allDry).
		Msg("engine running")

	ticker := time.NewTicker(cfg.Engine.ScanInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down")
			return nil
		case <-ticker.C:
			cycle()
		}
	}
}

// startPriceWatch streams ticker updates for currently held positions and
// flags large adverse moves between scan cycles.
func startPriceWatch(ctx context.Context, led *ledger.Ledger, logger zerolog.Logger) {
	var tickers []string
	for _, simulated := range []bool{false, true} {
		for _, p := range led.LivePositions(simulated) {
			tickers = append(tickers, p.Ticker)
		}
	}
	if len(tickers) == 0 {
		return
	}

	feed := kalshi.NewFeed("", tickers, func(u kalshi.PriceUpdate) {
		for _, simulated := range []bool{false, true} {
			for _, p := range led.LivePositions(simulated) {
				if p.Ticker != u.Ticker {
					continue
				}
				current := u.YesPrice
				if p.Side == venue.SideNo {
					current = 1 - current
				}
				if p.EntryPrice-current >= 0.20 {
					logger.Warn().
						Str("ticker", p.Ticker).
						Float64("entry", p.EntryPrice).
						Float64("current", current).
						Msg("position moving against entry")
				}
			}
		}
	}, logger)

	go func() {
		if err := feed.Run(ctx); err != nil {
			logger.Warn().Err(err).Msg("price feed stopped")
		}
	}()
}

func startHealthServer(ctx context.Context, addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info().Str("addr", addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Warn().Err(err).Msg("health server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
}
