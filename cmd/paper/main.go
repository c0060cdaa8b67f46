package main

import (
	"context"
	"errors"
	"flag"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/felixmccuaig/greyhounds-trading/internal/config"
	"github.com/felixmccuaig/greyhounds-trading/internal/engine"
	"github.com/felixmccuaig/greyhounds-trading/internal/exchange"
	"github.com/felixmccuaig/greyhounds-trading/internal/execution"
	"github.com/felixmccuaig/greyhounds-trading/internal/metrics"
	"github.com/felixmccuaig/greyhounds-trading/internal/paper"
	"github.com/felixmccuaig/greyhounds-trading/internal/risk"
	sig "github.com/felixmccuaig/greyhounds-trading/internal/signal"
	"github.com/felixmccuaig/greyhounds-trading/internal/store"
	"github.com/felixmccuaig/greyhounds-trading/internal/strategy"
	"github.com/felixmccuaig/greyhounds-trading/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatalLog := util.NewLogger("info")
		fatalLog.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger("info")
	if err := config.ApplyEnv(cfg); err != nil {
		log.Fatal().Err(err).Msg("apply env")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	log = util.NewLogger(cfg.App.LogLevel).With().Str("app", cfg.App.Name).Logger()

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var books *store.BookStore
	if cfg.Store.Path != "" && (cfg.Store.Record || cfg.Feed.Provider == exchange.ProviderReplay) {
		books, err = store.Open(cfg.Store.Path)
		if err != nil {
			log.Fatal().Err(err).Msg("open book store")
		}
		defer books.Close()
	}

	feed := exchange.NewFeed(cfg.Feed.Provider, cfg.Feed.Markets, log,
		exchange.WithInterval(time.Duration(cfg.Feed.IntervalMs)*time.Millisecond),
		exchange.WithStreamURL(cfg.Feed.StreamURL),
		exchange.WithStore(books),
	)
	stream := make(chan sig.MarketBook, 1024)
	go func() {
		defer close(stream)
		if err := feed.Run(ctx, stream); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("feed stopped")
		}
	}()

	strat, err := strategy.Build(cfg.Strategy.Mode, strategy.Params(cfg.Strategy.Params), log)
	if err != nil {
		log.Fatal().Err(err).Msg("build strategy")
	}

	venueOpts := []paper.Option{paper.WithUpdateBuffer(cfg.Paper.UpdateBuffer)}
	if cfg.Paper.BlotterPath != "" {
		blotter, err := paper.NewJSONLRecorder(cfg.Paper.BlotterPath)
		if err != nil {
			log.Fatal().Err(err).Msg("open blotter")
		}
		defer func() {
			if err := blotter.Close(); err != nil {
				log.Error().Err(err).Msg("close blotter")
			}
		}()
		venueOpts = append(venueOpts, paper.WithRecorder(blotter))
	}
	venue := paper.NewVenue(log, paper.NewAccount(cfg.Paper.StartingBalance), nil, venueOpts...)
	exec := execution.NewExecutor(log, venue, risk.Limits(cfg.Risk))

	runnerOpts := []engine.Option{engine.WithObserver(venue)}
	if cfg.Store.Record && books != nil && cfg.Feed.Provider != exchange.ProviderReplay {
		runnerOpts = append(runnerOpts, engine.WithArchive(books))
	}
	runner := engine.New(log, strat, exec, venue, runnerOpts...)

	log.Info().Str("strategy", strat.Name()).Str("feed", cfg.Feed.Provider).Strs("markets", cfg.Feed.Markets).
		Msg("paper engine started")
	if err := runner.Run(ctx, stream); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("runner stopped")
	}

	logSummary(log, venue)
	log.Info().Msg("shutting down")
}

func logSummary(log zerolog.Logger, venue *paper.Venue) {
	snap := venue.Account().Snapshot()
	report := venue.Ledger().Report()
	log.Info().Float64("balance", snap.Balance).Float64("reserved", snap.Reserved).
		Float64("realized_pnl", snap.RealizedPnL).Int("markets", len(report.Markets)).
		Float64("total", report.Total).Msg("session summary")
}
