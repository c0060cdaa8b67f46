// Binary backtest replays recorded market books through a strategy on the paper venue and prints
// the settled profit per market and the executed orders per selection.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"

	"github.com/felixmccuaig/greyhounds-trading/internal/config"
	"github.com/felixmccuaig/greyhounds-trading/internal/engine"
	"github.com/felixmccuaig/greyhounds-trading/internal/exchange"
	"github.com/felixmccuaig/greyhounds-trading/internal/execution"
	"github.com/felixmccuaig/greyhounds-trading/internal/paper"
	"github.com/felixmccuaig/greyhounds-trading/internal/risk"
	sig "github.com/felixmccuaig/greyhounds-trading/internal/signal"
	"github.com/felixmccuaig/greyhounds-trading/internal/store"
	"github.com/felixmccuaig/greyhounds-trading/internal/strategy"
	"github.com/felixmccuaig/greyhounds-trading/internal/util"
)

func main() {
	configPath := flag.String("config", "internal/config/config.yaml", "path to the YAML config")
	storePath := flag.String("store", "", "book store to replay (defaults to store.path)")
	markets := flag.String("markets", "", "comma-separated market ids to replay (defaults to all)")
	mode := flag.String("mode", "", "strategy mode override")
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
	// backtests log errors only, the report goes to stdout
	log = util.NewLoggerTo(os.Stderr, "error")

	if *storePath != "" {
		cfg.Store.Path = *storePath
	}
	if *mode != "" {
		cfg.Strategy.Mode = *mode
	}
	if cfg.Store.Path == "" {
		log.Fatal().Msg("no book store configured")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	books, err := store.Open(cfg.Store.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open book store")
	}
	defer books.Close()

	summaries, err := books.Markets(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("list markets")
	}
	var filter []string
	for _, m := range strings.Split(*markets, ",") {
		if m = strings.TrimSpace(m); m != "" {
			filter = append(filter, m)
		}
	}
	fmt.Printf("Processing: %d markets\n", countMarkets(summaries, filter))

	strat, err := strategy.Build(cfg.Strategy.Mode, strategy.Params(cfg.Strategy.Params), log)
	if err != nil {
		log.Fatal().Err(err).Msg("build strategy")
	}
	venue := paper.NewVenue(log, paper.NewAccount(cfg.Paper.StartingBalance), nil,
		paper.WithUpdateBuffer(cfg.Paper.UpdateBuffer))
	exec := execution.NewExecutor(log, venue, risk.Limits(cfg.Risk))
	runner := engine.New(log, strat, exec, venue, engine.WithObserver(venue))

	feed := exchange.NewFeed(exchange.ProviderReplay, filter, log, exchange.WithStore(books))
	stream := make(chan sig.MarketBook, 256)
	go func() {
		defer close(stream)
		if err := feed.Run(ctx, stream); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("replay stopped")
		}
	}()
	if err := runner.Run(ctx, stream); err != nil {
		log.Fatal().Err(err).Msg("backtest interrupted")
	}

	types := make(map[string]string, len(summaries))
	for _, s := range summaries {
		types[s.MarketID] = s.MarketType
	}
	printReport(os.Stdout, venue.Ledger().Report(), types)
}

func countMarkets(summaries []store.MarketSummary, filter []string) int {
	if len(filter) == 0 {
		return len(summaries)
	}
	wanted := make(map[string]bool, len(filter))
	for _, m := range filter {
		wanted[m] = true
	}
	n := 0
	for _, s := range summaries {
		if wanted[s.MarketID] {
			n++
		}
	}
	return n
}

func printReport(w io.Writer, report paper.Report, types map[string]string) {
	for _, market := range report.Markets {
		fmt.Fprintf(w, "Profit: %.2f %s %s\n", market.Profit, market.MarketID, types[market.MarketID])
		for _, sel := range market.SelectionIDs() {
			for _, rec := range market.Selections[sel] {
				fmt.Fprintf(w, "%d %s %s %.2f %.2f %.2f %s\n", rec.InstrumentID, rec.Side,
					rec.Time.Format("2006-01-02T15:04:05.000Z07:00"), rec.Price, rec.Size, rec.Profit, rec.Trigger)
			}
			fmt.Fprintln(w, strings.Repeat("-", 40))
		}
	}
	fmt.Fprintf(w, "Total PNL: %.2f\n", report.Total)
}
