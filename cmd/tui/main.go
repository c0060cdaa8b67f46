package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/felixmccuaig/greyhounds-trading/internal/config"
)

const defaultConfigPath = "internal/config/config.yaml"

func main() {
	reader := bufio.NewReader(os.Stdin)

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	for {
		fmt.Println("\n=== Greyhounds Control ===")
		fmt.Println("1) Show configuration summary")
		fmt.Println("2) Edit bankroll and risk knobs")
		fmt.Println("3) Edit strategy settings")
		fmt.Println("4) Edit feed settings")
		fmt.Println("5) Save config")
		fmt.Println("6) Launch paper bot")
		fmt.Println("7) Run backtest over the book store")
		fmt.Println("8) Reload config from disk")
		fmt.Println("0) Exit")
		fmt.Print("Select option: ")

		input, _ := reader.ReadString('\n')
		choice := strings.TrimSpace(input)

		switch choice {
		case "1":
			printSummary(cfg)
		case "2":
			editRisk(reader, cfg)
		case "3":
			editStrategy(reader, cfg)
		case "4":
			editFeed(reader, cfg)
		case "5":
			if err := saveConfig(cfg); err != nil {
				fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
			} else {
				fmt.Println("config saved")
			}
		case "6":
			launch(reader, "paper bot", "./cmd/paper")
		case "7":
			launch(reader, "backtest", "./cmd/backtest")
		case "8":
			reloaded, err := loadConfig()
			if err != nil {
				fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
			} else {
				cfg = reloaded
				fmt.Println("config reloaded")
			}
		case "0":
			return
		default:
			fmt.Println("unknown option")
		}
	}
}

func printSummary(cfg *config.Config) {
	p := cfg.Strategy.Params
	fmt.Println("\n--- Configuration Summary ---")
	fmt.Printf("Feed: %s | markets: %s\n", orDefault(cfg.Feed.Provider, "stub"), strings.Join(cfg.Feed.Markets, ", "))
	fmt.Printf("Starting balance: %.2f\n", cfg.Paper.StartingBalance)
	fmt.Printf("Max order exposure: %.2f\n", cfg.Risk.MaxOrderExposure)
	fmt.Printf("Max selection exposure: %.2f\n", cfg.Risk.MaxSelectionExposure)
	fmt.Printf("Strategy: %s\n", orDefault(cfg.Strategy.Mode, "directional"))
	fmt.Printf("Moving averages: short %d | long %d\n", p.ShortWindow, p.LongWindow)
	fmt.Printf("Stake: %.2f | max liability: %.2f\n", p.Stake, p.MaxLiability)
	fmt.Printf("Trailing distance: %.2f | take profit: %.2f%%\n", p.TrailingDistance, p.TakeProfitPercent*100)
	fmt.Printf("Entry window: %ds | order timeout: %dms\n", p.EntryWindowSecs, p.OrderTimeoutMs)
	fmt.Printf("Quotes: min spread %d ticks | adjust %d ticks | stake %.2f | lead %ds\n",
		p.MinSpreadTicks, p.PriceAdjustmentTicks, p.QuoteStake, p.MinQuoteLeadSecs)
	fmt.Printf("Store: %s (record %v) | blotter: %s\n", cfg.Store.Path, cfg.Store.Record, cfg.Paper.BlotterPath)
}

func editRisk(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Risk / Bankroll ---")
	cfg.Paper.StartingBalance = promptFloat(reader, "Starting balance", cfg.Paper.StartingBalance)
	cfg.Risk.MaxOrderExposure = promptFloat(reader, "Max order exposure", cfg.Risk.MaxOrderExposure)
	cfg.Risk.MaxSelectionExposure = promptFloat(reader, "Max selection exposure", cfg.Risk.MaxSelectionExposure)
}

func editStrategy(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Strategy ---")
	fmt.Printf("Mode (directional|market_making) [%s]: ", orDefault(cfg.Strategy.Mode, "directional"))
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		cfg.Strategy.Mode = strings.TrimSpace(line)
	}
	p := &cfg.Strategy.Params
	p.ShortWindow = promptInt(reader, "Short window", p.ShortWindow)
	p.LongWindow = promptInt(reader, "Long window", p.LongWindow)
	p.Stake = promptFloat(reader, "Stake", p.Stake)
	p.MaxLiability = promptFloat(reader, "Max liability (0 = fixed stake)", p.MaxLiability)
	p.TrailingDistance = promptFloat(reader, "Trailing distance", p.TrailingDistance)
	p.TakeProfitPercent = promptPercent(reader, "Take profit (%)", p.TakeProfitPercent)
	p.EntryWindowSecs = promptInt(reader, "Entry window (s)", p.EntryWindowSecs)
	p.MinSpreadTicks = promptInt(reader, "Min spread (ticks)", p.MinSpreadTicks)
	p.QuoteStake = promptFloat(reader, "Quote stake", p.QuoteStake)
}

func editFeed(reader *bufio.Reader, cfg *config.Config) {
	fmt.Println("\n--- Edit Feed ---")
	fmt.Printf("Provider (stub|replay|stream) [%s]: ", orDefault(cfg.Feed.Provider, "stub"))
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		cfg.Feed.Provider = strings.TrimSpace(line)
	}
	fmt.Printf("Current markets: %s\n", strings.Join(cfg.Feed.Markets, ", "))
	fmt.Print("Enter market ids comma-separated (blank to keep): ")
	if line, _ := reader.ReadString('\n'); strings.TrimSpace(line) != "" {
		cfg.Feed.Markets = nil
		for _, p := range strings.Split(strings.TrimSpace(line), ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				cfg.Feed.Markets = append(cfg.Feed.Markets, trimmed)
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("warning: %v\n", err)
	}
}

func launch(reader *bufio.Reader, name, pkg string) {
	fmt.Printf("Launching %s (Ctrl+C to stop)...\n", name)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", "run", pkg, "-config", locateConfig())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin

	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start %s: %v\n", name, err)
		return
	}

	go func() {
		_ = cmd.Wait()
		cancel()
	}()

	fmt.Printf("\nPress ENTER to stop the %s and return to menu...", name)
	_, _ = reader.ReadString('\n')
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func promptFloat(reader *bufio.Reader, label string, current float64) float64 {
	fmt.Printf("%s [%.2f]: ", label, current)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return current
	}
	val, err := strconv.ParseFloat(line, 64)
	if err != nil {
		fmt.Printf("invalid number, keeping %.2f\n", current)
		return current
	}
	return val
}

func promptInt(reader *bufio.Reader, label string, current int) int {
	return int(promptFloat(reader, label, float64(current)))
}

func promptPercent(reader *bufio.Reader, label string, current float64) float64 {
	pct := promptFloat(reader, label, current*100)
	return pct / 100
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func loadConfig() (*config.Config, error) {
	return config.Load(locateConfig())
}

func saveConfig(cfg *config.Config) error {
	return config.Save(locateConfig(), cfg)
}

func locateConfig() string {
	if filepath.IsAbs(defaultConfigPath) {
		return defaultConfigPath
	}
	return filepath.Clean(defaultConfigPath)
}
