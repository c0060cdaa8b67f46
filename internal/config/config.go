// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string
	Env         string
	MetricsAddr string
	LogLevel    string
}

// Feed selects where market books come from.
type Feed struct {
	Provider   string   `yaml:"provider"` // stub|replay|stream
	Markets    []string `yaml:"markets"`
	StreamURL  string   `yaml:"stream_url"`
	IntervalMs int      `yaml:"interval_ms"`
}

// Risk encodes guard-rails for how much liability the executor may take on.
type Risk struct {
	MaxOrderExposure     float64 `yaml:"max_order_exposure"`
	MaxSelectionExposure float64 `yaml:"max_selection_exposure"`
}

// StrategyParams groups tunable knobs for a strategy implementation. Its fields mirror
// strategy.Params so one converts directly into the other.
type StrategyParams struct {
	ShortWindow       int     `yaml:"short_window"`
	LongWindow        int     `yaml:"long_window"`
	Stake             float64 `yaml:"stake"`
	MaxLiability      float64 `yaml:"max_liability"`
	TrailingDistance  float64 `yaml:"trailing_distance"`
	TakeProfitPercent float64 `yaml:"take_profit_percent"`
	EntryWindowSecs   int     `yaml:"entry_window_secs"`
	OrderTimeoutMs    int     `yaml:"order_timeout_ms"`

	MinSpreadTicks       int     `yaml:"min_spread_ticks"`
	PriceAdjustmentTicks int     `yaml:"price_adjustment_ticks"`
	QuoteStake           float64 `yaml:"quote_stake"`
	MinQuoteLeadSecs     int     `yaml:"min_quote_lead_secs"`
}

// Strategy specifies which strategy is active along with the parameter bundle.
type Strategy struct {
	Mode   string
	Params StrategyParams
}

// Paper captures the simulated venue: bankroll, blotter output, and update buffering.
type Paper struct {
	StartingBalance float64 `yaml:"starting_balance"`
	BlotterPath     string  `yaml:"blotter_path"`
	UpdateBuffer    int     `yaml:"update_buffer"`
}

// Store points at the SQLite book archive used for recording and replay.
type Store struct {
	Path   string `yaml:"path"`
	Record bool   `yaml:"record"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Feed     Feed     `yaml:"feed"`
	Risk     Risk     `yaml:"risk"`
	Strategy Strategy `yaml:"strategy"`
	Paper    Paper    `yaml:"paper"`
	Store    Store    `yaml:"store"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyEnv overlays GREYHOUNDS_* variables onto cfg. The given dotenv files are loaded first on a
// best-effort basis; variables already set in the environment win over the files.
func ApplyEnv(cfg *Config, dotenv ...string) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	_ = godotenv.Load(dotenv...) // best-effort

	setString(&cfg.App.LogLevel, "GREYHOUNDS_LOG_LEVEL")
	setString(&cfg.App.MetricsAddr, "GREYHOUNDS_METRICS_ADDR")
	setString(&cfg.Feed.Provider, "GREYHOUNDS_FEED_PROVIDER")
	setString(&cfg.Feed.StreamURL, "GREYHOUNDS_STREAM_URL")
	setString(&cfg.Strategy.Mode, "GREYHOUNDS_STRATEGY_MODE")
	setString(&cfg.Store.Path, "GREYHOUNDS_STORE_PATH")
	setString(&cfg.Paper.BlotterPath, "GREYHOUNDS_BLOTTER_PATH")
	if v, ok := os.LookupEnv("GREYHOUNDS_MARKETS"); ok {
		cfg.Feed.Markets = splitList(v)
	}
	if v, ok := os.LookupEnv("GREYHOUNDS_STARTING_BALANCE"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("GREYHOUNDS_STARTING_BALANCE: %w", err)
		}
		cfg.Paper.StartingBalance = f
	}
	return nil
}

// Validate reports settings that would prevent the engine from starting.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Feed.Provider) {
	case "", "stub":
	case "replay":
		if c.Store.Path == "" {
			return fmt.Errorf("replay feed requires store.path")
		}
	case "stream":
		if c.Feed.StreamURL == "" {
			return fmt.Errorf("stream feed requires feed.stream_url")
		}
	default:
		return fmt.Errorf("unknown feed provider %q", c.Feed.Provider)
	}
	p := c.Strategy.Params
	if p.ShortWindow > 0 && p.LongWindow > 0 && p.ShortWindow > p.LongWindow {
		return fmt.Errorf("short window %d exceeds long window %d", p.ShortWindow, p.LongWindow)
	}
	if c.Risk.MaxOrderExposure < 0 || c.Risk.MaxSelectionExposure < 0 {
		return fmt.Errorf("risk limits must not be negative")
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
