// Package strategy turns market books into order actions: a moving-average directional trader
// and a spread-capturing market maker.
package strategy

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/felixmccuaig/greyhounds-trading/internal/execution"
	"github.com/felixmccuaig/greyhounds-trading/internal/signal"
)

// Strategy defines behaviour shared by strategy implementations used by the bot.
type Strategy interface {
	Name() string
	// CheckMarketBook reports whether the book should be processed. Actions returned here are
	// forced exits for markets that became ineligible.
	CheckMarketBook(book signal.MarketBook) ([]execution.Action, bool)
	ProcessMarketBook(book signal.MarketBook) []execution.Action
	ProcessOrders(updates []execution.OrderUpdate) []execution.Action
}

// Params expresses tunable knobs required by strategy constructors.
type Params struct {
	ShortWindow       int
	LongWindow        int
	Stake             float64
	MaxLiability      float64
	TrailingDistance  float64
	TakeProfitPercent float64
	EntryWindowSecs   int
	OrderTimeoutMs    int

	MinSpreadTicks       int
	PriceAdjustmentTicks int
	QuoteStake           float64
	MinQuoteLeadSecs     int
}

func (p Params) withDefaults() Params {
	if p.ShortWindow <= 0 {
		p.ShortWindow = 10
	}
	if p.LongWindow <= 0 {
		p.LongWindow = 30
	}
	if p.Stake <= 0 {
		p.Stake = 2
	}
	if p.TrailingDistance <= 0 {
		p.TrailingDistance = 0.5
	}
	if p.TakeProfitPercent <= 0 {
		p.TakeProfitPercent = 0.03
	}
	if p.EntryWindowSecs <= 0 {
		p.EntryWindowSecs = 300
	}
	if p.MinSpreadTicks <= 0 {
		p.MinSpreadTicks = 2
	}
	if p.PriceAdjustmentTicks <= 0 {
		p.PriceAdjustmentTicks = 1
	}
	if p.QuoteStake <= 0 {
		p.QuoteStake = 0.1
	}
	if p.MinQuoteLeadSecs <= 0 {
		p.MinQuoteLeadSecs = 30
	}
	return p
}

func (p Params) orderTimeout() time.Duration {
	return time.Duration(p.OrderTimeoutMs) * time.Millisecond
}

// Build returns a strategy implementation matching the configured mode.
func Build(mode string, params Params, log zerolog.Logger) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "market_making", "market_maker", "mm":
		return NewMarketMaker(params, log), nil
	default:
		return NewDirectional(params, log)
	}
}

func tradeable(book signal.MarketBook) bool {
	return book.Meta.MarketType == signal.MarketTypeWin || book.Meta.MarketType == signal.MarketTypePlace
}
