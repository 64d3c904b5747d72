package ports

import (
	"context"

	"tradewarden/internal/domain"
)

// MarketSnapshot bundles the per-symbol market data a strategy may inspect.
// The scanner fetches it once per symbol and shares it across all strategies
// and users evaluating that symbol in the same pass.
type MarketSnapshot struct {
	Symbol    string
	Klines    []*domain.Kline // oldest first, the newest candle may be unfinished
	Ticker    *domain.Ticker
	OrderBook *domain.OrderBook
}

// ParamRange bounds a tunable strategy parameter.
type ParamRange struct {
	Min float64
	Max float64
}

// Strategy is an entry predicate. Evaluate returns a signal when the symbol
// qualifies, nil when it does not. Strategies are read-only: they never place
// orders or touch the store.
type Strategy interface {
	// Name returns the registry key the strategy is configured under.
	Name() string

	// Params returns the accepted parameter keys and the range each value
	// must fall in. Profile entries with keys outside this set, or values
	// outside their range, are rejected when the profile is resolved.
	Params() map[string]ParamRange

	// Evaluate inspects the snapshot and returns a signal or nil. params
	// come from the user's profile, already validated against Params;
	// missing keys fall back to the strategy's defaults.
	Evaluate(ctx context.Context, snap *MarketSnapshot, params map[string]float64) (*domain.StrategySignal, error)
}
