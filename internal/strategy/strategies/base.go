package strategies

import (
	"fmt"

	"tradewarden/internal/domain"
	"tradewarden/internal/ports"
)

// BaseStrategy provides common functionality for entry strategies.
type BaseStrategy struct {
	logger ports.Logger
}

// NewBaseStrategy creates a new base strategy instance.
func NewBaseStrategy(logger ports.Logger) *BaseStrategy {
	return &BaseStrategy{logger: logger}
}

// param reads a strategy parameter, falling back to the default when the user
// did not configure it. Unknown keys in the map are simply never read.
func param(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

// validateSnapshot checks the snapshot carries enough candle history.
func validateSnapshot(snap *ports.MarketSnapshot, minKlines int) error {
	if snap == nil {
		return fmt.Errorf("nil market snapshot")
	}
	if len(snap.Klines) < minKlines {
		return fmt.Errorf("not enough candle history for %s: need %d, got %d", snap.Symbol, minKlines, len(snap.Klines))
	}
	return nil
}

// signal builds an entry signal at the last closing price. Exit levels are
// computed later by the caller from the user's risk settings.
func signal(snap *ports.MarketSnapshot, reason string) *domain.StrategySignal {
	return &domain.StrategySignal{
		Symbol:     snap.Symbol,
		Reason:     reason,
		EntryPrice: snap.Klines[len(snap.Klines)-1].Close,
	}
}
