package strategies

import (
	"context"

	"tradewarden/internal/domain"
	"tradewarden/internal/ports"
	"tradewarden/internal/strategy/indicators"
)

// SupportRebound buys the bounce off a recent support level: price sits just
// above the lowest low of the lookback window, RSI is washed out, and the
// latest candle closes green.
type SupportRebound struct {
	*BaseStrategy
}

// NewSupportRebound creates a new support rebound strategy instance.
func NewSupportRebound(logger ports.Logger) *SupportRebound {
	return &SupportRebound{BaseStrategy: NewBaseStrategy(logger)}
}

// Name returns the registry key of the strategy.
func (s *SupportRebound) Name() string {
	return "support_rebound"
}

// Params returns the accepted parameters and their ranges.
func (s *SupportRebound) Params() map[string]ports.ParamRange {
	return map[string]ports.ParamRange{
		"lookback":      {Min: 5, Max: 200},
		"proximity_pct": {Min: 0.1, Max: 5},
		"rsi_max":       {Min: 0, Max: 100},
	}
}

// Evaluate returns a signal when price rebounds off support.
func (s *SupportRebound) Evaluate(ctx context.Context, snap *ports.MarketSnapshot, params map[string]float64) (*domain.StrategySignal, error) {
	lookback := int(param(params, "lookback", 30))
	proximityPct := param(params, "proximity_pct", 1.0)
	rsiMax := param(params, "rsi_max", 40)

	if err := validateSnapshot(snap, lookback+2); err != nil {
		return nil, err
	}
	klines := snap.Klines
	last := klines[len(klines)-1]

	// Support: the lowest low of the window, excluding the rebound candle.
	support := klines[len(klines)-1-lookback].Low
	for _, k := range klines[len(klines)-1-lookback : len(klines)-1] {
		if k.Low < support {
			support = k.Low
		}
	}
	if support <= 0 {
		return nil, nil
	}

	// Price must hold just above support, not break through it.
	distancePct := (last.Close - support) / support * 100
	if distancePct < 0 || distancePct > proximityPct {
		return nil, nil
	}

	rsi, err := indicators.RSI(klines, 14)
	if err != nil {
		return nil, err
	}
	if rsi > rsiMax {
		return nil, nil
	}

	// The rebound candle itself closes green.
	if last.Close <= last.Open {
		return nil, nil
	}

	s.logger.Debug(ctx, "Support rebound conditions met", map[string]interface{}{
		"symbol": snap.Symbol, "price": last.Close,
		"support": support, "distancePct": distancePct, "rsi": rsi,
	})
	return signal(snap, s.Name()), nil
}
