package strategies

import (
	"context"

	"tradewarden/internal/domain"
	"tradewarden/internal/ports"
	"tradewarden/internal/strategy/indicators"
)

// MomentumBreakout enters when price rides above its EMA with healthy RSI,
// a positive MACD histogram and a volume expansion confirming the move.
type MomentumBreakout struct {
	*BaseStrategy
}

// NewMomentumBreakout creates a new momentum breakout strategy instance.
func NewMomentumBreakout(logger ports.Logger) *MomentumBreakout {
	return &MomentumBreakout{BaseStrategy: NewBaseStrategy(logger)}
}

// Name returns the registry key of the strategy.
func (s *MomentumBreakout) Name() string {
	return "momentum_breakout"
}

// Params returns the accepted parameters and their ranges.
func (s *MomentumBreakout) Params() map[string]ports.ParamRange {
	return map[string]ports.ParamRange{
		"ema_period":  {Min: 2, Max: 200},
		"rsi_min":     {Min: 0, Max: 100},
		"rsi_max":     {Min: 0, Max: 100},
		"volume_mult": {Min: 1, Max: 10},
	}
}

// Evaluate inspects the snapshot and returns a signal when all momentum
// conditions line up.
func (s *MomentumBreakout) Evaluate(ctx context.Context, snap *ports.MarketSnapshot, params map[string]float64) (*domain.StrategySignal, error) {
	emaPeriod := int(param(params, "ema_period", 20))
	rsiMin := param(params, "rsi_min", 50)
	rsiMax := param(params, "rsi_max", 70)
	volumeMult := param(params, "volume_mult", 1.5)

	if err := validateSnapshot(snap, 40); err != nil {
		return nil, err
	}
	klines := snap.Klines
	currentPrice := klines[len(klines)-1].Close

	ema, err := indicators.EMA(klines, emaPeriod)
	if err != nil {
		return nil, err
	}
	if currentPrice <= ema {
		return nil, nil
	}

	rsi, err := indicators.RSI(klines, 14)
	if err != nil {
		return nil, err
	}
	if rsi <= rsiMin || rsi > rsiMax {
		return nil, nil
	}

	macd, err := indicators.MACD(klines, 12, 26, 9)
	if err != nil {
		return nil, err
	}
	if macd.Histogram <= 0 {
		return nil, nil
	}

	avgVolume, err := indicators.VolumeSMA(klines[:len(klines)-1], 20)
	if err != nil {
		return nil, err
	}
	lastVolume := klines[len(klines)-1].Volume
	if avgVolume <= 0 || lastVolume < avgVolume*volumeMult {
		return nil, nil
	}

	s.logger.Debug(ctx, "Momentum breakout conditions met", map[string]interface{}{
		"symbol": snap.Symbol, "price": currentPrice, "ema": ema,
		"rsi": rsi, "macdHistogram": macd.Histogram, "volumeRatio": lastVolume / avgVolume,
	})
	return signal(snap, s.Name()), nil
}
