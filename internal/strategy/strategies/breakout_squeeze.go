package strategies

import (
	"context"

	"tradewarden/internal/domain"
	"tradewarden/internal/ports"
	"tradewarden/internal/strategy/indicators"
)

// BreakoutSqueeze waits for a Bollinger band volatility squeeze and enters on
// the candle that escapes above the upper band with expanding volume.
type BreakoutSqueeze struct {
	*BaseStrategy
}

// NewBreakoutSqueeze creates a new breakout squeeze strategy instance.
func NewBreakoutSqueeze(logger ports.Logger) *BreakoutSqueeze {
	return &BreakoutSqueeze{BaseStrategy: NewBaseStrategy(logger)}
}

// Name returns the registry key of the strategy.
func (s *BreakoutSqueeze) Name() string {
	return "breakout_squeeze"
}

// Params returns the accepted parameters and their ranges.
func (s *BreakoutSqueeze) Params() map[string]ports.ParamRange {
	return map[string]ports.ParamRange{
		"bb_period":     {Min: 5, Max: 100},
		"bb_stddev":     {Min: 1, Max: 4},
		"squeeze_width": {Min: 0.005, Max: 0.2},
		"volume_mult":   {Min: 1, Max: 10},
	}
}

// Evaluate returns a signal when a squeeze resolves upward.
func (s *BreakoutSqueeze) Evaluate(ctx context.Context, snap *ports.MarketSnapshot, params map[string]float64) (*domain.StrategySignal, error) {
	period := int(param(params, "bb_period", 20))
	stdDevMult := param(params, "bb_stddev", 2.0)
	squeezeWidth := param(params, "squeeze_width", 0.04)
	volumeMult := param(params, "volume_mult", 1.3)

	if err := validateSnapshot(snap, period+5); err != nil {
		return nil, err
	}
	klines := snap.Klines
	last := klines[len(klines)-1]

	// The squeeze is measured before the breakout candle.
	squeezed, err := indicators.Bollinger(klines[:len(klines)-1], period, stdDevMult)
	if err != nil {
		return nil, err
	}
	if squeezed.Width >= squeezeWidth {
		return nil, nil
	}

	// Breakout: the latest close escapes the pre-squeeze upper band.
	if last.Close <= squeezed.Upper {
		return nil, nil
	}

	avgVolume, err := indicators.VolumeSMA(klines[:len(klines)-1], period)
	if err != nil {
		return nil, err
	}
	if avgVolume <= 0 || last.Volume < avgVolume*volumeMult {
		return nil, nil
	}

	s.logger.Debug(ctx, "Breakout squeeze conditions met", map[string]interface{}{
		"symbol": snap.Symbol, "price": last.Close,
		"bandWidth": squeezed.Width, "upperBand": squeezed.Upper,
		"volumeRatio": last.Volume / avgVolume,
	})
	return signal(snap, s.Name()), nil
}
