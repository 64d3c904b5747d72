package strategies

import (
	"context"

	"tradewarden/internal/domain"
	"tradewarden/internal/ports"
	"tradewarden/internal/strategy/indicators"
)

// SniperPro takes pullback entries inside a strong established trend: ADX
// confirms the trend, RSI has cooled off, and the latest candle resumes the
// move above the long EMA.
type SniperPro struct {
	*BaseStrategy
}

// NewSniperPro creates a new sniper strategy instance.
func NewSniperPro(logger ports.Logger) *SniperPro {
	return &SniperPro{BaseStrategy: NewBaseStrategy(logger)}
}

// Name returns the registry key of the strategy.
func (s *SniperPro) Name() string {
	return "sniper_pro"
}

// Params returns the accepted parameters and their ranges.
func (s *SniperPro) Params() map[string]ports.ParamRange {
	return map[string]ports.ParamRange{
		"adx_min":    {Min: 10, Max: 60},
		"rsi_low":    {Min: 0, Max: 100},
		"rsi_high":   {Min: 0, Max: 100},
		"ema_period": {Min: 2, Max: 200},
	}
}

// Evaluate returns a signal on a qualifying pullback resumption.
func (s *SniperPro) Evaluate(ctx context.Context, snap *ports.MarketSnapshot, params map[string]float64) (*domain.StrategySignal, error) {
	adxMin := param(params, "adx_min", 25)
	rsiLow := param(params, "rsi_low", 40)
	rsiHigh := param(params, "rsi_high", 55)
	emaPeriod := int(param(params, "ema_period", 50))

	if err := validateSnapshot(snap, emaPeriod+10); err != nil {
		return nil, err
	}
	klines := snap.Klines
	last := klines[len(klines)-1]

	adx, err := indicators.ADX(klines, 14)
	if err != nil {
		return nil, err
	}
	if adx < adxMin {
		return nil, nil
	}

	// RSI cooled into the pullback zone rather than running hot.
	rsi, err := indicators.RSI(klines, 14)
	if err != nil {
		return nil, err
	}
	if rsi < rsiLow || rsi > rsiHigh {
		return nil, nil
	}

	ema, err := indicators.EMA(klines, emaPeriod)
	if err != nil {
		return nil, err
	}
	if last.Close <= ema {
		return nil, nil
	}

	// The latest candle resumes the trend.
	if last.Close <= last.Open {
		return nil, nil
	}

	s.logger.Debug(ctx, "Sniper entry conditions met", map[string]interface{}{
		"symbol": snap.Symbol, "price": last.Close,
		"adx": adx, "rsi": rsi, "ema": ema,
	})
	return signal(snap, s.Name()), nil
}
