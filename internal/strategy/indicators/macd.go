package indicators

import (
	"fmt"

	"tradewarden/internal/domain"
)

// MACDResult holds the MACD line, its signal line and the histogram.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// MACD computes the Moving Average Convergence Divergence with the given fast,
// slow and signal periods (conventionally 12/26/9).
func MACD(klines []*domain.Kline, fast, slow, signal int) (*MACDResult, error) {
	if fast <= 0 || slow <= 0 || signal <= 0 || fast >= slow {
		return nil, fmt.Errorf("invalid MACD periods fast=%d slow=%d signal=%d", fast, slow, signal)
	}
	if len(klines) < slow+signal {
		return nil, fmt.Errorf("not enough data points for MACD calculation: need %d, got %d", slow+signal, len(klines))
	}

	// Build the MACD line series over the last 'signal' points so the signal
	// line has something to smooth.
	macdSeries := make([]float64, 0, signal)
	for i := len(klines) - signal; i <= len(klines); i++ {
		window := klines[:i]
		if len(window) < slow {
			return nil, fmt.Errorf("not enough data points for MACD window")
		}
		fastEMA, err := EMA(window, fast)
		if err != nil {
			return nil, err
		}
		slowEMA, err := EMA(window, slow)
		if err != nil {
			return nil, err
		}
		macdSeries = append(macdSeries, fastEMA-slowEMA)
	}

	// Signal line: EMA of the MACD series, seeded with its mean.
	multiplier := 2.0 / float64(signal+1)
	sig := 0.0
	for _, v := range macdSeries[:signal] {
		sig += v
	}
	sig /= float64(signal)
	for _, v := range macdSeries[signal:] {
		sig = (v-sig)*multiplier + sig
	}

	macd := macdSeries[len(macdSeries)-1]
	return &MACDResult{
		MACD:      macd,
		Signal:    sig,
		Histogram: macd - sig,
	}, nil
}
