package indicators

import (
	"fmt"
	"math"

	"tradewarden/internal/domain"
)

// ATR computes the Average True Range using Wilder's smoothing method.
func ATR(klines []*domain.Kline, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("invalid ATR period %d", period)
	}
	if len(klines) < period+1 {
		return 0, fmt.Errorf("not enough data points for ATR calculation: need %d, got %d", period+1, len(klines))
	}

	trueRanges := trueRanges(klines)

	// Seed with the simple average of the first 'period' true ranges.
	atr := 0.0
	for i := 0; i < period; i++ {
		atr += trueRanges[i]
	}
	atr /= float64(period)

	for i := period; i < len(trueRanges); i++ {
		atr = (atr*float64(period-1) + trueRanges[i]) / float64(period)
	}
	return atr, nil
}

// trueRanges returns the true range series for the klines. The first entry is
// the plain high-low range since there is no previous close.
func trueRanges(klines []*domain.Kline) []float64 {
	trs := make([]float64, len(klines))
	trs[0] = klines[0].High - klines[0].Low
	for i := 1; i < len(klines); i++ {
		high := klines[i].High
		low := klines[i].Low
		prevClose := klines[i-1].Close

		tr1 := high - low
		tr2 := math.Abs(high - prevClose)
		tr3 := math.Abs(low - prevClose)
		trs[i] = math.Max(tr1, math.Max(tr2, tr3))
	}
	return trs
}
