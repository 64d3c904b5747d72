package indicators

import (
	"fmt"
	"math"

	"tradewarden/internal/domain"
)

// BollingerBands holds the three bands plus the relative band width, used to
// detect volatility squeezes.
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
	Width  float64 // (upper - lower) / middle
}

// Bollinger computes Bollinger Bands over the last 'period' closes with the
// given standard deviation multiplier (conventionally 20 and 2.0).
func Bollinger(klines []*domain.Kline, period int, stdDevMult float64) (*BollingerBands, error) {
	if period <= 0 {
		return nil, fmt.Errorf("invalid Bollinger period %d", period)
	}
	if len(klines) < period {
		return nil, fmt.Errorf("not enough data (%d) to calculate Bollinger bands for period %d", len(klines), period)
	}

	middle, err := SMA(klines, period)
	if err != nil {
		return nil, err
	}

	variance := 0.0
	for i := len(klines) - period; i < len(klines); i++ {
		d := klines[i].Close - middle
		variance += d * d
	}
	stdDev := math.Sqrt(variance / float64(period))

	upper := middle + stdDevMult*stdDev
	lower := middle - stdDevMult*stdDev

	width := 0.0
	if middle != 0 {
		width = (upper - lower) / middle
	}
	return &BollingerBands{
		Upper:  upper,
		Middle: middle,
		Lower:  lower,
		Width:  width,
	}, nil
}
