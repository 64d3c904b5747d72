package indicators

import (
	"fmt"
	"math"

	"tradewarden/internal/domain"
)

// ADX computes the Average Directional Index using Wilder's smoothing. Values
// above roughly 25-30 indicate a trending market.
func ADX(klines []*domain.Kline, period int) (float64, error) {
	if period <= 0 {
		return 0, fmt.Errorf("invalid ADX period %d", period)
	}
	// Needs one period to seed the smoothed DM/TR series and another for the
	// DX average.
	if len(klines) < 2*period+1 {
		return 0, fmt.Errorf("not enough data points for ADX calculation: need %d, got %d", 2*period+1, len(klines))
	}

	n := len(klines) - 1
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	trs := trueRanges(klines)[1:]

	for i := 1; i < len(klines); i++ {
		upMove := klines[i].High - klines[i-1].High
		downMove := klines[i-1].Low - klines[i].Low
		if upMove > downMove && upMove > 0 {
			plusDM[i-1] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i-1] = downMove
		}
	}

	// Wilder-smoothed running sums, seeded with plain sums over the first
	// period.
	var smoothTR, smoothPlusDM, smoothMinusDM float64
	for i := 0; i < period; i++ {
		smoothTR += trs[i]
		smoothPlusDM += plusDM[i]
		smoothMinusDM += minusDM[i]
	}

	dxs := make([]float64, 0, n-period)
	appendDX := func() {
		if smoothTR == 0 {
			dxs = append(dxs, 0)
			return
		}
		plusDI := 100 * smoothPlusDM / smoothTR
		minusDI := 100 * smoothMinusDM / smoothTR
		sum := plusDI + minusDI
		if sum == 0 {
			dxs = append(dxs, 0)
			return
		}
		dxs = append(dxs, 100*math.Abs(plusDI-minusDI)/sum)
	}
	appendDX()

	for i := period; i < n; i++ {
		smoothTR = smoothTR - smoothTR/float64(period) + trs[i]
		smoothPlusDM = smoothPlusDM - smoothPlusDM/float64(period) + plusDM[i]
		smoothMinusDM = smoothMinusDM - smoothMinusDM/float64(period) + minusDM[i]
		appendDX()
	}

	// ADX is the Wilder-smoothed average of DX.
	adx := 0.0
	for i := 0; i < period; i++ {
		adx += dxs[i]
	}
	adx /= float64(period)
	for i := period; i < len(dxs); i++ {
		adx = (adx*float64(period-1) + dxs[i]) / float64(period)
	}
	return adx, nil
}
