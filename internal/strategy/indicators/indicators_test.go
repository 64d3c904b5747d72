package indicators

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradewarden/internal/domain"
)

// klinesFromCloses builds klines with a small high/low range around each close.
func klinesFromCloses(closes ...float64) []*domain.Kline {
	klines := make([]*domain.Kline, len(closes))
	for i, c := range closes {
		klines[i] = &domain.Kline{
			Open:   c,
			High:   c * 1.005,
			Low:    c * 0.995,
			Close:  c,
			Volume: 1000,
		}
	}
	return klines
}

func TestSMA(t *testing.T) {
	klines := klinesFromCloses(1, 2, 3, 4, 5)

	sma, err := SMA(klines, 5)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, sma, 1e-9)

	sma, err = SMA(klines, 2)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, sma, 1e-9)

	_, err = SMA(klines, 6)
	assert.Error(t, err)
	_, err = SMA(klines, 0)
	assert.Error(t, err)
}

func TestEMA(t *testing.T) {
	// Constant prices: EMA equals the price.
	klines := klinesFromCloses(10, 10, 10, 10, 10, 10)
	ema, err := EMA(klines, 3)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, ema, 1e-9)

	// Rising prices: EMA sits above SMA over the same window.
	klines = klinesFromCloses(1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
	ema, err = EMA(klines, 5)
	require.NoError(t, err)
	sma, err := SMA(klines, 5)
	require.NoError(t, err)
	assert.Greater(t, ema, sma)

	_, err = EMA(klines, 11)
	assert.Error(t, err)
}

func TestRSI(t *testing.T) {
	// Monotonic gains push RSI to 100.
	rsi, err := RSI(klinesFromCloses(1, 2, 3, 4, 5, 6, 7, 8, 9, 10), 5)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, rsi, 1e-9)

	// Monotonic losses push RSI to 0.
	rsi, err = RSI(klinesFromCloses(10, 9, 8, 7, 6, 5, 4, 3, 2, 1), 5)
	require.NoError(t, err)
	assert.InDelta(t, 0.0, rsi, 1e-9)

	// Flat prices are neutral.
	rsi, err = RSI(klinesFromCloses(5, 5, 5, 5, 5, 5), 5)
	require.NoError(t, err)
	assert.InDelta(t, 50.0, rsi, 1e-9)

	_, err = RSI(klinesFromCloses(1, 2, 3), 5)
	assert.Error(t, err)
}

func TestATR(t *testing.T) {
	// Constant candles with fixed range: ATR equals that range.
	klines := make([]*domain.Kline, 20)
	for i := range klines {
		klines[i] = &domain.Kline{Open: 100, High: 102, Low: 98, Close: 100}
	}
	atr, err := ATR(klines, 14)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, atr, 1e-9)

	_, err = ATR(klines[:10], 14)
	assert.Error(t, err)
}

func TestADX(t *testing.T) {
	// A steady uptrend produces a high ADX.
	trending := make([]*domain.Kline, 60)
	price := 100.0
	for i := range trending {
		trending[i] = &domain.Kline{Open: price, High: price + 1.5, Low: price - 0.5, Close: price + 1}
		price += 1
	}
	trendADX, err := ADX(trending, 14)
	require.NoError(t, err)

	// A flat oscillation produces a low ADX.
	flat := make([]*domain.Kline, 60)
	for i := range flat {
		base := 100.0
		if i%2 == 0 {
			base = 100.5
		}
		flat[i] = &domain.Kline{Open: base, High: base + 1, Low: base - 1, Close: base}
	}
	flatADX, err := ADX(flat, 14)
	require.NoError(t, err)

	assert.Greater(t, trendADX, 25.0)
	assert.Less(t, flatADX, trendADX)

	_, err = ADX(trending[:20], 14)
	assert.Error(t, err)
}

func TestMACD(t *testing.T) {
	// Accelerating uptrend: MACD line above zero and above its signal.
	closes := make([]float64, 60)
	price := 100.0
	for i := range closes {
		price *= 1.01
		closes[i] = price
	}
	res, err := MACD(klinesFromCloses(closes...), 12, 26, 9)
	require.NoError(t, err)
	assert.Greater(t, res.MACD, 0.0)
	assert.InDelta(t, res.MACD-res.Signal, res.Histogram, 1e-9)

	_, err = MACD(klinesFromCloses(closes[:20]...), 12, 26, 9)
	assert.Error(t, err)
	_, err = MACD(klinesFromCloses(closes...), 26, 12, 9)
	assert.Error(t, err)
}

func TestBollinger(t *testing.T) {
	// Constant prices collapse the bands onto the middle.
	bands, err := Bollinger(klinesFromCloses(10, 10, 10, 10, 10, 10, 10, 10, 10, 10), 10, 2.0)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, bands.Middle, 1e-9)
	assert.InDelta(t, 10.0, bands.Upper, 1e-9)
	assert.InDelta(t, 10.0, bands.Lower, 1e-9)
	assert.InDelta(t, 0.0, bands.Width, 1e-9)

	// Volatile prices widen the bands.
	bands, err = Bollinger(klinesFromCloses(10, 12, 8, 13, 7, 12, 9, 11, 8, 12), 10, 2.0)
	require.NoError(t, err)
	assert.Greater(t, bands.Upper, bands.Middle)
	assert.Less(t, bands.Lower, bands.Middle)
	assert.Greater(t, bands.Width, 0.0)

	_, err = Bollinger(klinesFromCloses(10, 10), 10, 2.0)
	assert.Error(t, err)
}

func TestVolumeSMA(t *testing.T) {
	klines := klinesFromCloses(1, 2, 3, 4)
	for i, k := range klines {
		k.Volume = float64((i + 1) * 100)
	}
	v, err := VolumeSMA(klines, 4)
	require.NoError(t, err)
	assert.InDelta(t, 250.0, v, 1e-9)
}
