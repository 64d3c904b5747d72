// Package risk holds the pre-trade checks the scanner runs before committing
// a user's funds, and the volatility-based exit level calculation.
package risk

import (
	"fmt"

	"tradewarden/internal/domain"
	"tradewarden/internal/ports"
	"tradewarden/internal/strategy/indicators"
)

// minNotionalMargin keeps the order size a little above the exchange minimum
// so rounding never drops it below.
const minNotionalMargin = 1.05

// fallbackStopPct stands in for the stop distance when volatility cannot be
// computed from the candle history.
const fallbackStopPct = 0.02

// Manager validates entries against a user's profile and the exchange rules.
// It is stateless; all inputs come from the caller.
type Manager struct {
	atrPeriod int
}

// NewManager creates a risk manager.
func NewManager() *Manager {
	return &Manager{atrPeriod: 14}
}

// FreeSlots returns how many more positions the user may open.
func (m *Manager) FreeSlots(profile *domain.UserTradingProfile, activeCount int) int {
	slots := profile.MaxConcurrentPositions - activeCount
	if slots < 0 {
		return 0
	}
	return slots
}

// CanAfford reports whether the user's free quote balance covers one entry.
func (m *Manager) CanAfford(profile *domain.UserTradingProfile, balance float64) bool {
	return balance >= profile.TradeSizeQuote
}

// ValidateOrderSize checks the user's configured trade size against the
// instrument's minimum order value, with a safety margin. It returns an error
// wrapping ErrBelowMinNotional when the size is too small.
func (m *Manager) ValidateOrderSize(profile *domain.UserTradingProfile, rules *ports.MarketRules) error {
	min := rules.MinNotional * minNotionalMargin
	if profile.TradeSizeQuote < min {
		return fmt.Errorf("trade size %.2f below %s minimum %.2f: %w",
			profile.TradeSizeQuote, rules.Symbol, min, ports.ErrBelowMinNotional)
	}
	return nil
}

// ExitLevels derives the stop and target from recent volatility: the stop
// sits a multiple of ATR below entry, the target a risk-reward multiple of
// that distance above.
func (m *Manager) ExitLevels(klines []*domain.Kline, entryPrice float64, profile *domain.UserTradingProfile) (stopLoss, takeProfit float64) {
	stopDistance := entryPrice * fallbackStopPct
	if atr, err := indicators.ATR(klines, m.atrPeriod); err == nil && atr > 0 {
		stopDistance = atr * profile.ATRStopMultiplier
	}
	stopLoss = entryPrice - stopDistance
	takeProfit = entryPrice + stopDistance*profile.RiskRewardRatio
	return stopLoss, takeProfit
}
