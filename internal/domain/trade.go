package domain

import (
	"time"

	"github.com/google/uuid"
)

// Trade represents one open-then-closed market exposure for a user in one
// symbol. A trade is created by the market scanner, its trailing fields are
// advanced by the price monitor, and its status/exit fields are finalised by
// the closure supervisor.
type Trade struct {
	ID     int64
	UserID uuid.UUID
	Symbol string

	EntryPrice  float64
	Quantity    float64
	TakeProfit  float64
	StopLoss    float64
	ExitPrice   float64
	RealizedPnL float64

	// Trailing state, maintained by the price monitor.
	HighestPriceSeen       float64
	TrailingStopActive     bool
	LastProfitNotifyPrice  float64

	Status      TradeStatus
	OpenedAt    time.Time
	ClosedAt    time.Time
	OpenReason  string // which strategies fired, joined with " + "
	CloseReason CloseReason

	// ClaimedAt marks the trade as being worked on by a closure supervisor.
	// Only one concurrent claimant can win the conditional update that sets it.
	ClaimedAt time.Time
}

// IsActive reports whether the trade is still being monitored for exits.
func (t *Trade) IsActive() bool {
	return t.Status == StatusActive
}

// Notional returns the trade's liquidation value at the given price.
func (t *Trade) Notional(price float64) float64 {
	return t.Quantity * price
}

// PnLAt returns the profit or loss the trade would realise if exited at the
// given price.
func (t *Trade) PnLAt(price float64) float64 {
	return (price - t.EntryPrice) * t.Quantity
}
