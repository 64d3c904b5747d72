package domain

import (
	"time"

	"github.com/google/uuid"
)

// StrategySignal is the transient output of a strategy predicate: the reason
// label plus the computed entry/target/stop used to create a Trade. It is
// never persisted.
type StrategySignal struct {
	Symbol     string
	Reason     string
	EntryPrice float64
	TakeProfit float64
	StopLoss   float64
}

// NotificationKind classifies user-visible engine events.
type NotificationKind string

const (
	NotifyPositionOpened   NotificationKind = "position_opened"
	NotifyPositionClosed   NotificationKind = "position_closed"
	NotifyTrailingActive   NotificationKind = "trailing_activated"
	NotifyProfitMilestone  NotificationKind = "profit_milestone"
	NotifyScanSkipped      NotificationKind = "scan_skipped"
	NotifyWeaknessWarning  NotificationKind = "weakness_warning"
	NotifyCredentialsError NotificationKind = "credentials_invalid"
)

// Notification is an outbound record for the external delivery system. The
// engine only writes these rows; delivery is out of scope.
type Notification struct {
	ID        int64
	UserID    uuid.UUID
	Kind      NotificationKind
	Message   string
	TradeID   int64 // 0 when not tied to a trade
	CreatedAt time.Time
}

// JournalEntry is the per-trade analysis record for the external reporting
// surface. The entry snapshot is written when a position opens; the exit
// review fields are filled in by the post-exit analysis.
type JournalEntry struct {
	TradeID       int64
	UserID        uuid.UUID
	EntryStrategy string
	EntryRSI      float64
	EntryTrend    float64 // ADX at entry

	ExitReason         string
	ExitQualityScore   int
	HighestPriceAfter  float64
	LowestPriceAfter   float64
	Notes              string
}
