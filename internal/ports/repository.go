package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tradewarden/internal/domain"
)

// TradeRepository defines the durable store operations for trades. The store
// is the single source of truth: all cross-component coordination is mediated
// by status-field transitions here, not by in-process locks.
type TradeRepository interface {
	// Create saves a new trade and returns its assigned ID. It returns
	// ErrDuplicateEntry if the user already has an active trade for the
	// same symbol.
	Create(ctx context.Context, trade *domain.Trade) (int64, error)

	// FindByID retrieves a trade by ID. Returns nil, nil if not found.
	FindByID(ctx context.Context, id int64) (*domain.Trade, error)

	// FindOpenForUsers retrieves all active trades belonging to the given
	// users, for building the symbol index.
	FindOpenForUsers(ctx context.Context, userIDs []uuid.UUID) ([]*domain.Trade, error)

	// FindFlaggedForClosure retrieves every trade in a closing_* status.
	FindFlaggedForClosure(ctx context.Context) ([]*domain.Trade, error)

	// TransitionStatus moves a trade from one status to another, conditioned
	// on the current status to prevent lost updates. It reports whether the
	// transition was applied, and rejects pairs outside the state machine
	// with ErrInvalidTransition.
	TransitionStatus(ctx context.Context, id int64, from, to domain.TradeStatus) (bool, error)

	// ClaimForClosure atomically claims a flagged trade for this supervisor
	// pass. Only one concurrent caller can win; claims older than staleBefore
	// are considered abandoned and may be re-won.
	ClaimForClosure(ctx context.Context, id int64, status domain.TradeStatus, staleBefore time.Time) (bool, error)

	// RecordClose finalises a trade: status closed, exit price, realised
	// PnL and close reason, conditioned on the trade still being in the
	// given status. It reports whether the close was applied.
	RecordClose(ctx context.Context, id int64, from domain.TradeStatus, exitPrice, pnl float64, reason domain.CloseReason) (bool, error)

	// UpdateHighestPrice raises highest_price_seen; it never lowers it, so
	// re-processing the same tick is idempotent.
	UpdateHighestPrice(ctx context.Context, id int64, price float64) error

	// ActivateTrailing marks the trailing stop active and raises the stop
	// loss, only if the new stop is above the current one.
	ActivateTrailing(ctx context.Context, id int64, newStop float64) (bool, error)

	// RaiseStopLoss ratchets the stop loss up; lower values are ignored.
	RaiseStopLoss(ctx context.Context, id int64, newStop float64) (bool, error)

	// RaiseTakeProfit extends the target; lower values are ignored.
	RaiseTakeProfit(ctx context.Context, id int64, newTarget float64) (bool, error)

	// UpdateProfitNotifyPrice records the last price a profit notification
	// was issued at.
	UpdateProfitNotifyPrice(ctx context.Context, id int64, price float64) error

	// CountActiveForUser counts the user's active trades.
	CountActiveForUser(ctx context.Context, userID uuid.UUID) (int, error)

	// HasOpenForSymbol reports whether the user has an active trade for the
	// symbol.
	HasOpenForSymbol(ctx context.Context, userID uuid.UUID, symbol string) (bool, error)
}

// ProfileRepository stores per-user trading configuration.
type ProfileRepository interface {
	// FindEligibleProfiles retrieves the profiles of all users currently
	// allowed to trade (trading enabled, subscription valid).
	FindEligibleProfiles(ctx context.Context) ([]*domain.UserTradingProfile, error)

	// FindProfileByUser retrieves one user's profile. Returns nil, nil if missing.
	FindProfileByUser(ctx context.Context, userID uuid.UUID) (*domain.UserTradingProfile, error)

	// SaveProfile inserts or replaces a profile.
	SaveProfile(ctx context.Context, profile *domain.UserTradingProfile) error
}

// CredentialsRepository stores users' exchange API keys.
type CredentialsRepository interface {
	// FindValidCredentials retrieves the user's credentials if they are
	// marked valid. Returns ErrCredentialsMissing when absent or invalidated.
	FindValidCredentials(ctx context.Context, userID uuid.UUID) (*domain.APICredentials, error)

	// MarkCredentialsInvalid flags the user's credentials after an
	// authentication failure so the engine halts that user until they are
	// refreshed.
	MarkCredentialsInvalid(ctx context.Context, userID uuid.UUID) error

	// SaveCredentials inserts or replaces credentials and marks them valid.
	SaveCredentials(ctx context.Context, creds *domain.APICredentials) error
}

// NotificationRepository records user-visible events for the out-of-scope
// delivery system.
type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
}

// JournalRepository records per-trade analysis for the out-of-scope
// reporting surface.
type JournalRepository interface {
	// CreateJournalEntry writes the entry snapshot when a position opens.
	// Duplicate entries for the same trade are ignored.
	CreateJournalEntry(ctx context.Context, e *domain.JournalEntry) error

	// RecordExitReview fills in the post-exit analysis for a trade.
	RecordExitReview(ctx context.Context, tradeID int64, exitReason string, score int, highestAfter, lowestAfter float64, notes string) error
}
