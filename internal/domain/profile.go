package domain

import (
	"time"

	"github.com/google/uuid"
)

// StrategySetting names an enabled strategy and its numeric parameters.
// Parameters are validated against the strategy's schema when the registry
// builds the predicate.
type StrategySetting struct {
	Name   string
	Params map[string]float64
}

// UserTradingProfile is the per-user configuration read by the engine.
// It is written by the out-of-scope settings API and cached with a bounded
// lifetime by the cache synchronizer.
type UserTradingProfile struct {
	UserID                 uuid.UUID
	TradingEnabled         bool
	SubscriptionValidUntil time.Time

	// Sizing and slots.
	TradeSizeQuote         float64 // fixed quote-asset amount per entry
	MaxConcurrentPositions int

	// Exit calculation.
	ATRStopMultiplier float64
	RiskRewardRatio   float64

	// Trailing stop.
	TrailingStopEnabled    bool
	TrailingActivationPct  float64 // price rise over entry that activates the trail
	TrailingCallbackPct    float64 // distance below the peak the stop follows at

	// Profit notifications and advisor triggers.
	ProfitNotifyIncrementPct float64
	GuardianEnabled          bool
	GuardianDrawdownPct      float64 // negative, e.g. -1.5
	AdvisorAutoClose         bool
	PostExitReviewEnabled    bool

	// Scanner filters.
	TopSymbolsByVolume int
	MinQuoteVolume     float64
	AssetBlacklist     []string

	Strategies []StrategySetting
}

// Eligible reports whether the user may trade right now: trading switched on
// and, where a subscription applies, not expired. A zero SubscriptionValidUntil
// means no subscription gating.
func (p *UserTradingProfile) Eligible(now time.Time) bool {
	if !p.TradingEnabled {
		return false
	}
	if !p.SubscriptionValidUntil.IsZero() && now.After(p.SubscriptionValidUntil) {
		return false
	}
	return true
}

// IsBlacklisted reports whether the base asset is excluded by the user.
func (p *UserTradingProfile) IsBlacklisted(baseAsset string) bool {
	for _, a := range p.AssetBlacklist {
		if a == baseAsset {
			return true
		}
	}
	return false
}

// APICredentials holds a user's exchange API keys as stored (already
// decrypted by the credentials repository).
type APICredentials struct {
	UserID    uuid.UUID
	APIKey    string
	SecretKey string
}
