package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these standard errors
// so the engine can branch on error class with errors.Is.
var (
	// General Errors
	ErrUnknown         = errors.New("unknown error occurred")
	ErrInvalidRequest  = errors.New("invalid request parameters or format")
	ErrNotFound        = errors.New("resource not found")
	ErrTimeout         = errors.New("operation timed out")
	ErrContextCanceled = errors.New("operation canceled via context")

	// Exchange Specific Errors (transient unless noted)
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderNotFound        = errors.New("order not found on the exchange")
	ErrOrderPlacementFailed = errors.New("failed to place order")
	ErrOrderCancelFailed    = errors.New("failed to cancel order")
	ErrBelowMinNotional     = errors.New("order value below exchange minimum")

	// Database Specific Errors
	ErrDuplicateEntry       = errors.New("database record already exists")
	ErrDBConnection         = errors.New("database connection error")
	ErrQueryFailed          = errors.New("database query failed")
	ErrUpdateFailed         = errors.New("database update failed")
	ErrInvalidTransition    = errors.New("trade status transition not allowed")
	ErrCredentialsMissing   = errors.New("no valid API credentials stored for user")
)

// IsCredentialError reports whether the error indicates the user's stored
// exchange credentials are unusable (as opposed to a transient failure).
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) || errors.Is(err, ErrInvalidAPIKeys)
}

// IsTradingRuleError reports whether the error is a trading-rule rejection
// that has a specific recovery path rather than a blind retry.
func IsTradingRuleError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrBelowMinNotional) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrOrderPlacementFailed)
}
