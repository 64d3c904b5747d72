package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradewarden/internal/domain"
	"tradewarden/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) *Repository {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "tradewarden-test-*")
	require.NoError(t, err)

	repo, err := NewRepository(Config{
		DBPath: filepath.Join(tmpDir, "test.db"),
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	})
	return repo
}

func newTestTrade(userID uuid.UUID, symbol string) *domain.Trade {
	return &domain.Trade{
		UserID:           userID,
		Symbol:           symbol,
		EntryPrice:       100.0,
		Quantity:         2.0,
		TakeProfit:       110.0,
		StopLoss:         95.0,
		HighestPriceSeen: 100.0,
		Status:           domain.StatusActive,
		OpenedAt:         time.Now().UTC(),
		OpenReason:       "momentum_breakout",
	}
}

func TestRepository_CreateAndFindTrade(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	userID := uuid.New()

	id, err := repo.Create(ctx, newTestTrade(userID, "ETHUSDT"))
	require.NoError(t, err)
	require.NotZero(t, id)

	found, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, userID, found.UserID)
	assert.Equal(t, "ETHUSDT", found.Symbol)
	assert.Equal(t, 100.0, found.EntryPrice)
	assert.Equal(t, domain.StatusActive, found.Status)
	assert.False(t, found.TrailingStopActive)
	assert.Equal(t, "momentum_breakout", found.OpenReason)

	missing, err := repo.FindByID(ctx, id+100)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_CreateRejectsDuplicateActive(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := repo.Create(ctx, newTestTrade(userID, "ETHUSDT"))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newTestTrade(userID, "ETHUSDT"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrDuplicateEntry)

	// Different symbol or different user is fine.
	_, err = repo.Create(ctx, newTestTrade(userID, "SOLUSDT"))
	assert.NoError(t, err)
	_, err = repo.Create(ctx, newTestTrade(uuid.New(), "ETHUSDT"))
	assert.NoError(t, err)
}

func TestRepository_FindOpenForUsers(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	userA := uuid.New()
	userB := uuid.New()
	userC := uuid.New()

	_, err := repo.Create(ctx, newTestTrade(userA, "ETHUSDT"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newTestTrade(userB, "SOLUSDT"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newTestTrade(userC, "BTCUSDT"))
	require.NoError(t, err)

	trades, err := repo.FindOpenForUsers(ctx, []uuid.UUID{userA, userB})
	require.NoError(t, err)
	assert.Len(t, trades, 2)

	trades, err = repo.FindOpenForUsers(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestRepository_TransitionStatus(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, newTestTrade(uuid.New(), "ETHUSDT"))
	require.NoError(t, err)

	ok, err := repo.TransitionStatus(ctx, id, domain.StatusActive, domain.StatusClosingTakeProfit)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second flag attempt loses: the trade is no longer active.
	ok, err = repo.TransitionStatus(ctx, id, domain.StatusActive, domain.StatusClosingStopLoss)
	require.NoError(t, err)
	assert.False(t, ok)

	// State machine rejects pairs it does not allow.
	_, err = repo.TransitionStatus(ctx, id, domain.StatusClosingTakeProfit, domain.StatusClosingStopLoss)
	assert.ErrorIs(t, err, ports.ErrInvalidTransition)

	// Rollback to active is allowed and releases the claim.
	ok, err = repo.TransitionStatus(ctx, id, domain.StatusClosingTakeProfit, domain.StatusActive)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRepository_ClaimForClosure(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, newTestTrade(uuid.New(), "ETHUSDT"))
	require.NoError(t, err)
	_, err = repo.TransitionStatus(ctx, id, domain.StatusActive, domain.StatusClosingStopLoss)
	require.NoError(t, err)

	stale := time.Now().UTC().Add(-time.Minute)

	ok, err := repo.ClaimForClosure(ctx, id, domain.StatusClosingStopLoss, stale)
	require.NoError(t, err)
	assert.True(t, ok, "first claimant should win")

	ok, err = repo.ClaimForClosure(ctx, id, domain.StatusClosingStopLoss, stale)
	require.NoError(t, err)
	assert.False(t, ok, "second claimant should lose while the claim is fresh")

	// A claim in the past is abandoned and can be re-won.
	ok, err = repo.ClaimForClosure(ctx, id, domain.StatusClosingStopLoss, time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)

	// Wrong status never claims.
	ok, err = repo.ClaimForClosure(ctx, id, domain.StatusClosingTakeProfit, stale)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRepository_RecordCloseExactlyOnce(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, newTestTrade(uuid.New(), "ETHUSDT"))
	require.NoError(t, err)
	_, err = repo.TransitionStatus(ctx, id, domain.StatusActive, domain.StatusClosingTakeProfit)
	require.NoError(t, err)

	ok, err := repo.RecordClose(ctx, id, domain.StatusClosingTakeProfit, 110.0, 20.0, domain.CloseReasonTakeProfit)
	require.NoError(t, err)
	assert.True(t, ok)

	// Replay of the same close is a no-op.
	ok, err = repo.RecordClose(ctx, id, domain.StatusClosingTakeProfit, 111.0, 22.0, domain.CloseReasonTakeProfit)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, found.Status)
	assert.Equal(t, 110.0, found.ExitPrice)
	assert.Equal(t, 20.0, found.RealizedPnL)
	assert.Equal(t, domain.CloseReasonTakeProfit, found.CloseReason)
	assert.False(t, found.ClosedAt.IsZero())
}

func TestRepository_DustAdministrativeClose(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, newTestTrade(uuid.New(), "ETHUSDT"))
	require.NoError(t, err)

	// Dust close goes straight from active to closed with zero PnL.
	ok, err := repo.RecordClose(ctx, id, domain.StatusActive, 0, 0, domain.CloseReasonDust)
	require.NoError(t, err)
	assert.True(t, ok)

	found, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusClosed, found.Status)
	assert.Equal(t, domain.CloseReasonDust, found.CloseReason)
}

func TestRepository_MonotonicUpdates(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, newTestTrade(uuid.New(), "ETHUSDT"))
	require.NoError(t, err)

	require.NoError(t, repo.UpdateHighestPrice(ctx, id, 105.0))
	require.NoError(t, repo.UpdateHighestPrice(ctx, id, 103.0)) // ignored, lower

	found, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 105.0, found.HighestPriceSeen)

	ok, err := repo.RaiseStopLoss(ctx, id, 98.0)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.RaiseStopLoss(ctx, id, 97.0) // lower, ignored
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.RaiseTakeProfit(ctx, id, 115.0)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.RaiseTakeProfit(ctx, id, 112.0)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err = repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 98.0, found.StopLoss)
	assert.Equal(t, 115.0, found.TakeProfit)
}

func TestRepository_ActivateTrailingIsIdempotent(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, newTestTrade(uuid.New(), "ETHUSDT"))
	require.NoError(t, err)

	ok, err := repo.ActivateTrailing(ctx, id, 100.1)
	require.NoError(t, err)
	assert.True(t, ok)

	// Re-running the activation changes nothing.
	ok, err = repo.ActivateTrailing(ctx, id, 100.1)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, found.TrailingStopActive)
	assert.Equal(t, 100.1, found.StopLoss)
}

func TestRepository_CountAndHasOpen(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := repo.Create(ctx, newTestTrade(userID, "ETHUSDT"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newTestTrade(userID, "SOLUSDT"))
	require.NoError(t, err)

	count, err := repo.CountActiveForUser(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	has, err := repo.HasOpenForSymbol(ctx, userID, "ETHUSDT")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = repo.HasOpenForSymbol(ctx, userID, "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRepository_ProfileRoundTrip(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	userID := uuid.New()

	profile := &domain.UserTradingProfile{
		UserID:                   userID,
		TradingEnabled:           true,
		SubscriptionValidUntil:   time.Now().UTC().Add(24 * time.Hour),
		TradeSizeQuote:           50.0,
		MaxConcurrentPositions:   3,
		ATRStopMultiplier:        1.5,
		RiskRewardRatio:          2.0,
		TrailingStopEnabled:      true,
		TrailingActivationPct:    1.2,
		TrailingCallbackPct:      0.5,
		ProfitNotifyIncrementPct: 2.0,
		GuardianEnabled:          true,
		GuardianDrawdownPct:      -1.5,
		TopSymbolsByVolume:       100,
		MinQuoteVolume:           1_000_000,
		AssetBlacklist:           []string{"SHIB", "DOGE"},
		Strategies: []domain.StrategySetting{
			{Name: "momentum_breakout", Params: map[string]float64{"rsi_max": 70}},
		},
	}
	require.NoError(t, repo.SaveProfile(ctx, profile))

	found, err := repo.FindProfileByUser(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.TradingEnabled)
	assert.Equal(t, 50.0, found.TradeSizeQuote)
	assert.Equal(t, []string{"SHIB", "DOGE"}, found.AssetBlacklist)
	require.Len(t, found.Strategies, 1)
	assert.Equal(t, "momentum_breakout", found.Strategies[0].Name)
	assert.Equal(t, 70.0, found.Strategies[0].Params["rsi_max"])

	missing, err := repo.FindProfileByUser(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_FindEligibleProfiles(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	active := &domain.UserTradingProfile{
		UserID:                 uuid.New(),
		TradingEnabled:         true,
		SubscriptionValidUntil: time.Now().UTC().Add(time.Hour),
		TradeSizeQuote:         50, MaxConcurrentPositions: 1,
		ATRStopMultiplier: 1.5, RiskRewardRatio: 2,
	}
	expired := &domain.UserTradingProfile{
		UserID:                 uuid.New(),
		TradingEnabled:         true,
		SubscriptionValidUntil: time.Now().UTC().Add(-time.Hour),
		TradeSizeQuote:         50, MaxConcurrentPositions: 1,
		ATRStopMultiplier: 1.5, RiskRewardRatio: 2,
	}
	disabled := &domain.UserTradingProfile{
		UserID:         uuid.New(),
		TradingEnabled: false,
		TradeSizeQuote: 50, MaxConcurrentPositions: 1,
		ATRStopMultiplier: 1.5, RiskRewardRatio: 2,
	}
	noSubscription := &domain.UserTradingProfile{
		UserID:         uuid.New(),
		TradingEnabled: true,
		TradeSizeQuote: 50, MaxConcurrentPositions: 1,
		ATRStopMultiplier: 1.5, RiskRewardRatio: 2,
	}
	for _, p := range []*domain.UserTradingProfile{active, expired, disabled, noSubscription} {
		require.NoError(t, repo.SaveProfile(ctx, p))
	}

	eligible, err := repo.FindEligibleProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, eligible, 2)
	ids := map[uuid.UUID]bool{}
	for _, p := range eligible {
		ids[p.UserID] = true
	}
	assert.True(t, ids[active.UserID])
	assert.True(t, ids[noSubscription.UserID])
}

func TestRepository_Credentials(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := repo.FindValidCredentials(ctx, userID)
	assert.ErrorIs(t, err, ports.ErrCredentialsMissing)

	require.NoError(t, repo.SaveCredentials(ctx, &domain.APICredentials{
		UserID: userID, APIKey: "key", SecretKey: "secret",
	}))

	creds, err := repo.FindValidCredentials(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "key", creds.APIKey)
	assert.Equal(t, "secret", creds.SecretKey)

	require.NoError(t, repo.MarkCredentialsInvalid(ctx, userID))
	_, err = repo.FindValidCredentials(ctx, userID)
	assert.ErrorIs(t, err, ports.ErrCredentialsMissing)

	// Re-saving restores validity.
	require.NoError(t, repo.SaveCredentials(ctx, &domain.APICredentials{
		UserID: userID, APIKey: "key2", SecretKey: "secret2",
	}))
	creds, err = repo.FindValidCredentials(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "key2", creds.APIKey)
}

func TestRepository_Journal(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()
	userID := uuid.New()

	id, err := repo.Create(ctx, newTestTrade(userID, "ETHUSDT"))
	require.NoError(t, err)

	entry := &domain.JournalEntry{
		TradeID:       id,
		UserID:        userID,
		EntryStrategy: "momentum_breakout",
		EntryRSI:      62.5,
		EntryTrend:    31.0,
	}
	require.NoError(t, repo.CreateJournalEntry(ctx, entry))
	// Duplicate entries for the same trade are silently ignored.
	require.NoError(t, repo.CreateJournalEntry(ctx, entry))

	require.NoError(t, repo.RecordExitReview(ctx, id, "take_profit", 10, 112.0, 108.0, "perfect exit"))

	err = repo.RecordExitReview(ctx, id+100, "stop_loss", -10, 0, 0, "")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_CreateNotification(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	n := &domain.Notification{
		UserID:  uuid.New(),
		Kind:    domain.NotifyPositionOpened,
		Message: "Opened ETHUSDT @ 100.00",
		TradeID: 1,
	}
	require.NoError(t, repo.CreateNotification(ctx, n))
	assert.NotZero(t, n.ID)
}
