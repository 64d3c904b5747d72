package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"tradewarden/internal/domain"
	"tradewarden/internal/ports"
)

// Repository implements the trade, profile, credentials, notification and
// journal repository ports using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/tradewarden.db"
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
			cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
			return nil, err
		}
	}

	// WAL mode for better concurrency between the engine loops.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a
	// single connection, and the conditional-update claims depend on writes
	// being serialised.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		entry_price REAL NOT NULL,
		quantity REAL NOT NULL,
		take_profit REAL NOT NULL,
		stop_loss REAL NOT NULL,
		exit_price REAL DEFAULT NULL,
		pnl REAL DEFAULT NULL,
		highest_price_seen REAL NOT NULL DEFAULT 0,
		trailing_active INTEGER NOT NULL DEFAULT 0,
		last_profit_notify_price REAL NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		opened_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP DEFAULT NULL,
		open_reason TEXT NOT NULL DEFAULT '',
		close_reason TEXT DEFAULT NULL,
		claimed_at TIMESTAMP DEFAULT NULL
	);
	-- One live position per user per symbol.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_one_active
		ON trades (user_id, symbol) WHERE status = 'active';
	CREATE INDEX IF NOT EXISTS idx_trades_status ON trades (status);
	CREATE INDEX IF NOT EXISTS idx_trades_user_status ON trades (user_id, status);

	CREATE TABLE IF NOT EXISTS user_profiles (
		user_id TEXT PRIMARY KEY,
		trading_enabled INTEGER NOT NULL DEFAULT 0,
		subscription_valid_until TIMESTAMP DEFAULT NULL,
		trade_size_quote REAL NOT NULL,
		max_positions INTEGER NOT NULL,
		atr_stop_multiplier REAL NOT NULL,
		risk_reward_ratio REAL NOT NULL,
		trailing_enabled INTEGER NOT NULL DEFAULT 0,
		trailing_activation_pct REAL NOT NULL DEFAULT 0,
		trailing_callback_pct REAL NOT NULL DEFAULT 0,
		profit_notify_increment_pct REAL NOT NULL DEFAULT 2,
		guardian_enabled INTEGER NOT NULL DEFAULT 0,
		guardian_drawdown_pct REAL NOT NULL DEFAULT -1.5,
		advisor_auto_close INTEGER NOT NULL DEFAULT 0,
		post_exit_review_enabled INTEGER NOT NULL DEFAULT 0,
		top_symbols_by_volume INTEGER NOT NULL DEFAULT 0,
		min_quote_volume REAL NOT NULL DEFAULT 0,
		asset_blacklist TEXT NOT NULL DEFAULT '',
		strategies TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS user_api_keys (
		user_id TEXT PRIMARY KEY,
		api_key TEXT NOT NULL,
		secret_key TEXT NOT NULL,
		is_valid INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		trade_id INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications (user_id, created_at);

	CREATE TABLE IF NOT EXISTS trade_journal (
		trade_id INTEGER PRIMARY KEY,
		user_id TEXT NOT NULL,
		entry_strategy TEXT NOT NULL DEFAULT '',
		entry_rsi REAL NOT NULL DEFAULT 0,
		entry_trend REAL NOT NULL DEFAULT 0,
		exit_reason TEXT NOT NULL DEFAULT '',
		exit_quality_score INTEGER NOT NULL DEFAULT 0,
		highest_price_after REAL NOT NULL DEFAULT 0,
		lowest_price_after REAL NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT ''
	);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- TradeRepository Implementation ---

const tradeColumns = `id, user_id, symbol, entry_price, quantity, take_profit, stop_loss,
	COALESCE(exit_price, 0), COALESCE(pnl, 0), highest_price_seen, trailing_active,
	last_profit_notify_price, status, opened_at, closed_at, open_reason, close_reason, claimed_at`

// Create saves a new trade and returns its assigned ID.
func (r *Repository) Create(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (user_id, symbol, entry_price, quantity, take_profit, stop_loss,
	                    highest_price_seen, trailing_active, last_profit_notify_price,
	                    status, opened_at, open_reason)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.UserID.String(), trade.Symbol, trade.EntryPrice, trade.Quantity,
		trade.TakeProfit, trade.StopLoss, trade.HighestPriceSeen,
		boolToInt(trade.TrailingStopActive), trade.LastProfitNotifyPrice,
		trade.Status, trade.OpenedAt, trade.OpenReason)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("active trade already exists for user %s symbol %s: %w",
				trade.UserID, trade.Symbol, ports.ErrDuplicateEntry)
		}
		return 0, fmt.Errorf("failed to insert trade for symbol %s: %w", trade.Symbol, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.Symbol, err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade created", map[string]interface{}{"tradeID": id, "userID": trade.UserID.String(), "symbol": trade.Symbol})
	return id, nil
}

// FindByID retrieves a trade by its unique ID.
func (r *Repository) FindByID(ctx context.Context, id int64) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE id = ?`

	row := r.db.QueryRowContext(ctx, query, id)
	trade, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query trade by ID %d: %w", id, err)
	}
	return trade, nil
}

// FindOpenForUsers retrieves all active trades belonging to the given users.
func (r *Repository) FindOpenForUsers(ctx context.Context, userIDs []uuid.UUID) ([]*domain.Trade, error) {
	if len(userIDs) == 0 {
		return []*domain.Trade{}, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(userIDs)), ",")
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE status = ? AND user_id IN (` + placeholders + `)`

	args := make([]interface{}, 0, len(userIDs)+1)
	args = append(args, domain.StatusActive)
	for _, id := range userIDs {
		args = append(args, id.String())
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query open trades: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// FindFlaggedForClosure retrieves every trade currently in a closing_* status.
func (r *Repository) FindFlaggedForClosure(ctx context.Context) ([]*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE status LIKE 'closing_%' ORDER BY opened_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query flagged trades: %w", err)
	}
	defer rows.Close()

	return collectTrades(rows)
}

// TransitionStatus moves a trade between statuses, conditioned on the current
// status. The claim is released on any transition so a rolled-back trade can
// be re-flagged and re-claimed.
func (r *Repository) TransitionStatus(ctx context.Context, id int64, from, to domain.TradeStatus) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, fmt.Errorf("transition %s -> %s for trade %d: %w", from, to, id, ports.ErrInvalidTransition)
	}
	const query = `UPDATE trades SET status = ?, claimed_at = NULL WHERE id = ? AND status = ?`

	result, err := r.db.ExecContext(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition trade %d to %s: %w", id, to, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for trade %d transition: %w", id, err)
	}
	if n == 0 {
		r.logger.Debug(ctx, "Trade transition lost race", map[string]interface{}{"tradeID": id, "from": from, "to": to})
		return false, nil
	}
	return true, nil
}

// ClaimForClosure atomically claims a flagged trade. At most one concurrent
// caller wins; claims older than staleBefore are treated as abandoned.
func (r *Repository) ClaimForClosure(ctx context.Context, id int64, status domain.TradeStatus, staleBefore time.Time) (bool, error) {
	const query = `
	UPDATE trades SET claimed_at = ?
	WHERE id = ? AND status = ? AND (claimed_at IS NULL OR claimed_at < ?)`

	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), id, status, staleBefore)
	if err != nil {
		return false, fmt.Errorf("failed to claim trade %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for trade %d claim: %w", id, err)
	}
	return n > 0, nil
}

// RecordClose finalises a trade, conditioned on it still being in the given
// status. The exactly-once guarantee rests on this conditional update.
func (r *Repository) RecordClose(ctx context.Context, id int64, from domain.TradeStatus, exitPrice, pnl float64, reason domain.CloseReason) (bool, error) {
	if !domain.CanTransition(from, domain.StatusClosed) {
		return false, fmt.Errorf("close from %s for trade %d: %w", from, id, ports.ErrInvalidTransition)
	}
	const query = `
	UPDATE trades
	SET status = ?, exit_price = ?, pnl = ?, close_reason = ?, closed_at = ?, claimed_at = NULL
	WHERE id = ? AND status = ?`

	result, err := r.db.ExecContext(ctx, query,
		domain.StatusClosed, exitPrice, pnl, reason, time.Now().UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to record close for trade %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for trade %d close: %w", id, err)
	}
	if n == 0 {
		return false, nil
	}
	r.logger.Info(ctx, "Trade closed", map[string]interface{}{"tradeID": id, "exitPrice": exitPrice, "pnl": pnl, "reason": reason})
	return true, nil
}

// UpdateHighestPrice raises highest_price_seen; lower values are ignored so
// reprocessing an old tick cannot move it backwards.
func (r *Repository) UpdateHighestPrice(ctx context.Context, id int64, price float64) error {
	const query = `UPDATE trades SET highest_price_seen = ? WHERE id = ? AND highest_price_seen < ?`
	if _, err := r.db.ExecContext(ctx, query, price, id, price); err != nil {
		return fmt.Errorf("failed to update highest price for trade %d: %w", id, err)
	}
	return nil
}

// ActivateTrailing marks the trailing stop active and raises the stop loss in
// one statement. Re-running it with the same inputs is a no-op.
func (r *Repository) ActivateTrailing(ctx context.Context, id int64, newStop float64) (bool, error) {
	const query = `
	UPDATE trades SET trailing_active = 1, stop_loss = ?
	WHERE id = ? AND trailing_active = 0 AND stop_loss < ?`

	result, err := r.db.ExecContext(ctx, query, newStop, id, newStop)
	if err != nil {
		return false, fmt.Errorf("failed to activate trailing for trade %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for trade %d trailing activation: %w", id, err)
	}
	return n > 0, nil
}

// RaiseStopLoss ratchets the stop loss upward; lower values are ignored.
func (r *Repository) RaiseStopLoss(ctx context.Context, id int64, newStop float64) (bool, error) {
	const query = `UPDATE trades SET stop_loss = ? WHERE id = ? AND stop_loss < ?`

	result, err := r.db.ExecContext(ctx, query, newStop, id, newStop)
	if err != nil {
		return false, fmt.Errorf("failed to raise stop loss for trade %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for trade %d stop raise: %w", id, err)
	}
	return n > 0, nil
}

// RaiseTakeProfit extends the target; lower values are ignored.
func (r *Repository) RaiseTakeProfit(ctx context.Context, id int64, newTarget float64) (bool, error) {
	const query = `UPDATE trades SET take_profit = ? WHERE id = ? AND take_profit < ?`

	result, err := r.db.ExecContext(ctx, query, newTarget, id, newTarget)
	if err != nil {
		return false, fmt.Errorf("failed to raise take profit for trade %d: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for trade %d target raise: %w", id, err)
	}
	return n > 0, nil
}

// UpdateProfitNotifyPrice records the last price a profit notification was
// issued at.
func (r *Repository) UpdateProfitNotifyPrice(ctx context.Context, id int64, price float64) error {
	const query = `UPDATE trades SET last_profit_notify_price = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, price, id); err != nil {
		return fmt.Errorf("failed to update profit notify price for trade %d: %w", id, err)
	}
	return nil
}

// CountActiveForUser counts the user's active trades.
func (r *Repository) CountActiveForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	const query = `SELECT COUNT(*) FROM trades WHERE user_id = ? AND status = ?`
	var count int
	err := r.db.QueryRowContext(ctx, query, userID.String(), domain.StatusActive).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active trades for user %s: %w", userID, err)
	}
	return count, nil
}

// HasOpenForSymbol reports whether the user has an active trade for the symbol.
func (r *Repository) HasOpenForSymbol(ctx context.Context, userID uuid.UUID, symbol string) (bool, error) {
	const query = `SELECT COUNT(*) FROM trades WHERE user_id = ? AND symbol = ? AND status = ?`
	var count int
	err := r.db.QueryRowContext(ctx, query, userID.String(), symbol, domain.StatusActive).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check open trade for user %s symbol %s: %w", userID, symbol, err)
	}
	return count > 0, nil
}

// --- ProfileRepository Implementation ---

// FindEligibleProfiles retrieves profiles of all users allowed to trade now.
func (r *Repository) FindEligibleProfiles(ctx context.Context) ([]*domain.UserTradingProfile, error) {
	const query = profileColumnsQuery + `
	WHERE trading_enabled = 1
	  AND (subscription_valid_until IS NULL OR subscription_valid_until > ?)`

	rows, err := r.db.QueryContext(ctx, query, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query eligible profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]*domain.UserTradingProfile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profile rows: %w", err)
	}
	return profiles, nil
}

// FindProfileByUser retrieves one user's profile.
func (r *Repository) FindProfileByUser(ctx context.Context, userID uuid.UUID) (*domain.UserTradingProfile, error) {
	const query = profileColumnsQuery + ` WHERE user_id = ?`

	row := r.db.QueryRowContext(ctx, query, userID.String())
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query profile for user %s: %w", userID, err)
	}
	return p, nil
}

// SaveProfile inserts or replaces a profile.
func (r *Repository) SaveProfile(ctx context.Context, p *domain.UserTradingProfile) error {
	strategies, err := json.Marshal(p.Strategies)
	if err != nil {
		return fmt.Errorf("failed to encode strategies for user %s: %w", p.UserID, err)
	}

	var validUntil sql.NullTime
	if !p.SubscriptionValidUntil.IsZero() {
		validUntil = sql.NullTime{Time: p.SubscriptionValidUntil, Valid: true}
	}

	const query = `
	INSERT OR REPLACE INTO user_profiles (
		user_id, trading_enabled, subscription_valid_until, trade_size_quote, max_positions,
		atr_stop_multiplier, risk_reward_ratio, trailing_enabled, trailing_activation_pct,
		trailing_callback_pct, profit_notify_increment_pct, guardian_enabled,
		guardian_drawdown_pct, advisor_auto_close, post_exit_review_enabled,
		top_symbols_by_volume, min_quote_volume, asset_blacklist, strategies)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		p.UserID.String(), boolToInt(p.TradingEnabled), validUntil, p.TradeSizeQuote,
		p.MaxConcurrentPositions, p.ATRStopMultiplier, p.RiskRewardRatio,
		boolToInt(p.TrailingStopEnabled), p.TrailingActivationPct, p.TrailingCallbackPct,
		p.ProfitNotifyIncrementPct, boolToInt(p.GuardianEnabled), p.GuardianDrawdownPct,
		boolToInt(p.AdvisorAutoClose), boolToInt(p.PostExitReviewEnabled),
		p.TopSymbolsByVolume, p.MinQuoteVolume, strings.Join(p.AssetBlacklist, ","), string(strategies))
	if err != nil {
		return fmt.Errorf("failed to save profile for user %s: %w", p.UserID, err)
	}
	return nil
}

// --- CredentialsRepository Implementation ---

// FindValidCredentials retrieves the user's credentials if marked valid.
func (r *Repository) FindValidCredentials(ctx context.Context, userID uuid.UUID) (*domain.APICredentials, error) {
	const query = `SELECT api_key, secret_key FROM user_api_keys WHERE user_id = ? AND is_valid = 1`

	creds := &domain.APICredentials{UserID: userID}
	err := r.db.QueryRowContext(ctx, query, userID.String()).Scan(&creds.APIKey, &creds.SecretKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", userID, ports.ErrCredentialsMissing)
		}
		return nil, fmt.Errorf("failed to query credentials for user %s: %w", userID, err)
	}
	return creds, nil
}

// MarkCredentialsInvalid flags the user's credentials after an authentication
// failure.
func (r *Repository) MarkCredentialsInvalid(ctx context.Context, userID uuid.UUID) error {
	const query = `UPDATE user_api_keys SET is_valid = 0 WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, userID.String()); err != nil {
		return fmt.Errorf("failed to invalidate credentials for user %s: %w", userID, err)
	}
	r.logger.Warn(ctx, "User credentials marked invalid", map[string]interface{}{"userID": userID.String()})
	return nil
}

// SaveCredentials inserts or replaces credentials and marks them valid.
func (r *Repository) SaveCredentials(ctx context.Context, creds *domain.APICredentials) error {
	const query = `INSERT OR REPLACE INTO user_api_keys (user_id, api_key, secret_key, is_valid) VALUES (?, ?, ?, 1)`
	if _, err := r.db.ExecContext(ctx, query, creds.UserID.String(), creds.APIKey, creds.SecretKey); err != nil {
		return fmt.Errorf("failed to save credentials for user %s: %w", creds.UserID, err)
	}
	return nil
}

// --- NotificationRepository Implementation ---

// CreateNotification records a user-visible event for the external delivery
// system.
func (r *Repository) CreateNotification(ctx context.Context, n *domain.Notification) error {
	const query = `INSERT INTO notifications (user_id, kind, message, trade_id, created_at) VALUES (?, ?, ?, ?, ?)`

	createdAt := n.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	result, err := r.db.ExecContext(ctx, query, n.UserID.String(), n.Kind, n.Message, n.TradeID, createdAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification for user %s: %w", n.UserID, err)
	}
	if id, err := result.LastInsertId(); err == nil {
		n.ID = id
	}
	return nil
}

// --- JournalRepository Implementation ---

// CreateJournalEntry writes the entry snapshot; duplicates for the same trade
// are ignored.
func (r *Repository) CreateJournalEntry(ctx context.Context, e *domain.JournalEntry) error {
	const query = `
	INSERT OR IGNORE INTO trade_journal (trade_id, user_id, entry_strategy, entry_rsi, entry_trend)
	VALUES (?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		e.TradeID, e.UserID.String(), e.EntryStrategy, e.EntryRSI, e.EntryTrend)
	if err != nil {
		return fmt.Errorf("failed to insert journal entry for trade %d: %w", e.TradeID, err)
	}
	return nil
}

// RecordExitReview fills in the post-exit analysis for a trade.
func (r *Repository) RecordExitReview(ctx context.Context, tradeID int64, exitReason string, score int, highestAfter, lowestAfter float64, notes string) error {
	const query = `
	UPDATE trade_journal
	SET exit_reason = ?, exit_quality_score = ?, highest_price_after = ?, lowest_price_after = ?, notes = ?
	WHERE trade_id = ?`

	result, err := r.db.ExecContext(ctx, query, exitReason, score, highestAfter, lowestAfter, notes, tradeID)
	if err != nil {
		return fmt.Errorf("failed to record exit review for trade %d: %w", tradeID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for trade %d exit review: %w", tradeID, err)
	}
	if n == 0 {
		return fmt.Errorf("journal entry for trade %d not found: %w", tradeID, ports.ErrNotFound)
	}
	return nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

const profileColumnsQuery = `
	SELECT user_id, trading_enabled, subscription_valid_until, trade_size_quote, max_positions,
	       atr_stop_multiplier, risk_reward_ratio, trailing_enabled, trailing_activation_pct,
	       trailing_callback_pct, profit_notify_increment_pct, guardian_enabled,
	       guardian_drawdown_pct, advisor_auto_close, post_exit_review_enabled,
	       top_symbols_by_volume, min_quote_volume, asset_blacklist, strategies
	FROM user_profiles`

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var (
		userID      string
		trailing    int
		status      string
		closedAt    sql.NullTime
		closeReason sql.NullString
		claimedAt   sql.NullTime
	)
	err := s.Scan(
		&t.ID, &userID, &t.Symbol, &t.EntryPrice, &t.Quantity, &t.TakeProfit, &t.StopLoss,
		&t.ExitPrice, &t.RealizedPnL, &t.HighestPriceSeen, &trailing,
		&t.LastProfitNotifyPrice, &status, &t.OpenedAt, &closedAt, &t.OpenReason,
		&closeReason, &claimedAt)
	if err != nil {
		return nil, err
	}
	t.UserID, err = uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID %q on trade %d: %w", userID, t.ID, err)
	}
	t.TrailingStopActive = trailing != 0
	t.Status = domain.TradeStatus(status)
	if closedAt.Valid {
		t.ClosedAt = closedAt.Time
	}
	if closeReason.Valid {
		t.CloseReason = domain.CloseReason(closeReason.String)
	}
	if claimedAt.Valid {
		t.ClaimedAt = claimedAt.Time
	}
	return t, nil
}

// scanProfile scans a row into a domain.UserTradingProfile struct.
func scanProfile(s scanner) (*domain.UserTradingProfile, error) {
	p := &domain.UserTradingProfile{}
	var (
		userID         string
		tradingEnabled int
		validUntil     sql.NullTime
		trailing       int
		guardian       int
		autoClose      int
		postExit       int
		blacklist      string
		strategies     string
	)
	err := s.Scan(
		&userID, &tradingEnabled, &validUntil, &p.TradeSizeQuote, &p.MaxConcurrentPositions,
		&p.ATRStopMultiplier, &p.RiskRewardRatio, &trailing, &p.TrailingActivationPct,
		&p.TrailingCallbackPct, &p.ProfitNotifyIncrementPct, &guardian,
		&p.GuardianDrawdownPct, &autoClose, &postExit,
		&p.TopSymbolsByVolume, &p.MinQuoteVolume, &blacklist, &strategies)
	if err != nil {
		return nil, err
	}
	p.UserID, err = uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID %q on profile: %w", userID, err)
	}
	p.TradingEnabled = tradingEnabled != 0
	if validUntil.Valid {
		p.SubscriptionValidUntil = validUntil.Time
	}
	p.TrailingStopEnabled = trailing != 0
	p.GuardianEnabled = guardian != 0
	p.AdvisorAutoClose = autoClose != 0
	p.PostExitReviewEnabled = postExit != 0
	if blacklist != "" {
		p.AssetBlacklist = strings.Split(blacklist, ",")
	}
	if err := json.Unmarshal([]byte(strategies), &p.Strategies); err != nil {
		return nil, fmt.Errorf("invalid strategies payload for user %s: %w", userID, err)
	}
	return p, nil
}

func collectTrades(rows *sql.Rows) ([]*domain.Trade, error) {
	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
