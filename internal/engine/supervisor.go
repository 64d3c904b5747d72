package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tradewarden/internal/domain"
	"tradewarden/internal/metrics"
	"tradewarden/internal/ports"
)

// Supervisor drains the closure queue: it claims flagged trades one at a
// time, re-verifies the exit rule against a fresh price, executes the market
// sell on the owner's session, and finalises the row. Several supervisor
// instances may run concurrently against the same store; the claim column and
// the conditional close make each trade exit exactly once.
type Supervisor struct {
	trades        ports.TradeRepository
	notifications ports.NotificationRepository
	sessions      *SessionCache
	public        ports.ExchangeGateway
	profileCache  *ProfileCache
	reviewer      *Reviewer

	interval        time.Duration
	claimStaleAfter time.Duration
	incubateDust    bool
	logger          ports.Logger
}

// SupervisorConfig holds the dependencies for creating a Supervisor.
type SupervisorConfig struct {
	Trades        ports.TradeRepository
	Notifications ports.NotificationRepository
	Sessions      *SessionCache
	PublicGateway ports.ExchangeGateway
	ProfileCache  *ProfileCache
	Reviewer      *Reviewer

	Interval        time.Duration
	ClaimStaleAfter time.Duration
	// IncubateDust keeps positions below the minimum sellable size open
	// instead of closing them administratively at zero PnL.
	IncubateDust bool
	Logger       ports.Logger
}

// NewSupervisor creates a closure supervisor.
func NewSupervisor(cfg SupervisorConfig) (*Supervisor, error) {
	if cfg.Trades == nil || cfg.Notifications == nil || cfg.Sessions == nil ||
		cfg.PublicGateway == nil || cfg.ProfileCache == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for supervisor")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 3 * time.Second
	}
	if cfg.ClaimStaleAfter <= 0 {
		cfg.ClaimStaleAfter = 2 * time.Minute
	}
	return &Supervisor{
		trades:          cfg.Trades,
		notifications:   cfg.Notifications,
		sessions:        cfg.Sessions,
		public:          cfg.PublicGateway,
		profileCache:    cfg.ProfileCache,
		reviewer:        cfg.Reviewer,
		interval:        cfg.Interval,
		claimStaleAfter: cfg.ClaimStaleAfter,
		incubateDust:    cfg.IncubateDust,
		logger:          cfg.Logger,
	}, nil
}

// Run drains the closure queue on every tick until the context is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Pass(ctx); err != nil {
				s.logger.Error(ctx, err, "Closure pass failed")
			}
		}
	}
}

// Pass processes every currently flagged trade once.
func (s *Supervisor) Pass(ctx context.Context) error {
	flagged, err := s.trades.FindFlaggedForClosure(ctx)
	if err != nil {
		return fmt.Errorf("loading flagged trades: %w", err)
	}
	for _, trade := range flagged {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.process(ctx, trade)
	}
	return nil
}

// process attempts to finalise one flagged trade. Any step that fails without
// resolving the trade leaves the claim in place; it goes stale after
// claimStaleAfter and a later pass retries.
func (s *Supervisor) process(ctx context.Context, trade *domain.Trade) {
	op := "process"
	fields := map[string]interface{}{
		"tradeID": trade.ID, "symbol": trade.Symbol, "status": string(trade.Status),
	}

	claimed, err := s.trades.ClaimForClosure(ctx, trade.ID, trade.Status, time.Now().Add(-s.claimStaleAfter))
	if err != nil {
		s.logger.Error(ctx, err, "Failed to claim trade for closure", fields)
		return
	}
	if !claimed {
		return
	}

	gateway, err := s.sessions.Get(ctx, trade.UserID)
	if err != nil {
		if errors.Is(err, ports.ErrCredentialsMissing) {
			s.logger.Warn(ctx, "Cannot close trade: no valid credentials", fields)
			s.notify(ctx, trade, domain.NotifyCredentialsError,
				fmt.Sprintf("%s: cannot close position, exchange API keys missing or invalid", trade.Symbol))
			return
		}
		s.logger.Error(ctx, err, "Failed to build exchange session", fields)
		return
	}

	price, err := s.public.GetTickerPrice(ctx, trade.Symbol)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to fetch price for closure", fields)
		return
	}

	// Re-verify the trigger with a fresh price. Between the flag and the
	// claim the market may have moved back; a stale trigger rolls the trade
	// back to active monitoring instead of exiting on old information.
	if !s.triggerStillHolds(trade, price) {
		s.rollback(ctx, trade, "exit trigger no longer holds")
		return
	}

	rules, err := s.public.GetMarketRules(ctx, trade.Symbol)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to fetch market rules", fields)
		return
	}

	quantity := rules.FloorQuantity(trade.Quantity)
	if quantity <= 0 || quantity*price < rules.MinNotional {
		s.handleDust(ctx, trade, price)
		return
	}

	result, err := gateway.PlaceMarketSell(ctx, trade.Symbol, quantity)
	if err != nil {
		s.handleSellFailure(ctx, trade, err)
		return
	}

	exitPrice := result.AvgPrice
	if exitPrice <= 0 {
		exitPrice = price
	}
	soldQty := result.ExecutedQty
	if soldQty <= 0 {
		soldQty = quantity
	}
	pnl := (exitPrice - trade.EntryPrice) * soldQty
	reason := domain.CloseReasonForStatus(trade.Status)

	applied, err := s.trades.RecordClose(ctx, trade.ID, trade.Status, exitPrice, pnl, reason)
	if err != nil {
		s.logger.Error(ctx, err, fmt.Sprintf("%s: sold but failed to record close", op), fields)
		return
	}
	if !applied {
		s.logger.Warn(ctx, "Close already recorded by another supervisor", fields)
		return
	}

	metrics.ClosuresCompleted.WithLabelValues(string(reason)).Inc()
	s.logger.Info(ctx, "Trade closed", map[string]interface{}{
		"tradeID": trade.ID, "symbol": trade.Symbol, "reason": string(reason),
		"exitPrice": exitPrice, "pnl": pnl,
	})
	s.notify(ctx, trade, domain.NotifyPositionClosed,
		fmt.Sprintf("%s closed (%s): exit %.8f, PnL %.4f", trade.Symbol, reason, exitPrice, pnl))

	if s.reviewer != nil {
		if profile := s.profileCache.Get(trade.UserID); profile != nil && profile.PostExitReviewEnabled {
			s.reviewer.Schedule(ctx, trade, profile.RiskRewardRatio, reason)
		}
	}
}

// triggerStillHolds re-checks the flagged exit rule against the fresh price.
// Advisor and manual flags are deliberate decisions and always proceed.
func (s *Supervisor) triggerStillHolds(trade *domain.Trade, price float64) bool {
	switch trade.Status {
	case domain.StatusClosingTakeProfit:
		return price >= trade.TakeProfit
	case domain.StatusClosingStopLoss, domain.StatusClosingTrailingStop:
		return price <= trade.StopLoss
	default:
		return true
	}
}

// handleDust resolves a position too small to sell. By default it is closed
// administratively at zero PnL; with incubation enabled it is returned to
// active monitoring in the hope the price grows it past the minimum.
func (s *Supervisor) handleDust(ctx context.Context, trade *domain.Trade, price float64) {
	if s.incubateDust {
		s.rollback(ctx, trade, "below minimum sellable size, incubating")
		return
	}

	applied, err := s.trades.RecordClose(ctx, trade.ID, trade.Status, price, 0, domain.CloseReasonDust)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to record dust close", map[string]interface{}{"tradeID": trade.ID})
		return
	}
	if !applied {
		return
	}
	metrics.ClosuresCompleted.WithLabelValues(string(domain.CloseReasonDust)).Inc()
	s.logger.Info(ctx, "Trade closed administratively: below minimum sellable size", map[string]interface{}{
		"tradeID": trade.ID, "symbol": trade.Symbol, "price": price,
	})
	s.notify(ctx, trade, domain.NotifyPositionClosed,
		fmt.Sprintf("%s: position below the exchange minimum and closed administratively", trade.Symbol))
}

// handleSellFailure classifies a failed market sell. Credential failures
// invalidate the session; rule rejections return the trade to the user's
// hands; anything else leaves the claim to go stale and be retried.
func (s *Supervisor) handleSellFailure(ctx context.Context, trade *domain.Trade, sellErr error) {
	fields := map[string]interface{}{"tradeID": trade.ID, "symbol": trade.Symbol}

	switch {
	case ports.IsCredentialError(sellErr):
		s.logger.Error(ctx, sellErr, "Exchange rejected credentials during closure", fields)
		s.sessions.Invalidate(ctx, trade.UserID)
		metrics.CredentialFailures.Inc()
		s.notify(ctx, trade, domain.NotifyCredentialsError,
			fmt.Sprintf("%s: cannot close position, exchange rejected your API keys", trade.Symbol))
	case ports.IsTradingRuleError(sellErr):
		s.logger.Error(ctx, sellErr, "Exchange rejected closure order", fields)
		s.rollback(ctx, trade, "exchange rejected the sell order")
		s.notify(ctx, trade, domain.NotifyWeaknessWarning,
			fmt.Sprintf("%s: automatic close failed (%v), position returned to monitoring", trade.Symbol, sellErr))
	default:
		s.logger.Error(ctx, sellErr, "Transient failure closing trade; will retry", fields)
	}
}

// rollback returns a flagged trade to active monitoring.
func (s *Supervisor) rollback(ctx context.Context, trade *domain.Trade, why string) {
	applied, err := s.trades.TransitionStatus(ctx, trade.ID, trade.Status, domain.StatusActive)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to roll back trade to active", map[string]interface{}{"tradeID": trade.ID})
		return
	}
	if applied {
		metrics.ClosureRollbacks.Inc()
		s.logger.Info(ctx, "Trade rolled back to active", map[string]interface{}{
			"tradeID": trade.ID, "symbol": trade.Symbol, "why": why,
		})
	}
}

func (s *Supervisor) notify(ctx context.Context, trade *domain.Trade, kind domain.NotificationKind, msg string) {
	n := &domain.Notification{UserID: trade.UserID, Kind: kind, Message: msg, TradeID: trade.ID}
	if err := s.notifications.CreateNotification(ctx, n); err != nil {
		s.logger.Error(ctx, err, "Failed to create notification", map[string]interface{}{"tradeID": trade.ID})
	}
}
