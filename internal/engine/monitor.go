package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"tradewarden/internal/domain"
	"tradewarden/internal/metrics"
	"tradewarden/internal/ports"
)

// entryGuardMultiplier lifts a freshly activated trailing stop just above
// break-even so an immediate pullback exits flat instead of at a loss.
const entryGuardMultiplier = 1.001

// analysisTrigger is the monitor's handle on the advisor: fire-and-forget
// requests for deeper judgement than a single tick can provide.
type analysisTrigger interface {
	TriggerExitReview(ctx context.Context, trade domain.Trade)
	TriggerExtension(ctx context.Context, trade domain.Trade)
}

// Monitor consumes aggregate ticker batches and walks the rule ladder for
// every indexed trade on the affected symbol: take profit first, then stop
// loss, then peak tracking, trailing-stop management, the drawdown guardian
// and profit notifications. Flagging is a conditional status transition; the
// actual exchange exit is the closure supervisor's job. Each evaluation works
// on a private copy of the trade and merges advanced fields back into the
// shared index when done.
type Monitor struct {
	trades        ports.TradeRepository
	notifications ports.NotificationRepository
	index         *PositionIndex
	profileCache  *ProfileCache
	advisor       analysisTrigger
	logger        ports.Logger
}

// MonitorConfig holds the dependencies for creating a Monitor.
type MonitorConfig struct {
	Trades        ports.TradeRepository
	Notifications ports.NotificationRepository
	Index         *PositionIndex
	ProfileCache  *ProfileCache
	Advisor       analysisTrigger
	Logger        ports.Logger
}

// NewMonitor creates a price monitor.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if cfg.Trades == nil || cfg.Notifications == nil || cfg.Index == nil ||
		cfg.ProfileCache == nil || cfg.Advisor == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for monitor")
	}
	return &Monitor{
		trades:        cfg.Trades,
		notifications: cfg.Notifications,
		index:         cfg.Index,
		profileCache:  cfg.ProfileCache,
		advisor:       cfg.Advisor,
		logger:        cfg.Logger,
	}, nil
}

// HandleTickers processes one aggregate ticker batch.
func (m *Monitor) HandleTickers(ctx context.Context, tickers []*domain.Ticker) {
	metrics.TickBatchesProcessed.Inc()
	for _, t := range tickers {
		trades := m.index.Get(t.Symbol)
		if len(trades) == 0 {
			continue
		}
		for _, trade := range trades {
			m.evaluate(ctx, trade, t.LastPrice)
		}
	}
}

// evaluate runs the exit rule ladder for one trade at one price. Exit rules
// are checked in priority order and the first hit wins; only when no exit
// fires does the monitor advance the trailing state and raise advisor
// triggers.
func (m *Monitor) evaluate(ctx context.Context, trade domain.Trade, price float64) {
	if price <= 0 {
		return
	}

	if price >= trade.TakeProfit {
		m.flagForClosure(ctx, trade, domain.StatusClosingTakeProfit)
		return
	}
	if price <= trade.StopLoss {
		to := domain.StatusClosingStopLoss
		if trade.TrailingStopActive {
			to = domain.StatusClosingTrailingStop
		}
		m.flagForClosure(ctx, trade, to)
		return
	}

	profile := m.profileCache.Get(trade.UserID)
	if profile == nil {
		return
	}

	m.recordHigh(ctx, &trade, price)
	m.manageTrailing(ctx, &trade, price, profile)
	m.checkGuardian(ctx, trade, price, profile)
	m.notifyProfit(ctx, &trade, price, profile)
	m.publish(trade)
}

// flagForClosure moves the trade from active into a closing_* state with a
// conditional transition. Losing the race means someone else already flagged
// or closed it; either way the trade leaves the index, and the synchronizer
// restores it on the next rebuild if it rolled back to active.
func (m *Monitor) flagForClosure(ctx context.Context, trade domain.Trade, to domain.TradeStatus) {
	applied, err := m.trades.TransitionStatus(ctx, trade.ID, domain.StatusActive, to)
	if err != nil {
		m.logger.Error(ctx, err, "Failed to flag trade for closure", map[string]interface{}{
			"tradeID": trade.ID, "symbol": trade.Symbol, "to": string(to),
		})
		return
	}
	if applied {
		metrics.ExitsFlagged.WithLabelValues(string(domain.CloseReasonForStatus(to))).Inc()
		m.logger.Info(ctx, "Trade flagged for closure", map[string]interface{}{
			"tradeID": trade.ID, "symbol": trade.Symbol, "to": string(to),
		})
	}
	m.index.Remove(trade.ID, trade.Symbol)
	metrics.OpenPositions.Set(float64(m.index.Size()))
}

// recordHigh tracks the running peak. Both the trailing stop and the drawdown
// guardian key off it, so it advances whether or not trailing is enabled.
// Persist-then-local so a crashed process never reads a peak ahead of the
// store.
func (m *Monitor) recordHigh(ctx context.Context, trade *domain.Trade, price float64) {
	if price <= trade.HighestPriceSeen {
		return
	}
	if err := m.trades.UpdateHighestPrice(ctx, trade.ID, price); err != nil {
		m.logger.Error(ctx, err, "Failed to record new high", map[string]interface{}{"tradeID": trade.ID})
		return
	}
	trade.HighestPriceSeen = price
}

// manageTrailing advances the trailing-stop state: activates the trail once
// the activation threshold is crossed and ratchets the stop below the running
// peak. Every write is persist-then-local.
func (m *Monitor) manageTrailing(ctx context.Context, trade *domain.Trade, price float64, profile *domain.UserTradingProfile) {
	if !profile.TrailingStopEnabled {
		return
	}

	if !trade.TrailingStopActive {
		activation := trade.EntryPrice * (1 + profile.TrailingActivationPct/100)
		if price < activation {
			return
		}
		newStop := trade.EntryPrice * entryGuardMultiplier
		applied, err := m.trades.ActivateTrailing(ctx, trade.ID, newStop)
		if err != nil {
			m.logger.Error(ctx, err, "Failed to activate trailing stop", map[string]interface{}{"tradeID": trade.ID})
			return
		}
		if !applied {
			// Stop already above break-even; just mark the trail locally so
			// ratcheting starts.
			trade.TrailingStopActive = true
			return
		}
		trade.TrailingStopActive = true
		trade.StopLoss = newStop
		m.logger.Info(ctx, "Trailing stop activated", map[string]interface{}{
			"tradeID": trade.ID, "symbol": trade.Symbol, "stopLoss": newStop,
		})
		m.createNotification(ctx, trade.UserID, trade.ID, domain.NotifyTrailingActive,
			fmt.Sprintf("%s: trailing stop activated at %.8f", trade.Symbol, newStop))
		return
	}

	candidate := trade.HighestPriceSeen * (1 - profile.TrailingCallbackPct/100)
	if candidate <= trade.StopLoss {
		return
	}
	applied, err := m.trades.RaiseStopLoss(ctx, trade.ID, candidate)
	if err != nil {
		m.logger.Error(ctx, err, "Failed to ratchet trailing stop", map[string]interface{}{"tradeID": trade.ID})
		return
	}
	if applied {
		trade.StopLoss = candidate
	}
}

// checkGuardian raises an advisor exit review when the price falls off the
// trade's peak beyond the user's pain threshold. The tick only sounds the
// alarm; whether the dip is a real reversal is the advisor's call, and its
// cooldown absorbs the repeat alarms a drawn-down trade fires on every tick.
func (m *Monitor) checkGuardian(ctx context.Context, trade domain.Trade, price float64, profile *domain.UserTradingProfile) {
	if !profile.GuardianEnabled || trade.HighestPriceSeen <= 0 {
		return
	}
	drawdownPct := (price/trade.HighestPriceSeen - 1) * 100
	if drawdownPct < profile.GuardianDrawdownPct {
		m.logger.Debug(ctx, "Drawdown past guardian threshold, requesting review", map[string]interface{}{
			"tradeID": trade.ID, "symbol": trade.Symbol, "drawdownPct": drawdownPct,
		})
		m.advisor.TriggerExitReview(ctx, trade)
	}
}

// notifyProfit emits a notification each time the price clears another
// increment over the last notified level (the entry price initially), and
// hands the winner to the advisor in case the trend is strong enough to
// extend the target.
func (m *Monitor) notifyProfit(ctx context.Context, trade *domain.Trade, price float64, profile *domain.UserTradingProfile) {
	if profile.ProfitNotifyIncrementPct <= 0 {
		return
	}

	base := trade.LastProfitNotifyPrice
	if base <= 0 {
		base = trade.EntryPrice
	}
	if price < base*(1+profile.ProfitNotifyIncrementPct/100) {
		return
	}

	if err := m.trades.UpdateProfitNotifyPrice(ctx, trade.ID, price); err != nil {
		m.logger.Error(ctx, err, "Failed to record profit notification level", map[string]interface{}{"tradeID": trade.ID})
		return
	}
	trade.LastProfitNotifyPrice = price

	gainPct := (price - trade.EntryPrice) / trade.EntryPrice * 100
	m.createNotification(ctx, trade.UserID, trade.ID, domain.NotifyProfitMilestone,
		fmt.Sprintf("%s: up %.2f%% since entry (%.8f)", trade.Symbol, gainPct, price))
	m.advisor.TriggerExtension(ctx, *trade)
}

// publish merges the fields this evaluation advanced back into the shared
// index. Merges are monotonic so a slow evaluation never rewinds state a
// faster one already published.
func (m *Monitor) publish(trade domain.Trade) {
	m.index.Apply(trade.ID, trade.Symbol, func(t *domain.Trade) {
		if trade.HighestPriceSeen > t.HighestPriceSeen {
			t.HighestPriceSeen = trade.HighestPriceSeen
		}
		if trade.TrailingStopActive {
			t.TrailingStopActive = true
		}
		if trade.StopLoss > t.StopLoss {
			t.StopLoss = trade.StopLoss
		}
		if trade.LastProfitNotifyPrice > t.LastProfitNotifyPrice {
			t.LastProfitNotifyPrice = trade.LastProfitNotifyPrice
		}
	})
}

func (m *Monitor) createNotification(ctx context.Context, userID uuid.UUID, tradeID int64, kind domain.NotificationKind, msg string) {
	n := &domain.Notification{
		UserID:  userID,
		Kind:    kind,
		Message: msg,
		TradeID: tradeID,
	}
	if err := m.notifications.CreateNotification(ctx, n); err != nil {
		m.logger.Error(ctx, err, "Failed to create notification", map[string]interface{}{
			"tradeID": tradeID, "kind": string(kind),
		})
	}
}
