package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradewarden/internal/domain"
	"tradewarden/internal/metrics"
	"tradewarden/internal/ports"
	"tradewarden/internal/strategy/indicators"
)

const (
	advisorKlineInterval = "15m"
	advisorKlineLimit    = 100
	regimeSymbol         = "BTCUSDT"
	regimeKlineInterval  = "1h"
	regimeLookback       = 10

	// extensionADXMin is the trend strength above which a winning target is
	// pushed further out instead of letting the take profit cap the move.
	extensionADXMin = 30.0

	fastEMAPeriod = 10
	slowEMAPeriod = 30
)

// triggerKind partitions the advisor cooldown so an exit review does not
// consume the budget of a target extension on the same trade.
type triggerKind string

const (
	triggerExitReview triggerKind = "exit_review"
	triggerExtension  triggerKind = "extension"
)

type visitKey struct {
	tradeID int64
	kind    triggerKind
}

// Advisor is the slow judgement layer over open positions. It runs no loop of
// its own: the price monitor fires it when something notable happens on a
// tick, either a drawdown off the trade's peak (exit review) or a fresh
// profit milestone (target extension). Each trigger is evaluated on a bounded
// worker set against candle structure, and a per-trade per-kind cooldown
// keeps a volatile symbol from re-running the same analysis every tick.
type Advisor struct {
	trades        ports.TradeRepository
	notifications ports.NotificationRepository
	public        ports.ExchangeGateway
	index         *PositionIndex
	profileCache  *ProfileCache

	cooldown time.Duration
	sem      chan struct{}
	wg       sync.WaitGroup
	logger   ports.Logger

	mu          sync.Mutex
	lastVisited map[visitKey]time.Time
}

// AdvisorConfig holds the dependencies for creating an Advisor.
type AdvisorConfig struct {
	Trades        ports.TradeRepository
	Notifications ports.NotificationRepository
	PublicGateway ports.ExchangeGateway
	Index         *PositionIndex
	ProfileCache  *ProfileCache

	// Cooldown is the minimum time between two evaluations of the same
	// trigger kind on the same trade.
	Cooldown    time.Duration
	Concurrency int
	Logger      ports.Logger
}

// NewAdvisor creates an advisor.
func NewAdvisor(cfg AdvisorConfig) (*Advisor, error) {
	if cfg.Trades == nil || cfg.Notifications == nil || cfg.PublicGateway == nil ||
		cfg.Index == nil || cfg.ProfileCache == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for advisor")
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Advisor{
		trades:        cfg.Trades,
		notifications: cfg.Notifications,
		public:        cfg.PublicGateway,
		index:         cfg.Index,
		profileCache:  cfg.ProfileCache,
		cooldown:      cfg.Cooldown,
		sem:           make(chan struct{}, cfg.Concurrency),
		logger:        cfg.Logger,
		lastVisited:   make(map[visitKey]time.Time),
	}, nil
}

// TriggerExitReview asks the advisor to judge whether a drawn-down position
// should leave early. It never blocks the caller; the review runs on a
// bounded worker, and repeats inside the cooldown window are dropped.
func (a *Advisor) TriggerExitReview(ctx context.Context, trade domain.Trade) {
	a.submit(ctx, trade, triggerExitReview, a.exitReview)
}

// TriggerExtension asks the advisor to judge whether a winning position's
// target should be pushed further out. Same dispatch contract as
// TriggerExitReview.
func (a *Advisor) TriggerExtension(ctx context.Context, trade domain.Trade) {
	a.submit(ctx, trade, triggerExtension, a.extension)
}

// Wait blocks until every in-flight analysis has finished.
func (a *Advisor) Wait() {
	a.wg.Wait()
}

func (a *Advisor) submit(ctx context.Context, trade domain.Trade, kind triggerKind, fn func(context.Context, domain.Trade)) {
	if !a.visit(trade.ID, kind) {
		return
	}
	metrics.AdvisorRuns.Inc()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		select {
		case a.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-a.sem }()
		if ctx.Err() != nil {
			return
		}
		fn(ctx, trade)
	}()
}

// visit reports whether the trade is off cooldown for the trigger kind and
// stamps it if so. Expired stamps are pruned on the way through so closed
// trades do not accumulate.
func (a *Advisor) visit(tradeID int64, kind triggerKind) bool {
	now := time.Now()
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, stamp := range a.lastVisited {
		if now.Sub(stamp) >= a.cooldown {
			delete(a.lastVisited, k)
		}
	}
	key := visitKey{tradeID: tradeID, kind: kind}
	if last, ok := a.lastVisited[key]; ok && now.Sub(last) < a.cooldown {
		return false
	}
	a.lastVisited[key] = now
	return true
}

// marketRegimeWeak reports whether the broad market lost momentum, measured
// as negative hourly drift on the reference symbol. Fetch failures count as
// not-weak so forced exits never fire on missing data.
func (a *Advisor) marketRegimeWeak(ctx context.Context) bool {
	klines, err := a.public.GetKlines(ctx, regimeSymbol, regimeKlineInterval, regimeLookback+1)
	if err != nil || len(klines) < regimeLookback+1 {
		if err != nil {
			a.logger.Warn(ctx, "Could not read market regime", map[string]interface{}{"error": err.Error()})
		}
		return false
	}
	ref := klines[len(klines)-1-regimeLookback].Close
	last := klines[len(klines)-1].Close
	return ref > 0 && (last-ref)/ref < 0
}

// exitReview confirms or dismisses a drawdown alarm. The tick that fired it
// only proved the price fell off the peak; the review exits only when the
// position's own candle trend has turned down and the broad market is weak
// too, so a healthy dip is left to recover.
func (a *Advisor) exitReview(ctx context.Context, trade domain.Trade) {
	profile := a.profileCache.Get(trade.UserID)
	if profile == nil {
		return
	}
	fields := map[string]interface{}{"tradeID": trade.ID, "symbol": trade.Symbol}

	klines, err := a.public.GetKlines(ctx, trade.Symbol, advisorKlineInterval, advisorKlineLimit)
	if err != nil {
		a.logger.Error(ctx, err, "Advisor could not fetch candles", fields)
		return
	}
	if !trendWeak(klines) {
		a.logger.Debug(ctx, "Drawdown not confirmed, position trend still healthy", fields)
		return
	}
	if !a.marketRegimeWeak(ctx) {
		a.logger.Debug(ctx, "Drawdown not confirmed, broad market still healthy", fields)
		return
	}
	a.recommendExit(ctx, trade, profile,
		fmt.Sprintf("%s: trend turned down in a weak market", trade.Symbol))
}

// extension pushes a strongly trending winner's target out so the take
// profit does not cap the move. ADX measures strength in either direction,
// so only positions already in profit qualify.
func (a *Advisor) extension(ctx context.Context, trade domain.Trade) {
	profile := a.profileCache.Get(trade.UserID)
	if profile == nil {
		return
	}
	fields := map[string]interface{}{"tradeID": trade.ID, "symbol": trade.Symbol}

	klines, err := a.public.GetKlines(ctx, trade.Symbol, advisorKlineInterval, advisorKlineLimit)
	if err != nil {
		a.logger.Error(ctx, err, "Advisor could not fetch candles", fields)
		return
	}
	price := klines[len(klines)-1].Close
	if price <= trade.EntryPrice {
		return
	}
	adx, err := indicators.ADX(klines, 14)
	if err != nil || adx <= extensionADXMin {
		return
	}
	atr, err := indicators.ATR(klines, 14)
	if err != nil || atr <= 0 {
		return
	}
	newTarget := price + atr*profile.RiskRewardRatio
	if newTarget <= trade.TakeProfit {
		return
	}
	applied, err := a.trades.RaiseTakeProfit(ctx, trade.ID, newTarget)
	if err != nil {
		a.logger.Error(ctx, err, "Failed to extend take profit", fields)
		return
	}
	if applied {
		a.index.Apply(trade.ID, trade.Symbol, func(t *domain.Trade) {
			if newTarget > t.TakeProfit {
				t.TakeProfit = newTarget
			}
		})
		a.logger.Info(ctx, "Take profit extended on strong trend", map[string]interface{}{
			"tradeID": trade.ID, "symbol": trade.Symbol, "adx": adx, "newTarget": newTarget,
		})
	}
}

// trendWeak reports whether the fast EMA sits below the slow EMA.
func trendWeak(klines []*domain.Kline) bool {
	fast, err := indicators.EMA(klines, fastEMAPeriod)
	if err != nil {
		return false
	}
	slow, err := indicators.EMA(klines, slowEMAPeriod)
	if err != nil {
		return false
	}
	return fast < slow
}

// recommendExit flags the trade for closure when the user allows automatic
// advisor exits, and otherwise records a warning for them to act on.
func (a *Advisor) recommendExit(ctx context.Context, trade domain.Trade, profile *domain.UserTradingProfile, why string) {
	if !profile.AdvisorAutoClose {
		a.notify(ctx, trade, domain.NotifyWeaknessWarning, why)
		return
	}

	applied, err := a.trades.TransitionStatus(ctx, trade.ID, domain.StatusActive, domain.StatusClosingWiseMan)
	if err != nil {
		a.logger.Error(ctx, err, "Failed to flag advisor exit", map[string]interface{}{"tradeID": trade.ID})
		return
	}
	if applied {
		metrics.ExitsFlagged.WithLabelValues(string(domain.CloseReasonWiseMan)).Inc()
		a.logger.Info(ctx, "Advisor flagged trade for closure", map[string]interface{}{
			"tradeID": trade.ID, "symbol": trade.Symbol, "why": why,
		})
		a.notify(ctx, trade, domain.NotifyWeaknessWarning, why+"; closing position")
	}
	a.index.Remove(trade.ID, trade.Symbol)
	metrics.OpenPositions.Set(float64(a.index.Size()))
}

func (a *Advisor) notify(ctx context.Context, trade domain.Trade, kind domain.NotificationKind, msg string) {
	n := &domain.Notification{UserID: trade.UserID, Kind: kind, Message: msg, TradeID: trade.ID}
	if err := a.notifications.CreateNotification(ctx, n); err != nil {
		a.logger.Error(ctx, err, "Failed to create notification", map[string]interface{}{"tradeID": trade.ID})
	}
}
