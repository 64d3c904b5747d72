package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradewarden/internal/domain"
	"tradewarden/internal/metrics"
	"tradewarden/internal/ports"
	"tradewarden/internal/risk"
	"tradewarden/internal/strategy"
	"tradewarden/internal/strategy/indicators"
)

const (
	quoteAsset = "USDT"

	scanKlineInterval = "15m"
	scanKlineLimit    = 100
	scanBookDepth     = 20

	// skipNotifyCooldown spaces out scan-skipped notifications per user so a
	// standing condition (full slots, low balance) does not flood the feed on
	// every pass.
	skipNotifyCooldown = time.Hour
)

// Scanner hunts entries for every eligible user. Each pass ranks the market
// by quote volume once, then evaluates every user's strategy set against
// their share of it, respecting slots, balance and exchange rules before
// committing funds.
type Scanner struct {
	trades        ports.TradeRepository
	journal       ports.JournalRepository
	notifications ports.NotificationRepository
	sessions      *SessionCache
	public        ports.ExchangeGateway
	profileCache  *ProfileCache
	index         *PositionIndex
	registry      *strategy.Registry
	riskMgr       *risk.Manager

	interval    time.Duration
	concurrency int
	logger      ports.Logger

	mu           sync.Mutex
	lastSkipNote map[uuid.UUID]time.Time
}

// ScannerConfig holds the dependencies for creating a Scanner.
type ScannerConfig struct {
	Trades        ports.TradeRepository
	Journal       ports.JournalRepository
	Notifications ports.NotificationRepository
	Sessions      *SessionCache
	PublicGateway ports.ExchangeGateway
	ProfileCache  *ProfileCache
	Index         *PositionIndex
	Registry      *strategy.Registry

	Interval time.Duration
	// Concurrency bounds how many users are scanned in parallel.
	Concurrency int
	Logger      ports.Logger
}

// NewScanner creates a market scanner.
func NewScanner(cfg ScannerConfig) (*Scanner, error) {
	if cfg.Trades == nil || cfg.Journal == nil || cfg.Notifications == nil ||
		cfg.Sessions == nil || cfg.PublicGateway == nil || cfg.ProfileCache == nil ||
		cfg.Index == nil || cfg.Registry == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for scanner")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Scanner{
		trades:        cfg.Trades,
		journal:       cfg.Journal,
		notifications: cfg.Notifications,
		sessions:      cfg.Sessions,
		public:        cfg.PublicGateway,
		profileCache:  cfg.ProfileCache,
		index:         cfg.Index,
		registry:      cfg.Registry,
		riskMgr:       risk.NewManager(),
		interval:      cfg.Interval,
		concurrency:   cfg.Concurrency,
		logger:        cfg.Logger,
		lastSkipNote:  make(map[uuid.UUID]time.Time),
	}, nil
}

// Run scans on every tick until the context is cancelled.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Pass(ctx); err != nil {
				s.logger.Error(ctx, err, "Scan pass failed")
			}
		}
	}
}

// Pass runs one full scan over all eligible users. The liquidity ranking is
// fetched once and shared; per-user work runs on a bounded worker set.
func (s *Scanner) Pass(ctx context.Context) error {
	profiles := s.profileCache.All()
	if len(profiles) == 0 {
		return nil
	}

	tickers, err := s.public.ListTickers(ctx)
	if err != nil {
		return fmt.Errorf("listing tickers: %w", err)
	}
	ranked := rankByVolume(tickers)

	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup
	for _, profile := range profiles {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(p *domain.UserTradingProfile) {
			defer wg.Done()
			defer func() { <-sem }()
			s.scanUser(ctx, p, ranked)
		}(profile)
	}
	wg.Wait()
	return ctx.Err()
}

// rankByVolume filters to quote-asset pairs and sorts by 24h quote volume,
// most liquid first.
func rankByVolume(tickers []*domain.Ticker) []*domain.Ticker {
	ranked := make([]*domain.Ticker, 0, len(tickers))
	for _, t := range tickers {
		if strings.HasSuffix(t.Symbol, quoteAsset) {
			ranked = append(ranked, t)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].QuoteVolume > ranked[j].QuoteVolume
	})
	return ranked
}

// candidateSymbols applies the user's liquidity and blacklist filters to the
// shared ranking.
func candidateSymbols(profile *domain.UserTradingProfile, ranked []*domain.Ticker) []string {
	limit := profile.TopSymbolsByVolume
	if limit <= 0 {
		limit = 20
	}
	symbols := make([]string, 0, limit)
	for _, t := range ranked {
		if len(symbols) >= limit {
			break
		}
		if profile.MinQuoteVolume > 0 && t.QuoteVolume < profile.MinQuoteVolume {
			continue
		}
		base := strings.TrimSuffix(t.Symbol, quoteAsset)
		if profile.IsBlacklisted(base) {
			continue
		}
		symbols = append(symbols, t.Symbol)
	}
	return symbols
}

// scanUser evaluates one user's strategies against their candidate symbols
// and opens positions for firing signals, up to the user's free slots.
func (s *Scanner) scanUser(ctx context.Context, profile *domain.UserTradingProfile, ranked []*domain.Ticker) {
	fields := map[string]interface{}{"userID": profile.UserID.String()}

	resolved := s.registry.Resolve(ctx, profile.Strategies)
	if len(resolved) == 0 {
		return
	}

	active, err := s.trades.CountActiveForUser(ctx, profile.UserID)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to count active trades", fields)
		return
	}
	slots := s.riskMgr.FreeSlots(profile, active)
	if slots == 0 {
		s.notifySkip(ctx, profile.UserID,
			fmt.Sprintf("Scan skipped: all %d position slots are in use", profile.MaxConcurrentPositions))
		return
	}

	gateway, err := s.sessions.Get(ctx, profile.UserID)
	if err != nil {
		if errors.Is(err, ports.ErrCredentialsMissing) {
			s.logger.Debug(ctx, "Skipping scan: no valid credentials", fields)
			return
		}
		s.logger.Error(ctx, err, "Failed to build exchange session for scan", fields)
		return
	}

	balance, err := gateway.GetAvailableBalance(ctx, quoteAsset)
	if err != nil {
		if ports.IsCredentialError(err) {
			s.invalidateSession(ctx, profile.UserID)
		} else {
			s.logger.Error(ctx, err, "Failed to fetch balance", fields)
		}
		return
	}
	if !s.riskMgr.CanAfford(profile, balance) {
		s.logger.Debug(ctx, "Skipping scan: balance below trade size", map[string]interface{}{
			"userID": profile.UserID.String(), "balance": balance, "tradeSize": profile.TradeSizeQuote,
		})
		s.notifySkip(ctx, profile.UserID,
			fmt.Sprintf("Scan skipped: available balance %.2f %s is below your trade size %.2f", balance, quoteAsset, profile.TradeSizeQuote))
		return
	}

	needsBook := false
	for _, r := range resolved {
		if r.Strategy.Name() == "whale_radar" {
			needsBook = true
			break
		}
	}

	for _, symbol := range candidateSymbols(profile, ranked) {
		if ctx.Err() != nil || slots <= 0 {
			break
		}

		hasOpen, err := s.trades.HasOpenForSymbol(ctx, profile.UserID, symbol)
		if err != nil {
			s.logger.Error(ctx, err, "Failed to check open position", fields)
			continue
		}
		if hasOpen {
			continue
		}

		snap, err := s.buildSnapshot(ctx, symbol, needsBook)
		if err != nil {
			s.logger.Warn(ctx, "Skipping symbol: market data unavailable", map[string]interface{}{
				"symbol": symbol, "error": err.Error(),
			})
			continue
		}

		reasons := s.evaluate(ctx, resolved, snap)
		if len(reasons) == 0 {
			continue
		}

		if opened := s.enterPosition(ctx, gateway, profile, snap, reasons); opened {
			slots--
		}
	}

	metrics.ScansCompleted.Inc()
}

// buildSnapshot fetches the market data a strategy evaluation needs. The
// order book is only fetched when a book-reading strategy is enabled.
func (s *Scanner) buildSnapshot(ctx context.Context, symbol string, withBook bool) (*ports.MarketSnapshot, error) {
	klines, err := s.public.GetKlines(ctx, symbol, scanKlineInterval, scanKlineLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching klines: %w", err)
	}
	snap := &ports.MarketSnapshot{Symbol: symbol, Klines: klines}

	if withBook {
		book, err := s.public.GetOrderBook(ctx, symbol, scanBookDepth)
		if err != nil {
			// Book strategies pass quietly without a book; the others do not
			// need it.
			s.logger.Warn(ctx, "Order book unavailable", map[string]interface{}{"symbol": symbol})
		} else {
			snap.OrderBook = book
		}
	}

	if ticker, err := s.public.GetTickerPrice(ctx, symbol); err == nil {
		snap.Ticker = &domain.Ticker{Symbol: symbol, LastPrice: ticker}
	}
	return snap, nil
}

// evaluate runs every enabled strategy against the snapshot and collects the
// reasons of those that fired. A failing strategy is logged and skipped so
// one misconfigured predicate cannot silence the rest.
func (s *Scanner) evaluate(ctx context.Context, resolved []strategy.ResolvedStrategy, snap *ports.MarketSnapshot) []string {
	var reasons []string
	for _, r := range resolved {
		sig, err := r.Strategy.Evaluate(ctx, snap, r.Params)
		if err != nil {
			s.logger.Warn(ctx, "Strategy evaluation failed", map[string]interface{}{
				"strategy": r.Strategy.Name(), "symbol": snap.Symbol, "error": err.Error(),
			})
			continue
		}
		if sig != nil {
			reasons = append(reasons, sig.Reason)
		}
	}
	return reasons
}

// enterPosition commits funds for a signal: checks exchange rules, places the
// market buy, computes exit levels from volatility, and persists the trade.
// A buy that cannot be persisted is unwound immediately.
func (s *Scanner) enterPosition(ctx context.Context, gateway ports.ExchangeGateway, profile *domain.UserTradingProfile, snap *ports.MarketSnapshot, reasons []string) bool {
	symbol := snap.Symbol
	fields := map[string]interface{}{"userID": profile.UserID.String(), "symbol": symbol}

	rules, err := s.public.GetMarketRules(ctx, symbol)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to fetch market rules", fields)
		return false
	}
	if err := s.riskMgr.ValidateOrderSize(profile, rules); err != nil {
		s.logger.Warn(ctx, "Trade size below exchange minimum", map[string]interface{}{
			"userID": profile.UserID.String(), "symbol": symbol,
			"tradeSize": profile.TradeSizeQuote, "minNotional": rules.MinNotional,
		})
		s.notifySkip(ctx, profile.UserID,
			fmt.Sprintf("%s: configured trade size %.2f is below the exchange minimum", symbol, profile.TradeSizeQuote))
		return false
	}

	// Earlier signals in this pass, or activity outside the engine, may have
	// spent the balance read at scan start; re-check right before committing
	// funds.
	balance, err := gateway.GetAvailableBalance(ctx, quoteAsset)
	if err != nil {
		if ports.IsCredentialError(err) {
			s.invalidateSession(ctx, profile.UserID)
		} else {
			s.logger.Error(ctx, err, "Failed to re-check balance before entry", fields)
		}
		return false
	}
	if !s.riskMgr.CanAfford(profile, balance) {
		s.logger.Debug(ctx, "Entry aborted: balance no longer covers trade size", map[string]interface{}{
			"userID": profile.UserID.String(), "symbol": symbol, "balance": balance,
		})
		s.notifySkip(ctx, profile.UserID,
			fmt.Sprintf("%s: entry skipped, available balance %.2f no longer covers trade size %.2f", symbol, balance, profile.TradeSizeQuote))
		return false
	}

	result, err := gateway.PlaceMarketBuy(ctx, symbol, profile.TradeSizeQuote)
	if err != nil {
		if ports.IsCredentialError(err) {
			s.invalidateSession(ctx, profile.UserID)
			s.notify(ctx, profile.UserID, 0, domain.NotifyCredentialsError,
				"Exchange rejected your API keys while opening a position")
			return false
		}
		s.logger.Error(ctx, err, "Failed to place entry order", fields)
		return false
	}

	entryPrice := result.AvgPrice
	if entryPrice <= 0 {
		entryPrice = snap.Klines[len(snap.Klines)-1].Close
	}

	stopLoss, takeProfit := s.riskMgr.ExitLevels(snap.Klines, entryPrice, profile)
	now := time.Now().UTC()
	trade := &domain.Trade{
		UserID:                profile.UserID,
		Symbol:                symbol,
		EntryPrice:            entryPrice,
		Quantity:              result.ExecutedQty,
		TakeProfit:            takeProfit,
		StopLoss:              stopLoss,
		HighestPriceSeen:      entryPrice,
		LastProfitNotifyPrice: entryPrice,
		Status:                domain.StatusActive,
		OpenedAt:              now,
		OpenReason:            strings.Join(reasons, " + "),
	}

	id, err := s.trades.Create(ctx, trade)
	if err != nil {
		s.logger.Error(ctx, err, "Bought but failed to persist trade; unwinding", fields)
		s.unwindBuy(ctx, gateway, symbol, rules, result.ExecutedQty)
		return false
	}
	trade.ID = id

	s.index.Add(trade)
	metrics.OpenPositions.Set(float64(s.index.Size()))
	for _, reason := range reasons {
		metrics.SignalsFired.WithLabelValues(reason).Inc()
	}

	s.writeJournalEntry(ctx, trade, snap)
	s.notify(ctx, profile.UserID, id, domain.NotifyPositionOpened,
		fmt.Sprintf("%s opened at %.8f (%s), target %.8f, stop %.8f", symbol, entryPrice, trade.OpenReason, takeProfit, stopLoss))

	s.logger.Info(ctx, "Position opened", map[string]interface{}{
		"tradeID": id, "userID": profile.UserID.String(), "symbol": symbol,
		"entry": entryPrice, "quantity": result.ExecutedQty,
		"takeProfit": takeProfit, "stopLoss": stopLoss, "reason": trade.OpenReason,
	})
	return true
}

// unwindBuy sells back a fill whose trade row could not be written, so no
// position exists on the exchange that the engine does not track.
func (s *Scanner) unwindBuy(ctx context.Context, gateway ports.ExchangeGateway, symbol string, rules *ports.MarketRules, quantity float64) {
	qty := rules.FloorQuantity(quantity)
	if qty <= 0 {
		return
	}
	if _, err := gateway.PlaceMarketSell(ctx, symbol, qty); err != nil {
		s.logger.Error(ctx, err, "Failed to unwind orphaned buy", map[string]interface{}{
			"symbol": symbol, "quantity": qty,
		})
	}
}

// writeJournalEntry snapshots the market state the position was opened in.
func (s *Scanner) writeJournalEntry(ctx context.Context, trade *domain.Trade, snap *ports.MarketSnapshot) {
	entry := &domain.JournalEntry{
		TradeID:       trade.ID,
		UserID:        trade.UserID,
		EntryStrategy: trade.OpenReason,
	}
	if rsi, err := indicators.RSI(snap.Klines, 14); err == nil {
		entry.EntryRSI = rsi
	}
	if adx, err := indicators.ADX(snap.Klines, 14); err == nil {
		entry.EntryTrend = adx
	}
	if err := s.journal.CreateJournalEntry(ctx, entry); err != nil {
		s.logger.Error(ctx, err, "Failed to write journal entry", map[string]interface{}{"tradeID": trade.ID})
	}
}

// notifySkip records a scan-skipped notification at most once per user per
// cooldown window.
func (s *Scanner) notifySkip(ctx context.Context, userID uuid.UUID, msg string) {
	s.mu.Lock()
	if last, ok := s.lastSkipNote[userID]; ok && time.Since(last) < skipNotifyCooldown {
		s.mu.Unlock()
		return
	}
	s.lastSkipNote[userID] = time.Now()
	s.mu.Unlock()
	s.notify(ctx, userID, 0, domain.NotifyScanSkipped, msg)
}

func (s *Scanner) invalidateSession(ctx context.Context, userID uuid.UUID) {
	s.sessions.Invalidate(ctx, userID)
	metrics.CredentialFailures.Inc()
}

func (s *Scanner) notify(ctx context.Context, userID uuid.UUID, tradeID int64, kind domain.NotificationKind, msg string) {
	n := &domain.Notification{UserID: userID, Kind: kind, Message: msg, TradeID: tradeID}
	if err := s.notifications.CreateNotification(ctx, n); err != nil {
		s.logger.Error(ctx, err, "Failed to create notification", map[string]interface{}{"userID": userID.String()})
	}
}
