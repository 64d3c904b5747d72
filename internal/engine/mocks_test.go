package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradewarden/internal/domain"
	"tradewarden/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// fakeTradeRepo is an in-memory TradeRepository with the same conditional
// semantics as the real store, so races and replays behave the same way in
// tests.
type fakeTradeRepo struct {
	mu        sync.Mutex
	seq       int64
	trades    map[int64]*domain.Trade
	createErr error
}

func newFakeTradeRepo() *fakeTradeRepo {
	return &fakeTradeRepo{trades: make(map[int64]*domain.Trade)}
}

func (r *fakeTradeRepo) add(t *domain.Trade) *domain.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	cp := *t
	cp.ID = r.seq
	r.trades[cp.ID] = &cp
	return &cp
}

func (r *fakeTradeRepo) get(id int64) *domain.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.trades[id]
	return &cp
}

func (r *fakeTradeRepo) Create(ctx context.Context, trade *domain.Trade) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return 0, r.createErr
	}
	for _, t := range r.trades {
		if t.UserID == trade.UserID && t.Symbol == trade.Symbol && t.Status == domain.StatusActive {
			return 0, ports.ErrDuplicateEntry
		}
	}
	r.seq++
	cp := *trade
	cp.ID = r.seq
	r.trades[cp.ID] = &cp
	return cp.ID, nil
}

func (r *fakeTradeRepo) FindByID(ctx context.Context, id int64) (*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trades[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTradeRepo) FindOpenForUsers(ctx context.Context, userIDs []uuid.UUID) ([]*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		wanted[id] = true
	}
	var out []*domain.Trade
	for _, t := range r.trades {
		if t.Status == domain.StatusActive && wanted[t.UserID] {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeTradeRepo) FindFlaggedForClosure(ctx context.Context) ([]*domain.Trade, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Trade
	for _, t := range r.trades {
		if t.Status.IsClosing() {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeTradeRepo) TransitionStatus(ctx context.Context, id int64, from, to domain.TradeStatus) (bool, error) {
	if !domain.CanTransition(from, to) {
		return false, fmt.Errorf("%s -> %s: %w", from, to, ports.ErrInvalidTransition)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trades[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = to
	t.ClaimedAt = time.Time{}
	return true, nil
}

func (r *fakeTradeRepo) ClaimForClosure(ctx context.Context, id int64, status domain.TradeStatus, staleBefore time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trades[id]
	if !ok || t.Status != status {
		return false, nil
	}
	if !t.ClaimedAt.IsZero() && !t.ClaimedAt.Before(staleBefore) {
		return false, nil
	}
	t.ClaimedAt = time.Now()
	return true, nil
}

func (r *fakeTradeRepo) RecordClose(ctx context.Context, id int64, from domain.TradeStatus, exitPrice, pnl float64, reason domain.CloseReason) (bool, error) {
	if !domain.CanTransition(from, domain.StatusClosed) {
		return false, fmt.Errorf("%s -> closed: %w", from, ports.ErrInvalidTransition)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trades[id]
	if !ok || t.Status != from {
		return false, nil
	}
	t.Status = domain.StatusClosed
	t.ExitPrice = exitPrice
	t.RealizedPnL = pnl
	t.CloseReason = reason
	t.ClosedAt = time.Now()
	return true, nil
}

func (r *fakeTradeRepo) UpdateHighestPrice(ctx context.Context, id int64, price float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.trades[id]; ok && price > t.HighestPriceSeen {
		t.HighestPriceSeen = price
	}
	return nil
}

func (r *fakeTradeRepo) ActivateTrailing(ctx context.Context, id int64, newStop float64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trades[id]
	if !ok || t.TrailingStopActive || t.StopLoss >= newStop {
		return false, nil
	}
	t.TrailingStopActive = true
	t.StopLoss = newStop
	return true, nil
}

func (r *fakeTradeRepo) RaiseStopLoss(ctx context.Context, id int64, newStop float64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trades[id]
	if !ok || t.StopLoss >= newStop {
		return false, nil
	}
	t.StopLoss = newStop
	return true, nil
}

func (r *fakeTradeRepo) RaiseTakeProfit(ctx context.Context, id int64, newTarget float64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.trades[id]
	if !ok || t.TakeProfit >= newTarget {
		return false, nil
	}
	t.TakeProfit = newTarget
	return true, nil
}

func (r *fakeTradeRepo) UpdateProfitNotifyPrice(ctx context.Context, id int64, price float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.trades[id]; ok {
		t.LastProfitNotifyPrice = price
	}
	return nil
}

func (r *fakeTradeRepo) CountActiveForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, t := range r.trades {
		if t.UserID == userID && t.Status == domain.StatusActive {
			n++
		}
	}
	return n, nil
}

func (r *fakeTradeRepo) HasOpenForSymbol(ctx context.Context, userID uuid.UUID, symbol string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.trades {
		if t.UserID == userID && t.Symbol == symbol && t.Status == domain.StatusActive {
			return true, nil
		}
	}
	return false, nil
}

type fakeProfileRepo struct {
	mu       sync.Mutex
	profiles map[uuid.UUID]*domain.UserTradingProfile
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: make(map[uuid.UUID]*domain.UserTradingProfile)}
}

func (r *fakeProfileRepo) FindEligibleProfiles(ctx context.Context) ([]*domain.UserTradingProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var out []*domain.UserTradingProfile
	for _, p := range r.profiles {
		if p.Eligible(now) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeProfileRepo) FindProfileByUser(ctx context.Context, userID uuid.UUID) (*domain.UserTradingProfile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakeProfileRepo) SaveProfile(ctx context.Context, profile *domain.UserTradingProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *profile
	r.profiles[profile.UserID] = &cp
	return nil
}

type fakeCredsRepo struct {
	mu          sync.Mutex
	creds       map[uuid.UUID]*domain.APICredentials
	invalidated map[uuid.UUID]bool
}

func newFakeCredsRepo() *fakeCredsRepo {
	return &fakeCredsRepo{
		creds:       make(map[uuid.UUID]*domain.APICredentials),
		invalidated: make(map[uuid.UUID]bool),
	}
}

func (r *fakeCredsRepo) FindValidCredentials(ctx context.Context, userID uuid.UUID) (*domain.APICredentials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[userID]
	if !ok || r.invalidated[userID] {
		return nil, ports.ErrCredentialsMissing
	}
	cp := *c
	return &cp, nil
}

func (r *fakeCredsRepo) MarkCredentialsInvalid(ctx context.Context, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidated[userID] = true
	return nil
}

func (r *fakeCredsRepo) SaveCredentials(ctx context.Context, creds *domain.APICredentials) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *creds
	r.creds[creds.UserID] = &cp
	r.invalidated[creds.UserID] = false
	return nil
}

func (r *fakeCredsRepo) wasInvalidated(userID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invalidated[userID]
}

type fakeNotifRepo struct {
	mu    sync.Mutex
	notes []*domain.Notification
}

func (r *fakeNotifRepo) CreateNotification(ctx context.Context, n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *n
	r.notes = append(r.notes, &cp)
	return nil
}

func (r *fakeNotifRepo) byKind(kind domain.NotificationKind) []*domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Notification
	for _, n := range r.notes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type exitReview struct {
	reason       string
	score        int
	highestAfter float64
	lowestAfter  float64
	notes        string
}

type fakeJournalRepo struct {
	mu      sync.Mutex
	entries map[int64]*domain.JournalEntry
	reviews map[int64]*exitReview
}

func newFakeJournalRepo() *fakeJournalRepo {
	return &fakeJournalRepo{
		entries: make(map[int64]*domain.JournalEntry),
		reviews: make(map[int64]*exitReview),
	}
}

func (r *fakeJournalRepo) CreateJournalEntry(ctx context.Context, e *domain.JournalEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[e.TradeID]; ok {
		return nil
	}
	cp := *e
	r.entries[e.TradeID] = &cp
	return nil
}

func (r *fakeJournalRepo) RecordExitReview(ctx context.Context, tradeID int64, exitReason string, score int, highestAfter, lowestAfter float64, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reviews[tradeID] = &exitReview{
		reason: exitReason, score: score,
		highestAfter: highestAfter, lowestAfter: lowestAfter, notes: notes,
	}
	return nil
}

// fakeGateway is a configurable ExchangeGateway double.
type fakeGateway struct {
	mu sync.Mutex

	prices  map[string]float64
	tickers []*domain.Ticker
	klines  map[string][]*domain.Kline
	books   map[string]*domain.OrderBook
	rules   map[string]*ports.MarketRules
	balance float64
	// balances, when set, is consumed one value per balance read before
	// falling back to balance.
	balances []float64

	buyResult  *ports.OrderResult
	buyErr     error
	sellResult *ports.OrderResult
	sellErr    error

	buyCalls  int
	sellCalls int
	buys      []float64 // quote amounts
	sells     []float64 // quantities
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		prices: make(map[string]float64),
		klines: make(map[string][]*domain.Kline),
		books:  make(map[string]*domain.OrderBook),
		rules:  make(map[string]*ports.MarketRules),
	}
}

func (g *fakeGateway) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.prices[symbol]
	if !ok {
		return 0, ports.ErrNotFound
	}
	return p, nil
}

func (g *fakeGateway) ListTickers(ctx context.Context) ([]*domain.Ticker, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.tickers, nil
}

func (g *fakeGateway) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ks, ok := g.klines[symbol]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return ks, nil
}

func (g *fakeGateway) GetOrderBook(ctx context.Context, symbol string, limit int) (*domain.OrderBook, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.books[symbol]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return b, nil
}

func (g *fakeGateway) GetMarketRules(ctx context.Context, symbol string) (*ports.MarketRules, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.rules[symbol]
	if !ok {
		return &ports.MarketRules{Symbol: symbol, MinNotional: 10, StepSize: 0.0001}, nil
	}
	return r, nil
}

func (g *fakeGateway) GetAvailableBalance(ctx context.Context, asset string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.balances) > 0 {
		b := g.balances[0]
		g.balances = g.balances[1:]
		return b, nil
	}
	return g.balance, nil
}

func (g *fakeGateway) PlaceMarketBuy(ctx context.Context, symbol string, quoteAmount float64) (*ports.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.buyCalls++
	g.buys = append(g.buys, quoteAmount)
	if g.buyErr != nil {
		return nil, g.buyErr
	}
	if g.buyResult != nil {
		cp := *g.buyResult
		cp.Symbol = symbol
		return &cp, nil
	}
	price := g.prices[symbol]
	return &ports.OrderResult{
		OrderID: int64(g.buyCalls), Symbol: symbol, Status: "FILLED",
		AvgPrice: price, ExecutedQty: quoteAmount / price, Timestamp: time.Now(),
	}, nil
}

func (g *fakeGateway) PlaceMarketSell(ctx context.Context, symbol string, quantity float64) (*ports.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sellCalls++
	g.sells = append(g.sells, quantity)
	if g.sellErr != nil {
		return nil, g.sellErr
	}
	if g.sellResult != nil {
		cp := *g.sellResult
		cp.Symbol = symbol
		return &cp, nil
	}
	price := g.prices[symbol]
	return &ports.OrderResult{
		OrderID: int64(g.sellCalls), Symbol: symbol, Status: "FILLED",
		AvgPrice: price, ExecutedQty: quantity, Timestamp: time.Now(),
	}, nil
}

func (g *fakeGateway) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	return nil
}

func (g *fakeGateway) Ping(ctx context.Context) error { return nil }

func (g *fakeGateway) sellCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sellCalls
}

// fakeAnalysisTrigger records the trades handed to the advisor.
type fakeAnalysisTrigger struct {
	mu          sync.Mutex
	exitReviews []domain.Trade
	extensions  []domain.Trade
}

func (f *fakeAnalysisTrigger) TriggerExitReview(ctx context.Context, trade domain.Trade) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exitReviews = append(f.exitReviews, trade)
}

func (f *fakeAnalysisTrigger) TriggerExtension(ctx context.Context, trade domain.Trade) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extensions = append(f.extensions, trade)
}

func (f *fakeAnalysisTrigger) exitReviewCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.exitReviews)
}

func (f *fakeAnalysisTrigger) extensionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.extensions)
}

// staticFactory returns the same gateway for every credential set.
func staticFactory(gateway ports.ExchangeGateway) GatewayFactory {
	return func(creds *domain.APICredentials) (ports.ExchangeGateway, error) {
		return gateway, nil
	}
}
