package engine

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradewarden/internal/domain"
	"tradewarden/internal/ports"
)

// PositionIndex maps symbols to the active trades exposed to them. The price
// monitor reads it on every tick batch, so lookups take an RLock only; the
// cache synchronizer swaps the whole map atomically on rebuild. The indexed
// records never leave the index: readers get copies and writers go through
// Apply, so components on different goroutines cannot observe each other's
// half-written updates.
type PositionIndex struct {
	mu       sync.RWMutex
	bySymbol map[string][]*domain.Trade
}

// NewPositionIndex creates an empty position index.
func NewPositionIndex() *PositionIndex {
	return &PositionIndex{bySymbol: make(map[string][]*domain.Trade)}
}

// Replace swaps the whole index for a freshly built one. The given trades are
// copied in; the caller keeps no handle on the indexed records.
func (idx *PositionIndex) Replace(trades []*domain.Trade) {
	bySymbol := make(map[string][]*domain.Trade)
	for _, t := range trades {
		cp := *t
		bySymbol[cp.Symbol] = append(bySymbol[cp.Symbol], &cp)
	}
	idx.mu.Lock()
	idx.bySymbol = bySymbol
	idx.mu.Unlock()
}

// Get returns copies of the active trades indexed under symbol.
func (idx *PositionIndex) Get(symbol string) []domain.Trade {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	trades := idx.bySymbol[symbol]
	out := make([]domain.Trade, len(trades))
	for i, t := range trades {
		out[i] = *t
	}
	return out
}

// All returns a copy of every indexed trade.
func (idx *PositionIndex) All() []domain.Trade {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	all := make([]domain.Trade, 0)
	for _, trades := range idx.bySymbol {
		for _, t := range trades {
			all = append(all, *t)
		}
	}
	return all
}

// Apply runs fn against the indexed record under the write lock and reports
// whether the trade was found. It is how components publish persisted field
// changes to everyone reading the index.
func (idx *PositionIndex) Apply(tradeID int64, symbol string, fn func(*domain.Trade)) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, t := range idx.bySymbol[symbol] {
		if t.ID == tradeID {
			fn(t)
			return true
		}
	}
	return false
}

// Add indexes a freshly opened trade so monitoring starts before the next
// synchronizer rebuild.
func (idx *PositionIndex) Add(trade *domain.Trade) {
	cp := *trade
	idx.mu.Lock()
	idx.bySymbol[cp.Symbol] = append(idx.bySymbol[cp.Symbol], &cp)
	idx.mu.Unlock()
}

// Remove drops a trade from the index once it has been flagged for closure.
// Removing a trade that is not present is a no-op.
func (idx *PositionIndex) Remove(tradeID int64, symbol string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	trades := idx.bySymbol[symbol]
	for i, t := range trades {
		if t.ID == tradeID {
			idx.bySymbol[symbol] = append(trades[:i], trades[i+1:]...)
			if len(idx.bySymbol[symbol]) == 0 {
				delete(idx.bySymbol, symbol)
			}
			return
		}
	}
}

// Size returns the number of indexed trades.
func (idx *PositionIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	n := 0
	for _, trades := range idx.bySymbol {
		n += len(trades)
	}
	return n
}

// ProfileCache holds the eligible user profiles between synchronizer rebuilds
// so the hot loops never touch the store for configuration reads.
type ProfileCache struct {
	mu     sync.RWMutex
	byUser map[uuid.UUID]*domain.UserTradingProfile
}

// NewProfileCache creates an empty profile cache.
func NewProfileCache() *ProfileCache {
	return &ProfileCache{byUser: make(map[uuid.UUID]*domain.UserTradingProfile)}
}

// Replace swaps the cached profiles for a freshly loaded set.
func (c *ProfileCache) Replace(profiles []*domain.UserTradingProfile) {
	byUser := make(map[uuid.UUID]*domain.UserTradingProfile, len(profiles))
	for _, p := range profiles {
		byUser[p.UserID] = p
	}
	c.mu.Lock()
	c.byUser = byUser
	c.mu.Unlock()
}

// Get returns the cached profile for a user, or nil if the user is not
// currently eligible.
func (c *ProfileCache) Get(userID uuid.UUID) *domain.UserTradingProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byUser[userID]
}

// All returns every cached profile.
func (c *ProfileCache) All() []*domain.UserTradingProfile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	all := make([]*domain.UserTradingProfile, 0, len(c.byUser))
	for _, p := range c.byUser {
		all = append(all, p)
	}
	return all
}

// UserIDs returns the IDs of every cached (eligible) user.
func (c *ProfileCache) UserIDs() []uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(c.byUser))
	for id := range c.byUser {
		ids = append(ids, id)
	}
	return ids
}

// GatewayFactory builds an authenticated exchange gateway from stored
// credentials.
type GatewayFactory func(creds *domain.APICredentials) (ports.ExchangeGateway, error)

type session struct {
	gateway   ports.ExchangeGateway
	createdAt time.Time
}

// SessionCache holds per-user authenticated exchange gateways. Sessions are
// built lazily from stored credentials, aged out after TTL, and invalidated
// immediately when the exchange rejects their keys.
type SessionCache struct {
	mu       sync.Mutex
	byUser   map[uuid.UUID]*session
	factory  GatewayFactory
	creds    ports.CredentialsRepository
	ttl      time.Duration
	logger   ports.Logger
}

// NewSessionCache creates a session cache.
func NewSessionCache(factory GatewayFactory, creds ports.CredentialsRepository, ttl time.Duration, logger ports.Logger) *SessionCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionCache{
		byUser:  make(map[uuid.UUID]*session),
		factory: factory,
		creds:   creds,
		ttl:     ttl,
		logger:  logger,
	}
}

// Get returns the user's authenticated gateway, building one from stored
// credentials if needed. It returns ErrCredentialsMissing when the user has
// no usable keys.
func (c *SessionCache) Get(ctx context.Context, userID uuid.UUID) (ports.ExchangeGateway, error) {
	c.mu.Lock()
	if s, ok := c.byUser[userID]; ok && time.Since(s.createdAt) < c.ttl {
		c.mu.Unlock()
		return s.gateway, nil
	}
	c.mu.Unlock()

	creds, err := c.creds.FindValidCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	gateway, err := c.factory(creds)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.closeSession(c.byUser[userID])
	c.byUser[userID] = &session{gateway: gateway, createdAt: time.Now()}
	c.mu.Unlock()
	return gateway, nil
}

// Invalidate drops the user's session and marks their stored credentials
// invalid so no new session is built until fresh keys arrive.
func (c *SessionCache) Invalidate(ctx context.Context, userID uuid.UUID) {
	c.mu.Lock()
	old := c.byUser[userID]
	delete(c.byUser, userID)
	c.mu.Unlock()
	c.closeSession(old)

	if err := c.creds.MarkCredentialsInvalid(ctx, userID); err != nil {
		c.logger.Error(ctx, err, "Failed to mark credentials invalid", map[string]interface{}{"userID": userID.String()})
	}
}

// Evict drops the user's cached session without touching stored credentials,
// used when the user falls out of the eligible set.
func (c *SessionCache) Evict(userID uuid.UUID) {
	c.mu.Lock()
	old := c.byUser[userID]
	delete(c.byUser, userID)
	c.mu.Unlock()
	c.closeSession(old)
}

// closeSession releases a dropped gateway's resources off the caller's path.
// Gateways with nothing to release simply do not implement io.Closer.
func (c *SessionCache) closeSession(s *session) {
	if s == nil {
		return
	}
	closer, ok := s.gateway.(io.Closer)
	if !ok {
		return
	}
	go func() {
		if err := closer.Close(); err != nil {
			c.logger.Warn(context.Background(), "Failed to close dropped exchange session", map[string]interface{}{"error": err.Error()})
		}
	}()
}
