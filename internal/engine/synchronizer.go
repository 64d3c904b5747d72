package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tradewarden/internal/metrics"
	"tradewarden/internal/ports"
)

// Synchronizer periodically rebuilds the in-memory caches from the store:
// the eligible profile set and the symbol index of open trades. Everything
// the hot loops read comes from these caches, so a user toggling trading off
// or a subscription lapsing takes effect within one sync interval.
type Synchronizer struct {
	trades   ports.TradeRepository
	profiles ports.ProfileRepository
	sessions *SessionCache

	index        *PositionIndex
	profileCache *ProfileCache
	interval     time.Duration
	logger       ports.Logger
}

// SynchronizerConfig holds the dependencies for creating a Synchronizer.
type SynchronizerConfig struct {
	Trades       ports.TradeRepository
	Profiles     ports.ProfileRepository
	Sessions     *SessionCache
	Index        *PositionIndex
	ProfileCache *ProfileCache
	Interval     time.Duration
	Logger       ports.Logger
}

// NewSynchronizer creates a cache synchronizer.
func NewSynchronizer(cfg SynchronizerConfig) (*Synchronizer, error) {
	if cfg.Trades == nil || cfg.Profiles == nil || cfg.Index == nil || cfg.ProfileCache == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for synchronizer")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	return &Synchronizer{
		trades:       cfg.Trades,
		profiles:     cfg.Profiles,
		sessions:     cfg.Sessions,
		index:        cfg.Index,
		profileCache: cfg.ProfileCache,
		interval:     cfg.Interval,
		logger:       cfg.Logger,
	}, nil
}

// Run rebuilds the caches once immediately, then on every tick until the
// context is cancelled. A failed rebuild keeps the previous cache generation.
func (s *Synchronizer) Run(ctx context.Context) {
	if err := s.Sync(ctx); err != nil {
		s.logger.Error(ctx, err, "Initial cache sync failed; starting with empty caches")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				s.logger.Error(ctx, err, "Cache sync failed; keeping previous generation")
			}
		}
	}
}

// Sync loads the eligible profiles and their open trades and swaps both
// caches atomically. Sessions of users who fell out of the eligible set are
// evicted so their gateways are not kept alive for nothing.
func (s *Synchronizer) Sync(ctx context.Context) error {
	op := "Sync"

	profiles, err := s.profiles.FindEligibleProfiles(ctx)
	if err != nil {
		return fmt.Errorf("%s: loading eligible profiles: %w", op, err)
	}

	userIDs := make([]uuid.UUID, 0, len(profiles))
	eligible := make(map[uuid.UUID]bool, len(profiles))
	for _, p := range profiles {
		userIDs = append(userIDs, p.UserID)
		eligible[p.UserID] = true
	}

	trades, err := s.trades.FindOpenForUsers(ctx, userIDs)
	if err != nil {
		return fmt.Errorf("%s: loading open trades: %w", op, err)
	}

	if s.sessions != nil {
		for _, id := range s.profileCache.UserIDs() {
			if !eligible[id] {
				s.sessions.Evict(id)
			}
		}
	}

	s.profileCache.Replace(profiles)
	s.index.Replace(trades)

	metrics.EligibleUsers.Set(float64(len(profiles)))
	metrics.OpenPositions.Set(float64(len(trades)))

	s.logger.Debug(ctx, "Cache sync complete", map[string]interface{}{
		"eligibleUsers": len(profiles),
		"openTrades":    len(trades),
	})
	return nil
}
