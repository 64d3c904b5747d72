// Package engine contains the trade lifecycle core: the cache synchronizer,
// the price monitor, the closure supervisor, the market scanner, the advisor
// and the post-exit reviewer, all coordinating through conditional status
// transitions in the store rather than in-process locks.
package engine

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"tradewarden/internal/domain"
	"tradewarden/internal/ports"
	"tradewarden/internal/strategy"
)

// Config holds every dependency and tuning knob the engine needs.
type Config struct {
	Trades        ports.TradeRepository
	Profiles      ports.ProfileRepository
	Credentials   ports.CredentialsRepository
	Notifications ports.NotificationRepository
	Journal       ports.JournalRepository

	PublicGateway  ports.ExchangeGateway
	GatewayFactory GatewayFactory
	Stream         ports.TickerStream
	Registry       *strategy.Registry
	Logger         ports.Logger

	SyncInterval       time.Duration
	ScanInterval       time.Duration
	SupervisorInterval time.Duration
	AdvisorCooldown    time.Duration
	ClaimStaleAfter    time.Duration
	ReviewDelay        time.Duration
	SessionTTL         time.Duration
	ScanConcurrency    int
	AdvisorConcurrency int
	IncubateDust       bool
}

// Engine wires the lifecycle loops together and runs them until shutdown.
type Engine struct {
	synchronizer *Synchronizer
	monitor      *Monitor
	supervisor   *Supervisor
	scanner      *Scanner
	advisor      *Advisor
	reviewer     *Reviewer

	stream ports.TickerStream
	logger ports.Logger
}

// New builds the engine and all of its loops from one configuration.
func New(cfg Config) (*Engine, error) {
	if cfg.Trades == nil || cfg.Profiles == nil || cfg.Credentials == nil ||
		cfg.Notifications == nil || cfg.Journal == nil || cfg.PublicGateway == nil ||
		cfg.GatewayFactory == nil || cfg.Stream == nil || cfg.Registry == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for engine")
	}

	index := NewPositionIndex()
	profileCache := NewProfileCache()
	sessions := NewSessionCache(cfg.GatewayFactory, cfg.Credentials, cfg.SessionTTL, cfg.Logger)

	synchronizer, err := NewSynchronizer(SynchronizerConfig{
		Trades:       cfg.Trades,
		Profiles:     cfg.Profiles,
		Sessions:     sessions,
		Index:        index,
		ProfileCache: profileCache,
		Interval:     cfg.SyncInterval,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	advisor, err := NewAdvisor(AdvisorConfig{
		Trades:        cfg.Trades,
		Notifications: cfg.Notifications,
		PublicGateway: cfg.PublicGateway,
		Index:         index,
		ProfileCache:  profileCache,
		Cooldown:      cfg.AdvisorCooldown,
		Concurrency:   cfg.AdvisorConcurrency,
		Logger:        cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	monitor, err := NewMonitor(MonitorConfig{
		Trades:        cfg.Trades,
		Notifications: cfg.Notifications,
		Index:         index,
		ProfileCache:  profileCache,
		Advisor:       advisor,
		Logger:        cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	reviewer, err := NewReviewer(ReviewerConfig{
		Journal:       cfg.Journal,
		PublicGateway: cfg.PublicGateway,
		Delay:         cfg.ReviewDelay,
		Logger:        cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	supervisor, err := NewSupervisor(SupervisorConfig{
		Trades:          cfg.Trades,
		Notifications:   cfg.Notifications,
		Sessions:        sessions,
		PublicGateway:   cfg.PublicGateway,
		ProfileCache:    profileCache,
		Reviewer:        reviewer,
		Interval:        cfg.SupervisorInterval,
		ClaimStaleAfter: cfg.ClaimStaleAfter,
		IncubateDust:    cfg.IncubateDust,
		Logger:          cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	scanner, err := NewScanner(ScannerConfig{
		Trades:        cfg.Trades,
		Journal:       cfg.Journal,
		Notifications: cfg.Notifications,
		Sessions:      sessions,
		PublicGateway: cfg.PublicGateway,
		ProfileCache:  profileCache,
		Index:         index,
		Registry:      cfg.Registry,
		Interval:      cfg.ScanInterval,
		Concurrency:   cfg.ScanConcurrency,
		Logger:        cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		synchronizer: synchronizer,
		monitor:      monitor,
		supervisor:   supervisor,
		scanner:      scanner,
		advisor:      advisor,
		reviewer:     reviewer,
		stream:       cfg.Stream,
		logger:       cfg.Logger,
	}, nil
}

// Start runs every loop until the context is cancelled or a termination
// signal arrives, then waits for in-flight work to drain.
func (e *Engine) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			e.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	e.logger.Info(ctx, "Starting trade lifecycle engine")

	var wg sync.WaitGroup
	run := func(name string, loop func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop(ctx)
			e.logger.Debug(ctx, "Loop stopped", map[string]interface{}{"loop": name})
		}()
	}

	run("synchronizer", e.synchronizer.Run)
	run("supervisor", e.supervisor.Run)
	run("scanner", e.scanner.Run)

	streamErr := make(chan error, 1)
	go func() {
		streamErr <- e.stream.Subscribe(ctx,
			func(tickers []*domain.Ticker) { e.monitor.HandleTickers(ctx, tickers) },
			func(err error) {
				e.logger.Error(ctx, err, "Ticker stream error")
			})
	}()

	select {
	case <-ctx.Done():
	case err := <-streamErr:
		if err != nil && ctx.Err() == nil {
			e.logger.Error(ctx, err, "Ticker stream terminated; shutting down")
			cancel()
			wg.Wait()
			e.advisor.Wait()
			e.reviewer.Wait()
			return fmt.Errorf("ticker stream terminated: %w", err)
		}
	}

	cancel()
	wg.Wait()
	e.advisor.Wait()
	e.reviewer.Wait()
	e.logger.Info(context.Background(), "Engine stopped")
	return nil
}
