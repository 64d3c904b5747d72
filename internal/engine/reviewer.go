package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradewarden/internal/domain"
	"tradewarden/internal/ports"
)

// Reviewer grades closed trades a short while after the exit: it samples the
// price path following the close and scores how good the exit turned out to
// be. The scores feed the journal so users can see which exit rules serve
// them and which fire too early.
type Reviewer struct {
	journal ports.JournalRepository
	public  ports.ExchangeGateway

	delay           time.Duration
	lookbackCandles int
	logger          ports.Logger
	wg              sync.WaitGroup
}

// ReviewerConfig holds the dependencies for creating a Reviewer.
type ReviewerConfig struct {
	Journal       ports.JournalRepository
	PublicGateway ports.ExchangeGateway
	Delay         time.Duration
	Logger        ports.Logger
}

// NewReviewer creates a post-exit reviewer.
func NewReviewer(cfg ReviewerConfig) (*Reviewer, error) {
	if cfg.Journal == nil || cfg.PublicGateway == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for reviewer")
	}
	if cfg.Delay <= 0 {
		cfg.Delay = 60 * time.Second
	}
	return &Reviewer{
		journal:         cfg.Journal,
		public:          cfg.PublicGateway,
		delay:           cfg.Delay,
		lookbackCandles: 15,
		logger:          cfg.Logger,
	}, nil
}

// Schedule queues a review of the given closed trade after the configured
// delay. The trade's take profit is the yardstick the exit is graded against,
// and riskReward is the user's configured multiple at the time of the close.
// The review is skipped if the context is cancelled first.
func (r *Reviewer) Schedule(ctx context.Context, trade *domain.Trade, riskReward float64, reason domain.CloseReason) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		timer := time.NewTimer(r.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		r.review(ctx, trade, riskReward, reason)
	}()
}

// Wait blocks until all scheduled reviews have finished or been cancelled.
func (r *Reviewer) Wait() {
	r.wg.Wait()
}

func (r *Reviewer) review(ctx context.Context, trade *domain.Trade, riskReward float64, reason domain.CloseReason) {
	klines, err := r.public.GetKlines(ctx, trade.Symbol, "1m", r.lookbackCandles)
	if err != nil {
		r.logger.Error(ctx, err, "Failed to fetch post-exit candles", map[string]interface{}{
			"tradeID": trade.ID, "symbol": trade.Symbol,
		})
		return
	}
	if len(klines) == 0 {
		return
	}

	highest, lowest := klines[0].High, klines[0].Low
	for _, k := range klines[1:] {
		if k.High > highest {
			highest = k.High
		}
		if k.Low < lowest {
			lowest = k.Low
		}
	}

	score, notes := gradeExit(trade, reason, riskReward, highest, lowest)

	if err := r.journal.RecordExitReview(ctx, trade.ID, string(reason), score, highest, lowest, notes); err != nil {
		r.logger.Error(ctx, err, "Failed to record exit review", map[string]interface{}{"tradeID": trade.ID})
		return
	}
	r.logger.Debug(ctx, "Exit review recorded", map[string]interface{}{
		"tradeID": trade.ID, "symbol": trade.Symbol, "score": score,
	})
}

// gradeExit scores the exit against the price path that followed it, with
// the trade's take profit as the yardstick. A stop is regretted only when the
// price made it all the way back to the target; a profit exit is judged by
// how much of the move past the target it left on the table, scaled by the
// user's risk-reward multiple.
func gradeExit(trade *domain.Trade, reason domain.CloseReason, riskReward, highest, lowest float64) (int, string) {
	switch reason {
	case domain.CloseReasonStopLoss:
		if trade.TakeProfit > 0 && highest >= trade.TakeProfit {
			return -10, "price recovered to the take-profit target after the stop fired"
		}
		return 10, "stop saved the position from staying underwater"
	case domain.CloseReasonTakeProfit, domain.CloseReasonTrailingStop:
		if trade.TakeProfit <= 0 {
			return 0, "no target to grade the exit against"
		}
		missedPct := (highest/trade.TakeProfit - 1) * 100
		if missedPct > riskReward*100 {
			return -5, "price kept running well past the target"
		}
		if missedPct > 1.0 {
			return 5, "modest continuation after the exit"
		}
		return 10, "exit near the local top"
	default:
		return 0, "no automated assessment for this close reason"
	}
}
