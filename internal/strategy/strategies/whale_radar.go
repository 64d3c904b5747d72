package strategies

import (
	"context"

	"tradewarden/internal/domain"
	"tradewarden/internal/ports"
)

// WhaleRadar watches the order book for heavy bid-side accumulation: when
// large buyers stack the book well beyond the ask side while price already
// drifts upward, it follows them in.
type WhaleRadar struct {
	*BaseStrategy
}

// NewWhaleRadar creates a new whale radar strategy instance.
func NewWhaleRadar(logger ports.Logger) *WhaleRadar {
	return &WhaleRadar{BaseStrategy: NewBaseStrategy(logger)}
}

// Name returns the registry key of the strategy.
func (s *WhaleRadar) Name() string {
	return "whale_radar"
}

// Params returns the accepted parameters and their ranges.
func (s *WhaleRadar) Params() map[string]ports.ParamRange {
	return map[string]ports.ParamRange{
		"depth_levels":      {Min: 1, Max: 50},
		"imbalance_min":     {Min: 1, Max: 10},
		"min_bid_notional":  {Min: 0, Max: 1e9},
		"momentum_lookback": {Min: 1, Max: 50},
	}
}

// Evaluate returns a signal on a strong bid-side order book imbalance.
func (s *WhaleRadar) Evaluate(ctx context.Context, snap *ports.MarketSnapshot, params map[string]float64) (*domain.StrategySignal, error) {
	depthLevels := int(param(params, "depth_levels", 10))
	imbalanceMin := param(params, "imbalance_min", 1.8)
	minBidNotional := param(params, "min_bid_notional", 200_000)
	momentumLookback := int(param(params, "momentum_lookback", 5))

	if err := validateSnapshot(snap, momentumLookback+1); err != nil {
		return nil, err
	}
	if snap.OrderBook == nil || len(snap.OrderBook.Bids) == 0 || len(snap.OrderBook.Asks) == 0 {
		return nil, nil
	}
	klines := snap.Klines
	last := klines[len(klines)-1]

	bidNotional := snap.OrderBook.BidNotional(depthLevels)
	askNotional := 0.0
	n := depthLevels
	if n > len(snap.OrderBook.Asks) {
		n = len(snap.OrderBook.Asks)
	}
	for _, lvl := range snap.OrderBook.Asks[:n] {
		askNotional += lvl.Price * lvl.Quantity
	}

	if bidNotional < minBidNotional {
		return nil, nil
	}
	if askNotional <= 0 || bidNotional/askNotional < imbalanceMin {
		return nil, nil
	}

	// The whales must be buying into strength, not catching a falling knife.
	ref := klines[len(klines)-1-momentumLookback].Close
	if ref <= 0 || last.Close <= ref {
		return nil, nil
	}

	s.logger.Debug(ctx, "Whale radar conditions met", map[string]interface{}{
		"symbol": snap.Symbol, "price": last.Close,
		"bidNotional": bidNotional, "askNotional": askNotional,
		"imbalance": bidNotional / askNotional,
	})
	return signal(snap, s.Name()), nil
}
