package binanceclient

import (
	"context"
	"fmt"
	"strconv"
	"time"

	binance "github.com/adshao/go-binance/v2"

	"tradewarden/internal/domain"
	"tradewarden/internal/ports"
)

// MiniTickerStream implements ports.TickerStream over the aggregate
// mini-ticker WebSocket stream. One subscription carries updates for every
// symbol on the exchange, so a single stream feeds all users' monitors.
type MiniTickerStream struct {
	logger         ports.Logger
	useTestnet     bool
	reconnectDelay time.Duration
}

// StreamConfig holds configuration for the mini-ticker stream.
type StreamConfig struct {
	Logger         ports.Logger
	UseTestnet     bool
	ReconnectDelay time.Duration // fixed delay between reconnect attempts
}

// NewMiniTickerStream creates a new aggregate mini-ticker stream.
func NewMiniTickerStream(cfg StreamConfig) (*MiniTickerStream, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for mini-ticker stream")
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &MiniTickerStream{
		logger:         cfg.Logger,
		useTestnet:     cfg.UseTestnet,
		reconnectDelay: delay,
	}, nil
}

// Subscribe starts the stream and invokes handler for every update batch.
// It reconnects with a fixed delay indefinitely: losing the price feed stalls
// every user's exit monitoring, so giving up is never the right call. It
// returns once the context is cancelled.
func (s *MiniTickerStream) Subscribe(ctx context.Context, handler func(tickers []*domain.Ticker), errHandler func(error)) error {
	binance.UseTestnet = s.useTestnet

	binanceHandler := func(event binance.WsAllMiniMarketsStatEvent) {
		tickers := make([]*domain.Ticker, 0, len(event))
		for _, e := range event {
			t, err := translateMiniTicker(e)
			if err != nil {
				// A malformed entry is dropped; the rest of the batch
				// still flows.
				s.logger.Warn(ctx, "Skipping malformed mini-ticker entry", map[string]interface{}{
					"symbol": e.Symbol, "error": err.Error(),
				})
				continue
			}
			tickers = append(tickers, t)
		}
		if len(tickers) > 0 {
			handler(tickers)
		}
	}

	binanceErrHandler := func(err error) {
		s.logger.Warn(ctx, "Mini-ticker stream error reported", map[string]interface{}{"error": err.Error()})
		if errHandler != nil {
			errHandler(err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.logger.Info(ctx, "Connecting aggregate mini-ticker stream")
		doneCh, stopCh, err := binance.WsAllMiniMarketsStatServe(binanceHandler, binanceErrHandler)
		if err != nil {
			s.logger.Error(ctx, err, "Mini-ticker stream connection failed, retrying", map[string]interface{}{
				"delay": s.reconnectDelay.String(),
			})
			select {
			case <-time.After(s.reconnectDelay):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		s.logger.Info(ctx, "Mini-ticker stream established")

		select {
		case <-doneCh:
			s.logger.Warn(ctx, "Mini-ticker stream closed, reconnecting", map[string]interface{}{
				"delay": s.reconnectDelay.String(),
			})
			select {
			case <-time.After(s.reconnectDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		case <-ctx.Done():
			close(stopCh)
			<-doneCh
			return ctx.Err()
		}
	}
}

func translateMiniTicker(e *binance.WsMiniMarketsStatEvent) (*domain.Ticker, error) {
	lastPrice, err := strconv.ParseFloat(e.LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing last price '%s': %w", e.LastPrice, err)
	}
	quoteVolume, err := strconv.ParseFloat(e.QuoteVolume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing quote volume '%s': %w", e.QuoteVolume, err)
	}
	return &domain.Ticker{
		Symbol:      e.Symbol,
		LastPrice:   lastPrice,
		QuoteVolume: quoteVolume,
		EventTime:   time.UnixMilli(e.Time),
	}, nil
}
