package ports

import (
	"context"
	"math"
	"time"

	"tradewarden/internal/domain"
)

// OrderResult represents the essential details returned after placing or
// cancelling an order.
type OrderResult struct {
	OrderID     int64
	Symbol      string
	Status      string
	AvgPrice    float64 // average filled price (0 if unknown)
	ExecutedQty float64
	Timestamp   time.Time
}

// MarketRules holds the instrument constraints the engine cares about.
type MarketRules struct {
	Symbol      string
	MinNotional float64 // minimum order value in the quote asset
	StepSize    float64 // lot size increment for quantities
	TickSize    float64 // price increment
}

// FloorQuantity rounds a quantity down to the instrument's lot size so the
// exchange does not reject the order for precision.
func (r *MarketRules) FloorQuantity(quantity float64) float64 {
	if r.StepSize <= 0 {
		return quantity
	}
	steps := math.Floor(quantity / r.StepSize)
	return steps * r.StepSize
}

// ExchangeGateway defines the interface to a cryptocurrency exchange.
// One authenticated instance exists per user (the exchange session) plus one
// unauthenticated public instance for market data shared by all loops.
type ExchangeGateway interface {
	// GetTickerPrice retrieves the last traded price for a symbol.
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)

	// ListTickers retrieves 24h ticker statistics for all symbols, used for
	// liquidity ranking by the scanner.
	ListTickers(ctx context.Context) ([]*domain.Ticker, error)

	// GetKlines retrieves recent candlestick history for a symbol.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Kline, error)

	// GetOrderBook retrieves the top levels of a symbol's order book.
	GetOrderBook(ctx context.Context, symbol string, limit int) (*domain.OrderBook, error)

	// GetMarketRules retrieves the instrument's minimum order value and
	// precision rules.
	GetMarketRules(ctx context.Context, symbol string) (*MarketRules, error)

	// GetAvailableBalance retrieves the free balance for an asset.
	GetAvailableBalance(ctx context.Context, asset string) (float64, error)

	// PlaceMarketBuy submits a market buy sized by quote-asset amount.
	PlaceMarketBuy(ctx context.Context, symbol string, quoteAmount float64) (*OrderResult, error)

	// PlaceMarketSell submits a market sell for a base-asset quantity.
	PlaceMarketSell(ctx context.Context, symbol string, quantity float64) (*OrderResult, error)

	// CancelOrder cancels an open order by its exchange ID.
	CancelOrder(ctx context.Context, symbol string, orderID int64) error

	// Ping checks connectivity and credential validity.
	Ping(ctx context.Context) error
}

// TickerStream is a single subscription delivering batched ticker updates at
// sub-second to few-second cadence. Implementations reconnect with a fixed
// delay until the context is cancelled; a malformed message is logged and
// skipped without aborting the stream.
type TickerStream interface {
	// Subscribe starts the stream and invokes handler for every batch.
	// It returns once the context is cancelled or the stream is stopped.
	Subscribe(ctx context.Context, handler func(tickers []*domain.Ticker), errHandler func(error)) error
}
