package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"golang.org/x/time/rate"

	"tradewarden/internal/domain"
	"tradewarden/internal/ports"
)

const (
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"
)

// Client implements the ports.ExchangeGateway interface using the go-binance
// spot API. One authenticated Client exists per user session; a keyless
// Client serves the shared public market-data calls.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger
	limiter    *rate.Limiter
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger

	// RequestsPerSecond caps outbound REST calls. Zero disables the limiter.
	RequestsPerSecond float64
}

// New creates a new Binance spot client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
	} else {
		client.BaseURL = baseURLProduction
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), int(math.Ceil(cfg.RequestsPerSecond)))
	}

	return &Client{
		spotClient: client,
		logger:     cfg.Logger,
		limiter:    limiter,
	}, nil
}

// wait blocks until the rate limiter admits the next request.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp outside of recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Invalid signature
			mappedErr = ports.ErrAuthenticationFailed
		case -1013: // Filter failure (MIN_NOTIONAL, LOT_SIZE)
			mappedErr = ports.ErrBelowMinNotional
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1121, -1130:
			mappedErr = ports.ErrInvalidRequest
		case -2010: // New order rejected
			if strings.Contains(strings.ToLower(apiErr.Message), "insufficient balance") {
				mappedErr = ports.ErrInsufficientFunds
			} else {
				mappedErr = ports.ErrOrderPlacementFailed
			}
		case -2011: // Cancel order rejected
			mappedErr = ports.ErrOrderCancelFailed
		case -2013: // Order does not exist
			mappedErr = ports.ErrOrderNotFound
		case -2014, -2015: // API-key format invalid / invalid key, IP, or permissions
			mappedErr = ports.ErrInvalidAPIKeys
		case -3005, -3041: // Insufficient balance
			mappedErr = ports.ErrInsufficientFunds
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// GetTickerPrice retrieves the last ticker price for a given symbol.
func (c *Client) GetTickerPrice(ctx context.Context, symbol string) (float64, error) {
	op := "GetTickerPrice"
	if err := c.wait(ctx); err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	tickers, err := c.spotClient.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	if len(tickers) == 0 {
		return 0, c.handleError(ctx, fmt.Errorf("no ticker data returned for symbol %s", symbol), op)
	}

	price, err := strconv.ParseFloat(tickers[0].LastPrice, 64)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", tickers[0].LastPrice, err)
		return 0, c.handleError(ctx, parseErr, op)
	}
	return price, nil
}

// ListTickers retrieves 24h ticker statistics for every symbol on the
// exchange, used for liquidity ranking by the scanner.
func (c *Client) ListTickers(ctx context.Context) ([]*domain.Ticker, error) {
	op := "ListTickers"
	if err := c.wait(ctx); err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	stats, err := c.spotClient.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	tickers := make([]*domain.Ticker, 0, len(stats))
	for _, s := range stats {
		lastPrice, err := strconv.ParseFloat(s.LastPrice, 64)
		if err != nil {
			continue // skip symbols with unparseable data
		}
		quoteVolume, err := strconv.ParseFloat(s.QuoteVolume, 64)
		if err != nil {
			continue
		}
		tickers = append(tickers, &domain.Ticker{
			Symbol:      s.Symbol,
			LastPrice:   lastPrice,
			QuoteVolume: quoteVolume,
			EventTime:   time.UnixMilli(s.CloseTime),
		})
	}
	return tickers, nil
}

// GetKlines retrieves historical klines/candlestick data for the given symbol.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	if err := c.wait(ctx); err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	binanceKlines, err := c.spotClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateKline(bk, symbol, interval)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to translate kline: %w", err), op)
		}
		domainKlines = append(domainKlines, dk)
	}
	return domainKlines, nil
}

// GetOrderBook retrieves the top levels of a symbol's order book.
func (c *Client) GetOrderBook(ctx context.Context, symbol string, limit int) (*domain.OrderBook, error) {
	op := "GetOrderBook"
	if err := c.wait(ctx); err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	depth, err := c.spotClient.NewDepthService().Symbol(symbol).Limit(limit).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	book := &domain.OrderBook{Symbol: symbol}
	for _, b := range depth.Bids {
		price, qty, err := b.Parse()
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to parse bid level: %w", err), op)
		}
		book.Bids = append(book.Bids, domain.PriceLevel{Price: price, Quantity: qty})
	}
	for _, a := range depth.Asks {
		price, qty, err := a.Parse()
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("failed to parse ask level: %w", err), op)
		}
		book.Asks = append(book.Asks, domain.PriceLevel{Price: price, Quantity: qty})
	}
	return book, nil
}

// GetMarketRules retrieves the instrument's minimum order value and precision
// rules from the exchange info filters.
func (c *Client) GetMarketRules(ctx context.Context, symbol string) (*ports.MarketRules, error) {
	op := "GetMarketRules"
	if err := c.wait(ctx); err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	info, err := c.spotClient.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(info.Symbols) == 0 {
		return nil, c.handleError(ctx, fmt.Errorf("symbol %s not found in exchange info: %w", symbol, ports.ErrNotFound), op)
	}

	s := info.Symbols[0]
	rules := &ports.MarketRules{Symbol: symbol}
	if f := s.NotionalFilter(); f != nil {
		rules.MinNotional, _ = strconv.ParseFloat(f.MinNotional, 64)
	}
	if f := s.LotSizeFilter(); f != nil {
		rules.StepSize, _ = strconv.ParseFloat(f.StepSize, 64)
	}
	if f := s.PriceFilter(); f != nil {
		rules.TickSize, _ = strconv.ParseFloat(f.TickSize, 64)
	}
	return rules, nil
}

// GetAvailableBalance retrieves the free balance for a specific asset.
func (c *Client) GetAvailableBalance(ctx context.Context, asset string) (float64, error) {
	op := "GetAvailableBalance"
	if err := c.wait(ctx); err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	account, err := c.spotClient.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	for _, bal := range account.Balances {
		if bal.Asset == asset {
			free, err := strconv.ParseFloat(bal.Free, 64)
			if err != nil {
				parseErr := fmt.Errorf("could not parse balance '%s' for asset %s: %w", bal.Free, asset, err)
				return 0, c.handleError(ctx, parseErr, op)
			}
			return free, nil
		}
	}
	// Binance omits zero balances from the account payload.
	return 0, nil
}

// PlaceMarketBuy submits a market buy sized by quote-asset amount. The
// exchange converts the quote amount into base quantity at execution time.
func (c *Client) PlaceMarketBuy(ctx context.Context, symbol string, quoteAmount float64) (*ports.OrderResult, error) {
	op := "PlaceMarketBuy"
	if err := c.wait(ctx); err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	order, err := c.spotClient.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeBuy).
		Type(binance.OrderTypeMarket).
		QuoteOrderQty(formatFloat(quoteAmount)).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	result := translateOrderResult(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": symbol, "quoteAmount": quoteAmount,
		"orderID": result.OrderID, "executedQty": result.ExecutedQty, "avgPrice": result.AvgPrice,
	})
	return result, nil
}

// PlaceMarketSell submits a market sell for a base-asset quantity. The caller
// is responsible for flooring the quantity to the instrument's step size.
func (c *Client) PlaceMarketSell(ctx context.Context, symbol string, quantity float64) (*ports.OrderResult, error) {
	op := "PlaceMarketSell"
	if err := c.wait(ctx); err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	order, err := c.spotClient.NewCreateOrderService().
		Symbol(symbol).
		Side(binance.SideTypeSell).
		Type(binance.OrderTypeMarket).
		Quantity(formatFloat(quantity)).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	result := translateOrderResult(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{
		"symbol": symbol, "quantity": quantity,
		"orderID": result.OrderID, "executedQty": result.ExecutedQty, "avgPrice": result.AvgPrice,
	})
	return result, nil
}

// CancelOrder cancels an open order by its exchange ID.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	op := "CancelOrder"
	if err := c.wait(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	_, err := c.spotClient.NewCancelOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return c.handleError(ctx, err, op)
	}
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "orderID": orderID})
	return nil
}

// Ping checks connectivity and, when the client carries credentials,
// their validity via a signed account call.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.wait(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	if _, err := c.spotClient.NewGetAccountService().Do(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	return nil
}

// FloorToStep rounds a quantity down to the instrument's lot step size.
func FloorToStep(quantity, step float64) float64 {
	if step <= 0 {
		return quantity
	}
	return math.Floor(quantity/step) * step
}

// --- Translation Helpers ---

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func translateOrderResult(order *binance.CreateOrderResponse) *ports.OrderResult {
	if order == nil {
		return nil
	}
	execQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
	quoteQty, _ := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)

	// Spot market fills report no average price directly; derive it.
	avgPrice := 0.0
	if execQty > 0 {
		avgPrice = quoteQty / execQty
	}

	return &ports.OrderResult{
		OrderID:     order.OrderID,
		Symbol:      order.Symbol,
		Status:      string(order.Status),
		AvgPrice:    avgPrice,
		ExecutedQty: execQty,
		Timestamp:   time.UnixMilli(order.TransactTime),
	}
}

func translateKline(bk *binance.Kline, symbol, interval string) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return &domain.Kline{
		OpenTime:  time.UnixMilli(bk.OpenTime),
		CloseTime: time.UnixMilli(bk.CloseTime),
		Symbol:    symbol,
		Interval:  interval,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}
