package domain

import "time"

// Kline represents a single candlestick data point.
type Kline struct {
	OpenTime  time.Time
	CloseTime time.Time
	Symbol    string
	Interval  string
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Ticker is one entry of an aggregate mini-ticker update: the last traded
// price for a symbol plus its rolling quote volume (used for liquidity
// ranking by the scanner).
type Ticker struct {
	Symbol      string
	LastPrice   float64
	QuoteVolume float64
	EventTime   time.Time
}

// PriceLevel is one price/quantity pair of an order book side.
type PriceLevel struct {
	Price    float64
	Quantity float64
}

// OrderBook holds the top levels of an instrument's order book.
type OrderBook struct {
	Symbol string
	Bids   []PriceLevel
	Asks   []PriceLevel
}

// BidNotional sums price*quantity over the top n bid levels.
func (ob *OrderBook) BidNotional(n int) float64 {
	if n > len(ob.Bids) {
		n = len(ob.Bids)
	}
	total := 0.0
	for _, lvl := range ob.Bids[:n] {
		total += lvl.Price * lvl.Quantity
	}
	return total
}
