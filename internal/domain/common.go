package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// TradeStatus represents the lifecycle state of a trade.
type TradeStatus string

const (
	StatusActive              TradeStatus = "active"
	StatusClosingTakeProfit   TradeStatus = "closing_take_profit"
	StatusClosingStopLoss     TradeStatus = "closing_stop_loss"
	StatusClosingTrailingStop TradeStatus = "closing_trailing_stop"
	StatusClosingManual       TradeStatus = "closing_manual"
	StatusClosingWiseMan      TradeStatus = "closing_wise_man"
	StatusClosed              TradeStatus = "closed"
)

// IsClosing reports whether the status is one of the closing_* flag states.
func (s TradeStatus) IsClosing() bool {
	switch s {
	case StatusClosingTakeProfit, StatusClosingStopLoss, StatusClosingTrailingStop,
		StatusClosingManual, StatusClosingWiseMan:
		return true
	}
	return false
}

// allowedTransitions encodes the trade state machine.
// active may be flagged into any closing_* state or closed directly (dust
// administrative close). A closing_* state may complete to closed, or roll
// back to active after a recoverable exchange failure. closed is terminal.
var allowedTransitions = map[TradeStatus][]TradeStatus{
	StatusActive: {
		StatusClosingTakeProfit, StatusClosingStopLoss, StatusClosingTrailingStop,
		StatusClosingManual, StatusClosingWiseMan, StatusClosed,
	},
	StatusClosingTakeProfit:   {StatusClosed, StatusActive},
	StatusClosingStopLoss:     {StatusClosed, StatusActive},
	StatusClosingTrailingStop: {StatusClosed, StatusActive},
	StatusClosingManual:       {StatusClosed, StatusActive},
	StatusClosingWiseMan:      {StatusClosed, StatusActive},
	StatusClosed:              nil,
}

// CanTransition reports whether moving a trade from one status to another is
// permitted by the state machine.
func CanTransition(from, to TradeStatus) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// CloseReason indicates why a trade was closed.
type CloseReason string

const (
	CloseReasonTakeProfit   CloseReason = "take_profit"
	CloseReasonStopLoss     CloseReason = "stop_loss"
	CloseReasonTrailingStop CloseReason = "trailing_stop"
	CloseReasonManual       CloseReason = "manual"
	CloseReasonWiseMan      CloseReason = "wise_man"
	CloseReasonDust         CloseReason = "below_min_sellable_size"
	CloseReasonUnknown      CloseReason = "unknown"
)

// CloseReasonForStatus maps a closing_* flag to the final close reason.
func CloseReasonForStatus(s TradeStatus) CloseReason {
	switch s {
	case StatusClosingTakeProfit:
		return CloseReasonTakeProfit
	case StatusClosingStopLoss:
		return CloseReasonStopLoss
	case StatusClosingTrailingStop:
		return CloseReasonTrailingStop
	case StatusClosingManual:
		return CloseReasonManual
	case StatusClosingWiseMan:
		return CloseReasonWiseMan
	default:
		return CloseReasonUnknown
	}
}
