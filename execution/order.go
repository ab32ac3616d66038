package execution

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/updown/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ORDER - one limit order and its lifecycle
// ═══════════════════════════════════════════════════════════════════════════════
//
//   idle → signal_locked → order_open → filled → settling → settled
//                                    ↘ cancelled (fill timeout)
//
// ═══════════════════════════════════════════════════════════════════════════════

// OrderState is the lifecycle state of an order
type OrderState string

const (
	OrderOpen      OrderState = "OPEN"
	OrderFilled    OrderState = "FILLED"
	OrderSettling  OrderState = "SETTLING"
	OrderSettled   OrderState = "SETTLED"
	OrderCancelled OrderState = "CANCELLED"
)

// Terminal reports settled or cancelled
func (s OrderState) Terminal() bool {
	return s == OrderSettled || s == OrderCancelled
}

// EngineState is what the engine is doing right now
type EngineState string

const (
	StateIdle         EngineState = "idle"
	StateSignalLocked EngineState = "signal_locked"
	StateOrderOpen    EngineState = "order_open"
	StateFilled       EngineState = "filled"
	StateSettling     EngineState = "settling"
)

// Order is owned by the engine. Market is a copy taken at entry, so a
// later rotation never changes what the order settles against.
type Order struct {
	ID         string             `json:"id"`
	CycleID    int64              `json:"cycle_id"`
	Side       types.Side         `json:"side"`
	TokenID    string             `json:"token_id"`
	Market     types.MarketHandle `json:"market"`
	Confidence float64            `json:"confidence"`

	LimitPrice decimal.Decimal `json:"limit_price"`
	Shares     decimal.Decimal `json:"shares"`
	State      OrderState      `json:"state"`
	PlacedAt   time.Time       `json:"placed_at"`

	// Underlying price when the order was placed
	EntryPrice decimal.Decimal `json:"entry_price"`

	FillPrice decimal.Decimal `json:"fill_price"`
	FilledAt  time.Time       `json:"filled_at"`

	SettlePrice  decimal.Decimal `json:"settle_price"`
	SettleSource string          `json:"settle_source"`
	SettledAt    time.Time       `json:"settled_at"`
	Result       string          `json:"result"`
	Fees         decimal.Decimal `json:"fees"`
	PnL          decimal.Decimal `json:"pnl"`

	LiveOrderID string `json:"live_order_id,omitempty"`
}

// Cost is shares * fill price (limit price before a fill)
func (o Order) Cost() decimal.Decimal {
	price := o.FillPrice
	if !price.IsPositive() {
		price = o.LimitPrice
	}
	return o.Shares.Mul(price)
}

// SettleAt is when the market resolves: expiry plus buffer, or one cycle
// after the fill when the expiry is unknown
func (o Order) SettleAt(buffer time.Duration) time.Time {
	if !o.Market.ExpiresAt.IsZero() {
		return o.Market.ExpiresAt.Add(buffer)
	}
	return o.FilledAt.Add(types.CycleLength)
}

// Record renders the trade log row
func (o Order) Record(balance decimal.Decimal) types.TradeRecord {
	ts := o.SettledAt
	if ts.IsZero() {
		ts = o.PlacedAt
	}
	return types.TradeRecord{
		ID:          o.ID,
		Timestamp:   ts,
		MarketSlug:  o.Market.Slug,
		Side:        o.Side,
		Shares:      o.Shares,
		EntryPrice:  o.FillPrice,
		SettlePrice: o.SettlePrice,
		PriceToBeat: o.Market.PriceToBeat,
		Result:      o.Result,
		Fees:        o.Fees,
		PnL:         o.PnL,
		Balance:     balance,
	}
}

// EquityPoint is one row of the equity curve, written after each settlement
type EquityPoint struct {
	Timestamp time.Time
	Balance   decimal.Decimal
	Peak      decimal.Decimal
	Drawdown  decimal.Decimal // percent below peak
	Trades    int
	Wins      int
	Losses    int
}
