package execution

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/updown/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// PRICING & SIZING
// ═══════════════════════════════════════════════════════════════════════════════

var (
	tick     = decimal.RequireFromString("0.01")
	minPrice = decimal.RequireFromString("0.01")
	maxPrice = decimal.RequireFromString("0.99")
	one      = decimal.NewFromInt(1)
	two      = decimal.NewFromInt(2)
	hundred  = decimal.NewFromInt(100)
)

// LimitPrice crosses the spread when it is tight (pay the ask), otherwise
// posts one tick above the bid. Clamped to [0.01, 0.99], 3 dp.
func LimitPrice(q types.Quote, spreadCross decimal.Decimal) decimal.Decimal {
	var p decimal.Decimal
	if q.Spread().LessThanOrEqual(spreadCross) {
		p = q.Ask
	} else {
		p = q.Bid.Add(tick)
	}

	if p.LessThan(minPrice) {
		p = minPrice
	}
	if p.GreaterThan(maxPrice) {
		p = maxPrice
	}
	return p.Round(3)
}

// SizeParams are the sizing inputs besides price
type SizeParams struct {
	Balance     decimal.Decimal
	Risk        decimal.Decimal // fraction of balance
	MinNotional decimal.Decimal // exchange minimum order value
	MinShares   int64           // exchange minimum lot
}

// SizeOrder returns the binding maximum of the notional minimum, the risk
// target and the lot minimum. ok is false when the result costs more than
// the balance (or the price is unusable); the order is then skipped.
func SizeOrder(price decimal.Decimal, p SizeParams) (shares decimal.Decimal, ok bool) {
	if !price.IsPositive() {
		return decimal.Zero, false
	}

	forNotional := p.MinNotional.Div(price).Ceil()
	forRisk := p.Balance.Mul(p.Risk).Div(price).Floor()
	shares = decimal.Max(forNotional, forRisk, decimal.NewFromInt(p.MinShares))

	if shares.Mul(price).GreaterThan(p.Balance) {
		return shares, false
	}
	return shares, true
}

// Resolve settles a filled order: Up wins when the settlement price is
// strictly above the price to beat. Fees are charged on entry and exit.
func Resolve(side types.Side, shares, fillPrice, priceToBeat, settle, feeRate decimal.Decimal) (won bool, pnl, fees decimal.Decimal) {
	winner := types.SideDown
	if settle.GreaterThan(priceToBeat) {
		winner = types.SideUp
	}
	won = side == winner

	cost := shares.Mul(fillPrice)
	fees = cost.Mul(feeRate).Mul(two)
	if won {
		pnl = shares.Mul(one).Sub(cost).Sub(fees)
	} else {
		pnl = cost.Add(fees).Neg()
	}
	return won, pnl, fees
}
