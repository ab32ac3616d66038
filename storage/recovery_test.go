package storage

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/updown/execution"
	"github.com/web3guy0/updown/types"
)

type noQuotes struct{}

func (noQuotes) Snapshot() types.QuoteSnapshot { return types.QuoteSnapshot{} }

type noMarket struct{}

func (noMarket) Current() (types.MarketHandle, bool) { return types.MarketHandle{}, false }

type fixedOracle decimal.Decimal

func (f fixedOracle) SettlementPrice(context.Context, string) (decimal.Decimal, string, error) {
	return decimal.Decimal(f), "chainlink", nil
}

var windowStart = time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)

func filledDownOrder() execution.Order {
	return execution.Order{
		ID:      "o1",
		CycleID: types.CycleID(windowStart),
		Side:    types.SideDown,
		TokenID: "222",
		Market: types.MarketHandle{
			MarketID:    "m1",
			Slug:        "btc-updown-15m-1736164800",
			UpToken:     "111",
			DownToken:   "222",
			OpensAt:     windowStart,
			ExpiresAt:   windowStart.Add(types.CycleLength),
			PriceToBeat: d("100"),
		},
		LimitPrice: d("0.4"),
		Shares:     d("10"),
		State:      execution.OrderFilled,
		FillPrice:  d("0.4"),
		FilledAt:   windowStart.Add(2 * time.Minute),
		EntryPrice: d("100"),
	}
}

// runRecovered restores an engine from db the way startup does, lets it
// settle whatever was in flight and returns its balance
func runRecovered(t *testing.T, db *Database, start decimal.Decimal) decimal.Decimal {
	t.Helper()

	bal, err := db.LastBalance()
	require.NoError(t, err)
	order, err := db.LoadOrder()
	require.NoError(t, err)

	clock := types.NewManualClock(windowStart.Add(20 * time.Minute))
	e := execution.NewEngine(execution.Config{
		StartBalance: start,
		RiskPerTrade: d("0.01"),
		FeeRate:      d("0.01"),
		MinNotional:  d("1"),
		MinShares:    5,
		SettleBuffer: 2 * time.Second,
		Clock:        clock,
	}, execution.Deps{
		Quotes:  noQuotes{},
		Markets: noMarket{},
		Oracle:  fixedOracle(d("99")),
		Journal: db,
	})
	e.Restore(bal, order)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	require.Eventually(t, func() bool {
		o, err := db.LoadOrder()
		return err == nil && o == nil && e.State() == execution.StateIdle
	}, 2*time.Second, 5*time.Millisecond)
	return e.Balance()
}

func TestRecoveredSettlementAppliesPnLOnce(t *testing.T) {
	db := openTestDB(t)
	o := filledDownOrder()
	require.NoError(t, db.SaveOrder(o))

	// 10 shares @ 0.40 win: payout 10.00, cost 4.00, fees 0.08
	bal := runRecovered(t, db, d("90"))
	assert.Equal(t, "95.92", bal.StringFixed(2))

	// the order row reappears as if its delete never landed
	o.State = execution.OrderSettling
	require.NoError(t, db.SaveOrder(o))

	bal = runRecovered(t, db, d("90"))
	assert.Equal(t, "95.92", bal.StringFixed(2))

	trades, err := db.RecentTrades(10)
	require.NoError(t, err)
	assert.Len(t, trades, 1)

	last, err := db.LastBalance()
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "95.92", last.StringFixed(2))
}
