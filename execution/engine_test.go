package execution

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/updown/exec"
	"github.com/web3guy0/updown/types"
)

var cycleStart = time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)

// ═══════════════════════════════════════════════════════════════════════════════
// FAKES
// ═══════════════════════════════════════════════════════════════════════════════

type fakeQuotes struct {
	mu   sync.Mutex
	snap types.QuoteSnapshot
}

func (f *fakeQuotes) Snapshot() types.QuoteSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeQuotes) set(marketID string, upBid, upAsk, downBid, downAsk string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = types.QuoteSnapshot{
		MarketID:   marketID,
		Up:         types.Quote{Bid: d(upBid), Ask: d(upAsk)},
		Down:       types.Quote{Bid: d(downBid), Ask: d(downAsk)},
		ObservedAt: cycleStart,
	}
}

type fakeMarkets struct {
	mu sync.Mutex
	h  types.MarketHandle
}

func (f *fakeMarkets) Current() (types.MarketHandle, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.h, !f.h.IsZero()
}

func (f *fakeMarkets) set(h types.MarketHandle) {
	f.mu.Lock()
	f.h = h
	f.mu.Unlock()
}

type fakePrices struct{ price float64 }

func (f fakePrices) LatestPrice() (float64, bool) { return f.price, f.price > 0 }

// fakeOracle serves price from "chainlink" unless the preferred source
// has its own entry
type fakeOracle struct {
	price    decimal.Decimal
	err      error
	bySource map[string]decimal.Decimal
}

func (f fakeOracle) SettlementPrice(_ context.Context, prefer string) (decimal.Decimal, string, error) {
	if p, ok := f.bySource[prefer]; ok {
		return p, prefer, nil
	}
	return f.price, "chainlink", f.err
}

type fakeSubmitter struct {
	mu   sync.Mutex
	reqs []exec.OrderRequest
	err  error
}

func (f *fakeSubmitter) PlaceOrder(_ context.Context, req exec.OrderRequest) (exec.OrderAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return exec.OrderAck{}, f.err
	}
	return exec.OrderAck{OrderID: "0xlive", Success: true}, nil
}

type memJournal struct {
	mu      sync.Mutex
	saved   []Order
	cleared []string
	trades  []types.TradeRecord
	equity  []EquityPoint
	events  []string
}

func (j *memJournal) SaveOrder(o Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.saved = append(j.saved, o)
	return nil
}

func (j *memJournal) ClearOrder(id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cleared = append(j.cleared, id)
	return nil
}

func (j *memJournal) CloseOrder(rec types.TradeRecord, p *EquityPoint) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.trades = append(j.trades, rec)
	if p != nil {
		j.equity = append(j.equity, *p)
	}
	j.cleared = append(j.cleared, rec.ID)
	return nil
}

func (j *memJournal) HasTrade(id string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, t := range j.trades {
		if t.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (j *memJournal) RecordEvent(kind, _ string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, kind)
	return nil
}

func (j *memJournal) tradeRows() []types.TradeRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]types.TradeRecord(nil), j.trades...)
}

func (j *memJournal) equityRows() []EquityPoint {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]EquityPoint(nil), j.equity...)
}

type countingNotifier struct {
	nopNotifier
	mu         sync.Mutex
	placed     int
	liveFailed int
}

func (n *countingNotifier) OrderPlaced(Order, decimal.Decimal) {
	n.mu.Lock()
	n.placed++
	n.mu.Unlock()
}

func (n *countingNotifier) LiveSubmitFailed(Order, error) {
	n.mu.Lock()
	n.liveFailed++
	n.mu.Unlock()
}

func (n *countingNotifier) counts() (placed, liveFailed int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.placed, n.liveFailed
}

// ═══════════════════════════════════════════════════════════════════════════════
// HARNESS
// ═══════════════════════════════════════════════════════════════════════════════

type harness struct {
	clock    *types.ManualClock
	quotes   *fakeQuotes
	markets  *fakeMarkets
	journal  *memJournal
	notifier *countingNotifier
	engine   *Engine
}

func testMarket() types.MarketHandle {
	return types.MarketHandle{
		MarketID:    "m1",
		Slug:        "btc-updown-15m-1736164800",
		UpToken:     "111",
		DownToken:   "222",
		OpensAt:     cycleStart,
		ExpiresAt:   cycleStart.Add(types.CycleLength),
		PriceToBeat: d("100"),
	}
}

func testConfig(clock types.Clock) Config {
	return Config{
		StartBalance:      d("100"),
		RiskPerTrade:      d("0.01"),
		FeeRate:           d("0.01"),
		MinNotional:       d("1"),
		MinShares:         5,
		SpreadCross:       d("0.02"),
		OrderTimeout:      60 * time.Second,
		FillPollInterval:  time.Second,
		SettleBuffer:      2 * time.Second,
		HuntWindowMinutes: 10,
		Clock:             clock,
	}
}

func newHarness(t *testing.T, mutate func(*Config, *Deps)) *harness {
	t.Helper()

	h := &harness{
		clock:    types.NewManualClock(cycleStart.Add(time.Minute)),
		quotes:   &fakeQuotes{},
		markets:  &fakeMarkets{h: testMarket()},
		journal:  &memJournal{},
		notifier: &countingNotifier{},
	}
	cfg := testConfig(h.clock)
	deps := Deps{
		Quotes:   h.quotes,
		Markets:  h.markets,
		Prices:   fakePrices{price: 100.25},
		Oracle:   fakeOracle{price: d("101")},
		Journal:  h.journal,
		Notifier: h.notifier,
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	h.engine = NewEngine(cfg, deps)

	ctx, cancel := context.WithCancel(context.Background())
	h.engine.Start(ctx)
	t.Cleanup(func() {
		cancel()
		h.engine.Stop()
	})
	return h
}

func upSignal() types.Signal {
	return types.NewSignal(types.SideUp, 0.3, types.CycleID(cycleStart), 25, -0.01)
}

// waitCleared blocks until the order reached a terminal state and its
// trade row was written
func (h *harness) waitCleared(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		h.journal.mu.Lock()
		defer h.journal.mu.Unlock()
		return len(h.journal.cleared) >= n
	}, 2*time.Second, 5*time.Millisecond)
}

func (j *memJournal) hasEvent(kind string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, k := range j.events {
		if k == kind {
			return true
		}
	}
	return false
}

func (h *harness) waitState(t *testing.T, want EngineState) {
	t.Helper()
	require.Eventually(t, func() bool { return h.engine.State() == want }, 2*time.Second, 5*time.Millisecond,
		"state stuck at %s, want %s", h.engine.State(), want)
}

// ═══════════════════════════════════════════════════════════════════════════════
// TESTS
// ═══════════════════════════════════════════════════════════════════════════════

func TestLockSignalOncePerCycle(t *testing.T) {
	h := newHarness(t, nil)

	assert.False(t, h.engine.LockSignal(types.NoSignal(types.CycleID(cycleStart), 50, 0)))
	assert.Equal(t, StateIdle, h.engine.State())

	assert.True(t, h.engine.LockSignal(upSignal()))
	assert.Equal(t, StateSignalLocked, h.engine.State())
	assert.False(t, h.engine.LockSignal(upSignal()), "second lock in the same cycle")

	st := h.engine.Status()
	require.NotNil(t, st.Signal)
	assert.Equal(t, types.SideUp, st.Signal.Side)
}

func TestLockSignalIgnoredWhilePaused(t *testing.T) {
	h := newHarness(t, nil)

	h.engine.Pause("missing credentials")
	assert.False(t, h.engine.LockSignal(upSignal()))
	assert.True(t, h.engine.Status().Paused)

	h.engine.Resume()
	assert.True(t, h.engine.LockSignal(upSignal()))
}

func TestHuntWindowExpiresLock(t *testing.T) {
	h := newHarness(t, nil)
	h.quotes.set("m1", "0.49", "0.55", "0.44", "0.46")

	require.True(t, h.engine.LockSignal(upSignal()))
	h.engine.OnTick(cycleStart.Add(11 * time.Minute))

	assert.Equal(t, StateIdle, h.engine.State())
	placed, _ := h.notifier.counts()
	assert.Zero(t, placed)
}

func TestFilledOrderSettlesAsWin(t *testing.T) {
	h := newHarness(t, nil)
	h.quotes.set("m1", "0.49", "0.50", "0.49", "0.51")

	require.True(t, h.engine.LockSignal(upSignal()))
	h.engine.OnTick(h.clock.Now())

	// fill is immediate, then settlement parks on the clock
	h.clock.BlockUntil(1)
	require.Equal(t, StateFilled, h.engine.State())

	st := h.engine.Status()
	require.NotNil(t, st.Order)
	assert.True(t, d("0.5").Equal(st.Order.FillPrice))
	assert.True(t, d("5").Equal(st.Order.Shares))
	assert.Equal(t, "111", st.Order.TokenID)

	h.clock.Set(cycleStart.Add(types.CycleLength + 2*time.Second))
	h.waitCleared(t, 1)
	assert.Equal(t, StateIdle, h.engine.State())

	// 5 shares @ 0.50: cost 2.50, fees 0.05, payout 5.00
	assert.Equal(t, "102.45", h.engine.Balance().StringFixed(2))

	trades := h.journal.tradeRows()
	require.Len(t, trades, 1)
	assert.Equal(t, types.ResultWin, trades[0].Result)
	assert.Equal(t, "2.45", trades[0].PnL.StringFixed(2))
	assert.Equal(t, "101.00", trades[0].SettlePrice.StringFixed(2))

	equity := h.journal.equityRows()
	require.Len(t, equity, 1)
	assert.Equal(t, 1, equity[0].Wins)
	assert.True(t, equity[0].Drawdown.IsZero())

	stats := h.engine.Status().Stats
	assert.Equal(t, 1, stats.Trades)
	assert.Equal(t, 1, stats.Wins)
}

func TestSettlesOnPriceToBeatSource(t *testing.T) {
	h := newHarness(t, func(_ *Config, deps *Deps) {
		deps.Oracle = fakeOracle{price: d("101"), bySource: map[string]decimal.Decimal{"binance": d("99.5")}}
	})
	m := testMarket()
	m.PriceSource = "binance"
	h.markets.set(m)
	h.quotes.set("m1", "0.49", "0.50", "0.49", "0.51")

	require.True(t, h.engine.LockSignal(upSignal()))
	h.engine.OnTick(h.clock.Now())
	h.clock.BlockUntil(1)
	h.clock.Set(cycleStart.Add(types.CycleLength + 2*time.Second))
	h.waitCleared(t, 1)

	trades := h.journal.tradeRows()
	require.Len(t, trades, 1)
	// chainlink's 101 would have won; the window opened on binance at 100
	assert.Equal(t, types.ResultLoss, trades[0].Result)
	assert.Equal(t, "99.5", trades[0].SettlePrice.String())
}

func TestRotationDuringSettlementKeepsEntryMarket(t *testing.T) {
	h := newHarness(t, func(_ *Config, deps *Deps) {
		deps.Oracle = fakeOracle{price: d("150")}
	})
	h.quotes.set("m1", "0.49", "0.50", "0.49", "0.51")

	require.True(t, h.engine.LockSignal(upSignal()))
	h.engine.OnTick(h.clock.Now())
	h.clock.BlockUntil(1)

	next := testMarket()
	next.MarketID = "m2"
	next.Slug = "btc-updown-15m-1736165700"
	next.UpToken = "333"
	next.DownToken = "444"
	next.OpensAt = next.ExpiresAt
	next.ExpiresAt = next.ExpiresAt.Add(types.CycleLength)
	next.PriceToBeat = d("200")
	h.markets.set(next)
	h.quotes.set("m2", "0.10", "0.11", "0.88", "0.89")

	st := h.engine.Status()
	require.NotNil(t, st.Order)
	assert.Equal(t, "111", st.Order.TokenID)
	assert.Equal(t, "222", st.Order.Market.DownToken)
	assert.Equal(t, "100", st.Order.Market.PriceToBeat.String())

	h.clock.Set(cycleStart.Add(types.CycleLength + 2*time.Second))
	h.waitCleared(t, 1)
	assert.Equal(t, StateIdle, h.engine.State())

	trades := h.journal.tradeRows()
	require.Len(t, trades, 1)
	// 150 beats the entry market's 100, not the rotated market's 200
	assert.Equal(t, types.ResultWin, trades[0].Result)
	assert.Equal(t, "100", trades[0].PriceToBeat.String())
	assert.Equal(t, "btc-updown-15m-1736164800", trades[0].MarketSlug)
}

func TestUnfilledOrderCancelsAfterTimeout(t *testing.T) {
	h := newHarness(t, nil)
	// wide spread: limit posts at 0.50, ask stays at 0.55
	h.quotes.set("m1", "0.49", "0.55", "0.44", "0.46")

	require.True(t, h.engine.LockSignal(upSignal()))
	h.engine.OnTick(h.clock.Now())
	require.Equal(t, StateOrderOpen, h.engine.State())

	st := h.engine.Status()
	require.NotNil(t, st.Order)
	assert.True(t, d("0.5").Equal(st.Order.LimitPrice))

	for i := 0; i < 60; i++ {
		h.clock.BlockUntil(1)
		h.clock.Advance(time.Second)
	}
	h.waitCleared(t, 1)
	assert.Equal(t, StateIdle, h.engine.State())

	assert.Equal(t, "100.00", h.engine.Balance().StringFixed(2))
	assert.Equal(t, 1, h.engine.Status().Stats.Cancels)

	trades := h.journal.tradeRows()
	require.Len(t, trades, 1)
	assert.Equal(t, types.ResultCancelled, trades[0].Result)
	assert.Empty(t, h.journal.equityRows())
}

func TestFillWhenAskCrossesLater(t *testing.T) {
	h := newHarness(t, nil)
	h.quotes.set("m1", "0.49", "0.55", "0.44", "0.46")

	require.True(t, h.engine.LockSignal(upSignal()))
	h.engine.OnTick(h.clock.Now())

	h.clock.BlockUntil(1)
	h.clock.Advance(time.Second)
	h.clock.BlockUntil(1)

	h.quotes.set("m1", "0.48", "0.50", "0.49", "0.51")
	h.clock.Advance(time.Second)
	h.waitState(t, StateFilled)
}

func TestSnapshotFromOtherMarketNeverFills(t *testing.T) {
	h := newHarness(t, nil)
	h.quotes.set("m1", "0.49", "0.55", "0.44", "0.46")

	require.True(t, h.engine.LockSignal(upSignal()))
	h.engine.OnTick(h.clock.Now())

	h.clock.BlockUntil(1)
	h.quotes.set("other", "0.01", "0.02", "0.97", "0.98")
	h.clock.Advance(time.Second)
	h.clock.BlockUntil(1)

	assert.Equal(t, StateOrderOpen, h.engine.State())
}

func TestNoEntryWithoutQuotesForMarket(t *testing.T) {
	h := newHarness(t, nil)
	h.quotes.set("stale", "0.49", "0.50", "0.49", "0.51")

	require.True(t, h.engine.LockSignal(upSignal()))
	assert.False(t, h.engine.TryEnter(h.clock.Now()))
	assert.Equal(t, StateSignalLocked, h.engine.State())
}

func TestAtMostOneOrderInFlight(t *testing.T) {
	h := newHarness(t, nil)
	h.quotes.set("m1", "0.49", "0.55", "0.44", "0.46")
	require.True(t, h.engine.LockSignal(upSignal()))

	now := h.clock.Now()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.engine.OnTick(now)
		}()
	}
	wg.Wait()

	placed, _ := h.notifier.counts()
	assert.Equal(t, 1, placed)
	assert.Equal(t, StateOrderOpen, h.engine.State())

	// a new cycle's signal cannot lock while the order is open
	next := types.NewSignal(types.SideDown, 0.2, types.CycleID(cycleStart)+900, 70, 0.01)
	assert.False(t, h.engine.LockSignal(next))
}

func TestSkipWhenBalanceBelowMinimumOrder(t *testing.T) {
	h := newHarness(t, func(cfg *Config, _ *Deps) {
		cfg.StartBalance = d("2")
	})
	h.quotes.set("m1", "0.49", "0.50", "0.49", "0.51")

	require.True(t, h.engine.LockSignal(upSignal()))
	h.engine.OnTick(h.clock.Now())

	assert.Equal(t, StateSignalLocked, h.engine.State())
	placed, _ := h.notifier.counts()
	assert.Zero(t, placed)
}

func TestOracleFailureSettlesAtEntryPrice(t *testing.T) {
	h := newHarness(t, func(_ *Config, deps *Deps) {
		deps.Oracle = fakeOracle{err: errors.New("rpc down")}
		deps.Prices = fakePrices{price: 100.5}
	})
	h.quotes.set("m1", "0.49", "0.50", "0.49", "0.51")

	require.True(t, h.engine.LockSignal(upSignal()))
	h.engine.OnTick(h.clock.Now())
	h.clock.BlockUntil(1)
	h.clock.Set(cycleStart.Add(types.CycleLength + 2*time.Second))
	h.waitCleared(t, 1)
	assert.Equal(t, StateIdle, h.engine.State())

	trades := h.journal.tradeRows()
	require.Len(t, trades, 1)
	assert.Equal(t, "100.5", trades[0].SettlePrice.String())
	assert.Equal(t, types.ResultWin, trades[0].Result)
	assert.True(t, h.journal.hasEvent("oracle"))
}

func TestLiveSubmitFailureKeepsFill(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("insufficient allowance")}
	h := newHarness(t, func(cfg *Config, deps *Deps) {
		cfg.LiveTrading = true
		deps.Submitter = sub
	})
	h.quotes.set("m1", "0.49", "0.50", "0.49", "0.51")

	require.True(t, h.engine.LockSignal(upSignal()))
	h.engine.OnTick(h.clock.Now())
	h.clock.BlockUntil(1)

	assert.Equal(t, StateFilled, h.engine.State())
	_, failed := h.notifier.counts()
	assert.Equal(t, 1, failed)

	sub.mu.Lock()
	require.Len(t, sub.reqs, 1)
	assert.Equal(t, "111", sub.reqs[0].TokenID)
	assert.Equal(t, exec.SideBuy, sub.reqs[0].Side)
	sub.mu.Unlock()
}

func TestLiveSubmitStoresExchangeID(t *testing.T) {
	h := newHarness(t, func(cfg *Config, deps *Deps) {
		cfg.LiveTrading = true
		deps.Submitter = &fakeSubmitter{}
	})
	h.quotes.set("m1", "0.49", "0.50", "0.49", "0.51")

	require.True(t, h.engine.LockSignal(upSignal()))
	h.engine.OnTick(h.clock.Now())
	h.clock.BlockUntil(1)

	st := h.engine.Status()
	require.NotNil(t, st.Order)
	assert.Equal(t, "0xlive", st.Order.LiveOrderID)
}

func TestRestoreResumesFilledOrder(t *testing.T) {
	journal := &memJournal{}
	clock := types.NewManualClock(cycleStart.Add(20 * time.Minute))

	o := Order{
		ID:         "recovered-1",
		CycleID:    types.CycleID(cycleStart),
		Side:       types.SideDown,
		TokenID:    "222",
		Market:     testMarket(),
		LimitPrice: d("0.4"),
		Shares:     d("10"),
		State:      OrderFilled,
		FillPrice:  d("0.4"),
		FilledAt:   cycleStart.Add(2 * time.Minute),
		EntryPrice: d("100"),
	}
	bal := d("90")

	e := NewEngine(testConfig(clock), Deps{
		Quotes:  &fakeQuotes{},
		Markets: &fakeMarkets{},
		Oracle:  fakeOracle{price: d("99")},
		Journal: journal,
	})
	e.Restore(&bal, &o)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	require.Eventually(t, func() bool {
		journal.mu.Lock()
		defer journal.mu.Unlock()
		return len(journal.cleared) == 1
	}, 2*time.Second, 5*time.Millisecond)
	trades := journal.tradeRows()
	assert.Equal(t, types.ResultWin, trades[0].Result)
	// 10 shares @ 0.40: cost 4.00, fees 0.08, payout 10.00
	assert.Equal(t, "95.92", e.Balance().StringFixed(2))
	assert.Equal(t, StateIdle, e.State())
}

func TestRestoreDropsOpenOrder(t *testing.T) {
	journal := &memJournal{}
	clock := types.NewManualClock(cycleStart.Add(20 * time.Minute))

	o := Order{
		ID:         "recovered-open",
		Side:       types.SideUp,
		Market:     testMarket(),
		LimitPrice: d("0.5"),
		Shares:     d("5"),
		State:      OrderOpen,
		PlacedAt:   cycleStart.Add(time.Minute),
	}

	e := NewEngine(testConfig(clock), Deps{Quotes: &fakeQuotes{}, Markets: &fakeMarkets{}, Journal: journal})
	e.Restore(nil, &o)
	e.Start(context.Background())
	defer e.Stop()

	assert.Equal(t, StateIdle, e.State())
	assert.Equal(t, "100.00", e.Balance().StringFixed(2))
	trades := journal.tradeRows()
	require.Len(t, trades, 1)
	assert.Equal(t, types.ResultCancelled, trades[0].Result)
	assert.Equal(t, []string{"recovered-open"}, journal.cleared)
}

func TestRestoreDiscardsJournaledOrder(t *testing.T) {
	journal := &memJournal{trades: []types.TradeRecord{{ID: "recovered-1", Result: types.ResultWin}}}
	clock := types.NewManualClock(cycleStart.Add(20 * time.Minute))

	o := Order{
		ID:        "recovered-1",
		Side:      types.SideDown,
		Market:    testMarket(),
		Shares:    d("10"),
		State:     OrderSettling,
		FillPrice: d("0.4"),
	}
	bal := d("95.92")

	e := NewEngine(testConfig(clock), Deps{
		Quotes:  &fakeQuotes{},
		Markets: &fakeMarkets{},
		Oracle:  fakeOracle{price: d("99")},
		Journal: journal,
	})
	e.Restore(&bal, &o)
	e.Start(context.Background())
	defer e.Stop()

	assert.Equal(t, StateIdle, e.State())
	assert.Equal(t, "95.92", e.Balance().StringFixed(2), "PnL already in the restored balance")
	assert.Len(t, journal.tradeRows(), 1)
	assert.Empty(t, journal.equityRows())
	assert.Equal(t, []string{"recovered-1"}, journal.cleared)
	assert.Zero(t, e.Status().Stats.Trades)
}

type failingCloseJournal struct{ memJournal }

func (j *failingCloseJournal) CloseOrder(types.TradeRecord, *EquityPoint) error {
	return errors.New("database is locked")
}

func TestJournalFailureKeepsOrderForRecovery(t *testing.T) {
	journal := &failingCloseJournal{}
	h := newHarness(t, func(_ *Config, deps *Deps) {
		deps.Journal = journal
	})
	h.quotes.set("m1", "0.49", "0.50", "0.49", "0.51")

	require.True(t, h.engine.LockSignal(upSignal()))
	h.engine.OnTick(h.clock.Now())
	h.clock.BlockUntil(1)
	h.clock.Set(cycleStart.Add(types.CycleLength + 2*time.Second))
	h.waitState(t, StateIdle)

	journal.mu.Lock()
	defer journal.mu.Unlock()
	assert.Empty(t, journal.cleared, "order row left for the next start")
	require.NotEmpty(t, journal.saved)
	assert.Equal(t, OrderSettling, journal.saved[len(journal.saved)-1].State)
}

func TestShutdownLeavesFilledOrderPersisted(t *testing.T) {
	h := newHarness(t, nil)
	h.quotes.set("m1", "0.49", "0.50", "0.49", "0.51")

	require.True(t, h.engine.LockSignal(upSignal()))
	h.engine.OnTick(h.clock.Now())
	h.clock.BlockUntil(1)

	h.engine.Stop()

	h.journal.mu.Lock()
	defer h.journal.mu.Unlock()
	assert.Empty(t, h.journal.cleared)
	require.NotEmpty(t, h.journal.saved)
	assert.Equal(t, OrderFilled, h.journal.saved[len(h.journal.saved)-1].State)
}
