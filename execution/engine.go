package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/updown/exec"
	"github.com/web3guy0/updown/metrics"
	"github.com/web3guy0/updown/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ORDER ENGINE - single in-flight order, hunted from a locked cycle signal
// ═══════════════════════════════════════════════════════════════════════════════
//
// Balance, the locked signal and the order slot live behind one mutex.
// Every mutation is a single critical section; no lock is held across I/O.
//
// ═══════════════════════════════════════════════════════════════════════════════

// QuoteSource is the polled orderbook view
type QuoteSource interface {
	Snapshot() types.QuoteSnapshot
}

// MarketSource returns the tradable market
type MarketSource interface {
	Current() (types.MarketHandle, bool)
}

// PriceSource is the underlying's latest price
type PriceSource interface {
	LatestPrice() (float64, bool)
}

// SettlementOracle resolves the underlying's price at settlement, asking
// the preferred source first
type SettlementOracle interface {
	SettlementPrice(ctx context.Context, prefer string) (decimal.Decimal, string, error)
}

// OrderSubmitter places live orders after a local fill
type OrderSubmitter interface {
	PlaceOrder(ctx context.Context, req exec.OrderRequest) (exec.OrderAck, error)
}

// Journal persists orders, trades, equity and audit events.
//
// CloseOrder writes the trade row, the equity point when non-nil, and
// removes the persisted order as one unit: after a crash either all of
// it landed or none of it did. HasTrade reports a trade row for the id.
type Journal interface {
	SaveOrder(o Order) error
	ClearOrder(id string) error
	CloseOrder(rec types.TradeRecord, equity *EquityPoint) error
	HasTrade(id string) (bool, error)
	RecordEvent(kind, message string) error
}

// Notifier receives fire-and-forget lifecycle events
type Notifier interface {
	SignalLocked(sig types.Signal, market types.MarketHandle)
	OrderPlaced(o Order, balance decimal.Decimal)
	OrderFilled(o Order)
	OrderCancelled(o Order)
	OrderSettled(o Order, balance decimal.Decimal)
	LiveSubmitFailed(o Order, err error)
	Error(err error)
}

// Config holds engine parameters
type Config struct {
	StartBalance      decimal.Decimal
	RiskPerTrade      decimal.Decimal
	FeeRate           decimal.Decimal
	MinNotional       decimal.Decimal
	MinShares         int64
	SpreadCross       decimal.Decimal
	OrderTimeout      time.Duration
	FillPollInterval  time.Duration
	SettleBuffer      time.Duration
	HuntWindowMinutes int
	LiveTrading       bool
	Clock             types.Clock
}

// Deps are the engine's collaborators. Submitter, Journal and Notifier may be nil.
type Deps struct {
	Quotes    QuoteSource
	Markets   MarketSource
	Prices    PriceSource
	Oracle    SettlementOracle
	Submitter OrderSubmitter
	Journal   Journal
	Notifier  Notifier
}

// Stats are session counters
type Stats struct {
	Trades   int
	Wins     int
	Losses   int
	Cancels  int
	TotalPnL decimal.Decimal
	Fees     decimal.Decimal
}

// Status is a consistent snapshot for display
type Status struct {
	State   EngineState
	Balance decimal.Decimal
	Peak    decimal.Decimal
	Signal  *types.Signal
	Order   *Order
	Stats   Stats
	Paused  bool
	Reason  string
}

// Engine is the order state machine
type Engine struct {
	mu sync.Mutex

	cfg   Config
	deps  Deps
	clock types.Clock

	ctx    context.Context
	cancel context.CancelFunc
	detach func() bool
	wg     sync.WaitGroup

	// owned state
	balance     decimal.Decimal
	peak        decimal.Decimal
	locked      *types.Signal
	lockedCycle int64
	order       *Order
	stats       Stats
	paused      bool
	pauseReason string
	recovered   *Order
}

// NewEngine creates the engine with the starting balance
func NewEngine(cfg Config, deps Deps) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = types.SystemClock{}
	}
	if cfg.OrderTimeout <= 0 {
		cfg.OrderTimeout = 60 * time.Second
	}
	if cfg.FillPollInterval <= 0 {
		cfg.FillPollInterval = time.Second
	}
	if cfg.HuntWindowMinutes <= 0 {
		cfg.HuntWindowMinutes = 10
	}
	if deps.Journal == nil {
		deps.Journal = nopJournal{}
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		cfg:         cfg,
		deps:        deps,
		clock:       cfg.Clock,
		ctx:         ctx,
		cancel:      cancel,
		balance:     cfg.StartBalance,
		peak:        cfg.StartBalance,
		lockedCycle: -1,
		stats:       Stats{TotalPnL: decimal.Zero, Fees: decimal.Zero},
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ═══════════════════════════════════════════════════════════════════════════════

// Restore seeds the engine from persisted state before Start. A nil
// balance keeps the configured start balance.
func (e *Engine) Restore(balance *decimal.Decimal, order *Order) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if balance != nil {
		e.balance = *balance
		e.peak = e.balance
		log.Info().Str("balance", e.balance.StringFixed(2)).Msg("💾 Balance restored")
	}
	if order != nil && !order.State.Terminal() {
		o := *order
		e.recovered = &o
	}
}

// Start resumes any recovered order and ties the engine to ctx
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	e.detach = context.AfterFunc(ctx, e.cancel)
	rec := e.recovered
	e.recovered = nil
	e.mu.Unlock()

	if rec != nil {
		e.resume(*rec)
	}

	log.Info().
		Str("balance", e.Balance().StringFixed(2)).
		Bool("live", e.cfg.LiveTrading).
		Msg("⚙️ Order engine started")
}

// Stop cancels monitors and waits for them to finish their current iteration
func (e *Engine) Stop() {
	e.mu.Lock()
	detach := e.detach
	e.mu.Unlock()
	if detach != nil {
		detach()
	}
	e.cancel()
	e.wg.Wait()
	log.Info().Msg("Order engine stopped")
}

// resume re-schedules settlement of a filled order and drops an open one.
// An order whose trade row already exists was closed before the crash;
// its PnL is in the restored balance, so only the stale row is removed.
func (e *Engine) resume(o Order) {
	done, err := e.deps.Journal.HasTrade(o.ID)
	if err != nil {
		log.Warn().Err(err).Str("id", o.ID).Msg("Failed to check trade log for recovered order")
	}
	if done {
		log.Warn().Str("id", o.ID).Str("state", string(o.State)).Msg("♻️ Recovered order already journaled, discarding")
		if err := e.deps.Journal.ClearOrder(o.ID); err != nil {
			log.Warn().Err(err).Str("id", o.ID).Msg("Failed to clear recovered order")
		}
		e.audit("recovery", "discarded journaled order "+o.ID)
		return
	}

	switch o.State {
	case OrderFilled, OrderSettling:
		e.mu.Lock()
		e.order = &o
		e.mu.Unlock()
		log.Warn().Str("id", o.ID).Str("slug", o.Market.Slug).Msg("♻️ Resuming settlement of recovered order")
		e.audit("recovery", fmt.Sprintf("resumed %s order %s", o.State, o.ID))
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.settle(o)
		}()
	case OrderOpen:
		o.State = OrderCancelled
		o.Result = types.ResultCancelled
		e.mu.Lock()
		e.stats.Cancels++
		bal := e.balance
		e.mu.Unlock()
		log.Warn().Str("id", o.ID).Msg("Dropping recovered open order as cancelled")
		e.closeOrder(o.Record(bal), nil)
		e.audit("recovery", "cancelled open order "+o.ID)
	}
}

// Pause halts new entries; monitoring and settlement continue
func (e *Engine) Pause(reason string) {
	e.mu.Lock()
	e.paused = true
	e.pauseReason = reason
	e.locked = nil
	e.mu.Unlock()
	log.Warn().Str("reason", reason).Msg("⏸️ Trading entry paused")
}

// Resume re-enables entries
func (e *Engine) Resume() {
	e.mu.Lock()
	e.paused = false
	e.pauseReason = ""
	e.mu.Unlock()
	log.Info().Msg("▶️ Trading entry resumed")
}

// ═══════════════════════════════════════════════════════════════════════════════
// READS
// ═══════════════════════════════════════════════════════════════════════════════

// Balance returns the running balance
func (e *Engine) Balance() decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balance
}

// State derives the machine state from the slot and the lock
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() EngineState {
	if e.order != nil {
		switch e.order.State {
		case OrderOpen:
			return StateOrderOpen
		case OrderFilled:
			return StateFilled
		case OrderSettling:
			return StateSettling
		}
	}
	if e.locked != nil {
		return StateSignalLocked
	}
	return StateIdle
}

// Status returns a copy of the engine state
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		State:   e.stateLocked(),
		Balance: e.balance,
		Peak:    e.peak,
		Stats:   e.stats,
		Paused:  e.paused,
		Reason:  e.pauseReason,
	}
	if e.locked != nil {
		sig := *e.locked
		st.Signal = &sig
	}
	if e.order != nil {
		o := *e.order
		st.Order = &o
	}
	return st
}

// ═══════════════════════════════════════════════════════════════════════════════
// SIGNAL LOCK & HUNT
// ═══════════════════════════════════════════════════════════════════════════════

// LockSignal stores the cycle's signal. It is one-shot per cycle: a second
// call for the same cycle, a call while an order is in flight, or a call
// while paused is a no-op.
func (e *Engine) LockSignal(sig types.Signal) bool {
	if sig.IsNone() {
		return false
	}

	e.mu.Lock()
	if e.paused || e.order != nil || e.lockedCycle == sig.CycleID {
		e.mu.Unlock()
		return false
	}
	s := sig
	e.locked = &s
	e.lockedCycle = sig.CycleID
	e.mu.Unlock()

	market, _ := e.deps.Markets.Current()
	log.Info().
		Str("side", sig.Side.Label()).
		Float64("confidence", sig.Confidence).
		Int("hunt_minutes", e.cfg.HuntWindowMinutes).
		Msg("⚔️ SIGNAL LOCKED - hunting for entry")
	e.audit("signal", fmt.Sprintf("locked %s rsi=%.2f conf=%.2f", sig.Side.Label(), sig.RSI, sig.Confidence))
	e.deps.Notifier.SignalLocked(sig, market)
	return true
}

// OnTick runs once per closed bar: expires a stale lock, else tries to enter
func (e *Engine) OnTick(now time.Time) {
	e.mu.Lock()
	if e.locked != nil {
		if types.CycleID(now) != e.locked.CycleID || types.MinuteInCycle(now) > e.cfg.HuntWindowMinutes {
			log.Info().Str("side", e.locked.Side.Label()).Msg("Signal hunt window over, stop hunting")
			e.locked = nil
		}
	}
	ready := e.locked != nil && e.order == nil && !e.paused
	e.mu.Unlock()

	if ready {
		e.TryEnter(now)
	}
}

// TryEnter prices and sizes an order from the current snapshot and, when
// the slot is still free, opens it. Returns true when an order was opened.
func (e *Engine) TryEnter(now time.Time) bool {
	market, ok := e.deps.Markets.Current()
	if !ok || !market.OpenAt(now) {
		log.Debug().Msg("No open market, skip entry")
		return false
	}

	snap := e.deps.Quotes.Snapshot()
	if snap.IsZero() || snap.MarketID != market.MarketID || !snap.HasAsks() {
		log.Debug().Msg("No usable quotes, skip entry")
		return false
	}

	e.mu.Lock()
	if e.locked == nil || e.order != nil || e.paused {
		e.mu.Unlock()
		return false
	}
	sig := *e.locked
	quote := snap.Side(sig.Side)
	if !quote.Bid.IsPositive() || !quote.Ask.IsPositive() {
		e.mu.Unlock()
		return false
	}

	limit := LimitPrice(quote, e.cfg.SpreadCross)
	shares, fits := SizeOrder(limit, SizeParams{
		Balance:     e.balance,
		Risk:        e.cfg.RiskPerTrade,
		MinNotional: e.cfg.MinNotional,
		MinShares:   e.cfg.MinShares,
	})
	if !fits {
		bal := e.balance
		e.mu.Unlock()
		log.Warn().
			Str("balance", bal.StringFixed(2)).
			Str("cost", shares.Mul(limit).StringFixed(2)).
			Msg("Skipping trade: balance below minimum order")
		return false
	}

	o := Order{
		ID:         uuid.NewString(),
		CycleID:    sig.CycleID,
		Side:       sig.Side,
		TokenID:    market.Token(sig.Side),
		Market:     market,
		Confidence: sig.Confidence,
		LimitPrice: limit,
		Shares:     shares,
		State:      OrderOpen,
		PlacedAt:   e.clock.Now(),
		EntryPrice: e.entryPrice(market),
	}
	e.order = &o
	e.locked = nil
	bal := e.balance
	e.mu.Unlock()

	metrics.Orders.WithLabelValues(o.Side.Label()).Inc()
	log.Info().
		Str("id", o.ID).
		Str("side", o.Side.Label()).
		Str("shares", o.Shares.String()).
		Str("limit", o.LimitPrice.String()).
		Str("cost", o.Cost().StringFixed(2)).
		Msg("📝 Order placed")
	e.persist(o)
	e.audit("order", fmt.Sprintf("placed %s %s @ %s", o.Side.Label(), o.Shares, o.LimitPrice))
	e.deps.Notifier.OrderPlaced(o, bal)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.monitor(o)
	}()
	return true
}

// entryPrice is the underlying's current price, or the price to beat
func (e *Engine) entryPrice(m types.MarketHandle) decimal.Decimal {
	if e.deps.Prices != nil {
		if p, ok := e.deps.Prices.LatestPrice(); ok && p > 0 {
			return decimal.NewFromFloat(p)
		}
	}
	return m.PriceToBeat
}

// ═══════════════════════════════════════════════════════════════════════════════
// FILL MONITOR
// ═══════════════════════════════════════════════════════════════════════════════

// monitor polls the snapshot until the ask crosses the limit or the
// timeout passes. A filled order goes on to settlement in this goroutine.
func (e *Engine) monitor(o Order) {
	deadline := o.PlacedAt.Add(e.cfg.OrderTimeout)

	for {
		if e.crossed(o) {
			filled := e.fill(o)
			e.submitLive(filled)
			e.settle(filled)
			return
		}
		if !e.clock.Now().Before(deadline) {
			e.cancelOrder(o)
			return
		}

		select {
		case <-e.ctx.Done():
			log.Debug().Str("id", o.ID).Msg("Fill monitor stopped")
			return
		case <-e.clock.After(e.cfg.FillPollInterval):
		}
	}
}

// crossed reports an ask at or below the limit on the order's own market
func (e *Engine) crossed(o Order) bool {
	snap := e.deps.Quotes.Snapshot()
	if snap.IsZero() || snap.MarketID != o.Market.MarketID {
		return false
	}
	ask := snap.Side(o.Side).Ask
	return ask.IsPositive() && ask.LessThanOrEqual(o.LimitPrice)
}

func (e *Engine) fill(o Order) Order {
	e.mu.Lock()
	o.State = OrderFilled
	o.FillPrice = o.LimitPrice
	o.FilledAt = e.clock.Now()
	cur := o
	e.order = &cur
	e.mu.Unlock()

	metrics.Fills.WithLabelValues(o.Side.Label()).Inc()
	log.Info().
		Str("id", o.ID).
		Str("side", o.Side.Label()).
		Str("price", o.FillPrice.String()).
		Msg("✅ FILLED")
	e.persist(o)
	e.audit("fill", fmt.Sprintf("filled %s @ %s", o.ID, o.FillPrice))
	e.deps.Notifier.OrderFilled(o)
	return o
}

func (e *Engine) cancelOrder(o Order) {
	o.State = OrderCancelled
	o.Result = types.ResultCancelled

	e.mu.Lock()
	if e.order != nil && e.order.ID == o.ID {
		e.order = nil
	}
	e.stats.Cancels++
	bal := e.balance
	e.mu.Unlock()

	metrics.Cancels.Inc()
	log.Info().
		Str("id", o.ID).
		Dur("timeout", e.cfg.OrderTimeout).
		Msg("❌ CANCELLED - no fill")
	e.closeOrder(o.Record(bal), nil)
	e.deps.Notifier.OrderCancelled(o)
}

// submitLive sends the filled order to the exchange. Failure is reported
// but never reverts the local fill.
func (e *Engine) submitLive(o Order) {
	if !e.cfg.LiveTrading || e.deps.Submitter == nil {
		return
	}

	ctx, cancel := context.WithTimeout(e.ctx, 10*time.Second)
	defer cancel()

	ack, err := e.deps.Submitter.PlaceOrder(ctx, exec.OrderRequest{
		TokenID: o.TokenID,
		Side:    exec.SideBuy,
		Price:   o.FillPrice,
		Size:    o.Shares,
	})
	if err != nil {
		metrics.SubmitFailures.Inc()
		log.Error().Err(err).Str("id", o.ID).Msg("LIVE EXECUTION FAILED")
		e.audit("live_error", err.Error())
		e.deps.Notifier.LiveSubmitFailed(o, err)
		return
	}

	e.mu.Lock()
	if e.order != nil && e.order.ID == o.ID {
		e.order.LiveOrderID = ack.OrderID
	}
	e.mu.Unlock()
	log.Info().Str("id", o.ID).Str("live_id", ack.OrderID).Msg("⚡ Live order submitted")
}

// ═══════════════════════════════════════════════════════════════════════════════
// SETTLEMENT
// ═══════════════════════════════════════════════════════════════════════════════

// settle waits for market close, resolves against the oracle and applies PnL
func (e *Engine) settle(o Order) {
	at := o.SettleAt(e.cfg.SettleBuffer)
	if wait := at.Sub(e.clock.Now()); wait > 0 {
		log.Info().Str("id", o.ID).Time("at", at).Dur("wait", wait).Msg("⏳ Waiting for market close")
		select {
		case <-e.ctx.Done():
			log.Debug().Str("id", o.ID).Msg("Settlement deferred by shutdown")
			return
		case <-e.clock.After(wait):
		}
	}

	o.State = OrderSettling
	e.mu.Lock()
	if e.order != nil && e.order.ID == o.ID {
		e.order.State = OrderSettling
	}
	e.mu.Unlock()
	e.persist(o)

	settlePrice, source := e.settlementPrice(o)
	ptb := o.Market.PriceToBeat
	if !ptb.IsPositive() {
		ptb = o.EntryPrice
		log.Warn().Str("id", o.ID).Str("ptb", ptb.StringFixed(2)).Msg("Using entry price as price to beat")
	}

	won, pnl, fees := Resolve(o.Side, o.Shares, o.FillPrice, ptb, settlePrice, e.cfg.FeeRate)
	o.State = OrderSettled
	o.SettlePrice = settlePrice
	o.SettleSource = source
	o.SettledAt = e.clock.Now()
	o.Fees = fees
	o.PnL = pnl
	o.Result = types.ResultLoss
	if won {
		o.Result = types.ResultWin
	}
	o.Market.PriceToBeat = ptb

	e.mu.Lock()
	e.balance = e.balance.Add(pnl)
	if e.balance.GreaterThan(e.peak) {
		e.peak = e.balance
	}
	e.stats.Trades++
	if won {
		e.stats.Wins++
	} else {
		e.stats.Losses++
	}
	e.stats.TotalPnL = e.stats.TotalPnL.Add(pnl)
	e.stats.Fees = e.stats.Fees.Add(fees)
	if e.order != nil && e.order.ID == o.ID {
		e.order = nil
	}
	bal, peak, stats := e.balance, e.peak, e.stats
	e.mu.Unlock()

	metrics.Settlements.WithLabelValues(o.Result).Inc()
	metrics.Equity.Set(bal.InexactFloat64())

	emoji := "💰"
	if !won {
		emoji = "📉"
	}
	log.Info().
		Str("id", o.ID).
		Str("result", o.Result).
		Str("ptb", ptb.StringFixed(2)).
		Str("settle", settlePrice.StringFixed(2)).
		Str("source", source).
		Str("pnl", pnl.StringFixed(2)).
		Str("balance", bal.StringFixed(2)).
		Msg(emoji + " SETTLED")

	e.closeOrder(o.Record(bal), &EquityPoint{
		Timestamp: o.SettledAt,
		Balance:   bal,
		Peak:      peak,
		Drawdown:  drawdown(bal, peak),
		Trades:    stats.Trades,
		Wins:      stats.Wins,
		Losses:    stats.Losses,
	})
	e.audit("settle", fmt.Sprintf("%s %s pnl=%s", o.ID, o.Result, pnl.StringFixed(2)))
	e.deps.Notifier.OrderSettled(o, bal)
}

// settlementPrice asks the oracle, falling back to the entry price. The
// fallback turns the trade into a price-to-beat comparison against the
// entry and is logged as a warning every time it happens.
func (e *Engine) settlementPrice(o Order) (decimal.Decimal, string) {
	if e.deps.Oracle != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		p, source, err := e.deps.Oracle.SettlementPrice(ctx, o.Market.PriceSource)
		cancel()
		if err == nil && p.IsPositive() {
			if o.Market.PriceSource != "" && source != o.Market.PriceSource {
				log.Warn().
					Str("id", o.ID).
					Str("ptb_source", o.Market.PriceSource).
					Str("settle_source", source).
					Msg("Settling on a different source than the price to beat")
			}
			return p, source
		}
		log.Warn().Err(err).Str("id", o.ID).Msg("Oracle unavailable, settling at entry price")
		if err != nil {
			e.audit("oracle", err.Error())
		}
	}
	return o.EntryPrice, "entry"
}

func (e *Engine) persist(o Order) {
	if err := e.deps.Journal.SaveOrder(o); err != nil {
		log.Warn().Err(err).Str("id", o.ID).Msg("Failed to persist order")
	}
}

// closeOrder journals a finished order. On failure the order row stays
// behind and a restart settles it again from the last committed balance.
func (e *Engine) closeOrder(rec types.TradeRecord, equity *EquityPoint) {
	if err := e.deps.Journal.CloseOrder(rec, equity); err != nil {
		log.Error().Err(err).Str("id", rec.ID).Str("result", rec.Result).Msg("Failed to journal closed order")
		e.deps.Notifier.Error(fmt.Errorf("journal order %s: %w", rec.ID, err))
	}
}

func (e *Engine) audit(kind, message string) {
	if err := e.deps.Journal.RecordEvent(kind, message); err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("Failed to write audit event")
	}
}

func drawdown(balance, peak decimal.Decimal) decimal.Decimal {
	if !peak.IsPositive() {
		return decimal.Zero
	}
	return peak.Sub(balance).Div(peak).Mul(hundred).Round(2)
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOPS
// ═══════════════════════════════════════════════════════════════════════════════

type nopJournal struct{}

func (nopJournal) SaveOrder(Order) error                            { return nil }
func (nopJournal) ClearOrder(string) error                          { return nil }
func (nopJournal) CloseOrder(types.TradeRecord, *EquityPoint) error { return nil }
func (nopJournal) HasTrade(string) (bool, error)                    { return false, nil }
func (nopJournal) RecordEvent(string, string) error                 { return nil }

type nopNotifier struct{}

func (nopNotifier) SignalLocked(types.Signal, types.MarketHandle) {}
func (nopNotifier) OrderPlaced(Order, decimal.Decimal)            {}
func (nopNotifier) OrderFilled(Order)                             {}
func (nopNotifier) OrderCancelled(Order)                          {}
func (nopNotifier) OrderSettled(Order, decimal.Decimal)           {}
func (nopNotifier) LiveSubmitFailed(Order, error)                 {}
func (nopNotifier) Error(error)                                   {}
