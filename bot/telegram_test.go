package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/updown/execution"
	"github.com/web3guy0/updown/storage"
	"github.com/web3guy0/updown/types"
)

type fakeSender struct {
	mu   sync.Mutex
	msgs []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.msgs = append(f.msgs, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.msgs))
	for _, m := range f.msgs {
		out = append(out, m.Text)
	}
	return out
}

type fakeStatus struct {
	st     execution.Status
	trades []types.TradeRecord
	events []storage.AuditEvent
	err    error
}

func (f fakeStatus) EngineStatus() execution.Status { return f.st }
func (f fakeStatus) Mode() string                   { return "PAPER" }
func (f fakeStatus) RecentTrades(int) ([]types.TradeRecord, error) {
	return f.trades, f.err
}
func (f fakeStatus) RecentEvents(int) ([]storage.AuditEvent, error) {
	return f.events, f.err
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func settledOrder(result, pnl string) execution.Order {
	return execution.Order{
		ID:           "ord-1",
		Side:         types.SideUp,
		Shares:       d("5"),
		LimitPrice:   d("0.5"),
		FillPrice:    d("0.5"),
		Market:       types.MarketHandle{Slug: "btc-updown-15m-1736164800", PriceToBeat: d("97000")},
		SettlePrice:  d("97012.5"),
		SettleSource: "chainlink",
		Result:       result,
		PnL:          d(pnl),
	}
}

func TestNotificationsAreQueuedAndSent(t *testing.T) {
	api := &fakeSender{}
	b := newTelegramBot(api, 42, nil)
	b.Start(context.Background())

	b.OrderSettled(settledOrder(types.ResultWin, "2.45"), d("102.45"))
	b.LiveSubmitFailed(settledOrder("", "0"), errors.New("not enough balance"))

	require.Eventually(t, func() bool { return len(api.texts()) == 2 }, time.Second, 5*time.Millisecond)
	b.Stop()

	texts := api.texts()
	assert.Contains(t, texts[0], "*WIN* | UP")
	assert.Contains(t, texts[0], "Beat: $97000.00 → Settle: $97012.50 (chainlink)")
	assert.Contains(t, texts[0], "P&L: *+$2.45*")
	assert.Contains(t, texts[0], "Balance: *$102.45*")
	assert.Contains(t, texts[1], "LIVE EXECUTION FAILED")
	assert.Contains(t, texts[1], "`not enough balance`")

	api.mu.Lock()
	assert.Equal(t, "Markdown", api.msgs[0].ParseMode)
	assert.Equal(t, int64(42), api.msgs[0].ChatID)
	api.mu.Unlock()
}

func TestStopFlushesQueue(t *testing.T) {
	api := &fakeSender{}
	b := newTelegramBot(api, 42, nil)

	// queued before the loop runs
	b.OrderFilled(settledOrder("", "0"))
	b.Error(errors.New("boom"))
	b.Start(context.Background())
	b.Stop()

	assert.Len(t, api.texts(), 2)
}

func TestQueueDropsWhenFull(t *testing.T) {
	api := &fakeSender{}
	b := newTelegramBot(api, 42, nil)

	for i := 0; i < queueSize+10; i++ {
		b.Error(errors.New("flood"))
	}
	assert.Len(t, b.queue, queueSize)
}

func TestSignalLockedMessage(t *testing.T) {
	api := &fakeSender{}
	b := newTelegramBot(api, 42, nil)

	sig := types.NewSignal(types.SideDown, 0.25, 1736164800, 71.4, 0.0123)
	b.SignalLocked(sig, types.MarketHandle{PriceToBeat: d("97000")})

	text := <-b.queue
	assert.Contains(t, text, "🔴 *SIGNAL LOCKED* | DOWN")
	assert.Contains(t, text, "RSI: *71.4*")
	assert.Contains(t, text, "Trend: *+1.23%*")
	assert.Contains(t, text, "Confidence: *25%*")
}

func TestStatusCommand(t *testing.T) {
	api := &fakeSender{}
	sig := types.NewSignal(types.SideUp, 0.3, 1736164800, 25, -0.01)
	b := newTelegramBot(api, 42, fakeStatus{st: execution.Status{
		State:   execution.StateSignalLocked,
		Balance: d("98.5"),
		Peak:    d("102.45"),
		Signal:  &sig,
		Stats:   execution.Stats{Trades: 4, Wins: 1, Losses: 3, Cancels: 2, TotalPnL: d("-1.5")},
	}})

	b.handleCommand("STATUS")

	texts := api.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "🟢 SIGNAL LOCKED")
	assert.Contains(t, texts[0], "Mode: *PAPER*")
	assert.Contains(t, texts[0], "Balance: *$98.50* (peak $102.45)")
	assert.Contains(t, texts[0], "Trades: *4* | 1 W / 3 L (25.0%)")
	assert.Contains(t, texts[0], "P&L: *-$1.50*")
	assert.Contains(t, texts[0], "Hunting *UP*")
}

func TestStatusShowsPause(t *testing.T) {
	msg := formatStatus("LIVE", execution.Status{State: execution.StateIdle, Paused: true, Reason: "missing credentials"})
	assert.Contains(t, msg, "⏸️ PAUSED (missing credentials)")
}

func TestTradesCommand(t *testing.T) {
	api := &fakeSender{}
	b := newTelegramBot(api, 42, fakeStatus{trades: []types.TradeRecord{
		{Timestamp: time.Date(2025, 1, 6, 12, 15, 2, 0, time.UTC), Side: types.SideUp, EntryPrice: d("0.5"), Result: types.ResultWin, PnL: d("2.45")},
		{Timestamp: time.Date(2025, 1, 6, 12, 31, 0, 0, time.UTC), Side: types.SideDown, EntryPrice: d("0.42"), Result: types.ResultCancelled},
	}})

	b.handleCommand("trades")

	texts := api.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "LAST 2 TRADES")
	assert.Contains(t, texts[0], "💰 WIN UP @ 50.0¢ | P&L: +$2.45")
	assert.Contains(t, texts[0], "❌ CANCELLED DOWN @ 42.0¢\n")
	assert.Contains(t, texts[0], "_Jan 6 12:15_")
}

func TestTradesCommandEmptyAndError(t *testing.T) {
	api := &fakeSender{}
	newTelegramBot(api, 42, fakeStatus{}).handleCommand("trades")
	newTelegramBot(api, 42, fakeStatus{err: errors.New("db locked")}).handleCommand("trades")

	assert.Equal(t, []string{"📭 No trade history yet", "❌ Failed to fetch trades"}, api.texts())
}

func TestPauseResumeCallbacks(t *testing.T) {
	api := &fakeSender{}
	b := newTelegramBot(api, 42, nil)

	var paused, resumed bool
	b.SetControlCallbacks(func() { paused = true }, func() { resumed = true })

	b.handleCommand("pause")
	b.handleCommand("resume")
	b.handleCommand("nope")

	assert.True(t, paused)
	assert.True(t, resumed)
	assert.Equal(t, []string{"⏸️ Trading paused", "▶️ Trading resumed", "❓ Unknown command. Use /help"}, api.texts())
}

func TestEventsCommand(t *testing.T) {
	api := &fakeSender{}
	at := time.Date(2025, 1, 6, 12, 14, 55, 0, time.UTC)
	b := newTelegramBot(api, 42, fakeStatus{events: []storage.AuditEvent{
		{Kind: "error", Level: "warn", Message: "market discovery exhausted, entries halted", CreatedAt: at},
		{Kind: "rotation", Level: "info", Message: "btc-updown-15m-1736164800", CreatedAt: at.Add(-15 * time.Minute)},
	}})

	b.handleCommand("events")

	texts := api.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "LAST 2 EVENTS")
	assert.Contains(t, texts[0], "⚠️ Jan 6 12:14 error: market discovery exhausted, entries halted")
	assert.Contains(t, texts[0], "▫️ Jan 6 11:59 rotation: btc-updown-15m-1736164800")

	api.msgs = nil
	newTelegramBot(api, 42, fakeStatus{}).handleCommand("events")
	assert.Equal(t, []string{"📭 No events yet"}, api.texts())
}

func TestLiveSubmitFailedMessage(t *testing.T) {
	api := &fakeSender{}
	b := newTelegramBot(api, 42, nil)
	b.Start(context.Background())

	b.LiveSubmitFailed(settledOrder(types.ResultWin, "0"), errors.New("not enough balance"))
	b.Stop()

	texts := api.texts()
	require.Len(t, texts, 1)
	assert.Equal(t, "🚨 *LIVE EXECUTION FAILED* | UP\n\n`not enough balance`", texts[0])
	assert.NotContains(t, texts[0], "—")
}
