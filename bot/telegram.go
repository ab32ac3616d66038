package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/updown/execution"
	"github.com/web3guy0/updown/storage"
	"github.com/web3guy0/updown/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TELEGRAM BOT - trade notifications & control
// ═══════════════════════════════════════════════════════════════════════════════
//
// Features:
//   ⚔️ Signal lock alerts
//   💰 Order lifecycle (placed / filled / cancelled / settled)
//   ⚠️ Live execution failures and config faults
//   🎛️ Commands (/status, /trades, /events, /pause, /resume)
//
// Notifications are queued and sent from one goroutine, so the trading
// path never waits on the Telegram API. A full queue drops the message.
//
// ═══════════════════════════════════════════════════════════════════════════════

const queueSize = 64

// StatusProvider supplies data for commands
type StatusProvider interface {
	EngineStatus() execution.Status
	RecentTrades(limit int) ([]types.TradeRecord, error)
	RecentEvents(limit int) ([]storage.AuditEvent, error)
	Mode() string
}

// sender is the part of tgbotapi.BotAPI used to deliver messages
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// updater is the part of tgbotapi.BotAPI used to receive commands
type updater interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// TelegramBot manages the Telegram interface
type TelegramBot struct {
	mu      sync.RWMutex
	api     sender
	chatID  int64
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	queue chan string

	status StatusProvider

	// Control callbacks
	onPause  func()
	onResume func()
}

// NewTelegramBot connects to the Bot API
func NewTelegramBot(token string, chatID int64, status StatusProvider) (*TelegramBot, error) {
	if token == "" || chatID == 0 {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set")
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	log.Info().Str("username", api.Self.UserName).Msg("🤖 Telegram bot initialized")
	return newTelegramBot(api, chatID, status), nil
}

func newTelegramBot(api sender, chatID int64, status StatusProvider) *TelegramBot {
	return &TelegramBot{
		api:    api,
		chatID: chatID,
		queue:  make(chan string, queueSize),
		status: status,
	}
}

// SetControlCallbacks sets pause/resume handlers
func (b *TelegramBot) SetControlCallbacks(onPause, onResume func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPause = onPause
	b.onResume = onResume
}

// Start runs the send loop and, when the API supports it, the command loop
func (b *TelegramBot) Start(ctx context.Context) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return
	}
	b.running = true
	ctx, b.cancel = context.WithCancel(ctx)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.sendLoop(ctx)
	}()

	if up, ok := b.api.(updater); ok {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.commandLoop(ctx, up)
		}()
	}
	log.Info().Msg("📱 Telegram bot started")
}

// Stop ends both loops. Queued messages are flushed first.
func (b *TelegramBot) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	cancel := b.cancel
	b.mu.Unlock()

	cancel()
	b.wg.Wait()
	log.Info().Msg("Telegram bot stopped")
}

func (b *TelegramBot) sendLoop(ctx context.Context) {
	for {
		select {
		case text := <-b.queue:
			b.sendMarkdown(text)
		case <-ctx.Done():
			for {
				select {
				case text := <-b.queue:
					b.sendMarkdown(text)
				default:
					return
				}
			}
		}
	}
}

// enqueue never blocks
func (b *TelegramBot) enqueue(text string) {
	select {
	case b.queue <- text:
	default:
		log.Warn().Msg("Telegram queue full, dropping message")
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ═══════════════════════════════════════════════════════════════════════════════

// NotifyStartup sends the startup banner
func (b *TelegramBot) NotifyStartup(mode string, balance decimal.Decimal) {
	b.enqueue(fmt.Sprintf(`🚀 *UPDOWN STARTED*
━━━━━━━━━━━━━━━━━━━━

🎯 Strategy: *RSI + EMA trend, 15m*
📊 Mode: *%s*
💰 Balance: *$%s*

Use /help for commands`, mode, balance.StringFixed(2)))
}

// SignalLocked announces the cycle's signal
func (b *TelegramBot) SignalLocked(sig types.Signal, market types.MarketHandle) {
	b.enqueue(fmt.Sprintf(`%s *SIGNAL LOCKED* | %s

📈 RSI: *%.1f*
📏 Trend: *%+.2f%%*
🎯 Confidence: *%.0f%%*
🏁 Price to beat: *$%s*`,
		sideEmoji(sig.Side), sig.Side.Label(),
		sig.RSI, sig.TrendDistance*100, sig.Confidence*100,
		market.PriceToBeat.StringFixed(2),
	))
}

// OrderPlaced reports a new limit order
func (b *TelegramBot) OrderPlaced(o execution.Order, balance decimal.Decimal) {
	b.enqueue(fmt.Sprintf(`📝 *ORDER PLACED* | %s

💵 Limit: *%s¢*
📦 Shares: *%s* ($%s)
💰 Balance: *$%s*`,
		o.Side.Label(),
		cents(o.LimitPrice), o.Shares.String(), o.Cost().StringFixed(2),
		balance.StringFixed(2),
	))
}

// OrderFilled reports a fill
func (b *TelegramBot) OrderFilled(o execution.Order) {
	b.enqueue(fmt.Sprintf("✅ *FILLED* | %s %s @ *%s¢*", o.Side.Label(), o.Shares.String(), cents(o.FillPrice)))
}

// OrderCancelled reports a fill timeout
func (b *TelegramBot) OrderCancelled(o execution.Order) {
	b.enqueue(fmt.Sprintf("❌ *CANCELLED* | %s @ %s¢ not filled", o.Side.Label(), cents(o.LimitPrice)))
}

// OrderSettled reports the outcome and the new balance
func (b *TelegramBot) OrderSettled(o execution.Order, balance decimal.Decimal) {
	emoji := "💰"
	if o.Result != types.ResultWin {
		emoji = "📉"
	}

	b.enqueue(fmt.Sprintf(`%s *%s* | %s

🏁 Beat: $%s → Settle: $%s (%s)
💵 P&L: *%s*
💰 Balance: *$%s*`,
		emoji, o.Result, o.Side.Label(),
		o.Market.PriceToBeat.StringFixed(2), o.SettlePrice.StringFixed(2), o.SettleSource,
		signed(o.PnL),
		balance.StringFixed(2),
	))
}

// LiveSubmitFailed alerts that the exchange rejected a locally filled order
func (b *TelegramBot) LiveSubmitFailed(o execution.Order, err error) {
	b.enqueue(fmt.Sprintf("🚨 *LIVE EXECUTION FAILED* | %s\n\n`%s`", o.Side.Label(), err.Error()))
}

// Error sends an error alert
func (b *TelegramBot) Error(err error) {
	b.enqueue(fmt.Sprintf("⚠️ *ERROR*\n\n`%s`", err.Error()))
}

// ═══════════════════════════════════════════════════════════════════════════════
// COMMAND HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) commandLoop(ctx context.Context, up updater) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := up.GetUpdatesChan(u)
	defer up.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}

			// Only respond to authorized chat
			if update.Message.Chat.ID != b.chatID {
				continue
			}

			b.handleCommand(update.Message.Command())
		}
	}
}

func (b *TelegramBot) handleCommand(cmd string) {
	switch strings.ToLower(cmd) {
	case "start", "help":
		b.cmdHelp()
	case "status":
		b.cmdStatus()
	case "trades":
		b.cmdTrades()
	case "events":
		b.cmdEvents()
	case "pause":
		b.cmdPause()
	case "resume":
		b.cmdResume()
	case "ping":
		b.send("🏓 Pong!")
	default:
		b.send("❓ Unknown command. Use /help")
	}
}

func (b *TelegramBot) cmdHelp() {
	b.sendMarkdown(`🤖 *UPDOWN COMMANDS*
━━━━━━━━━━━━━━━━━━━━

📊 /status - Engine state & balance
📜 /trades - Last 10 trades
🧾 /events - Last 10 audit events
⏸️ /pause - Pause new entries
▶️ /resume - Resume entries
🏓 /ping - Test connection`)
}

func (b *TelegramBot) cmdStatus() {
	if b.status == nil {
		b.send("❌ Status not available")
		return
	}
	b.sendMarkdown(formatStatus(b.status.Mode(), b.status.EngineStatus()))
}

func formatStatus(mode string, st execution.Status) string {
	state := "🟢 " + strings.ToUpper(strings.ReplaceAll(string(st.State), "_", " "))
	if st.Paused {
		state = "⏸️ PAUSED (" + st.Reason + ")"
	}

	winRate := float64(0)
	if st.Stats.Trades > 0 {
		winRate = float64(st.Stats.Wins) / float64(st.Stats.Trades) * 100
	}

	msg := fmt.Sprintf(`📊 *BOT STATUS*
━━━━━━━━━━━━━━━━━━━━

%s
📊 Mode: *%s*
💰 Balance: *$%s* (peak $%s)
📈 Trades: *%d* | %d W / %d L (%.1f%%)
❌ Cancelled: *%d*
💵 P&L: *%s*`,
		state, mode,
		st.Balance.StringFixed(2), st.Peak.StringFixed(2),
		st.Stats.Trades, st.Stats.Wins, st.Stats.Losses, winRate,
		st.Stats.Cancels,
		signed(st.Stats.TotalPnL),
	)

	if st.Signal != nil {
		msg += fmt.Sprintf("\n\n⚔️ Hunting *%s* (RSI %.1f)", st.Signal.Side.Label(), st.Signal.RSI)
	}
	if o := st.Order; o != nil {
		msg += fmt.Sprintf("\n\n📦 %s %s %s @ %s¢ | %s", o.Side.Label(), o.Shares.String(), o.Market.Slug, cents(o.LimitPrice), o.State)
	}
	return msg
}

func (b *TelegramBot) cmdTrades() {
	if b.status == nil {
		b.send("❌ Trades not available")
		return
	}

	trades, err := b.status.RecentTrades(10)
	if err != nil {
		b.send("❌ Failed to fetch trades")
		return
	}
	if len(trades) == 0 {
		b.send("📭 No trade history yet")
		return
	}
	b.sendMarkdown(formatTrades(trades))
}

func formatTrades(trades []types.TradeRecord) string {
	msg := fmt.Sprintf("📜 *LAST %d TRADES*\n━━━━━━━━━━━━━━━━━━━━\n\n", len(trades))

	for _, t := range trades {
		emoji := "📌"
		switch t.Result {
		case types.ResultWin:
			emoji = "💰"
		case types.ResultLoss:
			emoji = "📉"
		case types.ResultCancelled:
			emoji = "❌"
		}

		pnl := ""
		if !t.PnL.IsZero() {
			pnl = " | P&L: " + signed(t.PnL)
		}

		msg += fmt.Sprintf("%s %s %s @ %s¢%s\n   _%s_\n\n",
			emoji, t.Result, t.Side.Label(),
			cents(t.EntryPrice), pnl,
			t.Timestamp.UTC().Format("Jan 2 15:04"),
		)
	}
	return msg
}

func (b *TelegramBot) cmdEvents() {
	if b.status == nil {
		b.send("❌ Events not available")
		return
	}

	events, err := b.status.RecentEvents(10)
	if err != nil {
		b.send("❌ Failed to fetch events")
		return
	}
	if len(events) == 0 {
		b.send("📭 No events yet")
		return
	}
	b.send(formatEvents(events))
}

// formatEvents is sent as plain text; audit messages carry slugs and ids
// with underscores and dashes
func formatEvents(events []storage.AuditEvent) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🧾 LAST %d EVENTS\n━━━━━━━━━━━━━━━━━━━━\n\n", len(events))
	for _, e := range events {
		emoji := "▫️"
		if e.Level == "warn" {
			emoji = "⚠️"
		}
		fmt.Fprintf(&sb, "%s %s %s: %s\n", emoji, e.CreatedAt.UTC().Format("Jan 2 15:04"), e.Kind, e.Message)
	}
	return sb.String()
}

func (b *TelegramBot) cmdPause() {
	b.mu.RLock()
	cb := b.onPause
	b.mu.RUnlock()

	if cb != nil {
		cb()
	}

	b.send("⏸️ Trading paused")
	log.Info().Msg("Trading paused via Telegram")
}

func (b *TelegramBot) cmdResume() {
	b.mu.RLock()
	cb := b.onResume
	b.mu.RUnlock()

	if cb != nil {
		cb()
	}

	b.send("▶️ Trading resumed")
	log.Info().Msg("Trading resumed via Telegram")
}

// ═══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ═══════════════════════════════════════════════════════════════════════════════

func (b *TelegramBot) send(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func (b *TelegramBot) sendMarkdown(text string) {
	msg := tgbotapi.NewMessage(b.chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.api.Send(msg); err != nil {
		log.Error().Err(err).Msg("Failed to send Telegram message")
	}
}

func sideEmoji(s types.Side) string {
	if s == types.SideUp {
		return "🟢"
	}
	return "🔴"
}

func cents(p decimal.Decimal) string {
	return p.Mul(decimal.NewFromInt(100)).StringFixed(1)
}

func signed(v decimal.Decimal) string {
	if v.IsNegative() {
		return "-$" + v.Abs().StringFixed(2)
	}
	return "+$" + v.StringFixed(2)
}

var _ execution.Notifier = (*TelegramBot)(nil)
