package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/updown/bot"
	"github.com/web3guy0/updown/exec"
	"github.com/web3guy0/updown/execution"
	"github.com/web3guy0/updown/feeds"
	"github.com/web3guy0/updown/internal/config"
	"github.com/web3guy0/updown/markets"
	"github.com/web3guy0/updown/metrics"
	"github.com/web3guy0/updown/storage"
	"github.com/web3guy0/updown/strategy"
	"github.com/web3guy0/updown/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BOT - Central orchestrator
// ═══════════════════════════════════════════════════════════════════════════════
//
// Flow:
//   Binance 1m bar → (minute 0) Signal → lock → hunt → Order → fill → settle
//   Registry rotates the market; QuotePoller follows it
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	// preloaded history is older than this and never drives trading
	staleBarAge = 2 * time.Minute

	statusInterval = time.Second
	logEvery       = 10
)

// ErrNoMarket is raised when every discovery strategy came back empty
var ErrNoMarket = errors.New("market discovery exhausted, entries halted")

// BarSource is the closed-bar history
type BarSource interface {
	Bars() []types.Bar
	LatestPrice() (float64, bool)
}

type alerter interface {
	Error(err error)
}

// Bot owns every component and their lifecycles
type Bot struct {
	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	cfg   *config.Config
	clock types.Clock

	// Components
	db       *storage.Database
	journal  execution.Journal
	telegram *bot.TelegramBot
	alerts   alerter
	feed     *feeds.BinanceFeed
	bars     BarSource
	registry *markets.Registry
	poller   *feeds.QuotePoller
	oracle   *feeds.SettlementOracle
	signals  *strategy.SignalEngine
	engine   *execution.Engine
	live     *exec.Client
	metrics  *metrics.Server

	// Live credentials fault; entry stays paused while set
	fault error

	// State
	lastSignal *types.Signal
	startedAt  time.Time
	startBal   decimal.Decimal
}

// New builds every component in dependency order:
// config → storage → notifier → feeds → registry → poller → engine
func New(ctx context.Context, cfg *config.Config) (*Bot, error) {
	b := &Bot{
		cfg:     cfg,
		clock:   types.SystemClock{},
		signals: strategy.NewSignalEngine(strategy.DefaultSignalConfig()),
	}

	// 1. Storage
	db, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	b.db = db
	csvJournal, err := storage.NewCSVJournal(cfg.StateDir)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	b.journal = storage.Journals{db, csvJournal}

	// 2. Notifier
	if cfg.TelegramEnabled() {
		tg, err := bot.NewTelegramBot(cfg.TelegramToken, cfg.TelegramChatID, b)
		if err != nil {
			log.Warn().Err(err).Msg("Telegram unavailable, continuing without notifications")
		} else {
			b.telegram = tg
			b.alerts = tg
		}
	}

	// 3. Feeds
	b.feed = feeds.NewBinanceFeed(feeds.BinanceConfig{
		WSURL:          cfg.BinanceWSURL,
		Symbol:         cfg.Symbol,
		PreloadBars:    cfg.PreloadBars,
		ReconnectDelay: cfg.ReconnectDelay,
		PriceOffset:    cfg.PriceOffsetUSD.InexactFloat64(),
	}, feeds.NewRESTKlines(cfg.BinanceRESTURL, cfg.Symbol))
	b.bars = b.feed

	sources := make([]feeds.PriceSource, 0, 2)
	if cfg.ChainlinkRPCURL != "" {
		cl, err := feeds.DialChainlink(ctx, cfg.ChainlinkRPCURL, cfg.ChainlinkFeed)
		if err != nil {
			log.Warn().Err(err).Msg("Chainlink unavailable, settling on Binance")
		} else {
			sources = append(sources, cl)
		}
	}
	sources = append(sources, b.feed)
	b.oracle = feeds.NewSettlementOracle(sources...)

	// 4. Market registry
	gamma := markets.NewClient(cfg.GammaURL)
	b.registry = markets.NewRegistry(markets.RegistryConfig{
		RotationLead:    cfg.RotationLead,
		RefreshInterval: cfg.MarketRefreshInterval,
	}, b.feed, b.feed,
		markets.NewTagDiscovery(gamma, cfg.TagID),
		markets.NewSlugDiscovery(gamma),
		markets.NewKeywordDiscovery(gamma),
	)

	// 5. Quote poller
	b.poller = feeds.NewQuotePoller(feeds.NewCLOBBooks(cfg.CLOBURL), feeds.QuotePollerConfig{
		Interval:      cfg.OrderbookPollInterval,
		WatchdogTicks: cfg.WatchdogTicks,
	})

	// 6. Live client
	var submitter execution.OrderSubmitter
	if cfg.LiveTrading {
		client, err := exec.NewClient(cfg.CLOBURL, exec.Credentials{
			APIKey:        cfg.CLOBApiKey,
			APISecret:     cfg.CLOBApiSecret,
			Passphrase:    cfg.CLOBPassphrase,
			PrivateKey:    cfg.PrivateKey,
			FunderAddress: cfg.FunderAddress,
			SignatureType: cfg.SignatureType,
		})
		if err != nil {
			b.fault = fmt.Errorf("%w: %v", config.ErrMissingCredentials, err)
			log.Error().Err(err).Msg("Live trading misconfigured, order entry halted")
		} else {
			b.live = client
			submitter = client
			log.Info().Str("address", client.Address()).Msg("🔑 Live execution enabled")
		}
	}

	// 7. Order engine
	var notifier execution.Notifier
	if b.telegram != nil {
		notifier = b.telegram
	}
	b.engine = execution.NewEngine(execution.Config{
		StartBalance:      cfg.StartBalance,
		RiskPerTrade:      cfg.RiskPerTrade,
		FeeRate:           cfg.FeeRate,
		MinNotional:       cfg.MinNotional,
		MinShares:         cfg.MinShares,
		SpreadCross:       cfg.SpreadCross,
		OrderTimeout:      cfg.OrderTimeout,
		FillPollInterval:  cfg.FillPollInterval,
		SettleBuffer:      cfg.SettleBuffer,
		HuntWindowMinutes: cfg.HuntWindowMinutes,
		LiveTrading:       cfg.LiveTrading,
	}, execution.Deps{
		Quotes:    b.poller,
		Markets:   b.registry,
		Prices:    b.feed,
		Oracle:    b.oracle,
		Submitter: submitter,
		Journal:   b.journal,
		Notifier:  notifier,
	})

	if cfg.MetricsAddr != "" {
		b.metrics = metrics.NewServer(cfg.MetricsAddr)
	}

	return b, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ═══════════════════════════════════════════════════════════════════════════════

// Run starts the bot and blocks until ctx is cancelled
func (b *Bot) Run(ctx context.Context) error {
	if err := b.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	log.Info().Msg("🛑 Shutting down...")
	b.Stop()
	return nil
}

// Start restores state and starts every loop
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil
	}
	b.running = true
	ctx, b.cancel = context.WithCancel(ctx)
	b.startedAt = b.clock.Now()
	b.mu.Unlock()

	b.restore(ctx)
	if b.fault != nil {
		b.engine.Pause(b.fault.Error())
		b.audit("config", b.fault.Error())
	}

	if b.telegram != nil {
		b.telegram.SetControlCallbacks(
			func() { b.engine.Pause("paused via Telegram") },
			b.resumeEntry,
		)
		b.telegram.Start(ctx)
	}

	if b.metrics != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := b.metrics.Run(ctx); err != nil {
				log.Warn().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	// Feeds
	b.feed.OnBarClose(b.onBar)
	b.feed.Start(ctx)

	// Registry, then the poller follows every rotation
	b.registry.OnRotate(b.onRotate)
	if !b.registry.Refresh(ctx, true) {
		b.onRotate(types.MarketHandle{})
	}
	b.registry.Start(ctx)

	if h, ok := b.registry.Current(); ok {
		b.poller.SetMarket(h)
	}
	b.poller.OnWatchdog(func() {
		metrics.WatchdogRefreshes.Inc()
		b.audit("watchdog", "degenerate quotes, forcing market refresh")
		b.registry.Refresh(ctx, true)
	})
	b.poller.Start(ctx)

	// Engine
	b.engine.Start(ctx)

	b.wg.Add(1)
	go b.statusLoop(ctx)

	if b.telegram != nil {
		b.telegram.NotifyStartup(b.Mode(), b.engine.Balance())
		if b.fault != nil {
			b.telegram.Error(b.fault)
		}
	}
	log.Info().
		Str("mode", b.Mode()).
		Str("balance", b.engine.Balance().StringFixed(2)).
		Msg("🚀 All systems running...")
	return nil
}

// Stop shuts down in reverse order and prints the session summary
func (b *Bot) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.cancel()
	b.mu.Unlock()

	b.wg.Wait()
	b.poller.Stop()
	b.registry.Stop()
	b.feed.Stop()
	b.engine.Stop()
	if b.telegram != nil {
		b.telegram.Stop()
	}

	b.writeState()
	b.PrintSummary(os.Stdout)

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}
	log.Info().Msg("👋 Goodbye!")
}

// restore seeds the engine from storage, or from the exchange in live mode
func (b *Bot) restore(ctx context.Context) {
	var balance *decimal.Decimal

	if b.live != nil {
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		bal, err := b.live.Balance(callCtx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to fetch live balance, using configured balance")
		} else {
			log.Info().Str("balance", bal.StringFixed(2)).Msg("💰 Live balance synced")
			balance = &bal
		}
	} else if b.db != nil {
		bal, err := b.db.LastBalance()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load last balance")
		}
		balance = bal
	}

	var order *execution.Order
	if b.db != nil {
		o, err := b.db.LoadOrder()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to load in-flight order")
		}
		order = o
	}

	b.engine.Restore(balance, order)
	b.startBal = b.engine.Balance()
}

// onRotate retargets the poller. A zero handle means discovery came back
// empty: entries stay halted until a market is found again.
func (b *Bot) onRotate(h types.MarketHandle) {
	b.poller.SetMarket(h)

	if h.IsZero() {
		log.Error().Err(ErrNoMarket).Msg("🚫 No tradable market")
		b.audit("error", ErrNoMarket.Error())
		if b.alerts != nil {
			b.alerts.Error(ErrNoMarket)
		}
		return
	}

	metrics.Rotations.Inc()
	b.audit("rotation", h.Slug)
}

func (b *Bot) audit(kind, message string) {
	if b.journal == nil {
		return
	}
	if err := b.journal.RecordEvent(kind, message); err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("Failed to write audit event")
	}
}

// resumeEntry refuses while live credentials are missing
func (b *Bot) resumeEntry() {
	if b.fault != nil {
		log.Warn().Err(b.fault).Msg("Cannot resume: live trading misconfigured")
		return
	}
	b.engine.Resume()
}

// ═══════════════════════════════════════════════════════════════════════════════
// BAR HANDLING
// ═══════════════════════════════════════════════════════════════════════════════

// onBar runs on the feed goroutine for each closed 1m bar. The bar that
// closes on a cycle boundary produces the cycle's signal.
func (b *Bot) onBar(bar types.Bar) {
	now := b.clock.Now()
	closedAt := bar.StartTime.Add(time.Minute)
	if now.Sub(closedAt) > staleBarAge {
		return
	}

	if types.MinuteInCycle(closedAt) == 0 {
		sig := b.signals.ComputeSignal(b.bars.Bars(), types.CycleID(closedAt))
		label := "NONE"
		if !sig.IsNone() {
			label = sig.Side.Label()
		}
		metrics.Signals.WithLabelValues(label).Inc()

		b.mu.Lock()
		b.lastSignal = &sig
		b.mu.Unlock()

		b.engine.LockSignal(sig)
	}

	b.engine.OnTick(now)
}

// ═══════════════════════════════════════════════════════════════════════════════
// STATUS
// ═══════════════════════════════════════════════════════════════════════════════

// StateSnapshot is written to bot_state.json for external dashboards
type StateSnapshot struct {
	UpdatedAt time.Time        `json:"updated_at"`
	Mode      string           `json:"mode"`
	State     string           `json:"state"`
	Paused    bool             `json:"paused"`
	Reason    string           `json:"reason,omitempty"`
	Balance   string           `json:"balance"`
	Peak      string           `json:"peak_balance"`
	Price     float64          `json:"btc_price"`
	Connected bool             `json:"feed_connected"`
	LastTick  *time.Time       `json:"feed_last_message,omitempty"`
	Rotations int64            `json:"rotations"`
	Market    *MarketView      `json:"market,omitempty"`
	Signal    *SignalView      `json:"signal,omitempty"`
	Order     *execution.Order `json:"order,omitempty"`
	Stats     StatsView        `json:"stats"`
}

// MarketView is the current market and its quotes
type MarketView struct {
	Slug        string    `json:"slug"`
	PriceToBeat string    `json:"price_to_beat"`
	ExpiresAt   time.Time `json:"expires_at"`
	UpBid       string    `json:"up_bid"`
	UpAsk       string    `json:"up_ask"`
	DownBid     string    `json:"down_bid"`
	DownAsk     string    `json:"down_ask"`
}

// SignalView is the last computed signal
type SignalView struct {
	CycleID       int64   `json:"cycle_id"`
	Side          string  `json:"side"`
	Confidence    float64 `json:"confidence"`
	RSI           float64 `json:"rsi"`
	TrendDistance float64 `json:"trend_distance"`
}

// StatsView are session counters
type StatsView struct {
	Trades  int    `json:"trades"`
	Wins    int    `json:"wins"`
	Losses  int    `json:"losses"`
	Cancels int    `json:"cancels"`
	PnL     string `json:"pnl"`
	Fees    string `json:"fees"`
}

// Snapshot assembles the current view
func (b *Bot) Snapshot() StateSnapshot {
	st := b.engine.Status()

	snap := StateSnapshot{
		UpdatedAt: b.clock.Now().UTC(),
		Mode:      b.Mode(),
		State:     string(st.State),
		Paused:    st.Paused,
		Reason:    st.Reason,
		Balance:   st.Balance.StringFixed(2),
		Peak:      st.Peak.StringFixed(2),
		Order:     st.Order,
		Stats: StatsView{
			Trades:  st.Stats.Trades,
			Wins:    st.Stats.Wins,
			Losses:  st.Stats.Losses,
			Cancels: st.Stats.Cancels,
			PnL:     st.Stats.TotalPnL.StringFixed(2),
			Fees:    st.Stats.Fees.StringFixed(2),
		},
	}
	if b.bars != nil {
		snap.Price, _ = b.bars.LatestPrice()
	}
	if b.feed != nil {
		snap.Connected = b.feed.IsConnected()
		if at := b.feed.LastMessageAt(); !at.IsZero() {
			at = at.UTC()
			snap.LastTick = &at
		}
	}

	if b.registry != nil {
		snap.Rotations = b.registry.Rotations()
		if h, ok := b.registry.Current(); ok {
			q := b.poller.Snapshot()
			mv := &MarketView{
				Slug:        h.Slug,
				PriceToBeat: h.PriceToBeat.StringFixed(2),
				ExpiresAt:   h.ExpiresAt,
			}
			if q.MarketID == h.MarketID {
				mv.UpBid, mv.UpAsk = q.Up.Bid.String(), q.Up.Ask.String()
				mv.DownBid, mv.DownAsk = q.Down.Bid.String(), q.Down.Ask.String()
			}
			snap.Market = mv
		}
	}

	b.mu.RLock()
	if sig := b.lastSignal; sig != nil {
		side := "NONE"
		if !sig.IsNone() {
			side = sig.Side.Label()
		}
		snap.Signal = &SignalView{
			CycleID:       sig.CycleID,
			Side:          side,
			Confidence:    sig.Confidence,
			RSI:           sig.RSI,
			TrendDistance: sig.TrendDistance,
		}
	}
	b.mu.RUnlock()

	return snap
}

func (b *Bot) statusLoop(ctx context.Context) {
	defer b.wg.Done()

	tick := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.clock.After(statusInterval):
		}

		tick++
		snap := b.writeState()
		if bal, err := decimal.NewFromString(snap.Balance); err == nil {
			metrics.Equity.Set(bal.InexactFloat64())
		}

		if tick%logEvery == 0 {
			ev := log.Info().
				Str("state", snap.State).
				Float64("btc", snap.Price).
				Str("balance", snap.Balance).
				Int("trades", snap.Stats.Trades).
				Str("pnl", snap.Stats.PnL)
			if snap.Market != nil {
				ev = ev.Str("market", snap.Market.Slug).Str("up_ask", snap.Market.UpAsk).Str("down_ask", snap.Market.DownAsk)
			}
			ev.Msg("📊 Status")
		}
	}
}

func (b *Bot) writeState() StateSnapshot {
	snap := b.Snapshot()
	path := filepath.Join(b.cfg.StateDir, storage.StateFile)
	if err := storage.WriteJSONAtomic(path, snap); err != nil {
		log.Debug().Err(err).Msg("Failed to write state file")
	}
	return snap
}

// ═══════════════════════════════════════════════════════════════════════════════
// STATUS PROVIDER (Telegram)
// ═══════════════════════════════════════════════════════════════════════════════

// EngineStatus returns the engine's view
func (b *Bot) EngineStatus() execution.Status {
	return b.engine.Status()
}

// RecentTrades reads the trade log
func (b *Bot) RecentTrades(limit int) ([]types.TradeRecord, error) {
	if b.db == nil {
		return nil, errors.New("storage disabled")
	}
	return b.db.RecentTrades(limit)
}

// RecentEvents reads the audit log
func (b *Bot) RecentEvents(limit int) ([]storage.AuditEvent, error) {
	if b.db == nil {
		return nil, errors.New("storage disabled")
	}
	return b.db.RecentEvents(limit)
}

// Mode is LIVE or PAPER
func (b *Bot) Mode() string {
	if b.cfg.LiveTrading {
		return "LIVE"
	}
	return "PAPER"
}

// ═══════════════════════════════════════════════════════════════════════════════
// SESSION SUMMARY
// ═══════════════════════════════════════════════════════════════════════════════

// PrintSummary renders the session table
func (b *Bot) PrintSummary(w io.Writer) {
	st := b.engine.Status()

	winRate := 0.0
	if st.Stats.Trades > 0 {
		winRate = float64(st.Stats.Wins) / float64(st.Stats.Trades) * 100
	}
	uptime := time.Duration(0)
	if !b.startedAt.IsZero() {
		uptime = b.clock.Now().Sub(b.startedAt).Round(time.Second)
	}

	fmt.Fprintf(w, "\n═══ SESSION SUMMARY (%s) ═══\n", b.Mode())
	table := tablewriter.NewWriter(w)
	table.Header("Metric", "Value")
	table.Append("Uptime", uptime.String())
	table.Append("Start balance", "$"+b.startBal.StringFixed(2))
	table.Append("End balance", "$"+st.Balance.StringFixed(2))
	table.Append("Peak balance", "$"+st.Peak.StringFixed(2))
	table.Append("Trades", fmt.Sprintf("%d", st.Stats.Trades))
	table.Append("Wins / Losses", fmt.Sprintf("%d / %d", st.Stats.Wins, st.Stats.Losses))
	table.Append("Win rate", fmt.Sprintf("%.1f%%", winRate))
	table.Append("Cancelled", fmt.Sprintf("%d", st.Stats.Cancels))
	table.Append("Fees", "$"+st.Stats.Fees.StringFixed(2))
	table.Append("Net P&L", "$"+st.Stats.TotalPnL.StringFixed(2))
	if b.db != nil {
		if total, err := b.db.TotalPnL(); err == nil {
			table.Append("All-time P&L", "$"+total.StringFixed(2))
		}
	}
	table.Render()
}
