package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/updown/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// BINANCE PRICE FEED - 1m kline stream with REST preload
// ═══════════════════════════════════════════════════════════════════════════════
//
// Used for:
//   - Bar history for the 15m signal
//   - Latest price for settlement and price-to-beat fallback
//   - Price to beat (open of the 1m kline at window start)
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	defaultReconnectDelay = 5 * time.Second
	readTimeout           = 90 * time.Second
)

// BinanceConfig configures the feed
type BinanceConfig struct {
	WSURL          string // e.g. wss://stream.binance.com:9443/ws
	Symbol         string // BTCUSDT
	PreloadBars    int
	ReconnectDelay time.Duration
	PriceOffset    float64 // added to every OHLC value
	Clock          types.Clock
}

// BinanceFeed streams 1m klines and keeps an ordered bar history
type BinanceFeed struct {
	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	cfg   BinanceConfig
	rest  KlineSource
	bars  *BarBuffer
	clock types.Clock

	latest        float64
	hasLatest     bool
	lastMessageAt time.Time
	connected     bool
	conn          *websocket.Conn

	// Newest closed bar already handed to callbacks
	delivered time.Time
	callbacks []func(types.Bar)
}

// klineEvent is the websocket payload for <symbol>@kline_1m
type klineEvent struct {
	EventType string `json:"e"`
	Kline     struct {
		StartTime int64  `json:"t"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

// NewBinanceFeed creates a new Binance feed
func NewBinanceFeed(cfg BinanceConfig, rest KlineSource) *BinanceFeed {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.PreloadBars <= 0 {
		cfg.PreloadBars = DefaultBarCapacity
	}
	if cfg.Symbol == "" {
		cfg.Symbol = "BTCUSDT"
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &BinanceFeed{
		cfg:   cfg,
		rest:  rest,
		bars:  NewBarBuffer(cfg.PreloadBars),
		clock: clock,
	}
}

// OnBarClose registers a callback run synchronously for each closed bar
func (f *BinanceFeed) OnBarClose(cb func(types.Bar)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, cb)
}

// Start preloads history and begins streaming
func (f *BinanceFeed) Start(ctx context.Context) {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	ctx, f.cancel = context.WithCancel(ctx)
	f.mu.Unlock()

	f.wg.Add(1)
	go f.run(ctx)
	log.Info().Str("symbol", f.cfg.Symbol).Int("preload", f.cfg.PreloadBars).Msg("📈 Binance feed started")
}

// Stop closes the stream and waits for the loop to exit
func (f *BinanceFeed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	f.cancel()
	if f.conn != nil {
		f.conn.Close()
	}
	f.mu.Unlock()

	f.wg.Wait()
	log.Info().Msg("Binance feed stopped")
}

// LatestPrice returns the most recent trade/close price
func (f *BinanceFeed) LatestPrice() (float64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.hasLatest {
		return f.latest, true
	}
	if last, ok := f.bars.Last(); ok {
		return last.Close, true
	}
	return 0, false
}

// Bars returns the bar history, most recent last
func (f *BinanceFeed) Bars() []types.Bar {
	return f.bars.Bars()
}

// IsConnected reports whether the websocket is up
func (f *BinanceFeed) IsConnected() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.connected
}

// LastMessageAt returns when the stream last delivered data
func (f *BinanceFeed) LastMessageAt() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastMessageAt
}

// Name identifies the feed as a settlement price source
func (f *BinanceFeed) Name() string { return "binance" }

// Price returns the latest price as a decimal
func (f *BinanceFeed) Price(ctx context.Context) (decimal.Decimal, error) {
	p, ok := f.LatestPrice()
	if !ok || p <= 0 {
		return decimal.Zero, fmt.Errorf("binance: no price yet")
	}
	return decimal.NewFromFloat(p), nil
}

// PriceAt returns the open of the 1m kline starting at t
func (f *BinanceFeed) PriceAt(ctx context.Context, t time.Time) (decimal.Decimal, error) {
	bars, err := f.rest.Klines(ctx, t.Truncate(time.Minute), 1)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price at %s: %w", t.Format(time.RFC3339), err)
	}
	if len(bars) == 0 || !bars[0].StartTime.Equal(t.Truncate(time.Minute)) {
		return decimal.Zero, ErrNoKline
	}
	return decimal.NewFromFloat(bars[0].Open + f.cfg.PriceOffset), nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// STREAM LOOP
// ═══════════════════════════════════════════════════════════════════════════════

func (f *BinanceFeed) run(ctx context.Context) {
	defer f.wg.Done()

	for {
		if err := f.Preload(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("Failed to preload klines, continuing anyway")
		}

		if err := f.stream(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Dur("retry_in", f.cfg.ReconnectDelay).Msg("Binance stream dropped, reconnecting...")
		}

		select {
		case <-ctx.Done():
			return
		case <-f.clock.After(f.cfg.ReconnectDelay):
		}
	}
}

func (f *BinanceFeed) stream(ctx context.Context) error {
	url := fmt.Sprintf("%s/%s@kline_1m", strings.TrimRight(f.cfg.WSURL, "/"), strings.ToLower(f.cfg.Symbol))

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.connected = true
	f.mu.Unlock()
	log.Info().Str("url", url).Msg("🔌 WebSocket connected to Binance")

	done := make(chan struct{})
	defer func() {
		close(done)
		conn.Close()
		f.mu.Lock()
		f.conn = nil
		f.connected = false
		f.mu.Unlock()
	}()

	// Unblock ReadMessage on shutdown
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("websocket read: %w", err)
		}
		f.handleMessage(message)
	}
}

func (f *BinanceFeed) handleMessage(data []byte) {
	var ev klineEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		log.Debug().Err(err).Msg("Unparseable kline message")
		return
	}
	if ev.EventType != "kline" {
		return
	}

	bar, err := f.barFromEvent(ev)
	if err != nil {
		log.Warn().Err(err).Msg("Bad kline payload")
		return
	}

	f.bars.Upsert(bar)

	f.mu.Lock()
	f.latest = bar.Close
	f.hasLatest = true
	f.lastMessageAt = f.clock.Now()
	f.mu.Unlock()

	if ev.Kline.Closed {
		f.deliver([]types.Bar{bar})
	}
}

func (f *BinanceFeed) barFromEvent(ev klineEvent) (types.Bar, error) {
	k := ev.Kline
	fields := []string{k.Open, k.High, k.Low, k.Close, k.Volume}
	vals := make([]float64, len(fields))
	for i, s := range fields {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return types.Bar{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}

	off := f.cfg.PriceOffset
	return types.Bar{
		StartTime: time.UnixMilli(k.StartTime).UTC(),
		Open:      vals[0] + off,
		High:      vals[1] + off,
		Low:       vals[2] + off,
		Close:     vals[3] + off,
		Volume:    vals[4],
	}, nil
}

// deliver runs callbacks for closed bars newer than anything delivered before
func (f *BinanceFeed) deliver(bars []types.Bar) {
	f.mu.Lock()
	fresh := make([]types.Bar, 0, len(bars))
	for _, b := range bars {
		if b.StartTime.After(f.delivered) {
			fresh = append(fresh, b)
			f.delivered = b.StartTime
		}
	}
	callbacks := make([]func(types.Bar), len(f.callbacks))
	copy(callbacks, f.callbacks)
	f.mu.Unlock()

	for _, b := range fresh {
		for _, cb := range callbacks {
			cb(b)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// PRELOAD
// ═══════════════════════════════════════════════════════════════════════════════

// Preload pages forward from now-N minutes until PreloadBars are loaded,
// then hands closed bars not yet seen to callbacks, oldest first.
func (f *BinanceFeed) Preload(ctx context.Context) error {
	now := f.clock.Now().UTC()
	want := f.cfg.PreloadBars
	cursor := now.Truncate(time.Minute).Add(-time.Duration(want) * time.Minute)

	fetched := make([]types.Bar, 0, want)
	for len(fetched) < want+1 {
		page, err := f.rest.Klines(ctx, cursor, MaxKlinesPerRequest)
		if err != nil {
			if len(fetched) == 0 {
				return err
			}
			log.Warn().Err(err).Int("loaded", len(fetched)).Msg("Preload stopped early")
			break
		}
		if len(page) == 0 {
			break
		}
		fetched = append(fetched, page...)

		last := page[len(page)-1].StartTime
		cursor = last.Add(time.Minute)
		if len(page) < MaxKlinesPerRequest || !cursor.Before(now) {
			break
		}
	}

	off := f.cfg.PriceOffset
	for i := range fetched {
		fetched[i].Open += off
		fetched[i].High += off
		fetched[i].Low += off
		fetched[i].Close += off
	}
	added := f.bars.Merge(fetched)

	// The bar of the current minute is still forming
	cutoff := now.Truncate(time.Minute)
	closed := make([]types.Bar, 0, f.bars.Len())
	for _, b := range f.bars.Bars() {
		if b.StartTime.Before(cutoff) {
			closed = append(closed, b)
		}
	}

	log.Info().Int("klines", len(fetched)).Int("new", added).Int("stored", f.bars.Len()).Msg("Preloaded price history")
	f.deliver(closed)
	return nil
}
