package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/web3guy0/updown/metrics"
	"github.com/web3guy0/updown/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// QUOTE POLLER - top of book for both outcome tokens of the current market
// ═══════════════════════════════════════════════════════════════════════════════

// BookFloor is the lowest tick; an ask at or below it means an empty book
var BookFloor = decimal.RequireFromString("0.01")

// BookSource fetches one token's orderbook
type BookSource interface {
	Book(ctx context.Context, tokenID string) (Orderbook, error)
}

// CLOBBooks reads GET /book?token_id= from the Polymarket CLOB
type CLOBBooks struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewCLOBBooks creates a rate-limited book source
func NewCLOBBooks(baseURL string) *CLOBBooks {
	return &CLOBBooks{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(10), 4),
	}
}

// Book fetches and sorts one token's book
func (c *CLOBBooks) Book(ctx context.Context, tokenID string) (Orderbook, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Orderbook{}, err
	}

	endpoint := fmt.Sprintf("%s/book?token_id=%s", c.baseURL, url.QueryEscape(tokenID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Orderbook{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Orderbook{}, fmt.Errorf("book request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Orderbook{}, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return Orderbook{}, fmt.Errorf("book lookup failed: %d", resp.StatusCode)
	}

	var result struct {
		Bids []rawLevel `json:"bids"`
		Asks []rawLevel `json:"asks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Orderbook{}, fmt.Errorf("decode book: %w", err)
	}

	return newOrderbook(tokenID, result.Bids, result.Asks), nil
}

// QuotePollerConfig configures the poller
type QuotePollerConfig struct {
	Interval      time.Duration // default 1s
	WatchdogTicks int           // refresh after more than this many degenerate polls
	Clock         types.Clock
}

// QuotePoller keeps the latest two-sided snapshot for the current market
type QuotePoller struct {
	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	books BookSource
	cfg   QuotePollerConfig
	clock types.Clock

	market     types.MarketHandle
	snapshot   types.QuoteSnapshot
	degenerate int
	onRefresh  func()

	polls    int64
	failures int64
}

// NewQuotePoller creates a poller over a book source
func NewQuotePoller(books BookSource, cfg QuotePollerConfig) *QuotePoller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.WatchdogTicks <= 0 {
		cfg.WatchdogTicks = 5
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &QuotePoller{
		books: books,
		cfg:   cfg,
		clock: clock,
	}
}

// OnWatchdog registers the callback fired when the book stays empty too long
func (p *QuotePoller) OnWatchdog(cb func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onRefresh = cb
}

// SetMarket retargets the poller. The snapshot resets for a new market.
func (p *QuotePoller) SetMarket(m types.MarketHandle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if m.MarketID != p.market.MarketID || m.UpToken != p.market.UpToken {
		p.snapshot = types.QuoteSnapshot{MarketID: m.MarketID}
		p.degenerate = 0
	}
	p.market = m
}

// Market returns the market being polled
func (p *QuotePoller) Market() types.MarketHandle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.market
}

// Snapshot returns the latest complete snapshot
func (p *QuotePoller) Snapshot() types.QuoteSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// IsStale reports whether the snapshot is missing or older than maxAge
func (p *QuotePoller) IsStale(maxAge time.Duration) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.snapshot.IsZero() {
		return true
	}
	return p.clock.Now().Sub(p.snapshot.ObservedAt) > maxAge
}

// Stats returns poll and failure counts
func (p *QuotePoller) Stats() (polls, failures int64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.polls, p.failures
}

// PollOnce fetches both books and swaps the snapshot on success.
// A failed poll leaves the previous snapshot in place.
func (p *QuotePoller) PollOnce(ctx context.Context) error {
	market := p.Market()
	if market.UpToken == "" || market.DownToken == "" {
		return nil
	}

	up, err := p.books.Book(ctx, market.UpToken)
	if err == nil {
		var down Orderbook
		down, err = p.books.Book(ctx, market.DownToken)
		if err == nil {
			return p.apply(market, up.Quote(), down.Quote())
		}
	}

	p.mu.Lock()
	p.polls++
	p.failures++
	p.mu.Unlock()

	return fmt.Errorf("poll %s: %w", market.Slug, err)
}

func (p *QuotePoller) apply(market types.MarketHandle, up, down types.Quote) error {
	p.mu.Lock()
	p.polls++

	// Rotated while we were fetching; this data belongs to the old market
	if p.market.MarketID != market.MarketID || p.market.UpToken != market.UpToken {
		p.mu.Unlock()
		return nil
	}

	p.snapshot = types.QuoteSnapshot{
		MarketID:   market.MarketID,
		Up:         up,
		Down:       down,
		ObservedAt: p.clock.Now(),
	}

	fire := false
	if up.Degenerate(BookFloor) && down.Degenerate(BookFloor) {
		p.degenerate++
		if p.degenerate > p.cfg.WatchdogTicks {
			p.degenerate = 0
			fire = true
		}
	} else {
		p.degenerate = 0
	}
	cb := p.onRefresh
	p.mu.Unlock()

	if fire {
		log.Warn().Str("market", market.Slug).Msg("🐕 Watchdog: orderbook empty, forcing market refresh")
		if cb != nil {
			cb()
		}
	}
	return nil
}

// Start begins the polling loop
func (p *QuotePoller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.mu.Unlock()

	p.wg.Add(1)
	go p.pollLoop(ctx)
	log.Info().Dur("interval", p.cfg.Interval).Msg("📖 Quote poller started")
}

// Stop ends the loop after its current poll
func (p *QuotePoller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()

	p.wg.Wait()
	log.Info().Msg("Quote poller stopped")
}

func (p *QuotePoller) pollLoop(ctx context.Context) {
	defer p.wg.Done()

	for {
		if err := p.PollOnce(ctx); err != nil && ctx.Err() == nil {
			metrics.PollFailures.Inc()
			if errors.Is(err, ErrRateLimited) {
				log.Debug().Err(err).Msg("Book poll rate limited, skipping")
			} else {
				log.Debug().Err(err).Msg("Book poll failed")
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-p.clock.After(p.cfg.Interval):
		}
	}
}
