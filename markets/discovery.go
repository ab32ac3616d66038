package markets

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/web3guy0/updown/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// DISCOVERY - ordered strategies for locating the current BTC 15m market
// ═══════════════════════════════════════════════════════════════════════════════

// DefaultTagID is the gamma tag carrying the crypto up/down series
const DefaultTagID = "102467"

// Discoverer finds the market whose window contains (or next follows) at.
// ErrNotFound means the strategy had nothing; other errors are transport faults.
type Discoverer interface {
	Name() string
	Discover(ctx context.Context, at time.Time) (types.MarketHandle, error)
}

// SlugFor returns the deterministic event slug of the window starting at start
func SlugFor(start time.Time) string {
	return fmt.Sprintf("btc-updown-15m-%d", types.CycleStart(start).Unix())
}

// ───────────────────────────────────────────────────────────────────────────────
// Tag discovery
// ───────────────────────────────────────────────────────────────────────────────

// TagDiscovery lists markets under the up/down tag
type TagDiscovery struct {
	client *Client
	tagID  string
}

// NewTagDiscovery creates a tag-based strategy
func NewTagDiscovery(client *Client, tagID string) *TagDiscovery {
	if tagID == "" {
		tagID = DefaultTagID
	}
	return &TagDiscovery{client: client, tagID: tagID}
}

func (d *TagDiscovery) Name() string { return "tag" }

func (d *TagDiscovery) Discover(ctx context.Context, at time.Time) (types.MarketHandle, error) {
	markets, err := d.client.MarketsByTag(ctx, d.tagID, 100)
	if err != nil {
		return types.MarketHandle{}, err
	}
	return pickWindow(markets, at)
}

// ───────────────────────────────────────────────────────────────────────────────
// Slug discovery
// ───────────────────────────────────────────────────────────────────────────────

// SlugDiscovery derives btc-updown-15m-<unix> from the clock
type SlugDiscovery struct {
	client *Client
}

// NewSlugDiscovery creates a slug-based strategy
func NewSlugDiscovery(client *Client) *SlugDiscovery {
	return &SlugDiscovery{client: client}
}

func (d *SlugDiscovery) Name() string { return "slug" }

func (d *SlugDiscovery) Discover(ctx context.Context, at time.Time) (types.MarketHandle, error) {
	slug := SlugFor(at)

	markets, err := d.client.EventMarkets(ctx, slug)
	if err != nil {
		m, mErr := d.client.MarketBySlug(ctx, slug)
		if mErr != nil {
			return types.MarketHandle{}, fmt.Errorf("slug %s: %w", slug, mErr)
		}
		markets = []GammaMarket{m}
	}

	for _, m := range markets {
		if !m.Active || m.Closed {
			continue
		}
		h, err := m.Handle()
		if err != nil {
			continue
		}
		if h.Slug == "" {
			h.Slug = slug
		}
		if !at.Before(h.ExpiresAt) {
			continue
		}
		return h, nil
	}
	return types.MarketHandle{}, fmt.Errorf("slug %s: %w", slug, ErrNotFound)
}

// ───────────────────────────────────────────────────────────────────────────────
// Keyword discovery
// ───────────────────────────────────────────────────────────────────────────────

// KeywordDiscovery scans all open markets for bitcoin up/down questions
type KeywordDiscovery struct {
	client *Client
	limit  int
}

// NewKeywordDiscovery creates the broad-scan fallback
func NewKeywordDiscovery(client *Client) *KeywordDiscovery {
	return &KeywordDiscovery{client: client, limit: 500}
}

func (d *KeywordDiscovery) Name() string { return "keyword" }

func (d *KeywordDiscovery) Discover(ctx context.Context, at time.Time) (types.MarketHandle, error) {
	markets, err := d.client.ActiveMarkets(ctx, d.limit)
	if err != nil {
		return types.MarketHandle{}, err
	}
	return pickWindow(markets, at)
}

// ───────────────────────────────────────────────────────────────────────────────
// Selection
// ───────────────────────────────────────────────────────────────────────────────

// isBTCUpDown15m matches bitcoin up/down questions on a 15 minute window
func isBTCUpDown15m(m GammaMarket) bool {
	q := strings.ToLower(m.Question)
	slug := strings.ToLower(m.Slug)

	btc := strings.Contains(q, "bitcoin") || strings.Contains(q, "btc") || strings.HasPrefix(slug, "btc-")
	updown := strings.Contains(q, "up or down") || strings.Contains(slug, "updown")
	if !btc || !updown {
		return false
	}

	if strings.Contains(slug, "-15m-") {
		return true
	}
	opens, expires, err := m.Window()
	if err != nil || m.EventStartTime == "" {
		return false
	}
	return expires.Sub(opens) == types.CycleLength
}

// pickWindow prefers the market whose window contains at, else the
// nearest future expiry
func pickWindow(markets []GammaMarket, at time.Time) (types.MarketHandle, error) {
	var best types.MarketHandle
	found := false

	for _, m := range markets {
		if m.Closed || !isBTCUpDown15m(m) {
			continue
		}
		h, err := m.Handle()
		if err != nil || !at.Before(h.ExpiresAt) {
			continue
		}
		if h.OpenAt(at) {
			return h, nil
		}
		if !found || h.ExpiresAt.Before(best.ExpiresAt) {
			best = h
			found = true
		}
	}

	if !found {
		return types.MarketHandle{}, ErrNotFound
	}
	return best, nil
}
