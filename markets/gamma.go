package markets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/web3guy0/updown/types"
)

const (
	defaultGammaBase = "https://gamma-api.polymarket.com"

	// Gamma allows 300 req/10s; stay well under
	gammaRatePerSec = 10

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

var (
	// ErrNotFound means no market matched
	ErrNotFound = errors.New("market not found")

	errNotFoundStatus = errors.New("404")
)

// Client is the gamma REST client with rate limiting and retries
type Client struct {
	http      *http.Client
	baseURL   string
	limiter   *rate.Limiter
	retryWait time.Duration
}

// NewClient creates a gamma client; empty baseURL means production
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultGammaBase
	}
	return &Client{
		http:      &http.Client{Timeout: 10 * time.Second},
		baseURL:   strings.TrimRight(baseURL, "/"),
		limiter:   rate.NewLimiter(gammaRatePerSec, 5),
		retryWait: baseRetryWait,
	}
}

// GammaMarket is the subset of a gamma market we use.
// Outcomes and ClobTokenIds arrive as JSON-encoded strings.
type GammaMarket struct {
	ID             string `json:"id"`
	ConditionID    string `json:"conditionId"`
	Question       string `json:"question"`
	Slug           string `json:"slug"`
	Active         bool   `json:"active"`
	Closed         bool   `json:"closed"`
	StartDate      string `json:"startDate"`
	EndDate        string `json:"endDate"`
	EventStartTime string `json:"eventStartTime"`
	Outcomes       string `json:"outcomes"`
	ClobTokenIds   string `json:"clobTokenIds"`
	OutcomePrices  string `json:"outcomePrices"`
}

// gammaEvent wraps markets under /events
type gammaEvent struct {
	Slug           string        `json:"slug"`
	Active         bool          `json:"active"`
	Closed         bool          `json:"closed"`
	EndDate        string        `json:"endDate"`
	EventStartTime string        `json:"eventStartTime"`
	StartTime      string        `json:"startTime"`
	Markets        []GammaMarket `json:"markets"`
}

// Window returns the market's open and expiry times
func (m GammaMarket) Window() (opens, expires time.Time, err error) {
	expires, err = parseTime(m.EndDate)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("endDate %q: %w", m.EndDate, err)
	}
	if t, err := parseTime(m.EventStartTime); err == nil {
		opens = t
	} else {
		// Up/down windows are fixed length; derive the open from the expiry
		opens = expires.Add(-types.CycleLength)
	}
	return opens, expires, nil
}

// Handle converts a gamma market into a tradable handle (price to beat unset)
func (m GammaMarket) Handle() (types.MarketHandle, error) {
	var outcomes, tokens []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return types.MarketHandle{}, fmt.Errorf("outcomes: %w", err)
	}
	if err := json.Unmarshal([]byte(m.ClobTokenIds), &tokens); err != nil {
		return types.MarketHandle{}, fmt.Errorf("clobTokenIds: %w", err)
	}
	if len(outcomes) != 2 || len(tokens) != 2 {
		return types.MarketHandle{}, fmt.Errorf("want 2 outcomes, got %d/%d", len(outcomes), len(tokens))
	}

	h := types.MarketHandle{
		MarketID: m.ConditionID,
		Slug:     m.Slug,
		Question: m.Question,
	}
	if h.MarketID == "" {
		h.MarketID = m.ID
	}

	for i, outcome := range outcomes {
		switch strings.ToLower(outcome) {
		case "up", "yes":
			h.UpToken = tokens[i]
		case "down", "no":
			h.DownToken = tokens[i]
		}
	}
	if h.UpToken == "" || h.DownToken == "" {
		return types.MarketHandle{}, fmt.Errorf("unrecognized outcomes %v", outcomes)
	}

	opens, expires, err := m.Window()
	if err != nil {
		return types.MarketHandle{}, err
	}
	h.OpensAt, h.ExpiresAt = opens, expires
	return h, nil
}

// MarketsByTag lists active markets under a gamma tag
func (c *Client) MarketsByTag(ctx context.Context, tagID string, limit int) ([]GammaMarket, error) {
	q := url.Values{}
	q.Set("tag_id", tagID)
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("limit", fmt.Sprint(limit))

	var out []GammaMarket
	if err := c.get(ctx, "/markets?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("gamma.MarketsByTag: %w", err)
	}
	return out, nil
}

// ActiveMarkets lists open markets without a tag filter
func (c *Client) ActiveMarkets(ctx context.Context, limit int) ([]GammaMarket, error) {
	q := url.Values{}
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("limit", fmt.Sprint(limit))
	q.Set("order", "endDate")
	q.Set("ascending", "true")

	var out []GammaMarket
	if err := c.get(ctx, "/markets?"+q.Encode(), &out); err != nil {
		return nil, fmt.Errorf("gamma.ActiveMarkets: %w", err)
	}
	return out, nil
}

// EventMarkets resolves an event slug into its markets. Event-level times
// fill in market fields the API leaves empty.
func (c *Client) EventMarkets(ctx context.Context, slug string) ([]GammaMarket, error) {
	var events []gammaEvent
	if err := c.get(ctx, "/events?slug="+url.QueryEscape(slug), &events); err != nil {
		return nil, fmt.Errorf("gamma.EventMarkets: %w", err)
	}
	if len(events) == 0 || len(events[0].Markets) == 0 {
		return nil, ErrNotFound
	}

	ev := events[0]
	out := make([]GammaMarket, 0, len(ev.Markets))
	for _, m := range ev.Markets {
		if m.Slug == "" {
			m.Slug = ev.Slug
		}
		if m.EndDate == "" {
			m.EndDate = ev.EndDate
		}
		if m.EventStartTime == "" {
			m.EventStartTime = firstNonEmpty(ev.EventStartTime, ev.StartTime)
		}
		if ev.Closed {
			m.Closed = true
		}
		out = append(out, m)
	}
	return out, nil
}

// MarketBySlug fetches /markets/slug/<slug>
func (c *Client) MarketBySlug(ctx context.Context, slug string) (GammaMarket, error) {
	var m GammaMarket
	if err := c.get(ctx, "/markets/slug/"+url.PathEscape(slug), &m); err != nil {
		if errors.Is(err, errNotFoundStatus) {
			return GammaMarket{}, ErrNotFound
		}
		return GammaMarket{}, fmt.Errorf("gamma.MarketBySlug: %w", err)
	}
	if m.ClobTokenIds == "" {
		return GammaMarket{}, ErrNotFound
	}
	return m, nil
}

// get does a rate-limited GET with retries on 429 and 5xx
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	endpoint := c.baseURL + path

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries || ctx.Err() != nil {
				return fmt.Errorf("request failed after %d retries: %w", attempt, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			log.Warn().Int("attempt", attempt+1).Msg("Gamma rate limited")
			c.sleep(ctx, attempt)
			continue
		case resp.StatusCode >= 500:
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		case resp.StatusCode == http.StatusNotFound:
			resp.Body.Close()
			return fmt.Errorf("gamma %s: %w", path, errNotFoundStatus)
		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep backs off exponentially, honoring the context
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * c.retryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty time")
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05-07", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
