package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/web3guy0/updown/types"
)

// MaxKlinesPerRequest is the Binance REST page size
const MaxKlinesPerRequest = 1000

// KlineSource serves historical 1m bars
type KlineSource interface {
	// Klines returns up to limit bars starting at or after start, oldest first
	Klines(ctx context.Context, start time.Time, limit int) ([]types.Bar, error)
}

// RESTKlines reads /api/v3/klines
type RESTKlines struct {
	baseURL    string
	symbol     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewRESTKlines creates a kline source for one symbol
func NewRESTKlines(baseURL, symbol string) *RESTKlines {
	return &RESTKlines{
		baseURL:    baseURL,
		symbol:     symbol,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		// Binance weight budget is generous; 10 req/s keeps preload polite
		limiter: rate.NewLimiter(rate.Limit(10), 5),
	}
}

// Klines fetches one page of 1m klines
func (k *RESTKlines) Klines(ctx context.Context, start time.Time, limit int) ([]types.Bar, error) {
	if limit <= 0 || limit > MaxKlinesPerRequest {
		limit = MaxKlinesPerRequest
	}
	if err := k.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=1m&startTime=%d&limit=%d",
		k.baseURL, k.symbol, start.UnixMilli(), limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("klines request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusTeapot {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("klines: status %d", resp.StatusCode)
	}

	var raw [][]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode klines: %w", err)
	}

	bars := make([]types.Bar, 0, len(raw))
	for _, row := range raw {
		bar, ok := parseKlineRow(row)
		if !ok {
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// parseKlineRow reads [openTime, open, high, low, close, volume, ...]
func parseKlineRow(row []interface{}) (types.Bar, bool) {
	if len(row) < 6 {
		return types.Bar{}, false
	}
	openTime, ok := row[0].(float64)
	if !ok {
		return types.Bar{}, false
	}

	vals := make([]float64, 5)
	for i := 0; i < 5; i++ {
		s, ok := row[i+1].(string)
		if !ok {
			return types.Bar{}, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return types.Bar{}, false
		}
		vals[i] = f
	}

	return types.Bar{
		StartTime: time.UnixMilli(int64(openTime)).UTC(),
		Open:      vals[0],
		High:      vals[1],
		Low:       vals[2],
		Close:     vals[3],
		Volume:    vals[4],
	}, true
}
