package feeds

import "errors"

var (
	// ErrRateLimited is returned on HTTP 429; callers skip the cycle
	ErrRateLimited = errors.New("rate limited")

	// ErrNoOraclePrice means every settlement source failed
	ErrNoOraclePrice = errors.New("no oracle price available")

	// ErrNoKline means the exchange had no bar at the requested time
	ErrNoKline = errors.New("no kline at requested time")
)
