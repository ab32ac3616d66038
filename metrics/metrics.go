// Package metrics exposes Prometheus collectors for the trading loop.
//
//   - updown_orders_total{side}            orders placed
//   - updown_fills_total{side}             orders filled
//   - updown_cancels_total                 orders cancelled on timeout
//   - updown_settlements_total{result}     settled trades (WIN|LOSS)
//   - updown_signals_total{signal}         cycle signals (UP|DOWN|NONE)
//   - updown_equity_usd                    running balance
//   - updown_watchdog_refreshes_total      forced market refreshes
//   - updown_market_rotations_total        market handle changes
//   - updown_quote_poll_failures_total     failed orderbook polls
//   - updown_live_submit_failures_total    rejected live submissions
//
// Collectors are registered in init() and served on /metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	Orders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_orders_total",
			Help: "Orders placed",
		},
		[]string{"side"},
	)

	Fills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_fills_total",
			Help: "Orders filled",
		},
		[]string{"side"},
	)

	Cancels = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "updown_cancels_total",
			Help: "Orders cancelled after the fill timeout",
		},
	)

	Settlements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_settlements_total",
			Help: "Settled trades by result",
		},
		[]string{"result"},
	)

	Signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "updown_signals_total",
			Help: "Cycle signals by direction",
		},
		[]string{"signal"},
	)

	Equity = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "updown_equity_usd",
			Help: "Running balance in USD",
		},
	)

	WatchdogRefreshes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "updown_watchdog_refreshes_total",
			Help: "Market refreshes forced by degenerate quotes",
		},
	)

	Rotations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "updown_market_rotations_total",
			Help: "Market handle changes",
		},
	)

	PollFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "updown_quote_poll_failures_total",
			Help: "Failed orderbook polls",
		},
	)

	SubmitFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "updown_live_submit_failures_total",
			Help: "Live order submissions that failed after a local fill",
		},
	)
)

func init() {
	prometheus.MustRegister(Orders, Fills, Cancels, Settlements, Signals)
	prometheus.MustRegister(Equity, WatchdogRefreshes, Rotations)
	prometheus.MustRegister(PollFailures, SubmitFailures)
}

// Server serves /metrics until its context is cancelled
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics server on addr
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return &Server{srv: &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}}
}

// Handler exposes the mux for tests
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Run blocks until ctx is done, then shuts the server down
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.srv.Addr).Msg("📈 Metrics server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
