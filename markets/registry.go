package markets

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/updown/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MARKET REGISTRY - owns the current market handle and rotates it each cycle
// ═══════════════════════════════════════════════════════════════════════════════

const (
	maxRotationSleep = 300 * time.Second
	minRotationSleep = time.Second
)

// PriceToBeatSource returns the underlying's price at a window start
type PriceToBeatSource interface {
	Name() string
	PriceAt(ctx context.Context, t time.Time) (decimal.Decimal, error)
}

// LatestPriceSource is the fallback when the window-start price is unavailable
type LatestPriceSource interface {
	LatestPrice() (float64, bool)
}

// RegistryConfig configures rotation timing
type RegistryConfig struct {
	RotationLead    time.Duration // wake this long before each boundary (5s)
	RefreshInterval time.Duration // periodic health check (30s)
	Clock           types.Clock
}

// Registry tracks the tradable market
type Registry struct {
	mu      sync.RWMutex
	running bool

	// one refresh at a time; the rotation loop, the watchdog and startup all call Refresh
	refreshMu sync.Mutex

	cancel  context.CancelFunc
	wg      sync.WaitGroup

	discoverers []Discoverer
	ptb         PriceToBeatSource
	latest      LatestPriceSource
	cfg         RegistryConfig
	clock       types.Clock

	current     types.MarketHandle
	has         bool
	provisional bool // price to beat came from the fallback
	listeners   []func(types.MarketHandle)
	rotations   int64
	lastRefresh time.Time
}

// NewRegistry creates a registry over an ordered list of strategies
func NewRegistry(cfg RegistryConfig, ptb PriceToBeatSource, latest LatestPriceSource, discoverers ...Discoverer) *Registry {
	if cfg.RotationLead <= 0 {
		cfg.RotationLead = 5 * time.Second
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}
	return &Registry{
		discoverers: discoverers,
		ptb:         ptb,
		latest:      latest,
		cfg:         cfg,
		clock:       clock,
	}
}

// OnRotate registers a listener called with each new handle.
// A zero handle means no market is available.
func (r *Registry) OnRotate(cb func(types.MarketHandle)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, cb)
}

// Current returns the tradable market, if any
func (r *Registry) Current() (types.MarketHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.has
}

// Rotations returns how many times the handle changed
func (r *Registry) Rotations() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rotations
}

// target is the instant whose window we want: inside the rotation lead
// it is already the next window.
func (r *Registry) target(now time.Time) time.Time {
	next := types.NextBoundary(now)
	if next.Sub(now) <= r.cfg.RotationLead {
		return next
	}
	return now
}

// Refresh re-discovers the market. Without force it is a no-op while the
// current handle is still open. Returns false when every strategy failed.
// Refreshes are serialized and never install an older window than the
// one in place.
func (r *Registry) Refresh(ctx context.Context, force bool) bool {
	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	now := r.clock.Now()
	at := r.target(now)

	r.mu.RLock()
	current, has := r.current, r.has
	r.mu.RUnlock()

	if !force && has && current.OpenAt(at) {
		return true
	}

	handle, via, ok := r.discover(ctx, at)
	if !ok {
		r.mu.Lock()
		had := r.has
		r.current = types.MarketHandle{}
		r.has = false
		r.provisional = false
		r.lastRefresh = now
		listeners := r.copyListeners()
		r.mu.Unlock()

		log.Warn().Time("target", at).Msg("No valid market found, pausing entries")
		if had {
			for _, cb := range listeners {
				cb(types.MarketHandle{})
			}
		}
		return false
	}

	if has && handle.OpensAt.Before(current.OpensAt) {
		log.Warn().
			Str("found", handle.Slug).
			Str("current", current.Slug).
			Msg("Discovery returned an older window, keeping current market")
		return true
	}

	// Same market: keep the price to beat we already have
	provisional := false
	if has && current.MarketID == handle.MarketID && current.PriceToBeat.IsPositive() {
		handle.PriceToBeat = current.PriceToBeat
		handle.PriceSource = current.PriceSource
		r.mu.RLock()
		provisional = r.provisional
		r.mu.RUnlock()
	} else {
		handle.PriceToBeat, handle.PriceSource, provisional = r.priceToBeat(ctx, handle)
	}

	r.mu.Lock()
	changed := !r.has || r.current.MarketID != handle.MarketID
	r.current = handle
	r.has = true
	r.provisional = provisional
	r.lastRefresh = now
	if changed {
		r.rotations++
	}
	listeners := r.copyListeners()
	r.mu.Unlock()

	if changed {
		log.Info().
			Str("slug", handle.Slug).
			Str("via", via).
			Str("ptb", handle.PriceToBeat.StringFixed(2)).
			Time("expires", handle.ExpiresAt).
			Msg("🔄 Market rotated")
		for _, cb := range listeners {
			cb(handle)
		}
	}
	return true
}

func (r *Registry) discover(ctx context.Context, at time.Time) (types.MarketHandle, string, bool) {
	for _, d := range r.discoverers {
		h, err := d.Discover(ctx, at)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				log.Debug().Str("strategy", d.Name()).Msg("Discovery found nothing")
			} else {
				log.Warn().Err(err).Str("strategy", d.Name()).Msg("Discovery failed")
			}
			continue
		}
		return h, d.Name(), true
	}
	return types.MarketHandle{}, "", false
}

// priceToBeat reads the 1m open at the window start, falling back to the
// latest price. It returns the price, the source that produced it and
// whether it is a fallback value.
func (r *Registry) priceToBeat(ctx context.Context, h types.MarketHandle) (decimal.Decimal, string, bool) {
	if r.ptb != nil && !h.OpensAt.IsZero() {
		p, err := r.ptb.PriceAt(ctx, h.OpensAt)
		if err == nil && p.IsPositive() {
			return p, r.ptb.Name(), false
		}
		log.Debug().Err(err).Str("slug", h.Slug).Msg("Window-start price unavailable, using latest")
	}

	if r.latest != nil {
		if p, ok := r.latest.LatestPrice(); ok && p > 0 {
			return decimal.NewFromFloat(p), sourceName(r.latest), true
		}
	}

	log.Warn().Str("slug", h.Slug).Msg("Could not get price to beat")
	return decimal.Zero, "", true
}

func sourceName(v any) string {
	if n, ok := v.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "latest"
}

// firmUpPriceToBeat replaces a fallback price to beat once the window has opened
func (r *Registry) firmUpPriceToBeat(ctx context.Context) {
	r.mu.RLock()
	h, has, provisional := r.current, r.has, r.provisional
	r.mu.RUnlock()

	if !has || !provisional || r.ptb == nil || r.clock.Now().Before(h.OpensAt) {
		return
	}

	p, err := r.ptb.PriceAt(ctx, h.OpensAt)
	if err != nil || !p.IsPositive() {
		return
	}

	r.mu.Lock()
	if r.current.MarketID == h.MarketID {
		r.current.PriceToBeat = p
		r.current.PriceSource = r.ptb.Name()
		r.provisional = false
		h = r.current
	}
	r.mu.Unlock()

	log.Info().Str("slug", h.Slug).Str("ptb", p.StringFixed(2)).Msg("📌 Price to beat confirmed")
}

func (r *Registry) copyListeners() []func(types.MarketHandle) {
	out := make([]func(types.MarketHandle), len(r.listeners))
	copy(out, r.listeners)
	return out
}

// ═══════════════════════════════════════════════════════════════════════════════
// ROTATION LOOP
// ═══════════════════════════════════════════════════════════════════════════════

// Start begins the rotation loop
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	ctx, r.cancel = context.WithCancel(ctx)
	r.mu.Unlock()

	r.wg.Add(1)
	go r.rotationLoop(ctx)
	log.Info().Dur("lead", r.cfg.RotationLead).Msg("🔍 Market registry started")
}

// Stop ends the rotation loop
func (r *Registry) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.cancel()
	r.mu.Unlock()

	r.wg.Wait()
	log.Info().Msg("Market registry stopped")
}

// nextWake returns the next rotation instant after now
func (r *Registry) nextWake(now time.Time) time.Time {
	wake := types.NextBoundary(now).Add(-r.cfg.RotationLead)
	if !wake.After(now) {
		wake = wake.Add(types.CycleLength)
	}
	return wake
}

func (r *Registry) rotationLoop(ctx context.Context) {
	defer r.wg.Done()

	wake := r.nextWake(r.clock.Now())
	for {
		now := r.clock.Now()
		sleep := wake.Sub(now)
		if sleep > r.cfg.RefreshInterval {
			sleep = r.cfg.RefreshInterval
		}
		if sleep > maxRotationSleep {
			sleep = maxRotationSleep
		}
		if sleep < minRotationSleep {
			sleep = minRotationSleep
		}

		select {
		case <-ctx.Done():
			return
		case <-r.clock.After(sleep):
		}

		now = r.clock.Now()
		if !now.Before(wake) {
			log.Info().Time("boundary", types.NextBoundary(now)).Msg("⏰ Rotating to next window")
			r.Refresh(ctx, true)
			wake = r.nextWake(now)
			continue
		}

		r.Refresh(ctx, false)
		r.firmUpPriceToBeat(ctx)
	}
}
