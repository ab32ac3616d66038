package strategy

import (
	"math"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/updown/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SIGNAL ENGINE - 15m mean reversion with a trend-adjusted RSI band
// ═══════════════════════════════════════════════════════════════════════════════
//
// Rules (evaluated once per cycle on resampled 15m bars):
//   RSI < buy  → UP   (oversold, expect bounce)
//   RSI > sell → DOWN (overbought, expect pullback)
//   downtrend (close below EMA50) tightens buy to 35
//   uptrend   (close above EMA50) tightens sell to 65
//
// ═══════════════════════════════════════════════════════════════════════════════

// SignalConfig holds the thresholds
type SignalConfig struct {
	RSIPeriod     int
	EMAPeriod     int
	BuyThreshold  float64
	SellThreshold float64
	DowntrendBuy  float64
	UptrendSell   float64
	MaxConfidence float64
}

// DefaultSignalConfig returns the production thresholds
func DefaultSignalConfig() SignalConfig {
	return SignalConfig{
		RSIPeriod:     14,
		EMAPeriod:     50,
		BuyThreshold:  38,
		SellThreshold: 62,
		DowntrendBuy:  35,
		UptrendSell:   65,
		MaxConfidence: 0.5,
	}
}

// cacheCycles bounds the per-cycle cache
const cacheCycles = 8

// SignalEngine computes one signal per cycle and caches it
type SignalEngine struct {
	mu    sync.Mutex
	cfg   SignalConfig
	cache map[int64]types.Signal
	order []int64
}

// NewSignalEngine creates a signal engine
func NewSignalEngine(cfg SignalConfig) *SignalEngine {
	return &SignalEngine{
		cfg:   cfg,
		cache: make(map[int64]types.Signal),
	}
}

// ComputeSignal evaluates bars for a cycle. A cycle is evaluated once:
// later calls with the same cycle id return the cached result.
func (e *SignalEngine) ComputeSignal(bars []types.Bar, cycleID int64) types.Signal {
	e.mu.Lock()
	defer e.mu.Unlock()

	if sig, ok := e.cache[cycleID]; ok {
		return sig
	}

	sig := e.evaluate(bars, cycleID)
	e.cache[cycleID] = sig
	e.order = append(e.order, cycleID)
	if len(e.order) > cacheCycles {
		delete(e.cache, e.order[0])
		e.order = e.order[1:]
	}
	return sig
}

// Indicators returns RSI and trend distance on the resampled bars without
// touching the cache. ok is false when history is too short.
func (e *SignalEngine) Indicators(bars []types.Bar) (rsi, dist float64, ok bool) {
	resampled := Resample(bars)
	if len(resampled) < e.cfg.RSIPeriod+1 || len(resampled) < e.cfg.EMAPeriod {
		return 50, 0, false
	}

	closes := Closes(resampled)
	rsi = WilderRSI(closes, e.cfg.RSIPeriod)
	ema := EMA(closes, e.cfg.EMAPeriod)
	if ema == 0 {
		return rsi, 0, false
	}
	dist = closes[len(closes)-1]/ema - 1
	return rsi, dist, true
}

func (e *SignalEngine) evaluate(bars []types.Bar, cycleID int64) types.Signal {
	rsi, dist, ok := e.Indicators(bars)
	if !ok {
		log.Debug().Int("bars", len(bars)).Msg("Not enough history for signal")
		return types.NoSignal(cycleID, rsi, dist)
	}

	sig := e.Classify(rsi, dist, cycleID)
	if sig.IsNone() {
		log.Info().Float64("rsi", round2(rsi)).Float64("trend", dist).Msg("No signal this cycle")
	} else {
		log.Info().
			Str("side", sig.Side.Label()).
			Float64("rsi", round2(rsi)).
			Float64("trend", dist).
			Float64("confidence", round2(sig.Confidence)).
			Msg("⚔️ Signal computed")
	}
	return sig
}

// Classify maps RSI and trend distance to a signal
func (e *SignalEngine) Classify(rsi, dist float64, cycleID int64) types.Signal {
	buy, sell := e.cfg.BuyThreshold, e.cfg.SellThreshold
	if dist < 0 {
		buy = e.cfg.DowntrendBuy
	} else if dist > 0 {
		sell = e.cfg.UptrendSell
	}

	switch {
	case rsi < buy:
		conf := math.Min((buy-rsi)/buy, e.cfg.MaxConfidence)
		return types.NewSignal(types.SideUp, conf, cycleID, rsi, dist)
	case rsi > sell:
		conf := math.Min((rsi-sell)/(100-sell), e.cfg.MaxConfidence)
		return types.NewSignal(types.SideDown, conf, cycleID, rsi, dist)
	}
	return types.NoSignal(cycleID, rsi, dist)
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
