package strategy

import (
	"github.com/web3guy0/updown/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// INDICATORS - float math over resampled closes
// ═══════════════════════════════════════════════════════════════════════════════

// Resample groups bars into cycle-aligned buckets: open = first, high = max,
// low = min, close = last, volume = sum. A trailing partial bucket is kept.
// Input must be ordered by StartTime.
func Resample(bars []types.Bar) []types.Bar {
	out := make([]types.Bar, 0, len(bars)/15+1)

	for _, b := range bars {
		start := types.CycleStart(b.StartTime)
		n := len(out)
		if n > 0 && out[n-1].StartTime.Equal(start) {
			cur := &out[n-1]
			if b.High > cur.High {
				cur.High = b.High
			}
			if b.Low < cur.Low {
				cur.Low = b.Low
			}
			cur.Close = b.Close
			cur.Volume += b.Volume
			continue
		}
		out = append(out, types.Bar{
			StartTime: start,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return out
}

// Closes extracts close prices
func Closes(bars []types.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// WilderRSI is RSI with Wilder smoothing (alpha = 1/period), seeded at zero
// on the first bar. Returns 50 when there is no movement at all.
func WilderRSI(prices []float64, period int) float64 {
	if len(prices) < 2 || period <= 0 {
		return 50
	}

	alpha := 1.0 / float64(period)
	avgGain, avgLoss := 0.0, 0.0

	for i := 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain += alpha * (gain - avgGain)
		avgLoss += alpha * (loss - avgLoss)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// EMA is the recursive exponential average seeded with the first price
func EMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}

	multiplier := 2.0 / float64(period+1)
	ema := prices[0]
	for i := 1; i < len(prices); i++ {
		ema = (prices[i]-ema)*multiplier + ema
	}
	return ema
}
