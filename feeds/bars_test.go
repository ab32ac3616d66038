package feeds

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3guy0/updown/types"
)

var t0 = time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)

func bar(min int, close float64) types.Bar {
	return types.Bar{StartTime: t0.Add(time.Duration(min) * time.Minute), Open: close, High: close, Low: close, Close: close}
}

func TestBarBufferOrdersAndReplaces(t *testing.T) {
	b := NewBarBuffer(10)

	assert.True(t, b.Upsert(bar(2, 102)))
	assert.True(t, b.Upsert(bar(0, 100)))
	assert.True(t, b.Upsert(bar(1, 101)))
	assert.False(t, b.Upsert(bar(1, 111)), "same start time replaces")

	bars := b.Bars()
	require.Len(t, bars, 3)
	assert.Equal(t, []float64{100, 111, 102}, closesOf(bars))
	assert.True(t, b.Contains(t0.Add(time.Minute)))
	assert.False(t, b.Contains(t0.Add(5*time.Minute)))

	last, ok := b.Last()
	require.True(t, ok)
	assert.Equal(t, 102.0, last.Close)
}

func TestBarBufferCapacity(t *testing.T) {
	b := NewBarBuffer(3)

	added := b.Merge([]types.Bar{bar(0, 1), bar(1, 2), bar(2, 3), bar(3, 4), bar(4, 5)})
	assert.Equal(t, 5, added)
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, []float64{3, 4, 5}, closesOf(b.Bars()))

	// older than the window once full
	assert.False(t, b.Upsert(bar(0, 1)))
	assert.Equal(t, 3, b.Len())
}

func TestBarBufferReturnsCopy(t *testing.T) {
	b := NewBarBuffer(5)
	b.Upsert(bar(0, 100))

	bars := b.Bars()
	bars[0].Close = 0
	last, _ := b.Last()
	assert.Equal(t, 100.0, last.Close)
}

func closesOf(bars []types.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func requireOrdered(t *testing.T, bars []types.Bar, capacity int) {
	t.Helper()
	require.LessOrEqual(t, len(bars), capacity)
	for i := 1; i < len(bars); i++ {
		require.True(t, bars[i-1].StartTime.Before(bars[i].StartTime),
			"bar %d (%s) not after bar %d (%s)", i, bars[i].StartTime, i-1, bars[i-1].StartTime)
	}
}

func TestBarBufferRandomUpserts(t *testing.T) {
	const capacity = 16
	rng := rand.New(rand.NewSource(7))
	b := NewBarBuffer(capacity)

	newest := -1
	for i := 0; i < 5000; i++ {
		min := rng.Intn(64)
		if min > newest {
			newest = min
		}
		b.Upsert(bar(min, float64(i)))

		bars := b.Bars()
		requireOrdered(t, bars, capacity)

		last, ok := b.Last()
		require.True(t, ok)
		require.Equal(t, t0.Add(time.Duration(newest)*time.Minute), last.StartTime, "newest bar is always kept")

		// a stored bar carries the latest value written for its start
		if b.Contains(bar(min, 0).StartTime) {
			for _, got := range bars {
				if got.StartTime.Equal(bar(min, 0).StartTime) {
					require.Equal(t, float64(i), got.Close)
				}
			}
		}
	}
}

func TestBarBufferRandomMerges(t *testing.T) {
	const capacity = 24
	rng := rand.New(rand.NewSource(42))
	b := NewBarBuffer(capacity)

	for round := 0; round < 200; round++ {
		batch := make([]types.Bar, 0, 30)
		for i := 0; i < 30; i++ {
			min := round + rng.Intn(40)
			batch = append(batch, bar(min, float64(min)))
			if rng.Intn(3) == 0 {
				batch = append(batch, bar(min, float64(min)))
			}
		}
		rng.Shuffle(len(batch), func(i, j int) { batch[i], batch[j] = batch[j], batch[i] })

		before := b.Len()
		added := b.Merge(batch)
		bars := b.Bars()
		requireOrdered(t, bars, capacity)
		require.GreaterOrEqual(t, added, 0)
		if len(bars) < capacity {
			require.Equal(t, before+added, len(bars))
		}
		for _, got := range bars {
			require.Equal(t, float64(got.StartTime.Sub(t0)/time.Minute), got.Close)
		}
	}
}
