package types

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCycleHelpers(t *testing.T) {
	ts := time.Date(2026, 3, 1, 10, 22, 41, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC), CycleStart(ts))
	assert.Equal(t, time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC), NextBoundary(ts))
	assert.Equal(t, 7, MinuteInCycle(ts))
	assert.Equal(t, CycleStart(ts).Unix(), CycleID(ts))
	assert.Equal(t, CycleID(ts), CycleID(ts.Add(7*time.Minute)))
	assert.NotEqual(t, CycleID(ts), CycleID(ts.Add(8*time.Minute)))
}

func TestManualClockFiresInOrder(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	late := c.After(10 * time.Second)
	early := c.After(time.Second)
	require.Equal(t, 2, c.Waiters())

	c.Advance(time.Second)
	select {
	case got := <-early:
		assert.Equal(t, start.Add(time.Second), got)
	default:
		t.Fatal("early timer did not fire")
	}
	select {
	case <-late:
		t.Fatal("late timer fired too soon")
	default:
	}

	c.Advance(time.Minute)
	<-late
	assert.Zero(t, c.Waiters())
}

func TestManualClockBlockUntil(t *testing.T) {
	c := NewManualClock(time.Unix(0, 0))
	done := make(chan struct{})

	go func() {
		<-c.After(5 * time.Second)
		close(done)
	}()

	c.BlockUntil(1)
	c.Advance(5 * time.Second)
	<-done
}

func TestQuoteSnapshot(t *testing.T) {
	snap := QuoteSnapshot{
		Up:   Quote{Bid: decimal.RequireFromString("0.48"), Ask: decimal.RequireFromString("0.50")},
		Down: Quote{Bid: decimal.RequireFromString("0.49"), Ask: decimal.RequireFromString("0.52")},
	}

	assert.True(t, snap.IsZero())
	assert.True(t, snap.HasAsks())
	assert.Equal(t, "0.02", snap.Side(SideUp).Spread().String())
	assert.Equal(t, "0.52", snap.Side(SideDown).Ask.String())
	assert.False(t, snap.Up.Degenerate(decimal.RequireFromString("0.01")))
}

func TestMarketHandleOpenAt(t *testing.T) {
	opens := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := MarketHandle{MarketID: "m1", UpToken: "u", DownToken: "d", OpensAt: opens, ExpiresAt: opens.Add(CycleLength)}

	assert.False(t, m.OpenAt(opens.Add(-time.Second)))
	assert.True(t, m.OpenAt(opens))
	assert.True(t, m.OpenAt(opens.Add(14*time.Minute)))
	assert.False(t, m.OpenAt(opens.Add(CycleLength)))
	assert.Equal(t, "d", m.Token(SideDown))
	assert.False(t, MarketHandle{}.OpenAt(opens))
}

func TestSignalVariants(t *testing.T) {
	none := NoSignal(42, 50, 0.001)
	assert.True(t, none.IsNone())
	assert.Equal(t, int64(42), none.CycleID)

	sig := NewSignal(SideDown, 0.3, 42, 80, 0.01)
	assert.False(t, sig.IsNone())
	assert.Equal(t, SideDown, sig.Side)
	assert.Equal(t, SideUp, sig.Side.Opposite())
	assert.Equal(t, "DOWN", sig.Side.Label())
}
