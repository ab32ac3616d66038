package feeds

import (
	"sort"
	"sync"
	"time"

	"github.com/web3guy0/updown/types"
)

// DefaultBarCapacity bounds the in-memory history
const DefaultBarCapacity = 3000

// BarBuffer keeps bars ordered by StartTime with no duplicates.
// Upserting a bar with a known StartTime replaces it in place.
type BarBuffer struct {
	mu       sync.RWMutex
	bars     []types.Bar
	capacity int
}

// NewBarBuffer creates a buffer holding at most capacity bars
func NewBarBuffer(capacity int) *BarBuffer {
	if capacity <= 0 {
		capacity = DefaultBarCapacity
	}
	return &BarBuffer{
		bars:     make([]types.Bar, 0, capacity),
		capacity: capacity,
	}
}

// Upsert inserts or replaces a bar. Returns true if the bar was new.
func (b *BarBuffer) Upsert(bar types.Bar) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.upsertLocked(bar)
}

// Merge upserts many bars and returns how many were new
func (b *BarBuffer) Merge(bars []types.Bar) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	added := 0
	for _, bar := range bars {
		if b.upsertLocked(bar) {
			added++
		}
	}
	return added
}

func (b *BarBuffer) upsertLocked(bar types.Bar) bool {
	n := len(b.bars)

	// Fast path: append to the end
	if n == 0 || b.bars[n-1].StartTime.Before(bar.StartTime) {
		b.bars = append(b.bars, bar)
		b.trimLocked()
		return true
	}

	i := sort.Search(n, func(i int) bool {
		return !b.bars[i].StartTime.Before(bar.StartTime)
	})
	if i < n && b.bars[i].StartTime.Equal(bar.StartTime) {
		b.bars[i] = bar
		return false
	}

	// Older than everything we keep once full
	if i == 0 && n >= b.capacity {
		return false
	}

	b.bars = append(b.bars, types.Bar{})
	copy(b.bars[i+1:], b.bars[i:])
	b.bars[i] = bar
	b.trimLocked()
	return true
}

func (b *BarBuffer) trimLocked() {
	if over := len(b.bars) - b.capacity; over > 0 {
		b.bars = append(b.bars[:0], b.bars[over:]...)
	}
}

// Bars returns a copy, most recent last
func (b *BarBuffer) Bars() []types.Bar {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]types.Bar, len(b.bars))
	copy(out, b.bars)
	return out
}

// Last returns the most recent bar
func (b *BarBuffer) Last() (types.Bar, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.bars) == 0 {
		return types.Bar{}, false
	}
	return b.bars[len(b.bars)-1], true
}

// Contains reports whether a bar with this start time is stored
func (b *BarBuffer) Contains(start time.Time) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	i := sort.Search(len(b.bars), func(i int) bool {
		return !b.bars[i].StartTime.Before(start)
	})
	return i < len(b.bars) && b.bars[i].StartTime.Equal(start)
}

// Len returns the number of stored bars
func (b *BarBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bars)
}
