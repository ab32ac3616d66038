package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - Avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Side is one of the two outcomes of an up/down market
type Side string

const (
	SideUp   Side = "YES" // Side A: price closes above price to beat
	SideDown Side = "NO"  // Side B
)

// Opposite returns the other outcome
func (s Side) Opposite() Side {
	if s == SideUp {
		return SideDown
	}
	return SideUp
}

// Label returns the human name used in messages
func (s Side) Label() string {
	if s == SideUp {
		return "UP"
	}
	return "DOWN"
}

// Bar is one fixed-interval OHLCV sample. StartTime is the key.
type Bar struct {
	StartTime time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// ═══════════════════════════════════════════════════════════════════════════════
// QUOTES
// ═══════════════════════════════════════════════════════════════════════════════

// Quote is the top of book for one outcome token
type Quote struct {
	Bid     decimal.Decimal
	Ask     decimal.Decimal
	BidSize decimal.Decimal
	AskSize decimal.Decimal
}

// Spread returns ask - bid
func (q Quote) Spread() decimal.Decimal {
	return q.Ask.Sub(q.Bid)
}

// Degenerate reports an empty or misrouted book (ask at or below the floor)
func (q Quote) Degenerate(floor decimal.Decimal) bool {
	return q.Ask.LessThanOrEqual(floor)
}

// QuoteSnapshot is an immutable two-sided view of the current market.
// It is replaced as a whole on each successful poll.
type QuoteSnapshot struct {
	MarketID   string
	Up         Quote
	Down       Quote
	ObservedAt time.Time
}

// Side returns the quote for the given outcome
func (s QuoteSnapshot) Side(side Side) Quote {
	if side == SideUp {
		return s.Up
	}
	return s.Down
}

// IsZero reports whether no poll has succeeded yet
func (s QuoteSnapshot) IsZero() bool {
	return s.ObservedAt.IsZero()
}

// HasAsks reports whether both outcomes show a usable ask
func (s QuoteSnapshot) HasAsks() bool {
	return s.Up.Ask.IsPositive() && s.Down.Ask.IsPositive()
}

// ═══════════════════════════════════════════════════════════════════════════════
// SIGNAL
// ═══════════════════════════════════════════════════════════════════════════════

// SignalKind tags the Signal variant
type SignalKind int

const (
	SignalNone SignalKind = iota
	SignalSide
)

// Signal is the per-cycle trade recommendation. Kind == SignalNone means
// "no trade this cycle"; Side and Confidence are only meaningful for SignalSide.
type Signal struct {
	Kind          SignalKind
	Side          Side
	Confidence    float64
	CycleID       int64
	RSI           float64
	TrendDistance float64
}

// NoSignal builds the empty variant. Indicator values are kept for display.
func NoSignal(cycleID int64, rsi, dist float64) Signal {
	return Signal{Kind: SignalNone, CycleID: cycleID, RSI: rsi, TrendDistance: dist}
}

// NewSignal builds a directional signal
func NewSignal(side Side, confidence float64, cycleID int64, rsi, dist float64) Signal {
	return Signal{
		Kind:          SignalSide,
		Side:          side,
		Confidence:    confidence,
		CycleID:       cycleID,
		RSI:           rsi,
		TrendDistance: dist,
	}
}

// IsNone reports the empty variant
func (s Signal) IsNone() bool {
	return s.Kind == SignalNone
}

// ═══════════════════════════════════════════════════════════════════════════════
// MARKET
// ═══════════════════════════════════════════════════════════════════════════════

// MarketHandle identifies the currently tradable 15m market.
// It is a value: rotation replaces it, nothing mutates it in place.
type MarketHandle struct {
	MarketID    string
	Slug        string
	Question    string
	UpToken     string
	DownToken   string
	OpensAt     time.Time
	ExpiresAt   time.Time
	PriceToBeat decimal.Decimal
	PriceSource string // feed that produced PriceToBeat; settlement reads the same one
}

// Token returns the CLOB token for an outcome
func (m MarketHandle) Token(side Side) string {
	if side == SideUp {
		return m.UpToken
	}
	return m.DownToken
}

// IsZero reports an unset handle
func (m MarketHandle) IsZero() bool {
	return m.MarketID == "" && m.UpToken == ""
}

// OpenAt reports whether the market window contains t
func (m MarketHandle) OpenAt(t time.Time) bool {
	if m.IsZero() {
		return false
	}
	if !m.OpensAt.IsZero() && t.Before(m.OpensAt) {
		return false
	}
	return t.Before(m.ExpiresAt)
}

// ═══════════════════════════════════════════════════════════════════════════════
// TRADE LOG
// ═══════════════════════════════════════════════════════════════════════════════

// Trade results
const (
	ResultWin       = "WIN"
	ResultLoss      = "LOSS"
	ResultCancelled = "CANCELLED"
)

// TradeRecord is one append-only row per settled or cancelled order
type TradeRecord struct {
	ID          string
	Timestamp   time.Time
	MarketSlug  string
	Side        Side
	Shares      decimal.Decimal
	EntryPrice  decimal.Decimal
	SettlePrice decimal.Decimal
	PriceToBeat decimal.Decimal
	Result      string
	Fees        decimal.Decimal
	PnL         decimal.Decimal
	Balance     decimal.Decimal
}
