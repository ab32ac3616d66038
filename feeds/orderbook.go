package feeds

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/updown/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ORDERBOOK - one outcome token's book as returned by the CLOB
// ═══════════════════════════════════════════════════════════════════════════════

// PriceLevel represents a single price level in the orderbook
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// Orderbook is an immutable view of one token's book.
// Bids are sorted descending, asks ascending.
type Orderbook struct {
	TokenID string
	Bids    []PriceLevel
	Asks    []PriceLevel
}

// rawLevel is the CLOB wire form {"price":"0.51","size":"120"} or ["0.51","120"]
type rawLevel struct {
	Price interface{} `json:"price"`
	Size  interface{} `json:"size"`
}

func (l *rawLevel) UnmarshalJSON(data []byte) error {
	var pair []interface{}
	if err := json.Unmarshal(data, &pair); err == nil {
		if len(pair) > 0 {
			l.Price = pair[0]
		}
		if len(pair) > 1 {
			l.Size = pair[1]
		}
		return nil
	}

	var obj struct {
		Price interface{} `json:"price"`
		Size  interface{} `json:"size"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	l.Price, l.Size = obj.Price, obj.Size
	return nil
}

// newOrderbook builds a sorted book, dropping empty or unparseable levels
func newOrderbook(tokenID string, bids, asks []rawLevel) Orderbook {
	ob := Orderbook{
		TokenID: tokenID,
		Bids:    parseLevels(bids),
		Asks:    parseLevels(asks),
	}

	// The CLOB does not promise an order; best bid is max, best ask is min
	sort.Slice(ob.Bids, func(i, j int) bool {
		return ob.Bids[i].Price.GreaterThan(ob.Bids[j].Price)
	})
	sort.Slice(ob.Asks, func(i, j int) bool {
		return ob.Asks[i].Price.LessThan(ob.Asks[j].Price)
	})
	return ob
}

func parseLevels(raw []rawLevel) []PriceLevel {
	levels := make([]PriceLevel, 0, len(raw))
	for _, lvl := range raw {
		price, ok := parseDecimal(lvl.Price)
		if !ok {
			continue
		}
		size, ok := parseDecimal(lvl.Size)
		if !ok || !size.IsPositive() {
			continue
		}
		levels = append(levels, PriceLevel{Price: price, Size: size})
	}
	return levels
}

// BestBid returns the highest bid level
func (ob Orderbook) BestBid() PriceLevel {
	if len(ob.Bids) == 0 {
		return PriceLevel{}
	}
	return ob.Bids[0]
}

// BestAsk returns the lowest ask level
func (ob Orderbook) BestAsk() PriceLevel {
	if len(ob.Asks) == 0 {
		return PriceLevel{}
	}
	return ob.Asks[0]
}

// Quote reduces the book to its top of book
func (ob Orderbook) Quote() types.Quote {
	bid, ask := ob.BestBid(), ob.BestAsk()
	return types.Quote{
		Bid:     bid.Price,
		Ask:     ask.Price,
		BidSize: bid.Size,
		AskSize: ask.Size,
	}
}

// Depth returns total size in the top n levels per side
func (ob Orderbook) Depth(n int) (bidDepth, askDepth decimal.Decimal) {
	for i := 0; i < n && i < len(ob.Bids); i++ {
		bidDepth = bidDepth.Add(ob.Bids[i].Size)
	}
	for i := 0; i < n && i < len(ob.Asks); i++ {
		askDepth = askDepth.Add(ob.Asks[i].Size)
	}
	return bidDepth, askDepth
}

// parseDecimal converts interface{} to decimal
func parseDecimal(v interface{}) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case string:
		d, err := decimal.NewFromString(val)
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int64:
		return decimal.NewFromInt(val), true
	default:
		return decimal.Zero, false
	}
}
