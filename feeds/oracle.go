package feeds

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// PriceSource is one way of reading the underlying's current price
type PriceSource interface {
	Name() string
	Price(ctx context.Context) (decimal.Decimal, error)
}

// SettlementOracle tries sources in order; the first positive price wins.
// A preferred source, when named, is asked first.
type SettlementOracle struct {
	sources []PriceSource
	timeout time.Duration
}

// NewSettlementOracle builds an oracle over an ordered list of sources
func NewSettlementOracle(sources ...PriceSource) *SettlementOracle {
	return &SettlementOracle{
		sources: sources,
		timeout: 5 * time.Second,
	}
}

// SettlementPrice returns the price and the name of the source that served it
func (o *SettlementOracle) SettlementPrice(ctx context.Context, prefer string) (decimal.Decimal, string, error) {
	for _, src := range o.ordered(prefer) {
		callCtx, cancel := context.WithTimeout(ctx, o.timeout)
		price, err := src.Price(callCtx)
		cancel()

		if err != nil {
			log.Warn().Err(err).Str("source", src.Name()).Msg("Settlement source failed, trying next")
			continue
		}
		if !price.IsPositive() {
			continue
		}
		return price, src.Name(), nil
	}
	return decimal.Zero, "", ErrNoOraclePrice
}

func (o *SettlementOracle) ordered(prefer string) []PriceSource {
	if prefer == "" {
		return o.sources
	}
	out := make([]PriceSource, 0, len(o.sources))
	for _, src := range o.sources {
		if src.Name() == prefer {
			out = append(out, src)
		}
	}
	for _, src := range o.sources {
		if src.Name() != prefer {
			out = append(out, src)
		}
	}
	return out
}
