package feeds

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCaller struct {
	out []byte
	err error
	msg ethereum.CallMsg
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.msg = msg
	return f.out, f.err
}

func roundData(roundID, answer, updatedAt int64) []byte {
	words := []int64{roundID, answer, updatedAt, updatedAt, roundID}
	out := make([]byte, 0, 32*len(words))
	for _, w := range words {
		out = append(out, common.LeftPadBytes(big.NewInt(w).Bytes(), 32)...)
	}
	return out
}

func newTestChainlink(caller contractCaller, now time.Time) *ChainlinkFeed {
	f := newChainlinkFeed(caller, "")
	f.now = func() time.Time { return now }
	return f
}

func TestChainlinkPrice(t *testing.T) {
	now := t0.Add(time.Hour)
	caller := &fakeCaller{out: roundData(42, 9700012345678, now.Add(-30*time.Second).Unix())}
	f := newTestChainlink(caller, now)

	price, err := f.Price(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "97000.12345678", price.String())
	assert.Equal(t, common.HexToAddress(BTCUSDFeedAddress), *caller.msg.To)
	assert.Equal(t, latestRoundDataSelector, caller.msg.Data)

	last, round := f.Last()
	assert.True(t, price.Equal(last))
	assert.Equal(t, uint64(42), round)
}

func TestChainlinkRejectsBadRounds(t *testing.T) {
	now := t0.Add(time.Hour)

	tests := []struct {
		name   string
		caller *fakeCaller
	}{
		{"rpc error", &fakeCaller{err: errors.New("connection refused")}},
		{"short response", &fakeCaller{out: make([]byte, 64)}},
		{"zero answer", &fakeCaller{out: roundData(1, 0, now.Unix())}},
		{"stale round", &fakeCaller{out: roundData(1, 9700000000000, now.Add(-2*time.Hour).Unix())}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestChainlink(tt.caller, now).Price(context.Background())
			assert.Error(t, err)
		})
	}
}

type staticSource struct {
	name  string
	price decimal.Decimal
	err   error
	calls int
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Price(context.Context) (decimal.Decimal, error) {
	s.calls++
	return s.price, s.err
}

func TestSettlementOracleFallsBack(t *testing.T) {
	chain := &staticSource{name: "chainlink", err: errors.New("rpc down")}
	zero := &staticSource{name: "empty"}
	binance := &staticSource{name: "binance", price: dec("97012.5")}
	unused := &staticSource{name: "unused", price: dec("1")}

	price, source, err := NewSettlementOracle(chain, zero, binance, unused).SettlementPrice(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "binance", source)
	assert.True(t, dec("97012.5").Equal(price))
	assert.Zero(t, unused.calls)
}

func TestSettlementOracleAllFail(t *testing.T) {
	o := NewSettlementOracle(&staticSource{name: "a", err: errors.New("down")}, &staticSource{name: "b"})

	_, source, err := o.SettlementPrice(context.Background(), "b")
	assert.ErrorIs(t, err, ErrNoOraclePrice)
	assert.Empty(t, source)
}

func TestSettlementOracleAsksPreferredSourceFirst(t *testing.T) {
	chain := &staticSource{name: "chainlink", price: dec("97100")}
	binance := &staticSource{name: "binance", price: dec("97012.5")}
	o := NewSettlementOracle(chain, binance)

	price, source, err := o.SettlementPrice(context.Background(), "binance")
	require.NoError(t, err)
	assert.Equal(t, "binance", source)
	assert.True(t, dec("97012.5").Equal(price))
	assert.Zero(t, chain.calls)

	// an unavailable preferred source falls back to the others in order
	binance.err = errors.New("stream down")
	_, source, err = o.SettlementPrice(context.Background(), "binance")
	require.NoError(t, err)
	assert.Equal(t, "chainlink", source)

	// unknown names keep the configured order
	_, source, err = o.SettlementPrice(context.Background(), "coinbase")
	require.NoError(t, err)
	assert.Equal(t, "chainlink", source)
}
