package feeds

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// CHAINLINK PRICE FEED - On-chain BTC/USD aggregator on Polygon
// ═══════════════════════════════════════════════════════════════════════════════
//
// Polymarket resolves the up/down markets against Chainlink. Reading the
// aggregator directly gives a settlement price closer to the resolution source
// than the exchange price.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	// BTCUSDFeedAddress is the BTC/USD aggregator on Polygon
	BTCUSDFeedAddress = "0xc907E116054Ad103354f2D350FD2514433D57F6f"

	chainlinkDecimals = 8
	maxRoundAge       = time.Hour
)

var latestRoundDataSelector = crypto.Keccak256([]byte("latestRoundData()"))[:4]

// contractCaller is the part of ethclient.Client the feed needs
type contractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ChainlinkFeed reads latestRoundData on demand
type ChainlinkFeed struct {
	mu     sync.RWMutex
	caller contractCaller
	feed   common.Address
	now    func() time.Time

	lastPrice   decimal.Decimal
	lastRoundID uint64
}

// DialChainlink connects to an RPC endpoint
func DialChainlink(ctx context.Context, rpcURL, feedAddress string) (*ChainlinkFeed, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	log.Info().Str("feed", feedAddress).Str("network", "Polygon").Msg("⛓️ Chainlink oracle connected")
	return newChainlinkFeed(client, feedAddress), nil
}

func newChainlinkFeed(caller contractCaller, feedAddress string) *ChainlinkFeed {
	if feedAddress == "" {
		feedAddress = BTCUSDFeedAddress
	}
	return &ChainlinkFeed{
		caller: caller,
		feed:   common.HexToAddress(feedAddress),
		now:    time.Now,
	}
}

// Name identifies the source in logs
func (f *ChainlinkFeed) Name() string { return "chainlink" }

// Price returns the latest aggregator answer.
// Rounds older than an hour are rejected as stale.
func (f *ChainlinkFeed) Price(ctx context.Context) (decimal.Decimal, error) {
	feed := f.feed
	out, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &feed, Data: latestRoundDataSelector}, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("latestRoundData: %w", err)
	}

	// (uint80 roundId, int256 answer, uint256 startedAt, uint256 updatedAt, uint80 answeredInRound)
	if len(out) < 160 {
		return decimal.Zero, fmt.Errorf("latestRoundData: short response (%d bytes)", len(out))
	}

	roundID := new(big.Int).SetBytes(out[0:32]).Uint64()
	answer := new(big.Int).SetBytes(out[32:64])
	updatedAt := new(big.Int).SetBytes(out[96:128]).Int64()

	if answer.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("latestRoundData: non-positive answer")
	}
	if age := f.now().Sub(time.Unix(updatedAt, 0)); age > maxRoundAge {
		return decimal.Zero, fmt.Errorf("latestRoundData: stale round (%s old)", age.Round(time.Second))
	}

	price := decimal.NewFromBigInt(answer, -chainlinkDecimals)

	f.mu.Lock()
	f.lastPrice = price
	f.lastRoundID = roundID
	f.mu.Unlock()

	log.Debug().Str("price", price.StringFixed(2)).Uint64("round", roundID).Msg("⛓️ Chainlink price")
	return price, nil
}

// Last returns the last successfully read price
func (f *ChainlinkFeed) Last() (decimal.Decimal, uint64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastPrice, f.lastRoundID
}
