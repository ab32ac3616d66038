package exec

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"math/rand"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// EIP-712 ORDER SIGNING - Polymarket CTF Exchange on Polygon
// ═══════════════════════════════════════════════════════════════════════════════

const (
	PolygonChainID     = 137
	CTFExchangeAddress = "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E"
)

// Signature types
const (
	SignatureTypeEOA        = 0
	SignatureTypePolyProxy  = 1
	SignatureTypeGnosisSafe = 2
)

// Order sides as encoded in the signed struct
const (
	SideBuy  = 0
	SideSell = 1
)

var tokenUnits = decimal.New(1, 6)

// CTFOrder is the struct the exchange verifies
type CTFOrder struct {
	Salt          *big.Int
	Maker         common.Address
	Signer        common.Address
	Taker         common.Address
	TokenID       *big.Int
	MakerAmount   *big.Int
	TakerAmount   *big.Int
	Expiration    *big.Int
	Nonce         *big.Int
	FeeRateBps    *big.Int
	Side          uint8
	SignatureType uint8
}

// SignedOrder is an order plus its 65-byte hex signature
type SignedOrder struct {
	Order     *CTFOrder
	Signature string
}

// OrderSigner builds and signs CTF orders
type OrderSigner struct {
	key           *ecdsa.PrivateKey
	signer        common.Address
	funder        common.Address
	exchange      common.Address
	chainID       int64
	signatureType int
	salt          func() *big.Int
}

// NewOrderSigner creates a signer; a zero funder means the key holds the funds
func NewOrderSigner(key *ecdsa.PrivateKey, funder common.Address, signatureType int) *OrderSigner {
	addr := crypto.PubkeyToAddress(key.PublicKey)
	if funder == (common.Address{}) {
		funder = addr
	}
	return &OrderSigner{
		key:           key,
		signer:        addr,
		funder:        funder,
		exchange:      common.HexToAddress(CTFExchangeAddress),
		chainID:       PolygonChainID,
		signatureType: signatureType,
		salt:          func() *big.Int { return big.NewInt(rand.Int63()) },
	}
}

// Address returns the signing address
func (s *OrderSigner) Address() common.Address {
	return s.signer
}

// BuildOrder creates an unsigned order. Amounts are in 6-decimal token
// units: a buy gives price*size collateral (truncated) for size shares
// (rounded to 4 dp).
func (s *OrderSigner) BuildOrder(tokenID string, side int, price, size decimal.Decimal) (*CTFOrder, error) {
	token, ok := new(big.Int).SetString(tokenID, 10)
	if !ok {
		return nil, fmt.Errorf("invalid token id %q", tokenID)
	}
	if !price.IsPositive() || !size.IsPositive() {
		return nil, fmt.Errorf("invalid price %s or size %s", price, size)
	}

	shares := size.Round(4).Mul(tokenUnits).Truncate(0).BigInt()
	collateral := size.Mul(price).Mul(tokenUnits).Truncate(0).BigInt()

	var maker, taker *big.Int
	if side == SideBuy {
		maker, taker = collateral, shares
	} else {
		maker, taker = shares, collateral
	}

	return &CTFOrder{
		Salt:          s.salt(),
		Maker:         s.funder,
		Signer:        s.signer,
		Taker:         common.Address{},
		TokenID:       token,
		MakerAmount:   maker,
		TakerAmount:   taker,
		Expiration:    big.NewInt(0),
		Nonce:         big.NewInt(0),
		FeeRateBps:    big.NewInt(0),
		Side:          uint8(side),
		SignatureType: uint8(s.signatureType),
	}, nil
}

// Hash returns the EIP-712 digest of an order
func (s *OrderSigner) Hash(order *CTFOrder) (common.Hash, error) {
	td := s.typedData(order)

	domain, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash domain: %w", err)
	}
	msg, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("hash message: %w", err)
	}

	raw := make([]byte, 0, 66)
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domain...)
	raw = append(raw, msg...)
	return crypto.Keccak256Hash(raw), nil
}

// Sign signs an order; V is shifted to 27/28
func (s *OrderSigner) Sign(order *CTFOrder) (*SignedOrder, error) {
	hash, err := s.Hash(order)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(hash.Bytes(), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}

	return &SignedOrder{Order: order, Signature: fmt.Sprintf("0x%x", sig)}, nil
}

func (s *OrderSigner) typedData(order *CTFOrder) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Order": {
				{Name: "salt", Type: "uint256"},
				{Name: "maker", Type: "address"},
				{Name: "signer", Type: "address"},
				{Name: "taker", Type: "address"},
				{Name: "tokenId", Type: "uint256"},
				{Name: "makerAmount", Type: "uint256"},
				{Name: "takerAmount", Type: "uint256"},
				{Name: "expiration", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "feeRateBps", Type: "uint256"},
				{Name: "side", Type: "uint8"},
				{Name: "signatureType", Type: "uint8"},
			},
		},
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              "Polymarket CTF Exchange",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(s.chainID),
			VerifyingContract: s.exchange.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"salt":          order.Salt.String(),
			"maker":         order.Maker.Hex(),
			"signer":        order.Signer.Hex(),
			"taker":         order.Taker.Hex(),
			"tokenId":       order.TokenID.String(),
			"makerAmount":   order.MakerAmount.String(),
			"takerAmount":   order.TakerAmount.String(),
			"expiration":    order.Expiration.String(),
			"nonce":         order.Nonce.String(),
			"feeRateBps":    order.FeeRateBps.String(),
			"side":          fmt.Sprintf("%d", order.Side),
			"signatureType": fmt.Sprintf("%d", order.SignatureType),
		},
	}
}

// payload renders the POST /order body; owner is the API key
func (o *SignedOrder) payload(owner, orderType string) map[string]interface{} {
	side := "BUY"
	if o.Order.Side == SideSell {
		side = "SELL"
	}
	return map[string]interface{}{
		"order": map[string]interface{}{
			"salt":          o.Order.Salt.Int64(),
			"maker":         o.Order.Maker.Hex(),
			"signer":        o.Order.Signer.Hex(),
			"taker":         o.Order.Taker.Hex(),
			"tokenId":       o.Order.TokenID.String(),
			"makerAmount":   o.Order.MakerAmount.String(),
			"takerAmount":   o.Order.TakerAmount.String(),
			"expiration":    o.Order.Expiration.String(),
			"nonce":         o.Order.Nonce.String(),
			"feeRateBps":    o.Order.FeeRateBps.String(),
			"side":          side,
			"signatureType": int(o.Order.SignatureType),
			"signature":     o.Signature,
		},
		"owner":     owner,
		"orderType": orderType,
		"postOnly":  false,
	}
}
