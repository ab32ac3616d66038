package exec

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// POLYMARKET EXECUTION CLIENT
// ═══════════════════════════════════════════════════════════════════════════════
//
// Places signed limit orders on the CLOB and reads the collateral balance.
// Orders are only sent after a local fill, so a rejection here never
// changes trading state.
//
// ═══════════════════════════════════════════════════════════════════════════════

const PolymarketCLOB = "https://clob.polymarket.com"

// ErrNotConfigured means live credentials are missing
var ErrNotConfigured = errors.New("live trading credentials not configured")

// Credentials for L2 auth and order signing
type Credentials struct {
	APIKey        string
	APISecret     string
	Passphrase    string
	PrivateKey    string
	FunderAddress string
	SignatureType int
}

// OrderRequest is a limit order to place
type OrderRequest struct {
	TokenID   string
	Side      int // SideBuy or SideSell
	Price     decimal.Decimal
	Size      decimal.Decimal
	OrderType string // GTC by default
}

// OrderAck is the exchange's synchronous answer
type OrderAck struct {
	OrderID string `json:"orderID"`
	Status  string `json:"status"`
	Success bool   `json:"success"`
	Error   string `json:"errorMsg"`
}

// Client talks to the CLOB with L2 auth headers
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	passphrase string
	signer     *OrderSigner
	httpClient *http.Client
	now        func() time.Time
}

// NewClient creates a live execution client. Missing credentials return
// ErrNotConfigured.
func NewClient(baseURL string, creds Credentials) (*Client, error) {
	if creds.PrivateKey == "" || creds.APIKey == "" || creds.APISecret == "" || creds.Passphrase == "" {
		return nil, ErrNotConfigured
	}
	if baseURL == "" {
		baseURL = PolymarketCLOB
	}

	pk, err := crypto.HexToECDSA(strings.TrimPrefix(creds.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	var funder common.Address
	if creds.FunderAddress != "" {
		if !common.IsHexAddress(creds.FunderAddress) {
			return nil, fmt.Errorf("invalid funder address %q", creds.FunderAddress)
		}
		funder = common.HexToAddress(creds.FunderAddress)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     creds.APIKey,
		apiSecret:  creds.APISecret,
		passphrase: creds.Passphrase,
		signer:     NewOrderSigner(pk, funder, creds.SignatureType),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}

	log.Info().
		Str("signer", c.signer.Address().Hex()).
		Str("funder", c.signer.funder.Hex()).
		Int("sig_type", creds.SignatureType).
		Msg("🚀 Execution client initialized")

	return c, nil
}

// Address returns the signing address
func (c *Client) Address() string {
	return c.signer.Address().Hex()
}

// PlaceOrder signs and posts a limit order
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	order, err := c.signer.BuildOrder(req.TokenID, req.Side, req.Price, req.Size)
	if err != nil {
		return OrderAck{}, fmt.Errorf("build order: %w", err)
	}
	signed, err := c.signer.Sign(order)
	if err != nil {
		return OrderAck{}, fmt.Errorf("sign order: %w", err)
	}

	orderType := req.OrderType
	if orderType == "" {
		orderType = "GTC"
	}
	body, err := json.Marshal(signed.payload(c.apiKey, orderType))
	if err != nil {
		return OrderAck{}, fmt.Errorf("marshal order: %w", err)
	}

	respBody, status, err := c.do(ctx, http.MethodPost, "/order", "", body)
	if err != nil {
		return OrderAck{}, err
	}

	var ack OrderAck
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return OrderAck{}, fmt.Errorf("parse order response: %w, body: %s", err, string(respBody))
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return ack, fmt.Errorf("order rejected (%d): %s", status, ack.Error)
	}
	if ack.Error != "" && !ack.Success {
		return ack, fmt.Errorf("order rejected: %s", ack.Error)
	}

	log.Info().
		Str("order_id", ack.OrderID).
		Str("status", ack.Status).
		Msg("✅ Order submitted")
	return ack, nil
}

// Balance returns the USDC collateral balance
func (c *Client) Balance(ctx context.Context) (decimal.Decimal, error) {
	query := fmt.Sprintf("asset_type=COLLATERAL&signature_type=%d", c.signer.signatureType)
	body, status, err := c.do(ctx, http.MethodGet, "/balance-allowance", query, nil)
	if err != nil {
		return decimal.Zero, err
	}
	if status != http.StatusOK {
		return decimal.Zero, fmt.Errorf("balance error %d: %s", status, string(body))
	}

	var result struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Zero, fmt.Errorf("parse balance: %w", err)
	}
	raw, err := decimal.NewFromString(result.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid balance %q", result.Balance)
	}
	// 6 decimals
	return raw.Div(tokenUnits), nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// HTTP
// ═══════════════════════════════════════════════════════════════════════════════

func (c *Client) do(ctx context.Context, method, path, query string, body []byte) ([]byte, int, error) {
	endpoint := c.baseURL + path
	if query != "" {
		endpoint += "?" + query
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, 0, err
	}
	c.signL2(req, method, path, body)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	if resp.StatusCode >= 500 {
		return nil, resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, resp.StatusCode, nil
}

// signL2 sets the POLY_* headers: HMAC-SHA256 over timestamp+method+path+body
// keyed by the url-safe base64 secret
func (c *Client) signL2(req *http.Request, method, path string, body []byte) {
	timestamp := strconv.FormatInt(c.now().Unix(), 10)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("POLY_API_KEY", c.apiKey)
	req.Header.Set("POLY_SIGNATURE", l2Signature(c.apiSecret, timestamp+method+path+string(body)))
	req.Header.Set("POLY_TIMESTAMP", timestamp)
	req.Header.Set("POLY_PASSPHRASE", c.passphrase)
	req.Header.Set("POLY_ADDRESS", c.signer.Address().Hex())
}

func l2Signature(secret, message string) string {
	h := hmac.New(sha256.New, decodeSecret(secret))
	h.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(h.Sum(nil))
}

func decodeSecret(secret string) []byte {
	if b, err := base64.URLEncoding.DecodeString(secret); err == nil {
		return b
	}
	padded := secret
	if len(padded)%4 != 0 {
		padded += strings.Repeat("=", 4-len(padded)%4)
	}
	if b, err := base64.URLEncoding.DecodeString(padded); err == nil {
		return b
	}
	b, _ := base64.StdEncoding.DecodeString(secret)
	return b
}
