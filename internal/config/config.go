package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredentials means live trading was requested without keys
var ErrMissingCredentials = errors.New("live trading requires PRIVATE_KEY and CLOB API credentials")

// Config holds all configuration for the bot
type Config struct {
	// Mode
	LiveTrading bool
	Debug       bool
	LogFormat   string // console | json

	// Account & sizing
	StartBalance decimal.Decimal
	RiskPerTrade decimal.Decimal
	FeeRate      decimal.Decimal
	MinNotional  decimal.Decimal
	MinShares    int64
	SpreadCross  decimal.Decimal

	// Timing
	OrderbookPollInterval time.Duration
	MarketRefreshInterval time.Duration
	OrderTimeout          time.Duration
	FillPollInterval      time.Duration
	HuntWindowMinutes     int
	RotationLead          time.Duration
	SettleBuffer          time.Duration
	WatchdogTicks         int

	// Price stream
	PreloadBars    int
	ReconnectDelay time.Duration
	PriceOffsetUSD decimal.Decimal
	BinanceWSURL   string
	BinanceRESTURL string
	Symbol         string

	// Polymarket API
	GammaURL string
	CLOBURL  string
	TagID    string

	// CLOB Credentials
	CLOBApiKey     string
	CLOBApiSecret  string
	CLOBPassphrase string

	// Wallet
	PrivateKey    string
	FunderAddress string
	SignatureType int

	// Oracle
	ChainlinkRPCURL string
	ChainlinkFeed   string

	// Telegram
	TelegramToken  string
	TelegramChatID int64

	// Persistence & telemetry
	DatabasePath string
	StateDir     string
	MetricsAddr  string
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		LogFormat: "console",

		StartBalance: decimal.NewFromInt(100),
		RiskPerTrade: decimal.NewFromFloat(0.01),
		FeeRate:      decimal.NewFromFloat(0.01),
		MinNotional:  decimal.NewFromInt(1),
		MinShares:    5,
		SpreadCross:  decimal.NewFromFloat(0.02),

		OrderbookPollInterval: time.Second,
		MarketRefreshInterval: 30 * time.Second,
		OrderTimeout:          60 * time.Second,
		FillPollInterval:      time.Second,
		HuntWindowMinutes:     10,
		RotationLead:          5 * time.Second,
		SettleBuffer:          2 * time.Second,
		WatchdogTicks:         5,

		PreloadBars:    3000,
		ReconnectDelay: 5 * time.Second,
		PriceOffsetUSD: decimal.Zero,
		BinanceWSURL:   "wss://stream.binance.com:9443/ws",
		BinanceRESTURL: "https://api.binance.com",
		Symbol:         "BTCUSDT",

		GammaURL: "https://gamma-api.polymarket.com",
		CLOBURL:  "https://clob.polymarket.com",
		TagID:    "102467",

		ChainlinkFeed: "0xc907E116054Ad103354f2D350FD2514433D57F6f",

		DatabasePath: "data/updown.db",
		StateDir:     "logs",
	}
}

// Load reads .env, then the optional YAML file named by CONFIG_FILE,
// then environment variables. Later sources win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %q: %w", path, err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("config: parse %q: %w", path, err)
	}
	file.apply(c)
	return nil
}

func (c *Config) applyEnv() error {
	c.LiveTrading = getEnvBool("LIVE_TRADING", c.LiveTrading)
	c.Debug = getEnvBool("DEBUG", c.Debug)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	c.StartBalance = getEnvDecimal("DEMO_START_BALANCE", c.StartBalance)
	c.RiskPerTrade = getEnvDecimal("RISK_PER_TRADE", c.RiskPerTrade)
	c.FeeRate = getEnvDecimal("FEE_RATE", c.FeeRate)
	c.MinNotional = getEnvDecimal("MIN_NOTIONAL", c.MinNotional)
	c.MinShares = int64(getEnvInt("MIN_SHARES", int(c.MinShares)))
	c.SpreadCross = getEnvDecimal("SPREAD_CROSS_THRESHOLD", c.SpreadCross)

	c.OrderbookPollInterval = getEnvDuration("ORDERBOOK_POLL_INTERVAL", c.OrderbookPollInterval)
	c.MarketRefreshInterval = getEnvDuration("MARKET_REFRESH_INTERVAL", c.MarketRefreshInterval)
	c.OrderTimeout = getEnvDuration("ORDER_TIMEOUT", c.OrderTimeout)
	c.FillPollInterval = getEnvDuration("FILL_POLL_INTERVAL", c.FillPollInterval)
	c.HuntWindowMinutes = getEnvInt("HUNT_WINDOW_MINUTES", c.HuntWindowMinutes)
	c.RotationLead = getEnvDuration("ROTATION_LEAD", c.RotationLead)
	c.SettleBuffer = getEnvDuration("SETTLE_BUFFER", c.SettleBuffer)
	c.WatchdogTicks = getEnvInt("WATCHDOG_TICKS", c.WatchdogTicks)

	c.PreloadBars = getEnvInt("PRELOAD_BARS", c.PreloadBars)
	c.ReconnectDelay = getEnvDuration("RECONNECT_DELAY", c.ReconnectDelay)
	c.PriceOffsetUSD = getEnvDecimal("PRICE_OFFSET_USD", c.PriceOffsetUSD)
	c.BinanceWSURL = getEnv("BINANCE_WS_URL", c.BinanceWSURL)
	c.BinanceRESTURL = getEnv("BINANCE_REST_URL", c.BinanceRESTURL)
	c.Symbol = getEnv("SYMBOL", c.Symbol)

	c.GammaURL = getEnv("GAMMA_URL", c.GammaURL)
	c.CLOBURL = getEnv("CLOB_URL", c.CLOBURL)
	c.TagID = getEnv("MARKET_TAG_ID", c.TagID)

	c.CLOBApiKey = getEnv("CLOB_API_KEY", c.CLOBApiKey)
	c.CLOBApiSecret = getEnv("CLOB_API_SECRET", c.CLOBApiSecret)
	c.CLOBPassphrase = getEnv("CLOB_PASSPHRASE", c.CLOBPassphrase)

	c.PrivateKey = getEnv("PRIVATE_KEY", c.PrivateKey)
	c.FunderAddress = getEnv("FUNDER_ADDRESS", c.FunderAddress)
	c.SignatureType = getEnvInt("SIGNATURE_TYPE", c.SignatureType)

	c.ChainlinkRPCURL = getEnv("CHAINLINK_RPC_URL", c.ChainlinkRPCURL)
	c.ChainlinkFeed = getEnv("CHAINLINK_FEED", c.ChainlinkFeed)

	c.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.TelegramToken)
	if chatID := os.Getenv("TELEGRAM_CHAT_ID"); chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		c.TelegramChatID = id
	}

	c.DatabasePath = getEnv("DATABASE_PATH", c.DatabasePath)
	c.StateDir = getEnv("STATE_DIR", c.StateDir)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)

	return nil
}

// Validate checks the settings that would make trading unsafe.
// A missing-credentials error halts order entry, not the process.
func (c *Config) Validate() error {
	if c.RiskPerTrade.IsNegative() || c.RiskPerTrade.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("RISK_PER_TRADE must be within [0,1], got %s", c.RiskPerTrade)
	}
	if c.MinShares < 1 {
		return fmt.Errorf("MIN_SHARES must be positive, got %d", c.MinShares)
	}
	if c.OrderTimeout <= 0 || c.FillPollInterval <= 0 {
		return errors.New("ORDER_TIMEOUT and FILL_POLL_INTERVAL must be positive")
	}
	if c.LiveTrading && !c.HasLiveCredentials() {
		return ErrMissingCredentials
	}
	return nil
}

// HasLiveCredentials reports whether a signing key and L2 API keys are present
func (c *Config) HasLiveCredentials() bool {
	return c.PrivateKey != "" && c.CLOBApiKey != "" && c.CLOBApiSecret != "" && c.CLOBPassphrase != ""
}

// TelegramEnabled reports whether notifications can be delivered
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("1.5s") or bare seconds ("60")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		if secs, err := strconv.ParseFloat(value, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return defaultValue
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
