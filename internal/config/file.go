package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// fileConfig is the optional YAML layer. Zero values leave defaults alone.
type fileConfig struct {
	Trading struct {
		LiveTrading      bool    `yaml:"live_trading"`
		StartBalance     float64 `yaml:"start_balance"`
		RiskPerTrade     float64 `yaml:"risk_per_trade"`
		FeeRate          float64 `yaml:"fee_rate"`
		MinNotional      float64 `yaml:"min_notional"`
		MinShares        int64   `yaml:"min_shares"`
		SpreadCross      float64 `yaml:"spread_cross_threshold"`
		OrderTimeoutSecs float64 `yaml:"order_timeout_seconds"`
		HuntWindowMins   int     `yaml:"hunt_window_minutes"`
		PriceOffsetUSD   float64 `yaml:"price_offset_usd"`
	} `yaml:"trading"`

	Feeds struct {
		PollIntervalSecs    float64 `yaml:"orderbook_poll_seconds"`
		RefreshIntervalSecs float64 `yaml:"market_refresh_seconds"`
		WatchdogTicks       int     `yaml:"watchdog_ticks"`
		PreloadBars         int     `yaml:"preload_bars"`
		ReconnectDelaySecs  float64 `yaml:"reconnect_delay_seconds"`
		Symbol              string  `yaml:"symbol"`
	} `yaml:"feeds"`

	API struct {
		BinanceWS    string `yaml:"binance_ws"`
		BinanceREST  string `yaml:"binance_rest"`
		GammaBase    string `yaml:"gamma_base"`
		CLOBBase     string `yaml:"clob_base"`
		TagID        string `yaml:"tag_id"`
		ChainlinkRPC string `yaml:"chainlink_rpc"`
	} `yaml:"api"`

	Storage struct {
		DSN      string `yaml:"dsn"`
		StateDir string `yaml:"state_dir"`
	} `yaml:"storage"`

	Log struct {
		Debug  bool   `yaml:"debug"`
		Format string `yaml:"format"` // console | json
	} `yaml:"log"`

	MetricsAddr string `yaml:"metrics_addr"`
}

func (f *fileConfig) apply(c *Config) {
	c.LiveTrading = c.LiveTrading || f.Trading.LiveTrading
	setDecimal(&c.StartBalance, f.Trading.StartBalance)
	setDecimal(&c.RiskPerTrade, f.Trading.RiskPerTrade)
	setDecimal(&c.FeeRate, f.Trading.FeeRate)
	setDecimal(&c.MinNotional, f.Trading.MinNotional)
	setDecimal(&c.SpreadCross, f.Trading.SpreadCross)
	setDecimal(&c.PriceOffsetUSD, f.Trading.PriceOffsetUSD)
	if f.Trading.MinShares > 0 {
		c.MinShares = f.Trading.MinShares
	}
	setSeconds(&c.OrderTimeout, f.Trading.OrderTimeoutSecs)
	if f.Trading.HuntWindowMins > 0 {
		c.HuntWindowMinutes = f.Trading.HuntWindowMins
	}

	setSeconds(&c.OrderbookPollInterval, f.Feeds.PollIntervalSecs)
	setSeconds(&c.MarketRefreshInterval, f.Feeds.RefreshIntervalSecs)
	setSeconds(&c.ReconnectDelay, f.Feeds.ReconnectDelaySecs)
	if f.Feeds.WatchdogTicks > 0 {
		c.WatchdogTicks = f.Feeds.WatchdogTicks
	}
	if f.Feeds.PreloadBars > 0 {
		c.PreloadBars = f.Feeds.PreloadBars
	}
	setString(&c.Symbol, f.Feeds.Symbol)

	setString(&c.BinanceWSURL, f.API.BinanceWS)
	setString(&c.BinanceRESTURL, f.API.BinanceREST)
	setString(&c.GammaURL, f.API.GammaBase)
	setString(&c.CLOBURL, f.API.CLOBBase)
	setString(&c.TagID, f.API.TagID)
	setString(&c.ChainlinkRPCURL, f.API.ChainlinkRPC)

	setString(&c.DatabasePath, f.Storage.DSN)
	setString(&c.StateDir, f.Storage.StateDir)

	c.Debug = c.Debug || f.Log.Debug
	setString(&c.LogFormat, f.Log.Format)
	setString(&c.MetricsAddr, f.MetricsAddr)
}

func setDecimal(dst *decimal.Decimal, v float64) {
	if v > 0 {
		*dst = decimal.NewFromFloat(v)
	}
}

func setSeconds(dst *time.Duration, secs float64) {
	if secs > 0 {
		*dst = time.Duration(secs * float64(time.Second))
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
