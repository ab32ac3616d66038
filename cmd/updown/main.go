// Updown - 15-minute BTC Up/Down trading bot for Polymarket
//
// Strategy:
// 1. Stream 1m BTCUSDT bars from Binance
// 2. At each 15m boundary compute RSI(14) and EMA(50) trend on 15m bars
// 3. Oversold buys UP, overbought buys DOWN, otherwise sit the cycle out
// 4. Hunt a limit entry for the first minutes of the cycle
// 5. Settle against the price to beat when the window closes
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/updown/core"
	"github.com/web3guy0/updown/internal/config"
)

const version = "1.0.0"

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration (.env, CONFIG_FILE, environment)
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	if cfg.LogFormat == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := cfg.Validate(); err != nil {
		if !errors.Is(err, config.ErrMissingCredentials) {
			log.Fatal().Err(err).Msg("Invalid configuration")
		}
		log.Error().Err(err).Msg("⚠️ Live trading misconfigured, order entry will stay paused")
	}

	mode := "PAPER"
	if cfg.LiveTrading {
		mode = "LIVE"
	}
	log.Info().
		Str("version", version).
		Str("mode", mode).
		Str("symbol", cfg.Symbol).
		Str("risk", cfg.RiskPerTrade.String()).
		Msg("⚡ Updown 15m bot starting...")

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := core.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize bot")
	}

	if err := b.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Bot exited with error")
	}
}
