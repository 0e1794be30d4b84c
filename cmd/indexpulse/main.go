package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "IndexPulse"
	version = "v0.1.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "indexpulse",
		Short:   "Real-time market intelligence for Indian index derivatives",
		Version: version,
		Long: `IndexPulse streams NIFTY, BANKNIFTY and SENSEX tick data, aggregates it into
multi-timeframe candles, derives a fourteen-signal technical outlook, and
combines it with market-wide breadth/PCR/volatility context into a trading
decision surfaced over REST and a WebSocket feed.`,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the full ingest-to-gateway pipeline",
		Long:  "Boots the Ingest Supervisor, Candle Builder, Indicator Pool, Signal Engine, Decision Engine, Fan-out Hub and REST/WS gateway.",
		RunE:  runServe,
	}
	serveCmd.Flags().String("holidays", "", "Path to the exchange holiday YAML file (optional)")

	selftestCmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run offline resilience self-test (no network)",
		Long:  "Replays a fixed tick fixture through the full pipeline and validates invariants: prior-day pivot readiness, signal count, outlook partition, decision confidence bounds, and auth-failure recovery.",
		RunE:  runSelfTest,
	}

	diagCmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "Operate a running instance over its diagnostics API",
	}
	forceReconnectCmd := &cobra.Command{
		Use:   "force-reconnect",
		Short: "Force the running instance to invalidate its cache and reconnect Ingest",
		RunE:  runForceReconnect,
	}
	forceReconnectCmd.Flags().String("addr", "http://127.0.0.1:8080", "Base URL of the running instance")
	forceReconnectCmd.Flags().String("token", "", "Bearer token for the diagnostics API")
	diagCmd.AddCommand(forceReconnectCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(selftestCmd)
	rootCmd.AddCommand(diagCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}
