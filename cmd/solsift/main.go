package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "solsift",
		Usage: "Solana wallet PNL analysis CLI",
		Description: `Analyzes Solana wallet activity: fetches transaction history over
JSON-RPC, classifies buys and sells, computes realized/unrealized PNL and
win rate per wallet, filters wallets against configurable thresholds, and
exports admitted wallets to CSV.

Process-wide configuration (RPC endpoints, token program id, oracle URL)
is read from the environment or a .env file; analysis thresholds are
per-run flags on the analyze command.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			analyzeCommand(),
			balanceCommand(),
			tokensCommand(),
			priceCommand(),
			versionCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(c *cli.Context) error {
			fmt.Printf("solsift %s\n", version)
			fmt.Printf("  commit: %s\n", commit)
			fmt.Printf("  built:  %s\n", date)
			return nil
		},
	}
}

// setupLogger configures structured logging at the requested level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// endpointLabel extracts a short identifier from the RPC URL for metrics
// labeling, e.g. "https://api.mainnet-beta.solana.com" -> "mainnet" and
// "https://mainnet.helius-rpc.com/?api-key=..." -> "helius".
func endpointLabel(rpcURL string) string {
	parsed, err := url.Parse(rpcURL)
	if err != nil {
		return "unknown"
	}

	host := parsed.Hostname()

	switch {
	case strings.Contains(host, "helius"):
		return "helius"
	case strings.Contains(host, "quiknode"), strings.Contains(host, "quicknode"):
		return "quiknode"
	case strings.Contains(host, "alchemy"):
		return "alchemy"
	case strings.Contains(host, "mainnet"):
		return "mainnet"
	case strings.Contains(host, "devnet"):
		return "devnet"
	case strings.Contains(host, "testnet"):
		return "testnet"
	}

	if host == "" {
		return "unknown"
	}
	return host
}
