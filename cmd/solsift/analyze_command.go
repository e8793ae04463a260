package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/brojonat/solsift/service/analyzer"
	"github.com/brojonat/solsift/service/classify"
	"github.com/brojonat/solsift/service/config"
	"github.com/brojonat/solsift/service/export"
	"github.com/brojonat/solsift/service/metrics"
	"github.com/brojonat/solsift/service/price"
	"github.com/brojonat/solsift/service/rpc"
	"github.com/brojonat/solsift/service/solana"
	"github.com/brojonat/solsift/service/stream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Analyze a batch of wallets and export admitted verdicts to CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "addresses",
				Aliases:  []string{"a"},
				Usage:    "Path to CSV file of wallet addresses (first column)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Path for the verdicts CSV",
				Value:   "filtered_wallets.csv",
			},
			&cli.StringFlag{
				Name:  "json-output",
				Usage: "Also write verdicts as JSON to this path",
			},
			&cli.StringFlag{
				Name:    "timeframe",
				Aliases: []string{"t"},
				Usage:   "Timeframe code: 1, 3, 6 or 12 (months); anything else means unbounded",
				Value:   "12",
			},
			&cli.Float64Flag{
				Name:  "min-capital",
				Usage: "Minimum wallet capital in USD",
				Value: 1000,
			},
			&cli.Float64Flag{
				Name:  "min-holding-period",
				Usage: "Minimum average holding period in minutes",
				Value: 0,
			},
			&cli.Float64Flag{
				Name:  "min-win-rate",
				Usage: "Minimum win rate in percent",
				Value: 0,
			},
			&cli.Float64Flag{
				Name:  "min-pnl",
				Usage: "Minimum total PNL in USD",
				Value: 0,
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Aliases: []string{"c"},
				Usage:   "Number of wallets analyzed concurrently (0 uses configured default)",
				EnvVars: []string{"SOLSIFT_CONCURRENCY"},
			},
			&cli.Float64Flag{
				Name:  "sol-price",
				Usage: "Fixed SOL/USD rate; overrides the CoinGecko oracle",
			},
			&cli.StringFlag{
				Name:  "buy-filter",
				Usage: "jq predicate evaluated against raw transaction JSON to classify buys",
			},
			&cli.StringFlag{
				Name:  "sell-filter",
				Usage: "jq predicate evaluated against raw transaction JSON to classify sells",
			},
			&cli.StringFlag{
				Name:  "transfer-filter",
				Usage: "jq predicate evaluated against raw transaction JSON to classify transfers",
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Listen address for the Prometheus metrics endpoint (empty disables)",
				EnvVars: []string{"SOLSIFT_METRICS_ADDR"},
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL for publishing admitted verdicts (empty disables)",
				EnvVars: []string{"NATS_URL"},
			},
		},
		Action: runAnalyze,
	}
}

func runAnalyze(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := setupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	if addr := c.String("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			logger.Info("metrics endpoint listening", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	rpcClient := rpc.NewClient(cfg.RPCURL(), m, logger)
	fetcher := solana.NewFetcher(rpcClient, endpointLabel(cfg.RPCURL()), cfg.HistoryPageSize, cfg.TokenProgramID, m, logger)

	var oracle price.Oracle
	if rate := c.Float64("sol-price"); rate > 0 {
		oracle = price.NewStatic(rate)
	} else {
		oracle = price.NewCoinGecko(cfg.CoinGeckoURL, m, logger)
	}

	var classifier classify.Classifier
	if c.IsSet("buy-filter") || c.IsSet("sell-filter") || c.IsSet("transfer-filter") {
		classifier, err = classify.NewJQClassifier(
			c.String("buy-filter"),
			c.String("sell-filter"),
			c.String("transfer-filter"),
		)
		if err != nil {
			return fmt.Errorf("invalid classification filter: %w", err)
		}
	} else {
		classifier = classify.NewMarkerClassifier()
	}

	var publisher stream.Publisher
	natsURL := c.String("nats-url")
	if natsURL == "" {
		natsURL = cfg.NATSURL
	}
	if natsURL != "" {
		p, err := stream.NewPublisher(natsURL, m, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer p.Close()
		publisher = p
	}

	concurrency := c.Int("concurrency")
	if concurrency <= 0 {
		concurrency = cfg.MaxConcurrency
	}

	a := analyzer.New(fetcher, oracle, classifier, m, logger)
	runner := analyzer.NewRunner(a, concurrency, cfg.WalletTimeout, publisher, logger)

	addresses, err := export.LoadAddresses(c.String("addresses"), logger)
	if err != nil {
		return fmt.Errorf("failed to load addresses: %w", err)
	}
	if len(addresses) == 0 {
		logger.Warn("no addresses to analyze", "path", c.String("addresses"))
		return nil
	}

	params := analyzer.Params{
		Timeframe:              c.String("timeframe"),
		MinWalletCapital:       c.Float64("min-capital"),
		MinAvgHoldingPeriodMin: c.Float64("min-holding-period"),
		MinWinRate:             c.Float64("min-win-rate"),
		MinTotalPNL:            c.Float64("min-pnl"),
	}

	logger.Info("starting batch analysis",
		"wallets", len(addresses),
		"concurrency", concurrency,
		"timeframe", params.Timeframe)
	started := time.Now()

	verdicts := runner.Run(ctx, addresses, params)

	if err := ctx.Err(); err == context.Canceled {
		logger.Warn("analysis interrupted, writing partial results")
	}

	output := c.String("output")
	if err := export.WriteVerdicts(output, verdicts); err != nil {
		return fmt.Errorf("failed to write verdicts: %w", err)
	}
	if jsonPath := c.String("json-output"); jsonPath != "" {
		if err := export.WriteJSON(jsonPath, verdicts); err != nil {
			return fmt.Errorf("failed to write JSON verdicts: %w", err)
		}
	}

	logger.Info("batch analysis complete",
		"analyzed", len(addresses),
		"admitted", len(verdicts),
		"output", output,
		"duration", time.Since(started))

	fmt.Printf("Analyzed %d wallets, %d admitted. Results written to %s\n",
		len(addresses), len(verdicts), output)
	return nil
}
