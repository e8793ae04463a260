package main

import (
	"fmt"

	"github.com/brojonat/solsift/service/config"
	"github.com/brojonat/solsift/service/metrics"
	"github.com/brojonat/solsift/service/price"
	"github.com/brojonat/solsift/service/rpc"
	"github.com/brojonat/solsift/service/solana"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/urfave/cli/v2"
)

func balanceCommand() *cli.Command {
	return &cli.Command{
		Name:      "balance",
		Usage:     "Show the SOL balance of a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			address := c.Args().First()
			if address == "" {
				return fmt.Errorf("wallet address is required")
			}
			if _, err := solanago.PublicKeyFromBase58(address); err != nil {
				return fmt.Errorf("invalid wallet address %q: %w", address, err)
			}

			cfg := config.MustLoad()
			logger := setupLogger(cfg.LogLevel)

			m := metrics.NewMetrics(nil)
			client := rpc.NewClient(cfg.RPCURL(), m, logger)
			fetcher := solana.NewFetcher(client, endpointLabel(cfg.RPCURL()), cfg.HistoryPageSize, cfg.TokenProgramID, m, logger)
			oracle := price.NewCoinGecko(cfg.CoinGeckoURL, m, logger)

			balance := fetcher.FetchBalance(c.Context, address)
			usd := price.ConvertToUSD(c.Context, oracle, balance)
			fmt.Println(formatBalance(address, balance, usd))
			return nil
		},
	}
}

func tokensCommand() *cli.Command {
	return &cli.Command{
		Name:      "tokens",
		Usage:     "List the SPL token accounts owned by a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			address := c.Args().First()
			if address == "" {
				return fmt.Errorf("wallet address is required")
			}
			if _, err := solanago.PublicKeyFromBase58(address); err != nil {
				return fmt.Errorf("invalid wallet address %q: %w", address, err)
			}

			fetcher := newFetcher()

			accounts, err := fetcher.FetchTokenAccounts(c.Context, address)
			if err != nil {
				return fmt.Errorf("failed to fetch token accounts: %w", err)
			}
			if len(accounts) == 0 {
				fmt.Println("No token accounts found.")
				return nil
			}
			for _, account := range accounts {
				fmt.Println(formatTokenAccount(account))
			}
			return nil
		},
	}
}

func priceCommand() *cli.Command {
	return &cli.Command{
		Name:  "price",
		Usage: "Show the current SOL/USD rate from the configured oracle",
		Action: func(c *cli.Context) error {
			cfg := config.MustLoad()
			logger := setupLogger(cfg.LogLevel)

			oracle := price.NewCoinGecko(cfg.CoinGeckoURL, nil, logger)
			rate := oracle.SolPriceUSD(c.Context)
			if rate <= 0 {
				return fmt.Errorf("SOL price unavailable")
			}
			fmt.Printf("SOL/USD: %.4f\n", rate)
			return nil
		},
	}
}

// formatBalance renders a wallet balance line, appending the USD value
// when the oracle produced one.
func formatBalance(address string, balanceSol, balanceUSD float64) string {
	line := fmt.Sprintf("%s: %.9f SOL", address, balanceSol)
	if balanceUSD > 0 {
		line += fmt.Sprintf(" (~%.2f USD)", balanceUSD)
	}
	return line
}

// formatTokenAccount renders one token account row for display.
func formatTokenAccount(account solana.TokenAccount) string {
	return fmt.Sprintf("%s\tmint=%s\tamount=%g\tdecimals=%d",
		account.Pubkey, account.Mint, account.Amount, account.Decimals)
}

// newFetcher builds the standard RPC client and fetcher from environment
// configuration. One-shot inspection commands share a default registry.
func newFetcher() *solana.Fetcher {
	cfg := config.MustLoad()
	logger := setupLogger(cfg.LogLevel)

	m := metrics.NewMetrics(nil)
	client := rpc.NewClient(cfg.RPCURL(), m, logger)
	return solana.NewFetcher(client, endpointLabel(cfg.RPCURL()), cfg.HistoryPageSize, cfg.TokenProgramID, m, logger)
}
