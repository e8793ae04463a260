package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brojonat/solsift/service/solana"
	"github.com/joho/godotenv"
)

// DefaultTokenProgramID is the SPL Token program, used for
// getTokenAccountsByOwner lookups.
var DefaultTokenProgramID = solana.TokenProgramID.String()

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Logging
	LogLevel string

	// Solana RPC configuration. When UseHelius is set, HeliusRPCURL is the
	// active endpoint; otherwise SolanaRPCURL is used.
	SolanaRPCURL   string
	HeliusRPCURL   string
	UseHelius      bool
	TokenProgramID string

	// Price oracle configuration
	CoinGeckoURL string

	// History pagination
	HistoryPageSize int

	// Analysis configuration
	MaxConcurrency int
	WalletTimeout  time.Duration

	// Optional NATS verdict streaming (empty disables publishing)
	NATSURL string
}

// Load reads configuration from environment variables and validates all
// required fields. A .env file in the working directory is honored when
// present. Returns an error if any required configuration is missing or
// invalid.
func Load() (*Config, error) {
	// Ignore the error: a missing .env file is fine, real env wins anyway.
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []error

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.SolanaRPCURL = getEnvOrDefault("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	cfg.HeliusRPCURL = os.Getenv("HELIUS_RPC_URL")

	useHelius, err := parseBool("USE_HELIUS", false)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.UseHelius = useHelius
	}
	if cfg.UseHelius && cfg.HeliusRPCURL == "" {
		errs = append(errs, fmt.Errorf("HELIUS_RPC_URL is required when USE_HELIUS is set"))
	}

	cfg.TokenProgramID = getEnvOrDefault("TOKEN_PROGRAM_ID", DefaultTokenProgramID)
	cfg.CoinGeckoURL = getEnvOrDefault("COINGECKO_URL", "https://api.coingecko.com/api/v3")

	pageSize, err := parseInt("HISTORY_PAGE_SIZE", 1000)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.HistoryPageSize = pageSize
	}

	concurrency, err := parseInt("MAX_CONCURRENCY", 10)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MaxConcurrency = concurrency
	}

	walletTimeout, err := parseDuration("WALLET_TIMEOUT", "10m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.WalletTimeout = walletTimeout
	}

	cfg.NATSURL = os.Getenv("NATS_URL")

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for CLI initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.SolanaRPCURL == "" {
		errs = append(errs, fmt.Errorf("SolanaRPCURL is required"))
	}

	if c.UseHelius && c.HeliusRPCURL == "" {
		errs = append(errs, fmt.Errorf("HeliusRPCURL is required when UseHelius is set"))
	}

	if c.TokenProgramID == "" {
		errs = append(errs, fmt.Errorf("TokenProgramID is required"))
	}

	if c.HistoryPageSize <= 0 {
		errs = append(errs, fmt.Errorf("HistoryPageSize must be positive"))
	}

	if c.MaxConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("MaxConcurrency must be positive"))
	}

	if c.WalletTimeout < time.Second {
		errs = append(errs, fmt.Errorf("WalletTimeout must be at least 1 second"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// RPCURL returns the active RPC endpoint based on the Helius toggle.
func (c *Config) RPCURL() string {
	if c.UseHelius {
		return c.HeliusRPCURL
	}
	return c.SolanaRPCURL
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// parseBool parses a boolean from an environment variable or uses a default.
func parseBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, value, err)
	}
	return result, nil
}
