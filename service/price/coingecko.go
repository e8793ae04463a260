package price

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/solsift/service/metrics"
)

// CoinGecko fetches the SOL/USD spot rate from the CoinGecko simple price
// API. Any failure (transport, status, decode) degrades to a zero rate
// with a warning; price lookups never abort an analysis.
type CoinGecko struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewCoinGecko creates a CoinGecko oracle. baseURL is the API root
// (e.g. https://api.coingecko.com/api/v3). If m is nil, no metrics are
// recorded.
func NewCoinGecko(baseURL string, m *metrics.Metrics, logger *slog.Logger) *CoinGecko {
	return &CoinGecko{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger:  logger,
		metrics: m,
	}
}

// SolPriceUSD returns the current SOL/USD rate, or 0 when unavailable.
func (c *CoinGecko) SolPriceUSD(ctx context.Context) float64 {
	url := fmt.Sprintf("%s/simple/price?ids=solana&vs_currencies=usd", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return c.unavailable(ctx, fmt.Errorf("build request: %w", err))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.unavailable(ctx, fmt.Errorf("coingecko fetch: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.unavailable(ctx, fmt.Errorf("coingecko returned status %d", resp.StatusCode))
	}

	var data struct {
		Solana struct {
			USD float64 `json:"usd"`
		} `json:"solana"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return c.unavailable(ctx, fmt.Errorf("decode: %w", err))
	}

	if data.Solana.USD <= 0 {
		return c.unavailable(ctx, fmt.Errorf("invalid price: %f", data.Solana.USD))
	}

	if c.metrics != nil {
		c.metrics.RecordPriceFetch("success")
	}
	return data.Solana.USD
}

func (c *CoinGecko) unavailable(ctx context.Context, err error) float64 {
	c.logger.WarnContext(ctx, "sol price unavailable", "error", err)
	if c.metrics != nil {
		c.metrics.RecordPriceFetch("error")
	}
	return 0
}
