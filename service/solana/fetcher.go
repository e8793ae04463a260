package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/brojonat/solsift/service/metrics"
	"github.com/brojonat/solsift/service/rpc"
)

// Caller is the JSON-RPC surface the fetcher needs. Satisfied by
// *rpc.Client; mocked in tests.
type Caller interface {
	Call(ctx context.Context, method string, params ...any) (*rpc.Response, error)
}

// Fetcher retrieves wallet transaction history, transaction details, and
// balances from a Solana node. Every failure degrades to a partial or
// empty result; the fetcher never aborts a batch.
type Fetcher struct {
	client         Caller
	endpoint       string // endpoint identifier for metrics labels
	pageSize       int
	tokenProgramID string
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

// NewFetcher creates a transaction fetcher. The endpoint parameter is
// used for metrics labeling only. If m is nil, no metrics are recorded.
func NewFetcher(client Caller, endpoint string, pageSize int, tokenProgramID string, m *metrics.Metrics, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		client:         client,
		endpoint:       endpoint,
		pageSize:       pageSize,
		tokenProgramID: tokenProgramID,
		logger:         logger,
		metrics:        m,
	}
}

// FetchHistory pages through the full signature history of a wallet,
// newest first. Each page's "before" cursor is the last signature of the
// previous page; pagination stops on an empty or short page. A page
// failure halts pagination and returns whatever was accumulated so far.
// Partial history is a valid result, not an error.
func (f *Fetcher) FetchHistory(ctx context.Context, address string) []SignatureInfo {
	var all []SignatureInfo
	var before string

	for {
		opts := map[string]any{"limit": f.pageSize}
		if before != "" {
			opts["before"] = before
		}

		resp, err := f.client.Call(ctx, "getSignaturesForAddress", address, opts)
		if err != nil {
			f.logger.WarnContext(ctx, "history page fetch failed, returning partial history",
				"wallet", address,
				"fetched", len(all),
				"error", err,
			)
			break
		}

		var page []SignatureInfo
		if err := json.Unmarshal(resp.Result, &page); err != nil {
			f.logger.WarnContext(ctx, "history page decode failed, returning partial history",
				"wallet", address,
				"fetched", len(all),
				"error", err,
			)
			break
		}

		if len(page) == 0 {
			break
		}

		all = append(all, page...)
		before = page[len(page)-1].Signature

		if f.metrics != nil {
			f.metrics.RecordRPCSignaturesPerCall(f.endpoint, float64(len(page)))
		}

		if len(page) < f.pageSize {
			break
		}
	}

	f.logger.InfoContext(ctx, "fetched transaction history",
		"wallet", address,
		"count", len(all),
	)
	if f.metrics != nil {
		f.metrics.RecordTransactionsFetched(address, len(all))
	}

	return all
}

// FetchDetail resolves the full jsonParsed record for one signature.
// Any RPC failure or skip surfaces as an error the caller treats as
// "skip this transaction".
func (f *Fetcher) FetchDetail(ctx context.Context, signature string) (*TransactionDetail, error) {
	resp, err := f.client.Call(ctx, "getTransaction", signature, map[string]any{"encoding": "jsonParsed"})
	if err != nil {
		return nil, fmt.Errorf("fetch detail %s: %w", signature, err)
	}

	detail, err := parseDetail(signature, resp.Result)
	if err != nil {
		return nil, fmt.Errorf("parse detail %s: %w", signature, err)
	}
	if detail == nil {
		return nil, fmt.Errorf("fetch detail %s: %w", signature, rpc.ErrNoResult)
	}
	return detail, nil
}

// FetchBalance returns the wallet's native balance in SOL, converting
// the lamport integer with the fixed 1e9 divisor. Returns 0 on any
// failure.
func (f *Fetcher) FetchBalance(ctx context.Context, address string) float64 {
	resp, err := f.client.Call(ctx, "getBalance", address)
	if err != nil {
		f.logger.WarnContext(ctx, "balance fetch failed",
			"wallet", address,
			"error", err,
		)
		return 0
	}

	var result struct {
		Value uint64 `json:"value"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		f.logger.WarnContext(ctx, "balance decode failed",
			"wallet", address,
			"error", err,
		)
		return 0
	}

	return float64(result.Value) / LamportsPerSol
}

// FetchTokenAccounts lists the SPL token accounts owned by a wallet.
func (f *Fetcher) FetchTokenAccounts(ctx context.Context, owner string) ([]TokenAccount, error) {
	resp, err := f.client.Call(ctx, "getTokenAccountsByOwner",
		owner,
		map[string]any{"programId": f.tokenProgramID},
		map[string]any{"encoding": "jsonParsed"},
	)
	if err != nil {
		return nil, fmt.Errorf("fetch token accounts %s: %w", owner, err)
	}

	var result struct {
		Value []struct {
			Pubkey  string `json:"pubkey"`
			Account struct {
				Data struct {
					Parsed struct {
						Info struct {
							Mint        string `json:"mint"`
							TokenAmount struct {
								UIAmount float64 `json:"uiAmount"`
								Decimals int     `json:"decimals"`
							} `json:"tokenAmount"`
						} `json:"info"`
					} `json:"parsed"`
				} `json:"data"`
			} `json:"account"`
		} `json:"value"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("decode token accounts %s: %w", owner, err)
	}

	accounts := make([]TokenAccount, 0, len(result.Value))
	for _, v := range result.Value {
		accounts = append(accounts, TokenAccount{
			Pubkey:   v.Pubkey,
			Mint:     v.Account.Data.Parsed.Info.Mint,
			Amount:   v.Account.Data.Parsed.Info.TokenAmount.UIAmount,
			Decimals: v.Account.Data.Parsed.Info.TokenAmount.Decimals,
		})
	}

	f.logger.DebugContext(ctx, "fetched token accounts",
		"owner", owner,
		"count", len(accounts),
	)
	return accounts, nil
}

// parseDetail decodes a getTransaction result into a TransactionDetail.
// A null result (pruned or unknown transaction) yields nil.
func parseDetail(signature string, result json.RawMessage) (*TransactionDetail, error) {
	if len(result) == 0 || string(result) == "null" {
		return nil, nil
	}

	var raw map[string]any
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, err
	}

	detail := &TransactionDetail{
		Signature: signature,
		Raw:       raw,
	}

	if v, ok := raw["slot"].(float64); ok {
		detail.Slot = uint64(v)
	}
	if v, ok := raw["blockTime"].(float64); ok {
		detail.BlockTime = int64(v)
	}
	if meta, ok := raw["meta"].(map[string]any); ok {
		if fee, ok := meta["fee"].(float64); ok {
			detail.Fee = uint64(fee)
		}
	}

	return detail, nil
}
