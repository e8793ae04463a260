package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/brojonat/solsift/service/classify"
	"github.com/brojonat/solsift/service/price"
	"github.com/brojonat/solsift/service/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockFetcher implements Fetcher with canned data.
type mockFetcher struct {
	balance      float64
	history      []solana.SignatureInfo
	details      map[string]*solana.TransactionDetail
	historyCalls int
	detailCalls  int
}

func (m *mockFetcher) FetchHistory(ctx context.Context, address string) []solana.SignatureInfo {
	m.historyCalls++
	return m.history
}

func (m *mockFetcher) FetchDetail(ctx context.Context, signature string) (*solana.TransactionDetail, error) {
	m.detailCalls++
	d, ok := m.details[signature]
	if !ok {
		return nil, errors.New("detail unavailable")
	}
	return d, nil
}

func (m *mockFetcher) FetchBalance(ctx context.Context, address string) float64 {
	return m.balance
}

func newTestAnalyzer(fetcher *mockFetcher, rate float64) *Analyzer {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := New(fetcher, price.NewStatic(rate), classify.NewMarkerClassifier(), nil, logger)
	a.now = func() time.Time { return time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC) }
	return a
}

func sig(s string, blockTime int64) solana.SignatureInfo {
	return solana.SignatureInfo{Signature: s, BlockTime: blockTime, Err: json.RawMessage(`null`)}
}

func failedSig(s string, blockTime int64) solana.SignatureInfo {
	return solana.SignatureInfo{Signature: s, BlockTime: blockTime, Err: json.RawMessage(`{"InstructionError":[0,1]}`)}
}

func detail(signature string, blockTime int64, raw map[string]any) *solana.TransactionDetail {
	return &solana.TransactionDetail{Signature: signature, BlockTime: blockTime, Raw: raw}
}

// janFirst is 2024-01-01 00:00:00 UTC, inside the pinned "now" window.
const janFirst = int64(1704067200)

func TestAnalyze_CapitalGateExcludesBeforeHistoryFetch(t *testing.T) {
	// 5 SOL at a rate of 20 values the wallet at 100 USD, below the
	// 150 USD minimum: excluded before any history fetch.
	fetcher := &mockFetcher{balance: 5}
	a := newTestAnalyzer(fetcher, 20)

	verdict := a.Analyze(context.Background(), "WalletA", Params{MinWalletCapital: 150})

	assert.Nil(t, verdict)
	assert.Zero(t, fetcher.historyCalls)
}

func TestAnalyze_OracleUnavailableExcludes(t *testing.T) {
	fetcher := &mockFetcher{balance: 100}
	a := newTestAnalyzer(fetcher, 0)

	verdict := a.Analyze(context.Background(), "WalletA", Params{})

	assert.Nil(t, verdict)
	assert.Zero(t, fetcher.historyCalls)
}

func TestAnalyze_EmptyHistoryYieldsZeroVerdict(t *testing.T) {
	fetcher := &mockFetcher{balance: 100}
	a := newTestAnalyzer(fetcher, 20)

	params := Params{MinWalletCapital: 150, MinWinRate: 50, MinTotalPNL: 100}
	verdict := a.Analyze(context.Background(), "WalletA", params)

	// "No activity" is a distinct terminal state, not an exclusion, and
	// short-circuits the threshold gates.
	require.NotNil(t, verdict)
	assert.Equal(t, "WalletA", verdict.Address)
	assert.Zero(t, verdict.TotalPNL)
	assert.Zero(t, verdict.RealizedPNL)
	assert.Zero(t, verdict.UnrealizedPNL)
	assert.Zero(t, verdict.WinRate)
	assert.Empty(t, verdict.BuySellDates)
}

func TestAnalyze_PNLAccounting(t *testing.T) {
	fetcher := &mockFetcher{
		balance: 100,
		history: []solana.SignatureInfo{
			sig("buy1", janFirst),
			sig("sell1", janFirst+5400),
		},
		details: map[string]*solana.TransactionDetail{
			"buy1": detail("buy1", janFirst, map[string]any{
				"buy_condition": true,
				"amount":        2.0,
				"token_id":      "MintA",
			}),
			"sell1": detail("sell1", janFirst+5400, map[string]any{
				"sell_condition": true,
				"amount":         3.0,
				"token_id":       "MintA",
			}),
		},
	}
	a := newTestAnalyzer(fetcher, 10)

	verdict := a.Analyze(context.Background(), "WalletA", Params{})
	require.NotNil(t, verdict)

	// Buy of 2 SOL at rate 10 reduces unrealized by 20; sell of 3 SOL
	// realizes 30.
	assert.Equal(t, -20.0, verdict.UnrealizedPNL)
	assert.Equal(t, 30.0, verdict.RealizedPNL)
	assert.Equal(t, verdict.RealizedPNL+verdict.UnrealizedPNL, verdict.TotalPNL)

	// One of two counted trades was profitable.
	assert.Equal(t, 50.0, verdict.WinRate)

	require.Len(t, verdict.BuySellDates, 2)
	assert.Equal(t, "buy", verdict.BuySellDates[0].Kind)
	assert.Equal(t, "sell", verdict.BuySellDates[1].Kind)
	assert.Equal(t, "2024-01-01 00:00:00", verdict.BuySellDates[0].Datetime)
}

func TestAnalyze_SkipsFailedAndUnfetchableTransactions(t *testing.T) {
	fetcher := &mockFetcher{
		balance: 100,
		history: []solana.SignatureInfo{
			failedSig("bad1", janFirst),
			sig("missing1", janFirst), // no detail available
			sig("sell1", janFirst),
		},
		details: map[string]*solana.TransactionDetail{
			"sell1": detail("sell1", janFirst, map[string]any{
				"sell_condition": true,
				"amount":         1.0,
				"token_id":       "MintA",
			}),
		},
	}
	a := newTestAnalyzer(fetcher, 10)

	verdict := a.Analyze(context.Background(), "WalletA", Params{})
	require.NotNil(t, verdict)

	// Only the sell was considered: skips continue the loop, never abort.
	assert.Equal(t, 100.0, verdict.WinRate)
	assert.Equal(t, 10.0, verdict.RealizedPNL)

	// The error-flagged transaction never triggers a detail fetch.
	assert.Equal(t, 2, fetcher.detailCalls)
}

func TestAnalyze_TimeframeWindowFiltersOldTransactions(t *testing.T) {
	old := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC).Unix()

	fetcher := &mockFetcher{
		balance: 100,
		history: []solana.SignatureInfo{
			sig("old1", old),
			sig("recent1", janFirst),
		},
		details: map[string]*solana.TransactionDetail{
			"old1": detail("old1", old, map[string]any{
				"sell_condition": true,
				"amount":         100.0,
			}),
			"recent1": detail("recent1", janFirst, map[string]any{
				"sell_condition": true,
				"amount":         1.0,
			}),
		},
	}
	a := newTestAnalyzer(fetcher, 10)

	// "1" bounds the window to 30 days before the pinned now (2024-02-01),
	// so only the January transaction counts.
	verdict := a.Analyze(context.Background(), "WalletA", Params{Timeframe: "1"})
	require.NotNil(t, verdict)
	assert.Equal(t, 10.0, verdict.RealizedPNL)
}

func TestAnalyze_OtherTransactionsCountTowardTotalTrades(t *testing.T) {
	fetcher := &mockFetcher{
		balance: 100,
		history: []solana.SignatureInfo{
			sig("sell1", janFirst),
			sig("vote1", janFirst),
		},
		details: map[string]*solana.TransactionDetail{
			"sell1": detail("sell1", janFirst, map[string]any{
				"sell_condition": true,
				"amount":         1.0,
			}),
			"vote1": detail("vote1", janFirst, map[string]any{
				"vote": true,
			}),
		},
	}
	a := newTestAnalyzer(fetcher, 10)

	verdict := a.Analyze(context.Background(), "WalletA", Params{})
	require.NotNil(t, verdict)

	// One profitable sell out of two considered transactions.
	assert.Equal(t, 50.0, verdict.WinRate)
}

func TestAnalyze_TransferClosesOpenPosition(t *testing.T) {
	fetcher := &mockFetcher{
		balance: 100,
		history: []solana.SignatureInfo{
			sig("buy1", janFirst),
			sig("xfer1", janFirst+3600),
		},
		details: map[string]*solana.TransactionDetail{
			"buy1": detail("buy1", janFirst, map[string]any{
				"buy_condition": true,
				"amount":        2.0,
				"token_id":      "MintA",
			}),
			"xfer1": detail("xfer1", janFirst+3600, map[string]any{
				"transfer_condition": true,
				"amount":             2.0,
				"token_id":           "MintA",
			}),
		},
	}
	a := newTestAnalyzer(fetcher, 10)

	verdict := a.Analyze(context.Background(), "WalletA", Params{})
	require.NotNil(t, verdict)

	// The transfer-out realizes the open position like a sell.
	assert.Equal(t, 20.0, verdict.RealizedPNL)
	assert.Equal(t, -20.0, verdict.UnrealizedPNL)
	require.Len(t, verdict.BuySellDates, 2)
	assert.Equal(t, "sell", verdict.BuySellDates[1].Kind)
}

func TestAnalyze_WinRateGate(t *testing.T) {
	fetcher := &mockFetcher{
		balance: 100,
		history: []solana.SignatureInfo{sig("vote1", janFirst)},
		details: map[string]*solana.TransactionDetail{
			"vote1": detail("vote1", janFirst, map[string]any{"vote": true}),
		},
	}
	a := newTestAnalyzer(fetcher, 10)

	verdict := a.Analyze(context.Background(), "WalletA", Params{MinWinRate: 50})
	assert.Nil(t, verdict)
}

func TestAnalyze_TotalPNLGate(t *testing.T) {
	fetcher := &mockFetcher{
		balance: 100,
		history: []solana.SignatureInfo{sig("buy1", janFirst)},
		details: map[string]*solana.TransactionDetail{
			"buy1": detail("buy1", janFirst, map[string]any{
				"buy_condition": true,
				"amount":        5.0,
				"token_id":      "MintA",
			}),
		},
	}
	a := newTestAnalyzer(fetcher, 10)

	// Total PNL is -50 (open buy), below the 0 minimum.
	verdict := a.Analyze(context.Background(), "WalletA", Params{MinTotalPNL: 0})
	assert.Nil(t, verdict)
}

func TestAnalyze_HoldingPeriodGate(t *testing.T) {
	fetcher := &mockFetcher{
		balance: 100,
		history: []solana.SignatureInfo{
			sig("buy1", janFirst),
			sig("sell1", janFirst+600), // held 10 minutes
		},
		details: map[string]*solana.TransactionDetail{
			"buy1": detail("buy1", janFirst, map[string]any{
				"buy_condition": true,
				"amount":        1.0,
				"token_id":      "MintA",
			}),
			"sell1": detail("sell1", janFirst+600, map[string]any{
				"sell_condition": true,
				"amount":         2.0,
				"token_id":       "MintA",
			}),
		},
	}
	a := newTestAnalyzer(fetcher, 10)

	verdict := a.Analyze(context.Background(), "WalletA", Params{MinAvgHoldingPeriodMin: 30})
	assert.Nil(t, verdict)
}

func TestAvgHoldingPeriod_NinetyMinutes(t *testing.T) {
	buy := newEvent("buy", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	sell := newEvent("sell", time.Date(2024, 1, 1, 1, 30, 0, 0, time.UTC))

	assert.Equal(t, 90.0, avgHoldingPeriodMinutes([]TradeEvent{buy, sell}))
}

func TestAvgHoldingPeriod_NoPairs(t *testing.T) {
	assert.Zero(t, avgHoldingPeriodMinutes(nil))

	lone := newEvent("buy", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Zero(t, avgHoldingPeriodMinutes([]TradeEvent{lone}))
}

func TestAvgHoldingPeriod_PositionalPairing(t *testing.T) {
	// Pairing is positional: 1st with 2nd, 3rd with 4th, regardless of
	// which asset each event belongs to.
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := []TradeEvent{
		newEvent("buy", t0),
		newEvent("sell", t0.Add(60*time.Minute)),
		newEvent("buy", t0.Add(120*time.Minute)),
		newEvent("sell", t0.Add(150*time.Minute)),
	}

	assert.Equal(t, 45.0, avgHoldingPeriodMinutes(events))
}

func TestWithinTimeframe(t *testing.T) {
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		timeframe string
		age       time.Duration
		want      bool
	}{
		{"one month inside", "1", 29 * 24 * time.Hour, true},
		{"one month outside", "1", 31 * 24 * time.Hour, false},
		{"three months inside", "3", 89 * 24 * time.Hour, true},
		{"three months outside", "3", 91 * 24 * time.Hour, false},
		{"six months outside", "6", 181 * 24 * time.Hour, false},
		{"twelve months inside", "12", 364 * 24 * time.Hour, true},
		{"unbounded code", "overall", 10 * 365 * 24 * time.Hour, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := now.Add(-tt.age).Unix()
			assert.Equal(t, tt.want, withinTimeframe(ts, tt.timeframe, now))
		})
	}
}

func TestAnalyze_TotalEqualsRealizedPlusUnrealized(t *testing.T) {
	fetcher := &mockFetcher{
		balance: 100,
		history: []solana.SignatureInfo{
			sig("buy1", janFirst),
			sig("buy2", janFirst+100),
			sig("sell1", janFirst+200),
		},
		details: map[string]*solana.TransactionDetail{
			"buy1": detail("buy1", janFirst, map[string]any{
				"buy_condition": true, "amount": 1.5, "token_id": "A",
			}),
			"buy2": detail("buy2", janFirst+100, map[string]any{
				"buy_condition": true, "amount": 0.5, "token_id": "B",
			}),
			"sell1": detail("sell1", janFirst+200, map[string]any{
				"sell_condition": true, "amount": 2.5, "token_id": "A",
			}),
		},
	}
	a := newTestAnalyzer(fetcher, 7)

	verdict := a.Analyze(context.Background(), "WalletA", Params{})
	require.NotNil(t, verdict)
	assert.InDelta(t, verdict.RealizedPNL+verdict.UnrealizedPNL, verdict.TotalPNL, 1e-9)
	assert.GreaterOrEqual(t, verdict.WinRate, 0.0)
	assert.LessOrEqual(t, verdict.WinRate, 100.0)
}
