// Package analyzer implements the per-wallet analysis pipeline: capital
// gating, history retrieval, transaction classification, PNL accumulation,
// and threshold-based admission.
package analyzer

import (
	"context"
	"log/slog"
	"time"

	"github.com/brojonat/solsift/service/classify"
	"github.com/brojonat/solsift/service/metrics"
	"github.com/brojonat/solsift/service/price"
	"github.com/brojonat/solsift/service/solana"
)

// eventTimeLayout is the wall-clock format recorded for buy/sell events.
const eventTimeLayout = "2006-01-02 15:04:05"

// Params are the run-scoped analysis thresholds. Timeframe is a window
// code: "1", "3", "6", "12" bound the analysis to 30/90/180/365 days;
// any other value is unbounded.
type Params struct {
	Timeframe              string  `json:"timeframe"`
	MinWalletCapital       float64 `json:"minimum_wallet_capital"`
	MinAvgHoldingPeriodMin float64 `json:"minimum_avg_holding_period"`
	MinWinRate             float64 `json:"minimum_win_rate"`
	MinTotalPNL            float64 `json:"minimum_total_pnl"`
}

// TradeEvent records one buy or sell with its wall-clock timestamp.
type TradeEvent struct {
	Kind     string    `json:"transaction"`
	Datetime string    `json:"datetime"`
	At       time.Time `json:"-"`
}

// Verdict is the terminal analysis output for one admitted wallet.
// TotalPNL always equals RealizedPNL plus UnrealizedPNL. Immutable once
// produced.
type Verdict struct {
	Address       string       `json:"address"`
	TotalPNL      float64      `json:"total_pnl"`
	RealizedPNL   float64      `json:"realized_pnl"`
	UnrealizedPNL float64      `json:"unrealized_pnl"`
	WinRate       float64      `json:"win_rate"`
	BuySellDates  []TradeEvent `json:"buy_sell_dates"`
	Settings      Params       `json:"settings"`
}

// positionEntry is an open buy awaiting realization, keyed by token id.
// Created on buy, consumed on matching sell or transfer-out, discarded
// with the wallet's analysis when never closed.
type positionEntry struct {
	price     float64
	amount    float64
	timestamp int64
}

// Fetcher is the transaction retrieval surface the analyzer needs.
// Satisfied by *solana.Fetcher; mocked in tests.
type Fetcher interface {
	FetchHistory(ctx context.Context, address string) []solana.SignatureInfo
	FetchDetail(ctx context.Context, signature string) (*solana.TransactionDetail, error)
	FetchBalance(ctx context.Context, address string) float64
}

// Analyzer runs the per-wallet pipeline. All state is per-call: the
// analyzer itself is safe for concurrent use across wallets.
type Analyzer struct {
	fetcher    Fetcher
	oracle     price.Oracle
	classifier classify.Classifier
	logger     *slog.Logger
	metrics    *metrics.Metrics

	// now is swapped out in tests to pin the timeframe window.
	now func() time.Time
}

// New creates a wallet analyzer. If m is nil, no metrics are recorded.
func New(fetcher Fetcher, oracle price.Oracle, classifier classify.Classifier, m *metrics.Metrics, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		fetcher:    fetcher,
		oracle:     oracle,
		classifier: classifier,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
	}
}

// Analyze runs the full pipeline for one wallet and returns its verdict,
// or nil when the wallet is excluded (capital, win rate, PNL, or holding
// period below threshold, or oracle unavailable). A wallet with no
// transaction history yields a zero-valued verdict, a deliberately
// distinct terminal state from exclusion. No failure mode aborts the
// batch: everything degrades to a skipped transaction or an excluded
// wallet.
func (a *Analyzer) Analyze(ctx context.Context, address string, params Params) *Verdict {
	start := time.Now()
	verdict, outcome := a.analyze(ctx, address, params)
	if a.metrics != nil {
		a.metrics.RecordWalletAnalyzed(outcome, time.Since(start).Seconds())
	}
	return verdict
}

func (a *Analyzer) analyze(ctx context.Context, address string, params Params) (*Verdict, string) {
	// Stage 1: capital gate. A zero rate means the oracle is down, which
	// excludes the wallet outright rather than valuing it at zero.
	rate := a.oracle.SolPriceUSD(ctx)
	if rate <= 0 {
		a.logger.WarnContext(ctx, "wallet excluded, price oracle unavailable", "wallet", address)
		return nil, "excluded"
	}

	balance := a.fetcher.FetchBalance(ctx, address)
	capitalUSD := balance * rate
	a.logger.InfoContext(ctx, "wallet capital",
		"wallet", address,
		"balance_sol", balance,
		"capital_usd", capitalUSD,
	)
	if capitalUSD < params.MinWalletCapital {
		a.logger.InfoContext(ctx, "wallet excluded, insufficient capital",
			"wallet", address,
			"capital_usd", capitalUSD,
			"minimum", params.MinWalletCapital,
		)
		return nil, "excluded"
	}

	// Stage 2: history retrieval. No activity is a valid zero verdict,
	// not an exclusion.
	history := a.fetcher.FetchHistory(ctx, address)
	if len(history) == 0 {
		a.logger.InfoContext(ctx, "no transactions found", "wallet", address)
		return &Verdict{Address: address, Settings: params}, "no_activity"
	}

	// Stage 3: per-transaction accumulation, in fetched order. The
	// position map lives only for this wallet's analysis.
	var (
		realizedPNL      float64
		unrealizedPNL    float64
		profitableTrades int
		totalTrades      int
		events           []TradeEvent
		positions        = make(map[string]positionEntry)
	)

	for i := range history {
		sig := &history[i]

		if sig.Failed() {
			a.logger.DebugContext(ctx, "skipping failed transaction",
				"wallet", address,
				"signature", sig.Signature,
			)
			a.recordSkip(address, "onchain_error")
			continue
		}

		detail, err := a.fetcher.FetchDetail(ctx, sig.Signature)
		if err != nil {
			a.logger.DebugContext(ctx, "skipping transaction, detail unavailable",
				"wallet", address,
				"signature", sig.Signature,
				"error", err,
			)
			a.recordSkip(address, "detail_unavailable")
			continue
		}

		if !withinTimeframe(detail.BlockTime, params.Timeframe, a.now()) {
			a.recordSkip(address, "outside_timeframe")
			continue
		}

		tx := a.classifier.Classify(detail)
		if a.metrics != nil {
			a.metrics.RecordTransactionClassified(address, string(tx.Type))
		}

		switch tx.Type {
		case classify.TypeBuy:
			unrealizedPNL -= tx.Amount * rate
			positions[tx.TokenID] = positionEntry{
				price:     rate,
				amount:    tx.Amount,
				timestamp: detail.BlockTime,
			}
			events = append(events, newEvent("buy", tx.Timestamp))

		case classify.TypeSell:
			proceeds := tx.Amount * rate
			realizedPNL += proceeds
			if proceeds > 0 {
				profitableTrades++
			}
			delete(positions, tx.TokenID)
			events = append(events, newEvent("sell", tx.Timestamp))

		case classify.TypeTransfer:
			// A transfer-out of an open position realizes it like a sell.
			if _, open := positions[tx.TokenID]; open {
				proceeds := tx.Amount * rate
				realizedPNL += proceeds
				if proceeds > 0 {
					profitableTrades++
				}
				delete(positions, tx.TokenID)
				events = append(events, newEvent("sell", tx.Timestamp))
			}
		}

		totalTrades++
	}

	// Stage 4: derived metrics.
	totalPNL := realizedPNL + unrealizedPNL
	winRate := 0.0
	if totalTrades > 0 {
		winRate = 100 * float64(profitableTrades) / float64(totalTrades)
	}

	// Stage 5: threshold gates, each an independent exclusion reason.
	if winRate < params.MinWinRate {
		a.logger.InfoContext(ctx, "wallet excluded, win rate below minimum",
			"wallet", address,
			"win_rate", winRate,
			"minimum", params.MinWinRate,
		)
		return nil, "excluded"
	}
	if totalPNL < params.MinTotalPNL {
		a.logger.InfoContext(ctx, "wallet excluded, total pnl below minimum",
			"wallet", address,
			"total_pnl", totalPNL,
			"minimum", params.MinTotalPNL,
		)
		return nil, "excluded"
	}

	avgHolding := avgHoldingPeriodMinutes(events)
	if avgHolding < params.MinAvgHoldingPeriodMin {
		a.logger.InfoContext(ctx, "wallet excluded, holding period below minimum",
			"wallet", address,
			"avg_holding_minutes", avgHolding,
			"minimum", params.MinAvgHoldingPeriodMin,
		)
		return nil, "excluded"
	}

	a.logger.InfoContext(ctx, "wallet admitted",
		"wallet", address,
		"total_pnl", totalPNL,
		"win_rate", winRate,
		"trades", totalTrades,
	)

	return &Verdict{
		Address:       address,
		TotalPNL:      totalPNL,
		RealizedPNL:   realizedPNL,
		UnrealizedPNL: unrealizedPNL,
		WinRate:       winRate,
		BuySellDates:  events,
		Settings:      params,
	}, "admitted"
}

func (a *Analyzer) recordSkip(address, reason string) {
	if a.metrics != nil {
		a.metrics.RecordTransactionSkipped(address, reason)
	}
}

func newEvent(kind string, at time.Time) TradeEvent {
	return TradeEvent{
		Kind:     kind,
		Datetime: at.Format(eventTimeLayout),
		At:       at,
	}
}

// withinTimeframe reports whether a transaction falls inside the
// requested window: codes "1", "3", "6", "12" bound the age to
// 30/90/180/365 days; any other code passes unconditionally.
func withinTimeframe(blockTime int64, timeframe string, now time.Time) bool {
	var maxDays float64
	switch timeframe {
	case "1":
		maxDays = 30
	case "3":
		maxDays = 90
	case "6":
		maxDays = 180
	case "12":
		maxDays = 365
	default:
		return true
	}

	age := now.Sub(time.Unix(blockTime, 0))
	return age.Hours()/24 <= maxDays
}

// avgHoldingPeriodMinutes pairs consecutive events positionally (1st with
// 2nd, 3rd with 4th, ...) and averages the sell-minus-buy gap in minutes.
// Pairing is by sequence position, not by asset.
func avgHoldingPeriodMinutes(events []TradeEvent) float64 {
	var total float64
	var pairs int

	for i := 1; i < len(events); i += 2 {
		total += events[i].At.Sub(events[i-1].At).Minutes()
		pairs++
	}

	if pairs == 0 {
		return 0
	}
	return total / float64(pairs)
}
