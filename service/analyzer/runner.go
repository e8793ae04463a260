package analyzer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/brojonat/solsift/service/stream"
)

// WalletAnalyzer is the per-wallet analysis surface the runner drives.
// Satisfied by *Analyzer; mocked in tests.
type WalletAnalyzer interface {
	Analyze(ctx context.Context, address string, params Params) *Verdict
}

// Runner fans a list of wallet addresses across a bounded worker pool.
// Wallets are mutually independent, so no cross-wallet state exists;
// admitted verdicts are collected in input order.
type Runner struct {
	analyzer      WalletAnalyzer
	concurrency   int
	walletTimeout time.Duration
	publisher     stream.Publisher // nil disables verdict streaming
	logger        *slog.Logger
}

// NewRunner creates a batch runner. concurrency bounds the number of
// wallets analyzed at once; walletTimeout caps each wallet's analysis
// (0 means no per-wallet deadline). publisher may be nil.
func NewRunner(a WalletAnalyzer, concurrency int, walletTimeout time.Duration, publisher stream.Publisher, logger *slog.Logger) *Runner {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Runner{
		analyzer:      a,
		concurrency:   concurrency,
		walletTimeout: walletTimeout,
		publisher:     publisher,
		logger:        logger,
	}
}

// Run analyzes every address and returns the admitted verdicts, in input
// order. Excluded wallets simply produce no entry; the batch always runs
// to completion.
func (r *Runner) Run(ctx context.Context, addresses []string, params Params) []*Verdict {
	results := make([]*Verdict, len(addresses))

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup

	for i, address := range addresses {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int, address string) {
			defer wg.Done()
			defer func() { <-sem }()

			walletCtx := ctx
			if r.walletTimeout > 0 {
				var cancel context.CancelFunc
				walletCtx, cancel = context.WithTimeout(ctx, r.walletTimeout)
				defer cancel()
			}

			r.logger.InfoContext(walletCtx, "analyzing wallet", "wallet", address)
			results[i] = r.analyzer.Analyze(walletCtx, address, params)
		}(i, address)
	}

	wg.Wait()

	verdicts := make([]*Verdict, 0, len(addresses))
	for _, v := range results {
		if v == nil {
			continue
		}
		verdicts = append(verdicts, v)
		r.publish(ctx, v)
	}

	r.logger.InfoContext(ctx, "batch analysis complete",
		"wallets", len(addresses),
		"admitted", len(verdicts),
	)

	return verdicts
}

// publish streams an admitted verdict when a publisher is configured.
// Publish failures are logged and never fail the batch.
func (r *Runner) publish(ctx context.Context, v *Verdict) {
	if r.publisher == nil {
		return
	}

	event := &stream.VerdictEvent{
		WalletAddress: v.Address,
		TotalPNL:      v.TotalPNL,
		RealizedPNL:   v.RealizedPNL,
		UnrealizedPNL: v.UnrealizedPNL,
		WinRate:       v.WinRate,
		Timeframe:     v.Settings.Timeframe,
		PublishedAt:   time.Now().UTC(),
	}

	if err := r.publisher.PublishVerdict(ctx, event); err != nil {
		r.logger.ErrorContext(ctx, "failed to publish verdict",
			"wallet", v.Address,
			"error", err,
		)
	}
}
