package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Solana RPC Metrics
	solanaRPCCallsTotal        *prometheus.CounterVec
	solanaRPCCallDuration      *prometheus.HistogramVec
	solanaRPCRateLimitHits     *prometheus.CounterVec
	solanaRPCRetries           *prometheus.CounterVec
	solanaRPCSignaturesPerCall *prometheus.HistogramVec

	// Transaction Processing Metrics
	transactionsFetchedTotal    *prometheus.CounterVec
	transactionsClassifiedTotal *prometheus.CounterVec
	transactionsSkippedTotal    *prometheus.CounterVec

	// Wallet Analysis Metrics
	walletsAnalyzedTotal   *prometheus.CounterVec
	walletAnalysisDuration *prometheus.HistogramVec

	// Price Oracle Metrics
	priceFetchesTotal *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		// Solana RPC Metrics
		solanaRPCCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC calls by method and status",
			},
			[]string{"method", "status", "endpoint"},
		),
		solanaRPCCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		solanaRPCRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of Solana RPC rate limit hits (429 errors)",
			},
			[]string{"endpoint"},
		),
		solanaRPCRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),
		solanaRPCSignaturesPerCall: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_signatures_per_call",
				Help:    "Number of signatures fetched per getSignaturesForAddress page",
				Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
			},
			[]string{"endpoint"},
		),

		// Transaction Processing Metrics
		transactionsFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_fetched_total",
				Help: "Total number of transactions fetched from Solana",
			},
			[]string{"wallet_address"},
		),
		transactionsClassifiedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_classified_total",
				Help: "Total number of transactions classified by type",
			},
			[]string{"wallet_address", "type"},
		),
		transactionsSkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transactions_skipped_total",
				Help: "Total number of transactions skipped during analysis",
			},
			[]string{"wallet_address", "reason"},
		),

		// Wallet Analysis Metrics
		walletsAnalyzedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallets_analyzed_total",
				Help: "Total number of wallets analyzed by outcome",
			},
			[]string{"outcome"},
		),
		walletAnalysisDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wallet_analysis_duration_seconds",
				Help:    "Duration of per-wallet analysis in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"outcome"},
		),

		// Price Oracle Metrics
		priceFetchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "price_fetches_total",
				Help: "Total number of price oracle lookups",
			},
			[]string{"status"},
		),

		// NATS Metrics
		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a Solana RPC call with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.solanaRPCCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.solanaRPCCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.solanaRPCRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.solanaRPCRetries.WithLabelValues(method, reason).Inc()
}

// RecordRPCSignaturesPerCall records the number of signatures fetched in one page.
func (m *Metrics) RecordRPCSignaturesPerCall(endpoint string, count float64) {
	m.solanaRPCSignaturesPerCall.WithLabelValues(endpoint).Observe(count)
}

// Transaction processing metric helpers

// RecordTransactionsFetched records transactions fetched from Solana.
func (m *Metrics) RecordTransactionsFetched(walletAddress string, count int) {
	m.transactionsFetchedTotal.WithLabelValues(walletAddress).Add(float64(count))
}

// RecordTransactionClassified records a classified transaction by type.
func (m *Metrics) RecordTransactionClassified(walletAddress, txType string) {
	m.transactionsClassifiedTotal.WithLabelValues(walletAddress, txType).Inc()
}

// RecordTransactionSkipped records a transaction skipped during analysis.
func (m *Metrics) RecordTransactionSkipped(walletAddress, reason string) {
	m.transactionsSkippedTotal.WithLabelValues(walletAddress, reason).Inc()
}

// Wallet analysis metric helpers

// RecordWalletAnalyzed records a completed wallet analysis with its outcome
// (admitted, excluded, no_activity) and duration.
func (m *Metrics) RecordWalletAnalyzed(outcome string, duration float64) {
	m.walletsAnalyzedTotal.WithLabelValues(outcome).Inc()
	m.walletAnalysisDuration.WithLabelValues(outcome).Observe(duration)
}

// Price oracle metric helpers

// RecordPriceFetch records a price oracle lookup.
func (m *Metrics) RecordPriceFetch(status string) {
	m.priceFetchesTotal.WithLabelValues(status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
}
