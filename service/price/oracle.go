// Package price provides the SOL to USD spot rate used for capital checks
// and PNL valuation.
package price

import "context"

// Oracle returns the current SOL/USD spot rate. A zero rate signals that
// the oracle is unavailable; callers must treat zero as "price unknown",
// not as a free asset.
type Oracle interface {
	SolPriceUSD(ctx context.Context) float64
}

// Static is a fixed-rate oracle, useful for tests and for runs where the
// operator pins the conversion rate.
type Static struct {
	Rate float64
}

// NewStatic creates an oracle that always returns rate.
func NewStatic(rate float64) *Static {
	return &Static{Rate: rate}
}

// SolPriceUSD returns the fixed rate.
func (s *Static) SolPriceUSD(ctx context.Context) float64 {
	return s.Rate
}

// ConvertToUSD converts an amount in SOL using the oracle's current rate.
// Returns 0 when the rate is unavailable.
func ConvertToUSD(ctx context.Context, oracle Oracle, amountSol float64) float64 {
	rate := oracle.SolPriceUSD(ctx)
	if rate <= 0 {
		return 0
	}
	return amountSol * rate
}
