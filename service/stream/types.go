package stream

import "time"

// VerdictEvent is the analysis result published for one admitted wallet.
// Published to the subject "verdicts.{wallet_address}" in JetStream.
type VerdictEvent struct {
	WalletAddress string  `json:"wallet_address"`
	TotalPNL      float64 `json:"total_pnl"`
	RealizedPNL   float64 `json:"realized_pnl"`
	UnrealizedPNL float64 `json:"unrealized_pnl"`
	WinRate       float64 `json:"win_rate"`

	// Metadata
	Timeframe   string    `json:"timeframe"`
	PublishedAt time.Time `json:"published_at"`
}
