package solana

import (
	"encoding/json"

	"github.com/gagliardetto/solana-go"
)

// LamportsPerSol is the fixed-point divisor between SOL and its smallest
// unit.
const LamportsPerSol = 1e9

// TokenProgramID is the SPL Token program that owns standard token
// accounts.
var TokenProgramID = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

// SignatureInfo is one entry of a getSignaturesForAddress page. The
// signature doubles as the pagination cursor for the next page.
type SignatureInfo struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	BlockTime int64           `json:"blockTime"`
	Err       json.RawMessage `json:"err"`
}

// Failed reports whether the transaction failed on-chain. Failed
// transactions are excluded from all downstream analysis.
func (s *SignatureInfo) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// TransactionDetail is the jsonParsed getTransaction result for one
// signature. Raw holds the full decoded result so classification
// strategies can inspect fields this package does not model.
type TransactionDetail struct {
	Signature string
	Slot      uint64
	BlockTime int64
	Fee       uint64
	Raw       map[string]any
}

// TokenAccount is one SPL token account owned by a wallet, from a
// jsonParsed getTokenAccountsByOwner response.
type TokenAccount struct {
	Pubkey   string
	Mint     string
	Amount   float64
	Decimals int
}
