// Package classify labels fetched transactions as buy/sell/transfer/other
// and normalizes amount and fee fields. Classification is a pluggable
// strategy: the default marker classifier keys off field presence, and the
// jq classifier lets operators supply real decoding predicates without
// recompiling.
package classify

import (
	"time"

	"github.com/brojonat/solsift/service/solana"
)

// Type labels the economic role of a transaction.
type Type string

const (
	TypeBuy      Type = "buy"
	TypeSell     Type = "sell"
	TypeTransfer Type = "transfer"
	TypeOther    Type = "other"
)

// Transaction is a classified transaction. Derived once from a
// TransactionDetail, never mutated afterwards. Amounts are in SOL.
type Transaction struct {
	Signature string
	Type      Type
	Timestamp time.Time
	TokenID   string
	Amount    float64
	Fees      float64
	NetAmount float64
}

// Classifier decides the type of a transaction. Implementations must not
// fail: an unrecognized transaction is TypeOther, which the analyzer
// excludes from PNL and win-rate accounting.
type Classifier interface {
	Classify(detail *solana.TransactionDetail) Transaction
}

// MarkerClassifier is the default strategy: a transaction is a buy when a
// buy-marker field is present in the detail, a sell when a sell-marker is
// present, a transfer when a transfer-marker is present without either.
// The marker predicates are placeholders pending real on-chain instruction
// decoding; swap in a JQClassifier for anything beyond smoke testing.
type MarkerClassifier struct{}

// NewMarkerClassifier creates the field-presence classifier.
func NewMarkerClassifier() *MarkerClassifier {
	return &MarkerClassifier{}
}

// Classify labels the transaction by marker-field presence.
func (c *MarkerClassifier) Classify(detail *solana.TransactionDetail) Transaction {
	_, isBuy := detail.Raw["buy_condition"]
	_, isSell := detail.Raw["sell_condition"]
	_, isTransfer := detail.Raw["transfer_condition"]

	typ := TypeOther
	switch {
	case isBuy:
		typ = TypeBuy
	case isSell:
		typ = TypeSell
	case isTransfer:
		typ = TypeTransfer
	}

	return build(detail, typ)
}

// build assembles the classified transaction with normalized amounts.
func build(detail *solana.TransactionDetail, typ Type) Transaction {
	amount := normalizeAmount(detail.Raw["amount"])

	// Fees default to zero when absent; an explicit fee field wins over
	// the on-chain meta fee, which is denominated in lamports.
	fees := 0.0
	if v, ok := detail.Raw["fee"].(float64); ok {
		fees = v
	} else if detail.Fee > 0 {
		fees = float64(detail.Fee) / solana.LamportsPerSol
	}

	tokenID, _ := detail.Raw["token_id"].(string)

	return Transaction{
		Signature: detail.Signature,
		Type:      typ,
		Timestamp: time.Unix(detail.BlockTime, 0).UTC(),
		TokenID:   tokenID,
		Amount:    amount,
		Fees:      fees,
		NetAmount: amount - fees,
	}
}

// normalizeAmount converts a raw amount into SOL. A smallest-unit form
// ({"lamports": N}) is divided by the fixed-point divisor; a plain number
// is used as-is.
func normalizeAmount(v any) float64 {
	switch amount := v.(type) {
	case float64:
		return amount
	case map[string]any:
		if lamports, ok := amount["lamports"].(float64); ok {
			return lamports / solana.LamportsPerSol
		}
	}
	return 0
}
