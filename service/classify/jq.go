package classify

import (
	"fmt"

	"github.com/brojonat/solsift/service/solana"
	"github.com/itchyny/gojq"
)

// JQClassifier classifies transactions by evaluating jq predicates
// against the raw jsonParsed transaction record. A predicate matches when
// its first output is truthy (neither nil nor false). Predicates are
// checked in buy, sell, transfer order; the first match wins.
type JQClassifier struct {
	buy      *gojq.Code
	sell     *gojq.Code
	transfer *gojq.Code
}

// NewJQClassifier compiles the given jq expressions. An empty expression
// disables that predicate.
func NewJQClassifier(buyExpr, sellExpr, transferExpr string) (*JQClassifier, error) {
	c := &JQClassifier{}
	var err error

	if c.buy, err = compileFilter("buy", buyExpr); err != nil {
		return nil, err
	}
	if c.sell, err = compileFilter("sell", sellExpr); err != nil {
		return nil, err
	}
	if c.transfer, err = compileFilter("transfer", transferExpr); err != nil {
		return nil, err
	}
	return c, nil
}

func compileFilter(name, expr string) (*gojq.Code, error) {
	if expr == "" {
		return nil, nil
	}
	query, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse %s filter %q: %w", name, expr, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compile %s filter %q: %w", name, expr, err)
	}
	return code, nil
}

// Classify labels the transaction using the compiled predicates.
func (c *JQClassifier) Classify(detail *solana.TransactionDetail) Transaction {
	typ := TypeOther
	switch {
	case matches(c.buy, detail.Raw):
		typ = TypeBuy
	case matches(c.sell, detail.Raw):
		typ = TypeSell
	case matches(c.transfer, detail.Raw):
		typ = TypeTransfer
	}
	return build(detail, typ)
}

// matches runs the predicate and reports whether its first output is
// truthy. Evaluation errors count as no match; classification never
// raises.
func matches(code *gojq.Code, input map[string]any) bool {
	if code == nil {
		return false
	}

	iter := code.Run(input)
	v, ok := iter.Next()
	if !ok {
		return false
	}
	if _, isErr := v.(error); isErr {
		return false
	}
	return v != nil && v != false
}
