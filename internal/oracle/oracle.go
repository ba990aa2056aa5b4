package oracle

import (
	"context"
	"fmt"
	"math/big"

	"github.com/custodia-pay/custodia_pay/internal/numeric"
)

// PriceOracle reports the current native-to-reference exchange rate at the
// oracle's 8-decimal scale. Failures are surfaced to the caller as-is; the
// ledger does not second-guess the feed.
type PriceOracle interface {
	Rate(ctx context.Context) (*big.Int, error)
}

// StaticOracle serves a fixed rate. Used in dev mode and tests.
type StaticOracle struct {
	rate *big.Int
}

// NewStaticOracle builds a fixed-rate oracle from a decimal rate string such
// as "3934.02" (reference units per whole native unit).
func NewStaticOracle(rate string) (*StaticOracle, error) {
	v, err := numeric.ParseRate(rate)
	if err != nil {
		return nil, fmt.Errorf("static oracle: %w", err)
	}
	return &StaticOracle{rate: v}, nil
}

// Rate returns the configured rate.
func (o *StaticOracle) Rate(_ context.Context) (*big.Int, error) {
	return new(big.Int).Set(o.rate), nil
}
