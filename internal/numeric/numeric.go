package numeric

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	// NativeDecimals is the precision of the native asset (base units per whole unit = 10^18).
	NativeDecimals = 18
	// ReferenceDecimals is the precision shared by the oracle rate and reference-currency values.
	ReferenceDecimals = 8
)

var (
	nativeScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(NativeDecimals), nil)
	refScale    = new(big.Int).Exp(big.NewInt(10), big.NewInt(ReferenceDecimals), nil)
)

// NativeScale returns 10^18 as a fresh big.Int.
func NativeScale() *big.Int {
	return new(big.Int).Set(nativeScale)
}

// ReferenceScale returns 10^8 as a fresh big.Int.
func ReferenceScale() *big.Int {
	return new(big.Int).Set(refScale)
}

// NativeToReference converts a native base-unit amount into a reference-currency
// value at the oracle's 8-decimal scale: amount * rate / 10^18, truncated toward
// zero. rate must itself carry the 8-decimal scale.
func NativeToReference(amount, rate *big.Int) *big.Int {
	v := new(big.Int).Mul(amount, rate)
	return v.Quo(v, nativeScale)
}

// ScaleReferenceUnits expands a whole-unit reference amount (e.g. a configured
// deposit cap) to the oracle's 8-decimal scale.
func ScaleReferenceUnits(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), refScale)
}

// ParseAmount parses a non-negative integer base-unit amount from its decimal
// string form.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("amount is required")
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return v, nil
}

// ParseRate parses a decimal rate string (reference units per whole native
// unit, e.g. "3934.02") into a big.Int at the 8-decimal oracle scale.
func ParseRate(s string) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", s, err)
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("rate must be positive, got %q", s)
	}
	return d.Shift(ReferenceDecimals).Truncate(0).BigInt(), nil
}

// FormatReference renders an 8-decimal scaled reference value as a decimal
// string in whole reference units.
func FormatReference(v *big.Int) string {
	return decimal.NewFromBigInt(v, -ReferenceDecimals).String()
}
