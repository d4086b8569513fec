// Package units converts fixed-point on-chain amounts into display values.
//
// Contract amounts are integers in the chain's smallest unit and stay *big.Int
// everywhere they can flow back into a transaction. Conversion to decimal happens
// once, here, at the display boundary.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// NativeDecimals is the number of decimals of the chain's native currency.
const NativeDecimals = 18

// ToNative converts a smallest-unit amount into native currency units.
func ToNative(amount *big.Int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -NativeDecimals)
}

// ToUSD applies a fixed conversion rate to a smallest-unit amount, rounded to cents.
func ToUSD(amount *big.Int, rate decimal.Decimal) decimal.Decimal {
	return ToNative(amount).Mul(rate).Round(2)
}

// ParseNative parses a human-entered native amount ("0.05") into smallest units.
// Inputs with more precision than the chain supports are rejected rather than rounded.
func ParseNative(value string) (*big.Int, error) {
	clean := strings.TrimSpace(value)
	if clean == "" {
		return nil, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	scaled := d.Shift(NativeDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q exceeds %d decimals", value, NativeDecimals)
	}
	return scaled.BigInt(), nil
}

// FormatNative renders a smallest-unit amount as a trimmed native string.
func FormatNative(amount *big.Int) string {
	return ToNative(amount).String()
}
