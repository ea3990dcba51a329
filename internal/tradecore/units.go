package tradecore

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultDecimals is assumed when a token's decimals() read fails.
const DefaultDecimals uint8 = 18

// ParseUnits converts a human amount to base units, truncating any digits
// beyond the token's precision.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("%w: amount %q: %v", ErrValidation, s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: amount %q is negative", ErrValidation, s)
	}
	return d.Shift(int32(decimals)).Truncate(0).BigInt(), nil
}

// FormatUnits renders base units as a human amount without trailing zeros.
func FormatUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

// ParseEther is ParseUnits with 18 decimals.
func ParseEther(s string) (*big.Int, error) { return ParseUnits(s, 18) }

func FormatEther(v *big.Int) string { return FormatUnits(v, 18) }

// GweiToWei converts a (possibly fractional) gwei amount to wei.
func GweiToWei(g decimal.Decimal) *big.Int {
	return g.Shift(9).Truncate(0).BigInt()
}

func FormatGwei(wei *big.Int) string { return FormatUnits(wei, 9) }
