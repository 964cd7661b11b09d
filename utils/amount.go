package utils

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ValidateAmount checks if an amount string is a valid non-negative decimal
func ValidateAmount(amount string) (decimal.Decimal, error) {
	if amount == "" {
		return decimal.Zero, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount format: %w", err)
	}
	if dec.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount cannot be negative")
	}
	return dec, nil
}

// ValidateBigInt parses a base-10 uint256.
func ValidateBigInt(value string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("value cannot be empty")
	}

	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid big integer format %q", value)
	}
	if n.Sign() < 0 || n.BitLen() > 256 {
		return nil, fmt.Errorf("value %s does not fit uint256", value)
	}
	return n, nil
}

// ParseUnits converts a human amount such as "1.5" into base units. Digits
// beyond decimals are rejected rather than rounded.
func ParseUnits(amount string, decimals int32) (*big.Int, error) {
	dec, err := ValidateAmount(amount)
	if err != nil {
		return nil, err
	}

	scaled := dec.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimals", amount, decimals)
	}
	return scaled.BigInt(), nil
}

// FormatUnits renders base units with decimals, dropping trailing zeros.
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// ConvertDecimals rescales an amount between precisions, rounding down.
func ConvertDecimals(amount *big.Int, fromDecimals, toDecimals int32) *big.Int {
	if fromDecimals == toDecimals {
		return new(big.Int).Set(amount)
	}
	return decimal.NewFromBigInt(amount, 0).Shift(toDecimals - fromDecimals).Floor().BigInt()
}
