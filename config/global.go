package config

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// percentShift converts a percentage into an 18 decimal fraction.
const percentShift = 16

var hundred = decimal.NewFromInt(100)

// ParsePercent converts a decimal percentage in [0, 100] into a fraction of
// 1e18. Precision beyond 16 decimal places is rejected rather than rounded.
func ParsePercent(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("percentage required")
	}
	value, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid percentage %q: %w", raw, err)
	}
	if value.IsNegative() || value.GreaterThan(hundred) {
		return nil, fmt.Errorf("percentage %s outside [0, 100]", value.String())
	}
	scaled := value.Shift(percentShift)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("percentage %s has too many decimal places", value.String())
	}
	out, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("percentage %s overflows", value.String())
	}
	return out, nil
}

// FormatPercent renders an 18 decimal fraction as a percentage string.
func FormatPercent(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -percentShift).String()
}

// parseUintAmount parses a base-10 unsigned integer.
func parseUintAmount(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	out, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return out, nil
}
