package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"stakevault/crypto"
	"stakevault/native/staking"
)

const tokenDecimals = 18

// parseTokens converts a decimal token amount into base units.
func parseTokens(raw string) (*uint256.Int, error) {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if !value.IsPositive() {
		return nil, fmt.Errorf("amount must be positive")
	}
	scaled := value.Shift(tokenDecimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimals", value.String(), tokenDecimals)
	}
	out, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("amount %s overflows", value.String())
	}
	return out, nil
}

// formatTokens renders base units as a decimal token amount.
func formatTokens(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v.ToBig(), -tokenDecimals).String()
}

// formatRate renders an 18 decimal fraction as a percentage.
func formatRate(v *uint256.Int) string {
	if v == nil {
		return "0%"
	}
	return decimal.NewFromBigInt(v.ToBig(), -16).String() + "%"
}

func parseWithdrawAmount(raw string) (staking.Amount, error) {
	if raw == "" || strings.EqualFold(raw, "all") {
		return staking.AmountAll(), nil
	}
	amount, err := parseTokens(raw)
	if err != nil {
		return staking.Amount{}, err
	}
	return staking.AmountOf(amount), nil
}

func parseAddress(raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	return addr, nil
}

func parseSlot(raw string) (uint64, error) {
	slot, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || slot == 0 {
		return 0, fmt.Errorf("invalid slot %q", raw)
	}
	return slot, nil
}
