package vault

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"stakevault/config"
	"stakevault/crypto"
	"stakevault/native/staking"
)

type paramSetter func(ctx context.Context, caller crypto.Address) error

// parseParameter maps a textual parameter update onto the engine setter.
// Percentages use decimal notation ("2.5"), durations use Go syntax ("6h")
// and the sigmoid takes "a=<percent>,b=<seconds>,c=<integer>".
func (s *Service) parseParameter(name, value string) (paramSetter, error) {
	value = strings.TrimSpace(value)
	switch name {
	case staking.ParamFee:
		fee, err := config.ParsePercent(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", staking.ErrInvalidParameter, name, err)
		}
		return func(ctx context.Context, caller crypto.Address) error {
			return s.engine.SetFee(ctx, caller, fee)
		}, nil
	case staking.ParamTotalSupplyFactor:
		factor, err := config.ParsePercent(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", staking.ErrInvalidParameter, name, err)
		}
		return func(ctx context.Context, caller crypto.Address) error {
			return s.engine.SetTotalSupplyFactor(ctx, caller, factor)
		}, nil
	case staking.ParamWithdrawalLockDuration, staking.ParamWithdrawalUnlockDuration:
		seconds, err := parseSeconds(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", staking.ErrInvalidParameter, name, err)
		}
		if name == staking.ParamWithdrawalLockDuration {
			return func(ctx context.Context, caller crypto.Address) error {
				return s.engine.SetWithdrawalLockDuration(ctx, caller, seconds)
			}, nil
		}
		return func(ctx context.Context, caller crypto.Address) error {
			return s.engine.SetWithdrawalUnlockDuration(ctx, caller, seconds)
		}, nil
	case staking.ParamLiquidityRewardAddress:
		addr, err := crypto.DecodeAddress(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", staking.ErrInvalidParameter, name, err)
		}
		return func(ctx context.Context, caller crypto.Address) error {
			return s.engine.SetLiquidityRewardAddress(ctx, caller, addr)
		}, nil
	case staking.ParamSigmoid:
		params, err := parseSigmoid(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", staking.ErrInvalidParameter, name, err)
		}
		return func(ctx context.Context, caller crypto.Address) error {
			return s.engine.SetSigmoidParameters(ctx, caller, params)
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown parameter %q", staking.ErrInvalidParameter, name)
	}
}

// parseSeconds accepts a Go duration or a bare number of seconds.
func parseSeconds(raw string) (uint64, error) {
	if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return n, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", raw)
	}
	return uint64(d / time.Second), nil
}

func parseSigmoid(raw string) (staking.SigmoidParams, error) {
	var out staking.SigmoidParams
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		key, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return out, fmt.Errorf("expected key=value, got %q", part)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)
		switch key {
		case "a":
			a, err := config.ParsePercent(val)
			if err != nil {
				return out, fmt.Errorf("a: %w", err)
			}
			out.A.Set(a)
		case "b":
			b, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return out, fmt.Errorf("b: %w", err)
			}
			out.B = b
		case "c":
			if err := out.C.SetFromDecimal(val); err != nil {
				return out, fmt.Errorf("c: %w", err)
			}
		default:
			return out, fmt.Errorf("unknown sigmoid field %q", key)
		}
		seen[key] = true
	}
	for _, key := range []string{"a", "b", "c"} {
		if !seen[key] {
			return out, fmt.Errorf("missing sigmoid field %q", key)
		}
	}
	return out, nil
}
