package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so TOML and YAML files can use human readable
// values such as "12h" or "90m".
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// MarshalYAML renders the duration as a scalar.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Seconds returns the whole number of seconds.
func (d Duration) Seconds() uint64 {
	if d.Duration <= 0 {
		return 0
	}
	return uint64(d.Duration / time.Second)
}

// Sigmoid configures the personal rate curve. APercent is the ceiling of
// the curve as a percentage, B the time offset in seconds and C the
// steepness constant in raw integer units.
type Sigmoid struct {
	APercent string `toml:"APercent" yaml:"a_percent"`
	B        int64  `toml:"B" yaml:"b"`
	C        string `toml:"C" yaml:"c"`
}

// Staking holds the initial pool parameters. Percentages are decimal
// strings such as "3" or "7.5".
type Staking struct {
	FeePercent               string   `toml:"FeePercent" yaml:"fee_percent"`
	WithdrawalLock           Duration `toml:"WithdrawalLock" yaml:"withdrawal_lock"`
	WithdrawalUnlock         Duration `toml:"WithdrawalUnlock" yaml:"withdrawal_unlock"`
	TotalSupplyFactorPercent string   `toml:"TotalSupplyFactorPercent" yaml:"total_supply_factor_percent"`
	LiquidityRewardAddress   string   `toml:"LiquidityRewardAddress" yaml:"liquidity_reward_address"`
	Sigmoid                  Sigmoid  `toml:"Sigmoid" yaml:"sigmoid"`
}

// Logging mirrors logging.Options in file form.
type Logging struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// Telemetry configures the OTLP exporters. Both are off by default.
type Telemetry struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	// Headers uses the OTEL_EXPORTER_OTLP_HEADERS "k=v,k2=v2" syntax.
	Headers string `toml:"Headers" yaml:"headers"`
	Metrics bool   `toml:"Metrics" yaml:"metrics"`
	Traces  bool   `toml:"Traces" yaml:"traces"`
}
