package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"stakevault/crypto"
	"stakevault/native/staking"
	"stakevault/observability/logging"
	"stakevault/observability/otel"
)

const (
	defaultDataDir     = "./vault-data"
	defaultBackend     = "leveldb"
	defaultEnvironment = "local"
	defaultPoolLabel   = "stakevault/pool"
	defaultSymbol      = "STK"
	defaultJournal     = "journal.db"
	defaultStateDir    = "state"
	rewardLabelSuffix  = "/liquidity-rewards"
)

// Config is the on-disk configuration of a vault instance.
type Config struct {
	DataDir         string    `toml:"DataDir" yaml:"data_dir"`
	// Backend selects the state store: "leveldb" or "bolt".
	Backend         string    `toml:"Backend" yaml:"backend"`
	Environment     string    `toml:"Environment" yaml:"environment"`
	PoolLabel       string    `toml:"PoolLabel" yaml:"pool_label"`
	TokenSymbol     string    `toml:"TokenSymbol" yaml:"token_symbol"`
	Administrators  []string  `toml:"Administrators" yaml:"administrators"`
	JournalFile     string    `toml:"JournalFile" yaml:"journal_file"`
	MetricsTextfile string    `toml:"MetricsTextfile" yaml:"metrics_textfile"`
	Staking         Staking   `toml:"Staking" yaml:"staking"`
	Logging         Logging   `toml:"Logging" yaml:"logging"`
	Telemetry       Telemetry `toml:"Telemetry" yaml:"telemetry"`
}

// Load loads the configuration from the given path. Files ending in .yaml
// or .yml are decoded as YAML, everything else as TOML. A missing TOML file
// is created with defaults.
func Load(path string) (*Config, error) {
	if isYAML(path) {
		return loadYAML(path)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return nil, fmt.Errorf("config: %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAML(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer file.Close()
	cfg := &Config{}
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// Default returns a configuration populated with the reference parameters.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = defaultDataDir
	}
	if strings.TrimSpace(c.Backend) == "" {
		c.Backend = defaultBackend
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = defaultEnvironment
	}
	if strings.TrimSpace(c.PoolLabel) == "" {
		c.PoolLabel = defaultPoolLabel
	}
	if strings.TrimSpace(c.TokenSymbol) == "" {
		c.TokenSymbol = defaultSymbol
	}
	if c.Administrators == nil {
		c.Administrators = []string{}
	}
	if strings.TrimSpace(c.JournalFile) == "" {
		c.JournalFile = defaultJournal
	}
	s := &c.Staking
	if strings.TrimSpace(s.FeePercent) == "" {
		s.FeePercent = "3"
	}
	if s.WithdrawalLock.Duration == 0 {
		s.WithdrawalLock.Duration = 12 * time.Hour
	}
	if s.WithdrawalUnlock.Duration == 0 {
		s.WithdrawalUnlock.Duration = 12 * time.Hour
	}
	if strings.TrimSpace(s.TotalSupplyFactorPercent) == "" {
		s.TotalSupplyFactorPercent = "100"
	}
	if strings.TrimSpace(s.LiquidityRewardAddress) == "" {
		s.LiquidityRewardAddress = crypto.DeriveModuleAddress(c.PoolLabel + rewardLabelSuffix).String()
	}
	if strings.TrimSpace(s.Sigmoid.APercent) == "" {
		s.Sigmoid.APercent = "7.5"
	}
	if strings.TrimSpace(s.Sigmoid.C) == "" {
		s.Sigmoid.C = "10000000000000"
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path as TOML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil config")
	}
	return persist(path, cfg)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// PoolAddress is the custody account derived from PoolLabel.
func (c *Config) PoolAddress() crypto.Address {
	return crypto.DeriveModuleAddress(c.PoolLabel)
}

// StatePath is the directory holding staking and token state.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, defaultStateDir)
}

// JournalPath is the SQLite event journal. Relative JournalFile values are
// resolved against DataDir.
func (c *Config) JournalPath() string {
	if filepath.IsAbs(c.JournalFile) {
		return c.JournalFile
	}
	return filepath.Join(c.DataDir, c.JournalFile)
}

// AdministratorAddresses decodes the configured administrator list.
func (c *Config) AdministratorAddresses() ([]crypto.Address, error) {
	out := make([]crypto.Address, 0, len(c.Administrators))
	for i, raw := range c.Administrators {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("config: Administrators[%d]: %w", i, err)
		}
		out = append(out, addr)
	}
	return out, nil
}

// ToStakingConfig converts the file representation into engine parameters.
func (c *Config) ToStakingConfig() (staking.Config, error) {
	var out staking.Config
	s := c.Staking
	fee, err := ParsePercent(s.FeePercent)
	if err != nil {
		return out, fmt.Errorf("config: Staking.FeePercent: %w", err)
	}
	factor, err := ParsePercent(s.TotalSupplyFactorPercent)
	if err != nil {
		return out, fmt.Errorf("config: Staking.TotalSupplyFactorPercent: %w", err)
	}
	reward, err := crypto.DecodeAddress(strings.TrimSpace(s.LiquidityRewardAddress))
	if err != nil {
		return out, fmt.Errorf("config: Staking.LiquidityRewardAddress: %w", err)
	}
	a, err := ParsePercent(s.Sigmoid.APercent)
	if err != nil {
		return out, fmt.Errorf("config: Staking.Sigmoid.APercent: %w", err)
	}
	cValue, err := parseUintAmount(s.Sigmoid.C)
	if err != nil {
		return out, fmt.Errorf("config: Staking.Sigmoid.C: %w", err)
	}
	out.Fee = fee
	out.TotalSupplyFactor = factor
	out.WithdrawalLockDuration = s.WithdrawalLock.Seconds()
	out.WithdrawalUnlockDuration = s.WithdrawalUnlock.Seconds()
	out.LiquidityRewardAddress = reward
	out.Sigmoid.A.Set(a)
	out.Sigmoid.B = s.Sigmoid.B
	out.Sigmoid.C.Set(cValue)
	return out, nil
}

// LoggingOptions converts the [Logging] section.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      logging.ParseLevel(c.Logging.Level),
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}

// TelemetryConfig converts the [Telemetry] section for service.
func (c *Config) TelemetryConfig(service string) otel.Config {
	return otel.Config{
		ServiceName: service,
		Environment: c.Environment,
		Pool:        c.PoolAddress().String(),
		Token:       c.TokenSymbol,
		Endpoint:    c.Telemetry.Endpoint,
		Insecure:    c.Telemetry.Insecure,
		Headers:     otel.ParseHeaders(c.Telemetry.Headers),
		Metrics:     c.Telemetry.Metrics,
		Traces:      c.Telemetry.Traces,
	}
}
