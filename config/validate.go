package config

import (
	"fmt"
	"strings"
)

// Validate checks that the configuration can initialise a pool.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config: nil config")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	switch c.Backend {
	case "", "leveldb", "bolt":
	default:
		return fmt.Errorf("config: unknown Backend %q", c.Backend)
	}
	if strings.TrimSpace(c.PoolLabel) == "" {
		return fmt.Errorf("config: PoolLabel required")
	}
	admins, err := c.AdministratorAddresses()
	if err != nil {
		return err
	}
	pool := c.PoolAddress()
	for i, admin := range admins {
		if admin.Equal(pool) {
			return fmt.Errorf("config: Administrators[%d] must not be the pool address", i)
		}
	}
	if c.Staking.WithdrawalLock.Duration < 0 || c.Staking.WithdrawalUnlock.Duration < 0 {
		return fmt.Errorf("config: negative withdrawal duration")
	}
	params, err := c.ToStakingConfig()
	if err != nil {
		return err
	}
	if params.LiquidityRewardAddress.Equal(pool) {
		return fmt.Errorf("config: Staking.LiquidityRewardAddress must differ from the pool")
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("config: Staking: %w", err)
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("config: Logging rotation limits must be non-negative")
	}
	return nil
}
