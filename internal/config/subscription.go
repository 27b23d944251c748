package config

import (
	"fmt"
	"sort"

	"github.com/spf13/viper"
)

// SubscriptionConfig holds per-tier usage limits loaded from the
// subscription YAML file.
type SubscriptionConfig struct {
	DefaultTier string                    `mapstructure:"default_tier"`
	TierLimits  map[string]map[string]int `mapstructure:"tier_limits"`
}

// LoadSubscription reads tier limits from the YAML file at path. A missing
// default_tier falls back to the first tier key in sorted order.
func LoadSubscription(path string) (*SubscriptionConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read subscription config: %w", err)
	}

	var cfg SubscriptionConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subscription config: %w", err)
	}

	if cfg.DefaultTier == "" && len(cfg.TierLimits) > 0 {
		keys := make([]string, 0, len(cfg.TierLimits))
		for k := range cfg.TierLimits {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		cfg.DefaultTier = keys[0]
	}

	return &cfg, nil
}

// LimitForTier returns the configured limit for a tier and limit name.
// ok is false when either is not configured.
func (c *SubscriptionConfig) LimitForTier(tier, limitName string) (int, bool) {
	limits, ok := c.TierLimits[tier]
	if !ok {
		return 0, false
	}
	value, ok := limits[limitName]
	return value, ok
}
