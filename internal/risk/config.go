package risk

import (
	"time"

	"oms/internal/errors"
	"oms/pkg/exception"
)

// Config defines the account-level risk limits. Percentages are fractions of
// the account balance, 0.1 means 10%.
type Config struct {
	MaxPositionSizePct     float64 `json:"maxPositionSizePct" yaml:"maxPositionSizePct"`
	MaxDailyLossPct        float64 `json:"maxDailyLossPct" yaml:"maxDailyLossPct"`
	MaxOpenPositions       int     `json:"maxOpenPositions" yaml:"maxOpenPositions"`
	MaxExposurePerAssetPct float64 `json:"maxExposurePerAssetPct" yaml:"maxExposurePerAssetPct"`
	// MaxConsecutiveLosses blocks new orders after that many losing closes in a row. 0 disables it.
	MaxConsecutiveLosses int `json:"maxConsecutiveLosses" yaml:"maxConsecutiveLosses"`
	// RiskPerTradePct is the share of the balance PositionSize is willing to lose
	// when the stop loss triggers.
	RiskPerTradePct float64       `json:"riskPerTradePct" yaml:"riskPerTradePct"`
	ResetInterval   time.Duration `json:"resetInterval" yaml:"resetInterval"`
}

// DefaultConfig returns the stock limits.
func DefaultConfig() Config {
	return Config{
		MaxPositionSizePct:     0.1,
		MaxDailyLossPct:        0.02,
		MaxOpenPositions:       3,
		MaxExposurePerAssetPct: 0.05,
		RiskPerTradePct:        0.01,
		ResetInterval:          24 * time.Hour,
	}
}

// Validate rejects limits that cannot be enforced.
func (c Config) Validate() error {
	switch {
	case c.MaxPositionSizePct <= 0:
		return errors.Wrapf(exception.ErrRiskInvalidConfig, "maxPositionSizePct %v must be > 0", c.MaxPositionSizePct)
	case c.MaxDailyLossPct <= 0:
		return errors.Wrapf(exception.ErrRiskInvalidConfig, "maxDailyLossPct %v must be > 0", c.MaxDailyLossPct)
	case c.MaxOpenPositions <= 0:
		return errors.Wrapf(exception.ErrRiskInvalidConfig, "maxOpenPositions %d must be > 0", c.MaxOpenPositions)
	case c.MaxExposurePerAssetPct <= 0:
		return errors.Wrapf(exception.ErrRiskInvalidConfig, "maxExposurePerAssetPct %v must be > 0", c.MaxExposurePerAssetPct)
	case c.MaxConsecutiveLosses < 0:
		return errors.Wrapf(exception.ErrRiskInvalidConfig, "maxConsecutiveLosses %d must be >= 0", c.MaxConsecutiveLosses)
	case c.RiskPerTradePct < 0 || c.RiskPerTradePct > 1:
		return errors.Wrapf(exception.ErrRiskInvalidConfig, "riskPerTradePct %v must be within [0, 1]", c.RiskPerTradePct)
	case c.ResetInterval < 0:
		return errors.Wrapf(exception.ErrRiskInvalidConfig, "resetInterval %s must be >= 0", c.ResetInterval)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.ResetInterval == 0 {
		c.ResetInterval = DefaultConfig().ResetInterval
	}
	if c.RiskPerTradePct == 0 {
		c.RiskPerTradePct = DefaultConfig().RiskPerTradePct
	}
	return c
}
