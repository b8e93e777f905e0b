package predicthouseprice

import (
	"fmt"
	"time"
)

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`
	// HistoryTimeout bounds the audit write that follows a valuation.
	HistoryTimeout time.Duration `mapstructure:"history_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:        true,
		MaxJobsActive:  10,
		Timeout:        10 * time.Second,
		HistoryTimeout: 3 * time.Second,
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	if c.HistoryTimeout < 0 {
		return fmt.Errorf("history_timeout must not be negative")
	}
	return nil
}
