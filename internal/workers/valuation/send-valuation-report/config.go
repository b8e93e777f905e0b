package sendvaluationreport

import (
	"fmt"
	"time"
)

type Config struct {
	Enabled       bool          `mapstructure:"enabled"`
	MaxJobsActive int           `mapstructure:"max_jobs_active"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Subject       string        `mapstructure:"subject"`
	// SMSForEveryReport sends a text even when an email was delivered.
	SMSForEveryReport bool `mapstructure:"sms_for_every_report"`
}

func DefaultConfig() *Config {
	return &Config{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30 * time.Second,
		Subject:       "Your house valuation",
	}
}

func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxJobsActive <= 0 {
		return fmt.Errorf("max_jobs_active must be positive")
	}
	if c.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	return nil
}
