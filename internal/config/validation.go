package config

import (
	"fmt"
	"strings"
)

// Validate checks config values for correctness.
// Returns an error if any values are invalid.
func (c *Config) Validate() error {
	var errs []string

	if c.Models.Chat == "" {
		errs = append(errs, "models.chat must not be empty")
	}
	if c.Models.Review == "" {
		errs = append(errs, "models.review must not be empty")
	}
	if c.Models.Confidence == "" {
		errs = append(errs, "models.confidence must not be empty")
	}

	switch c.Review.ConfidenceMethod {
	case "log_odds", "normalized_diff":
	default:
		errs = append(errs, "review.confidence_method must be log_odds or normalized_diff")
	}
	if c.Sampler.IntervalSeconds < 1 {
		errs = append(errs, "sampler.interval_seconds must be >= 1")
	}
	if c.Sampler.MaxBatch < 1 {
		errs = append(errs, "sampler.max_batch must be >= 1")
	}
	if c.Sampler.ProcessedLimit < 1 {
		errs = append(errs, "sampler.processed_limit must be >= 1")
	}
	if c.Sampler.StopTimeoutSeconds < 1 {
		errs = append(errs, "sampler.stop_timeout_seconds must be >= 1")
	}

	if c.Data.Dir == "" {
		errs = append(errs, "data.dir must not be empty")
	}
	if c.Data.Topic == "" {
		errs = append(errs, "data.topic must not be empty")
	}

	if c.Session.RecentTurns < 1 {
		errs = append(errs, "session.recent_turns must be >= 1")
	}
	if c.Session.StaleMinutes < 1 {
		errs = append(errs, "session.stale_minutes must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}
