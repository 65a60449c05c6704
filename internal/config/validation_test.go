package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Defaults_AreValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models.Chat = ""
	cfg.Sampler.MaxBatch = 0
	cfg.Data.Topic = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "models.chat")
	assert.Contains(t, err.Error(), "sampler.max_batch")
	assert.Contains(t, err.Error(), "data.topic")
}

func TestValidate_ConfidenceMethod(t *testing.T) {
	cfg := DefaultConfig()

	cfg.Review.ConfidenceMethod = "normalized_diff"
	assert.NoError(t, cfg.Validate())

	cfg.Review.ConfidenceMethod = "vibes"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "confidence_method")
}

func TestValidate_BoundsChecks(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"zero interval", func(c *Config) { c.Sampler.IntervalSeconds = 0 }, "interval_seconds"},
		{"zero processed limit", func(c *Config) { c.Sampler.ProcessedLimit = 0 }, "processed_limit"},
		{"zero stop timeout", func(c *Config) { c.Sampler.StopTimeoutSeconds = 0 }, "stop_timeout_seconds"},
		{"zero recent turns", func(c *Config) { c.Session.RecentTurns = 0 }, "recent_turns"},
		{"zero stale minutes", func(c *Config) { c.Session.StaleMinutes = 0 }, "stale_minutes"},
		{"empty data dir", func(c *Config) { c.Data.Dir = "" }, "data.dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.substr)
		})
	}
}
