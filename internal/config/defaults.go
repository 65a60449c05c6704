package config

// Config holds all application configuration values.
// Defaults are set in DefaultConfig() and can be overridden via dotfile.
// NOTE: Values in config files override defaults, including explicit zero values.
// Missing keys are left at their default values.
type Config struct {
	Models  ModelsConfig  `json:"models"`
	Review  ReviewConfig  `json:"review"`
	Sampler SamplerConfig `json:"sampler"`
	Data    DataConfig    `json:"data"`
	Session SessionConfig `json:"session"`
}

type ModelsConfig struct {
	// Chat drives intent classification, conversation, queries and
	// override extraction.
	Chat string `json:"chat"` // Default: gemini-2.0-flash

	// Review drives the post/comment review verdicts.
	Review string `json:"review"` // Default: gemini-2.0-flash

	// Confidence drives the single-token Y/N confidence probe.
	Confidence string `json:"confidence"` // Default: gemini-2.0-flash
}

type ReviewConfig struct {
	// ConfidenceMethod is "log_odds" or "normalized_diff".
	ConfidenceMethod string `json:"confidence_method"` // Default: log_odds
}

type SamplerConfig struct {
	// IntervalSeconds between background cycles.
	IntervalSeconds int `json:"interval_seconds"` // Default: 30

	// MaxBatch posts drawn per source per cycle.
	MaxBatch int `json:"max_batch"` // Default: 2

	// ProcessedLimit bounds the dedup set before a wholesale clear.
	ProcessedLimit int `json:"processed_limit"` // Default: 100

	// StopTimeoutSeconds bounds the shutdown join.
	StopTimeoutSeconds int `json:"stop_timeout_seconds"` // Default: 5
}

type DataConfig struct {
	// Dir is the root of the scraped community data.
	Dir string `json:"dir"` // Default: ./data

	// Topic is the community to moderate.
	Topic string `json:"topic"` // Default: gardening
}

type SessionConfig struct {
	// RecentTurns included in classifier context digests.
	RecentTurns int `json:"recent_turns"` // Default: 2

	// StaleMinutes after which the session is considered idle.
	StaleMinutes int `json:"stale_minutes"` // Default: 30
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Models: ModelsConfig{
			Chat:       "gemini-2.0-flash",
			Review:     "gemini-2.0-flash",
			Confidence: "gemini-2.0-flash",
		},
		Review: ReviewConfig{
			ConfidenceMethod: "log_odds",
		},
		Sampler: SamplerConfig{
			IntervalSeconds:    30,
			MaxBatch:           2,
			ProcessedLimit:     100,
			StopTimeoutSeconds: 5,
		},
		Data: DataConfig{
			Dir:   "./data",
			Topic: "gardening",
		},
		Session: SessionConfig{
			RecentTurns:  2,
			StaleMinutes: 30,
		},
	}
}
