package config

import (
	"fmt"
	"time"
)

// GlobalConfig holds the global configuration for the application
type GlobalConfig struct {
	// Profile is the AWS profile to use
	Profile string

	// Region is the bootstrap region used to enumerate the enabled regions
	Region string

	// Output is the path of the JSON report
	Output string

	// KeepExisting skips truncating the report at start so runs accumulate
	KeepExisting bool

	// MaxWorkers caps concurrent region workers; 0 means one worker per region
	MaxWorkers int

	// RegionTimeout bounds each region pipeline; 0 means no limit
	RegionTimeout time.Duration

	// LogFormat is the format for logging
	LogFormat string

	// LogLevel is the minimum level that is logged
	LogLevel string

	// Progress enables the region progress bar
	Progress bool

	// GenericMinLength is the shortest run the generic detector reports
	GenericMinLength int

	// DetectorConfig is an optional gitleaks TOML file replacing the bundled catalog
	DetectorConfig string

	// MaxPages caps how many pages are read from any single listing call
	MaxPages int

	// InstancePageSize, TagPageSize and TemplatePageSize are the MaxResults per page
	InstancePageSize int
	TagPageSize      int
	TemplatePageSize int

	// RateLimit controls pacing and throttling retries of inventory calls
	RateLimit RateLimitConfig
}

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// RequestsPerSecond is the number of requests allowed per second per API
	RequestsPerSecond int
	// MaxRetries is the maximum number of attempts before giving up
	MaxRetries int
	// BaseDelay is the initial delay duration for backoff
	BaseDelay time.Duration
	// MaxDelay is the maximum delay duration for backoff
	MaxDelay time.Duration
}

// DefaultRateLimitConfig provides default values for rate limiting
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 5,
	MaxRetries:        5,
	BaseDelay:         100 * time.Millisecond,
	MaxDelay:          30 * time.Second,
}

// Default returns a configuration populated with built-in defaults
func Default() *GlobalConfig {
	return &GlobalConfig{
		Region:           "us-east-1",
		Output:           "output.txt",
		LogFormat:        "text",
		LogLevel:         "INFO",
		GenericMinLength: 40,
		MaxPages:         100,
		InstancePageSize: 999,
		TagPageSize:      1000,
		TemplatePageSize: 200,
		RateLimit:        DefaultRateLimitConfig,
	}
}

// Validate checks values that the inventory API or the detectors would reject
func (c *GlobalConfig) Validate() error {
	if c.Profile == "" {
		return fmt.Errorf("an AWS profile is required")
	}
	if c.Output == "" {
		return fmt.Errorf("output path must not be empty")
	}
	if c.MaxWorkers < 0 {
		return fmt.Errorf("max workers must not be negative, got %d", c.MaxWorkers)
	}
	if c.RegionTimeout < 0 {
		return fmt.Errorf("region timeout must not be negative, got %s", c.RegionTimeout)
	}
	if c.GenericMinLength < 1 || c.GenericMinLength > 255 {
		return fmt.Errorf("generic detector minimum length must be between 1 and 255, got %d", c.GenericMinLength)
	}
	if c.MaxPages < 1 {
		return fmt.Errorf("max pages must be at least 1, got %d", c.MaxPages)
	}
	if c.InstancePageSize < 5 || c.InstancePageSize > 1000 {
		return fmt.Errorf("instance page size must be between 5 and 1000, got %d", c.InstancePageSize)
	}
	if c.TagPageSize < 5 || c.TagPageSize > 1000 {
		return fmt.Errorf("tag page size must be between 5 and 1000, got %d", c.TagPageSize)
	}
	if c.TemplatePageSize < 1 || c.TemplatePageSize > 200 {
		return fmt.Errorf("template page size must be between 1 and 200, got %d", c.TemplatePageSize)
	}
	if c.RateLimit.RequestsPerSecond < 1 {
		return fmt.Errorf("requests per second must be at least 1, got %d", c.RateLimit.RequestsPerSecond)
	}
	if c.RateLimit.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1, got %d", c.RateLimit.MaxRetries)
	}
	return nil
}
