package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is used when the config omits base_url
	DefaultBaseURL = "https://api.simprosuite.com"
	// DefaultPageSize is the listing page size simPRO accepts at most
	DefaultPageSize = 250
	// MaxPageSize caps page_size
	MaxPageSize = 250
	// MaxConcurrencyLimit caps max_concurrency
	MaxConcurrencyLimit = 64
)

// TapConfig is the configuration the tap reads from its --config file.
// Fields mirror the JSON keys a Singer runner passes in.
type TapConfig struct {
	// AccessToken is a valid bearer token; refreshing it is the caller's job
	AccessToken string `yaml:"access_token" json:"access_token"`
	// CompanyID selects /companies/{id}
	CompanyID string `yaml:"company_id" json:"company_id"`
	// BaseURL is the tenant root, e.g. https://acme.simprosuite.com
	BaseURL string `yaml:"base_url" json:"base_url"`

	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	Reliability ReliabilityConfig `yaml:"reliability" json:"reliability"`

	// UserAgent overrides the default User-Agent header
	UserAgent string `yaml:"user_agent" json:"user_agent"`
	// Timezone names the zone extraction timestamps are formatted in
	Timezone string `yaml:"timezone" json:"timezone"`
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// PerformanceConfig controls paging and request parallelism.
type PerformanceConfig struct {
	// PageSize is the listing page size
	PageSize int `yaml:"page_size" json:"page_size"`
	// MaxConcurrency bounds in-flight requests
	MaxConcurrency int `yaml:"max_concurrency" json:"max_concurrency"`
}

// ReliabilityConfig controls the request gate and timeouts.
type ReliabilityConfig struct {
	// RateLimitPerSec is the token refill rate
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	// RateBurst is the bucket capacity
	RateBurst int `yaml:"rate_burst" json:"rate_burst"`
	// RequestTimeout bounds a single HTTP exchange
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// NewTapConfig returns a configuration populated with defaults.
func NewTapConfig() *TapConfig {
	return &TapConfig{
		BaseURL: DefaultBaseURL,
		Performance: PerformanceConfig{
			PageSize:       DefaultPageSize,
			MaxConcurrency: 16,
		},
		Reliability: ReliabilityConfig{
			RateLimitPerSec: 8,
			RateBurst:       1,
			RequestTimeout:  30 * time.Second,
		},
		UserAgent: "simpro-tap/1.0",
		Timezone:  "Local",
		LogLevel:  "info",
	}
}

// Validate checks required fields and ranges.
func (c *TapConfig) Validate() error {
	if c.AccessToken == "" {
		return fmt.Errorf("access_token is required")
	}
	if c.CompanyID == "" {
		return fmt.Errorf("company_id is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base_url must be an http(s) URL")
	}
	if c.Performance.PageSize <= 0 || c.Performance.PageSize > MaxPageSize {
		return fmt.Errorf("page_size must be between 1 and %d", MaxPageSize)
	}
	if c.Performance.MaxConcurrency <= 0 || c.Performance.MaxConcurrency > MaxConcurrencyLimit {
		return fmt.Errorf("max_concurrency must be between 1 and %d", MaxConcurrencyLimit)
	}
	if c.Reliability.RateLimitPerSec <= 0 {
		return fmt.Errorf("rate_limit_per_sec must be positive")
	}
	if c.Reliability.RateBurst <= 0 {
		return fmt.Errorf("rate_burst must be positive")
	}
	if c.Reliability.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout cannot be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves Timezone.
func (c *TapConfig) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// CompanyURL is the root every endpoint path is resolved against.
func (c *TapConfig) CompanyURL() string {
	return fmt.Sprintf("%s/api/v1.0/companies/%s", strings.TrimRight(c.BaseURL, "/"), c.CompanyID)
}
