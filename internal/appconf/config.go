package appconf

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultNavitiaBaseURL = "https://api.navitia.io"
	DefaultCoverage       = "fr-npdc"
	// DefaultRateLimit is the number of Navitia requests allowed per second.
	DefaultRateLimit = 1.0
)

// Config holds the process-wide settings read once at cold start.
type Config struct {
	Env          Environment
	TableName    string
	NavitiaToken string
	NavitiaURL   string
	Coverage     string
	LogLevel     string
	RateLimit    float64
	Verbose      bool
}

// LoadFromEnv reads the configuration from environment variables.
// DYNAMODB_TABLE_NAME and NAVITIA_API_TOKEN are required.
func LoadFromEnv() (*Config, error) {
	v := viper.New()

	v.SetDefault("navitia_base_url", DefaultNavitiaBaseURL)
	v.SetDefault("navitia_coverage", DefaultCoverage)
	v.SetDefault("monitor_env", "production")
	v.SetDefault("monitor_log_level", "info")
	v.SetDefault("monitor_rate_limit", DefaultRateLimit)
	v.SetDefault("monitor_verbose", false)

	v.AutomaticEnv()

	cfg := &Config{
		Env:          EnvFlagToEnvironment(v.GetString("monitor_env")),
		TableName:    strings.TrimSpace(v.GetString("dynamodb_table_name")),
		NavitiaToken: strings.TrimSpace(v.GetString("navitia_api_token")),
		NavitiaURL:   strings.TrimRight(v.GetString("navitia_base_url"), "/"),
		Coverage:     v.GetString("navitia_coverage"),
		LogLevel:     v.GetString("monitor_log_level"),
		RateLimit:    v.GetFloat64("monitor_rate_limit"),
		Verbose:      v.GetBool("monitor_verbose"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.TableName == "" {
		return fmt.Errorf("DYNAMODB_TABLE_NAME is required")
	}
	if c.NavitiaToken == "" {
		return fmt.Errorf("NAVITIA_API_TOKEN is required")
	}
	if !strings.HasPrefix(c.NavitiaURL, "http://") && !strings.HasPrefix(c.NavitiaURL, "https://") {
		return fmt.Errorf("NAVITIA_BASE_URL must be an http(s) URL, got %q", c.NavitiaURL)
	}
	if c.Coverage == "" {
		return fmt.Errorf("NAVITIA_COVERAGE cannot be empty")
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("MONITOR_RATE_LIMIT must be greater than 0")
	}
	return nil
}

// TrafficReportsPath is the Navitia endpoint polled on each invocation.
func (c Config) TrafficReportsPath() string {
	return "/v1/coverage/" + c.Coverage + "/traffic_reports"
}
