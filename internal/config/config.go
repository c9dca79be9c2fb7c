package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Upstream shared-expense API
	UpstreamBaseURL string
	UpstreamTimeout time.Duration

	// Expense batch fetch
	ExpenseFetchLimit int

	// In-memory cache for upstream batches
	CacheTTL        time.Duration
	CacheMaxEntries int

	// Rate limiting
	RequestsPerMinute int

	// CORS origins allowed to call the API and the relay
	AllowedOrigins []string

	// Logging
	LogLevel slog.Level
}

func Load() *Config {
	return &Config{
		Port: getEnv("PORT", "8082"),

		UpstreamBaseURL: getEnv("UPSTREAM_BASE_URL", "https://secure.splitwise.com/api/v3.0"),
		UpstreamTimeout: getEnvDuration("UPSTREAM_TIMEOUT", 15*time.Second),

		ExpenseFetchLimit: getEnvInt("EXPENSE_FETCH_LIMIT", 25),

		CacheTTL:        getEnvDuration("CACHE_TTL", 2*time.Minute),
		CacheMaxEntries: getEnvInt("CACHE_MAX_ENTRIES", 200),

		RequestsPerMinute: getEnvInt("REQUESTS_PER_MINUTE", 60),

		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"http://localhost:5173"}),

		LogLevel: getEnvLevel("LOG_LEVEL", slog.LevelInfo),
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if u, err := url.Parse(c.UpstreamBaseURL); err != nil {
		errors = append(errors, fmt.Sprintf("invalid upstream base URL '%s': %v", c.UpstreamBaseURL, err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid upstream URL scheme '%s': must be 'http' or 'https'", u.Scheme))
	}

	if c.UpstreamTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid upstream timeout %v: must be at least 1 second", c.UpstreamTimeout))
	} else if c.UpstreamTimeout > 2*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid upstream timeout %v: must be at most 2 minutes", c.UpstreamTimeout))
	}

	if c.ExpenseFetchLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid expense fetch limit %d: must be at least 1", c.ExpenseFetchLimit))
	} else if c.ExpenseFetchLimit > 1000 {
		errors = append(errors, fmt.Sprintf("invalid expense fetch limit %d: must be at most 1000", c.ExpenseFetchLimit))
	}

	if c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}
	if c.CacheMaxEntries < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache max entries %d: must be at least 1", c.CacheMaxEntries))
	}

	if c.RequestsPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid requests per minute %d: must be at least 1", c.RequestsPerMinute))
	}

	if len(c.AllowedOrigins) == 0 {
		errors = append(errors, "at least one allowed origin is required")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}
