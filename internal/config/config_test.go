package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Port:              "8082",
		UpstreamBaseURL:   "https://secure.splitwise.com/api/v3.0",
		UpstreamTimeout:   15 * time.Second,
		ExpenseFetchLimit: 25,
		CacheTTL:          2 * time.Minute,
		CacheMaxEntries:   200,
		RequestsPerMinute: 60,
		AllowedOrigins:    []string{"http://localhost:5173"},
		LogLevel:          slog.LevelInfo,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErr     bool
		errorString string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:        "invalid port - non-numeric",
			mutate:      func(c *Config) { c.Port = "abc" },
			wantErr:     true,
			errorString: "invalid port 'abc': must be a number",
		},
		{
			name:        "invalid port - out of range",
			mutate:      func(c *Config) { c.Port = "70000" },
			wantErr:     true,
			errorString: "must be between 1 and 65535",
		},
		{
			name:        "invalid upstream scheme",
			mutate:      func(c *Config) { c.UpstreamBaseURL = "ftp://example.com" },
			wantErr:     true,
			errorString: "invalid upstream URL scheme",
		},
		{
			name:        "upstream timeout too small",
			mutate:      func(c *Config) { c.UpstreamTimeout = 100 * time.Millisecond },
			wantErr:     true,
			errorString: "must be at least 1 second",
		},
		{
			name:        "fetch limit too large",
			mutate:      func(c *Config) { c.ExpenseFetchLimit = 5000 },
			wantErr:     true,
			errorString: "must be at most 1000",
		},
		{
			name:        "no allowed origins",
			mutate:      func(c *Config) { c.AllowedOrigins = nil },
			wantErr:     true,
			errorString: "at least one allowed origin",
		},
		{
			name: "multiple errors aggregated",
			mutate: func(c *Config) {
				c.Port = "abc"
				c.CacheMaxEntries = 0
			},
			wantErr:     true,
			errorString: "cache max entries",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				if !strings.Contains(err.Error(), tt.errorString) {
					t.Fatalf("error %q does not contain %q", err.Error(), tt.errorString)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port != "8082" {
		t.Fatalf("default port = %q", cfg.Port)
	}
	if cfg.ExpenseFetchLimit != 25 {
		t.Fatalf("default fetch limit = %d", cfg.ExpenseFetchLimit)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	got := getEnvList("ALLOWED_ORIGINS", nil)
	if len(got) != 2 || got[0] != "https://a.example" || got[1] != "https://b.example" {
		t.Fatalf("getEnvList = %#v", got)
	}
}

func TestGetEnvLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	if got := getEnvLevel("LOG_LEVEL", slog.LevelInfo); got != slog.LevelDebug {
		t.Fatalf("level = %v", got)
	}
	t.Setenv("LOG_LEVEL", "nonsense")
	if got := getEnvLevel("LOG_LEVEL", slog.LevelInfo); got != slog.LevelInfo {
		t.Fatalf("fallback level = %v", got)
	}
}
