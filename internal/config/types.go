package config

import (
	"fmt"
	"net/url"
	"strings"
)

type Config struct {
	Server  ServerConfig   `json:"server"`
	Auth    AuthConfig     `json:"auth"`
	Target  TargetConfig   `json:"target"`
	Logging LoggingConfig  `json:"logging"`
	Storage *StorageConfig `json:"storage,omitempty"`
	Tasks   []TaskConfig   `json:"tasks"`
}

// ServerConfig controls the HTTP listener hosting the entry point.
//
// Security note:
//   - Prefer binding to localhost behind an ingress (default "127.0.0.1:8087").
//   - Binding to a non-loopback address requires allow_non_loopback.
//
// All durations are Go duration strings (e.g. "10s", "1m").
type ServerConfig struct {
	Addr             string `json:"addr,omitempty"`
	AllowNonLoopback bool   `json:"allow_non_loopback,omitempty"`
	ReadTimeout      string `json:"read_timeout,omitempty"`
	WriteTimeout     string `json:"write_timeout,omitempty"`
	IdleTimeout      string `json:"idle_timeout,omitempty"`
}

// AuthConfig configures the authorization pipeline.
type AuthConfig struct {
	// Secret is the shared trigger credential; it also keys request
	// signatures (do not log).
	Secret string `json:"secret"`
	// AllowedOrigins is the caller allow-list. Empty means any origin.
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
	// RateLimitPerHour caps requests per origin over a rolling hour.
	// 0 uses the default (10); -1 disables the limit.
	RateLimitPerHour int `json:"rate_limit_per_hour,omitempty"`
}

// TargetConfig locates the internal service hosting the task endpoints.
type TargetConfig struct {
	BaseURL string `json:"base_url"`
	// ClientTimeout is the ambient HTTP client timeout for tasks that
	// declare no max_duration. Go duration string.
	ClientTimeout string `json:"client_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file"`
	Alerts  AlertConfig   `json:"alerts,omitempty"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// AlertConfig forwards log lines at or above min_level to a Telegram chat.
type AlertConfig struct {
	Enabled    bool           `json:"enabled"`
	MinLevel   string         `json:"min_level,omitempty"`    // default "error"
	RatePerSec int            `json:"rate_per_sec,omitempty"` // default 1
	Telegram   TelegramConfig `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token"` // do not log
	ChatID int64  `json:"chat_id"`
}

// StorageConfig controls the optional persistence layer backing the audit
// trail and the cross-restart rate-limit counters.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./costwatch_store" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// TaskConfig is one registry entry as written in the config file. Schedule
// accepts "hourly", "daily:HH[:MM]", "every:Nm", and "cron:SPEC".
type TaskConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Endpoint    string `json:"endpoint"`
	Method      string `json:"method"`
	Schedule    string `json:"schedule"`
	MaxDuration string `json:"max_duration,omitempty"` // Go duration string
	Body        string `json:"body,omitempty"`
}

// Validate performs the static field checks that don't need other
// subsystems. Schedule and registry validation happens when the registry
// is built.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return fmt.Errorf("auth.secret is required")
	}
	if c.Auth.RateLimitPerHour < -1 {
		return fmt.Errorf("auth.rate_limit_per_hour must be >= -1")
	}

	base := strings.TrimSpace(c.Target.BaseURL)
	if base == "" {
		return fmt.Errorf("target.base_url is required")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("target.base_url %q is not an absolute URL", base)
	}

	if c.Storage != nil {
		switch strings.TrimSpace(c.Storage.Driver) {
		case "", "none", "file", "sqlite":
		default:
			return fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver)
		}
	}

	if len(c.Tasks) == 0 {
		return fmt.Errorf("tasks: at least one task is required")
	}
	return nil
}
