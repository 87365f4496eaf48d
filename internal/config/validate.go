package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}

	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		add("gateway.bind", "must be one of %v, got %q", validBinds, cfg.Gateway.Bind)
	}

	// Provider validation
	if u, err := url.Parse(cfg.Provider.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("provider.baseUrl", "must be an absolute URL, got %q", cfg.Provider.BaseURL)
	}
	if cfg.Provider.AccessToken == "" {
		add("provider.accessToken", "access token is required")
	}
	if cfg.Provider.OwnerNumber == "" {
		add("provider.ownerNumber", "owner recipient number is required")
	}
	if cfg.Provider.TimeoutSeconds <= 0 {
		add("provider.timeoutSeconds", "must be positive, got %d", cfg.Provider.TimeoutSeconds)
	}
	if strings.Count(cfg.Provider.TextFormat, "%s") != 2 {
		add("provider.textFormat", "must contain exactly two %%s verbs (customer id, message), got %q", cfg.Provider.TextFormat)
	}
	if cfg.Provider.Templates.CustomerMessage == "" {
		add("provider.templates.customerMessage", "template name is required")
	}

	// Webhook validation
	if cfg.Webhook.VerifyToken == "" {
		add("webhook.verifyToken", "verify token is required")
	}

	// Session validation
	s := cfg.Session
	if s.SweepMinutes <= 0 {
		add("session.sweepMinutes", "must be positive, got %d", s.SweepMinutes)
	}
	if s.WindowHours <= 0 {
		add("session.windowHours", "must be positive, got %d", s.WindowHours)
	}
	if s.KeepaliveAfterHours <= 0 || s.KeepaliveAfterHours >= s.WindowHours {
		add("session.keepaliveAfterHours", "must be between 1 and windowHours-1, got %d", s.KeepaliveAfterHours)
	}
	if s.RetentionDays <= 0 || s.Retention() <= s.Window() {
		add("session.retentionDays", "retention must exceed the messaging window, got %d days", s.RetentionDays)
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		add("logging.level", "must be one of %v, got %q", validLogLevels, cfg.Logging.Level)
	}
	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		add("logging.consoleStyle", "must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle)
	}

	// Journal validation
	if dsn := cfg.Journal.DSN; dsn != "" && dsn != "memory" {
		u, err := url.Parse(dsn)
		if err != nil || !slices.Contains([]string{"sqlite", "postgres", "postgresql"}, u.Scheme) {
			add("journal.dsn", "scheme must be sqlite, postgres or memory, got %q", dsn)
		}
	}

	return issues
}
