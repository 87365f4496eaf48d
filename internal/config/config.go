package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

// WindowExpiredCode is the provider error code for a closed customer-service window.
const WindowExpiredCode = 131047

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Port: 5000,
			Bind: "auto",
		},
		Provider: ProviderConfig{
			BaseURL:          "https://graph.facebook.com/v19.0",
			TimeoutSeconds:   15,
			WindowErrorCodes: []int{WindowExpiredCode},
			TextFormat:       "[%s] %s",
			Templates: TemplatesConfig{
				CustomerMessage: "customer_message",
				Keepalive:       "session_keepalive",
				Language:        "en_US",
			},
		},
		Session: SessionConfig{
			IdleMinutes:         30,
			SweepMinutes:        5,
			KeepaliveAfterHours: 23,
			WindowHours:         24,
			RetentionDays:       30,
			CustomerPrefix:      "cust",
			MaxKeepalives:       3,
		},
		Logging: LoggingConfig{
			Level:        "info",
			ConsoleStyle: "pretty",
		},
	}
}

// Timeout returns the per-call provider timeout.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// IdleAfter is how long without activity before a session is considered idle.
func (s SessionConfig) IdleAfter() time.Duration {
	return time.Duration(s.IdleMinutes) * time.Minute
}

// SweepInterval is the maintenance scheduler period.
func (s SessionConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepMinutes) * time.Minute
}

// KeepaliveAfter is the inactivity at which a keepalive template is sent.
func (s SessionConfig) KeepaliveAfter() time.Duration {
	return time.Duration(s.KeepaliveAfterHours) * time.Hour
}

// Window is the provider's free-form messaging window.
func (s SessionConfig) Window() time.Duration {
	return time.Duration(s.WindowHours) * time.Hour
}

// Retention is the inactivity after which a session is evicted.
func (s SessionConfig) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}
