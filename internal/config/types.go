package config

// Config is the root configuration for the relay.
type Config struct {
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Provider ProviderConfig `yaml:"provider,omitempty"`
	Webhook  WebhookConfig  `yaml:"webhook,omitempty"`
	Session  SessionConfig  `yaml:"session,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
	Hooks    HooksConfig    `yaml:"hooks,omitempty"`
	Journal  JournalConfig  `yaml:"journal,omitempty"`
}

// GatewayConfig controls the HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int      `yaml:"port,omitempty"`
	Bind           string   `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string   `yaml:"customBindHost,omitempty"`
	PublicURL      string   `yaml:"publicUrl,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// ProviderConfig configures the WhatsApp Cloud API client.
type ProviderConfig struct {
	BaseURL          string          `yaml:"baseUrl,omitempty"`
	PhoneNumberID    string          `yaml:"phoneNumberId,omitempty"`
	AccessToken      string          `yaml:"accessToken,omitempty"`
	AppSecret        string          `yaml:"appSecret,omitempty"`
	OwnerNumber      string          `yaml:"ownerNumber,omitempty"`
	TimeoutSeconds   int             `yaml:"timeoutSeconds,omitempty"`
	WindowErrorCodes []int           `yaml:"windowErrorCodes,omitempty"`
	TextFormat       string          `yaml:"textFormat,omitempty"` // fmt with customer id and body
	Templates        TemplatesConfig `yaml:"templates,omitempty"`
}

// TemplatesConfig names the pre-approved templates used outside the window.
type TemplatesConfig struct {
	CustomerMessage string `yaml:"customerMessage,omitempty"`
	Keepalive       string `yaml:"keepalive,omitempty"`
	Language        string `yaml:"language,omitempty"`
}

// WebhookConfig configures the provider callback endpoint.
type WebhookConfig struct {
	VerifyToken string `yaml:"verifyToken,omitempty"`
}

// SessionConfig defines session lifecycle policy.
type SessionConfig struct {
	IdleMinutes         int    `yaml:"idleMinutes,omitempty"`
	SweepMinutes        int    `yaml:"sweepMinutes,omitempty"`
	KeepaliveAfterHours int    `yaml:"keepaliveAfterHours,omitempty"`
	WindowHours         int    `yaml:"windowHours,omitempty"`
	RetentionDays       int    `yaml:"retentionDays,omitempty"`
	CustomerPrefix      string `yaml:"customerPrefix,omitempty"`
	MaxKeepalives       int    `yaml:"maxKeepalives,omitempty"` // consecutive keepalives without traffic; negative means unlimited
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"` // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	File         string `yaml:"file,omitempty"`
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
	MaxSizeMB    int    `yaml:"maxSizeMb,omitempty"`
	MaxBackups   int    `yaml:"maxBackups,omitempty"`
	MaxAgeDays   int    `yaml:"maxAgeDays,omitempty"`
}

// HooksConfig maps lifecycle events to shell commands.
type HooksConfig struct {
	SessionStart    []HookEntry `yaml:"sessionStart,omitempty"`
	MessageSent     []HookEntry `yaml:"messageSent,omitempty"`
	ReplyReceived   []HookEntry `yaml:"replyReceived,omitempty"`
	StatusUpdated   []HookEntry `yaml:"statusUpdated,omitempty"`
	WindowRefreshed []HookEntry `yaml:"windowRefreshed,omitempty"`
	SessionEvicted  []HookEntry `yaml:"sessionEvicted,omitempty"`
	GatewayStart    []HookEntry `yaml:"gatewayStart,omitempty"`
	GatewayStop     []HookEntry `yaml:"gatewayStop,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}

// JournalConfig configures the optional traffic journal.
type JournalConfig struct {
	DSN string `yaml:"dsn,omitempty"` // "" disables; "sqlite:///path.db", "memory", "postgres://..."
}
