package config

import (
	"errors"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields processes environment variable references in
// credential fields so tokens and secrets can be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Provider.AccessToken = expandEnvVars(cfg.Provider.AccessToken)
	cfg.Provider.AppSecret = expandEnvVars(cfg.Provider.AppSecret)
	cfg.Webhook.VerifyToken = expandEnvVars(cfg.Webhook.VerifyToken)
	cfg.Journal.DSN = expandEnvVars(cfg.Journal.DSN)
}

// LoadDotEnv loads .env.local and .env from each dir (cwd when none given).
// Variables already present in the environment are never overwritten.
// Setting RELAYCHAT_DOTENV=0 disables loading. Returns the files loaded.
func LoadDotEnv(dirs ...string) ([]string, error) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("RELAYCHAT_DOTENV"))) {
	case "0", "false", "off", "no":
		return nil, nil
	}
	if len(dirs) == 0 {
		dirs = []string{"."}
	}

	var loaded []string
	for _, dir := range dirs {
		for _, name := range []string{".env.local", ".env"} {
			p := name
			if dir != "." {
				p = dir + string(os.PathSeparator) + name
			}
			if err := godotenv.Load(p); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return loaded, &ConfigError{Message: "failed to load " + p + ": " + err.Error()}
			}
			loaded = append(loaded, p)
		}
	}
	return loaded, nil
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = d.Gateway.Port
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = d.Gateway.Bind
	}
	if cfg.Provider.BaseURL == "" {
		cfg.Provider.BaseURL = d.Provider.BaseURL
	}
	if cfg.Provider.TimeoutSeconds == 0 {
		cfg.Provider.TimeoutSeconds = d.Provider.TimeoutSeconds
	}
	if len(cfg.Provider.WindowErrorCodes) == 0 {
		cfg.Provider.WindowErrorCodes = d.Provider.WindowErrorCodes
	}
	if cfg.Provider.TextFormat == "" {
		cfg.Provider.TextFormat = d.Provider.TextFormat
	}
	if cfg.Provider.Templates.CustomerMessage == "" {
		cfg.Provider.Templates.CustomerMessage = d.Provider.Templates.CustomerMessage
	}
	if cfg.Provider.Templates.Keepalive == "" {
		cfg.Provider.Templates.Keepalive = d.Provider.Templates.Keepalive
	}
	if cfg.Provider.Templates.Language == "" {
		cfg.Provider.Templates.Language = d.Provider.Templates.Language
	}
	if cfg.Session.IdleMinutes == 0 {
		cfg.Session.IdleMinutes = d.Session.IdleMinutes
	}
	if cfg.Session.SweepMinutes == 0 {
		cfg.Session.SweepMinutes = d.Session.SweepMinutes
	}
	if cfg.Session.KeepaliveAfterHours == 0 {
		cfg.Session.KeepaliveAfterHours = d.Session.KeepaliveAfterHours
	}
	if cfg.Session.WindowHours == 0 {
		cfg.Session.WindowHours = d.Session.WindowHours
	}
	if cfg.Session.RetentionDays == 0 {
		cfg.Session.RetentionDays = d.Session.RetentionDays
	}
	if cfg.Session.MaxKeepalives == 0 {
		cfg.Session.MaxKeepalives = d.Session.MaxKeepalives
	}
	if cfg.Session.CustomerPrefix == "" {
		cfg.Session.CustomerPrefix = d.Session.CustomerPrefix
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = d.Logging.Level
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = d.Logging.ConsoleStyle
	}
}

// applyEnvOverrides reads provider and RELAYCHAT_* environment variables and
// overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("RELAYCHAT_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.Gateway.PublicURL = v
	}
	if v := os.Getenv("WHATSAPP_API_URL"); v != "" {
		cfg.Provider.BaseURL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("WHATSAPP_PHONE_NUMBER_ID"); v != "" {
		cfg.Provider.PhoneNumberID = v
	}
	if v := os.Getenv("WHATSAPP_ACCESS_TOKEN"); v != "" {
		cfg.Provider.AccessToken = v
	}
	if v := os.Getenv("WHATSAPP_APP_SECRET"); v != "" {
		cfg.Provider.AppSecret = v
	}
	if v := os.Getenv("OWNER_PHONE_NUMBER"); v != "" {
		cfg.Provider.OwnerNumber = v
	}
	if v := os.Getenv("VERIFY_TOKEN"); v != "" {
		cfg.Webhook.VerifyToken = v
	}
	if v := os.Getenv("RELAYCHAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("RELAYCHAT_JOURNAL_DSN"); v != "" {
		cfg.Journal.DSN = v
	}
}
