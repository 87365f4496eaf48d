package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const defaultBaseDir = ".relaychat"

// Paths holds resolved filesystem paths for relay data.
type Paths struct {
	Base   string // ~/.relaychat
	Config string // ~/.relaychat/config.yaml
	Data   string // ~/.relaychat/data
	Logs   string // ~/.relaychat/logs
}

// ResolvePaths computes the relay's paths. RELAYCHAT_HOME overrides the
// default ~/.relaychat base.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("RELAYCHAT_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}

	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Data:   filepath.Join(base, "data"),
		Logs:   filepath.Join(base, "logs"),
	}, nil
}

// EnsureDirs creates the base, data and logs directories. The journal's
// sqlite file and rotated logs land there, so they stay private to the user.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data, p.Logs} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// sections are the top-level keys of config.yaml.
var sections = []string{"gateway", "provider", "webhook", "session", "logging", "hooks", "journal"}

// ParseConfigPath splits a dot-separated config path such as
// "provider.templates.keepalive" into segments. The first segment must name
// a config section so typos fail instead of writing dead keys.
func ParseConfigPath(raw string) ([]string, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config path"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if p == "" {
			return nil, &ConfigError{Message: "config path contains empty segment"}
		}
	}
	if !slices.Contains(sections, parts[0]) {
		return nil, &ConfigError{Message: fmt.Sprintf("unknown config section %q (want one of %s)", parts[0], strings.Join(sections, ", "))}
	}
	return parts, nil
}

// GetValueAtPath traverses a nested map using the given path segments.
func GetValueAtPath(root map[string]any, path []string) (any, bool) {
	current := any(root)
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetValueAtPath sets a value in a nested map, creating intermediate maps as needed.
func SetValueAtPath(root map[string]any, path []string, value any) {
	current := root
	for _, key := range path[:len(path)-1] {
		next, ok := current[key]
		if !ok {
			next = map[string]any{}
			current[key] = next
		}
		m, ok := next.(map[string]any)
		if !ok {
			m = map[string]any{}
			current[key] = m
		}
		current = m
	}
	current[path[len(path)-1]] = value
}

// UnsetValueAtPath removes a value at the given path and drops any parent
// maps left empty. Returns true if removed.
func UnsetValueAtPath(root map[string]any, path []string) bool {
	if len(path) == 0 {
		return false
	}
	key := path[0]
	if len(path) == 1 {
		if _, ok := root[key]; !ok {
			return false
		}
		delete(root, key)
		return true
	}
	child, ok := root[key].(map[string]any)
	if !ok || !UnsetValueAtPath(child, path[1:]) {
		return false
	}
	if len(child) == 0 {
		delete(root, key)
	}
	return true
}
