package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/soyeahso/relaychat/internal/config"
)

const defaultCommandTimeout = 10 * time.Second

// CommandHandler runs a shell command with the JSON payload on stdin.
// A non-zero exit or timeout is returned as an error.
func CommandHandler(command string, timeout time.Duration) Handler {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return func(ctx context.Context, p Payload) error {
		input, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
		cmd.Stdin = bytes.NewReader(input)
		cmd.WaitDelay = time.Second
		cmd.Env = append(cmd.Environ(), "RELAYCHAT_HOOK_EVENT="+p.Event)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				return fmt.Errorf("hook command %q: %w: %s", command, err, msg)
			}
			return fmt.Errorf("hook command %q: %w", command, err)
		}
		return nil
	}
}

// RegisterConfig registers every command hook declared in the hooks config
// section and returns how many were registered.
func RegisterConfig(m *Manager, cfg config.HooksConfig) int {
	byEvent := map[string][]config.HookEntry{
		EventSessionStart:    cfg.SessionStart,
		EventMessageSent:     cfg.MessageSent,
		EventReplyReceived:   cfg.ReplyReceived,
		EventStatusUpdated:   cfg.StatusUpdated,
		EventWindowRefreshed: cfg.WindowRefreshed,
		EventSessionEvicted:  cfg.SessionEvicted,
		EventGatewayStart:    cfg.GatewayStart,
		EventGatewayStop:     cfg.GatewayStop,
	}

	n := 0
	for _, event := range AllEvents {
		for i, entry := range byEvent[event] {
			if strings.TrimSpace(entry.Command) == "" {
				continue
			}
			name := fmt.Sprintf("config:%s:%d", event, i)
			m.On(event, name, CommandHandler(entry.Command, time.Duration(entry.Timeout)*time.Millisecond))
			n++
		}
	}
	return n
}
