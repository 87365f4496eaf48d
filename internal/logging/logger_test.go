package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/relaychat/internal/config"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info")
	require.NotNil(t, log)

	log.Info().Msg("session created")
	assert.Contains(t, buf.String(), "session created")
}

func TestSubAndWith(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "debug")

	log.Sub("relay").Sub("dispatch").With("sessionId", "abc").Info().Msg("sent")
	output := buf.String()
	assert.Contains(t, output, `"subsystem":"dispatch"`)
	assert.Contains(t, output, `"sessionId":"abc"`)
}

func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn")

	log.Debug().Msg("debug msg")
	log.Info().Msg("info msg")
	assert.Empty(t, buf.String(), "debug and info should be filtered at warn level")

	log.Warn().Msg("orphaned event")
	assert.Contains(t, buf.String(), "orphaned event")
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Error().Msg("dropped")
	assert.Equal(t, zerolog.Disabled, log.Zerolog().GetLevel())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"silent", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"unknown", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestFromConfig_NoFile(t *testing.T) {
	log, closer := FromConfig(config.LoggingConfig{Level: "debug", ConsoleStyle: "json"}, "")
	require.NotNil(t, log)
	assert.Equal(t, zerolog.DebugLevel, log.Zerolog().GetLevel())
	assert.NoError(t, closer.Close())
}

func TestFromConfig_FileSink(t *testing.T) {
	dir := t.TempDir()
	log, closer := FromConfig(config.LoggingConfig{
		Level:        "info",
		ConsoleStyle: "json",
		File:         "relay.log",
		MaxSizeMB:    1,
	}, dir)

	log.Sub("gateway").Info().Str("addr", "127.0.0.1:5000").Msg("listening")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(filepath.Join(dir, "relay.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"listening"`)
	assert.Contains(t, string(data), `"subsystem":"gateway"`)
}
