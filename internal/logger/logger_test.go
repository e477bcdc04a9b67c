package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{input: "debug", want: zerolog.DebugLevel},
		{input: "INFO", want: zerolog.InfoLevel},
		{input: "", want: zerolog.InfoLevel},
		{input: "warning", want: zerolog.WarnLevel},
		{input: "error", want: zerolog.ErrorLevel},
		{input: "verbose", want: zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "soundlink.log")
	logger, closer, err := New(Config{Output: "file", Level: "warn", File: path})
	require.NoError(t, err)

	logger.Info().Msg("dropped")
	logger.Warn().Msgf("node disconnected: node=%s", "main")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "node disconnected: node=main", entry["message"])
	assert.NotContains(t, entry, "caller")
}

func TestNew_DebugAddsCaller(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	logger, closer, err := New(Config{Output: "file", Level: "debug", File: path})
	require.NoError(t, err)
	logger.Debug().Msg("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(data, &entry))
	assert.Contains(t, entry["caller"], "logger/logger_test.go")
}

func TestNew_InvalidOutput(t *testing.T) {
	_, _, err := New(Config{Output: "file"})
	assert.Error(t, err)

	_, _, err = New(Config{Output: "syslog"})
	assert.Error(t, err)

	_, closer, err := New(Config{Output: "stderr"})
	require.NoError(t, err)
	assert.NoError(t, closer.Close())
}
