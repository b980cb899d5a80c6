package config_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/romshark/dgsched/internal/config"

	"github.com/stretchr/testify/require"
)

// unsetenv unsets key for the duration of the test.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func unsetAll(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DGSCHED_BIND",
		"DGSCHED_TTL",
		"DGSCHED_LOG_LEVEL",
		"DGSCHED_LOG_FORMAT",
	} {
		unsetenv(t, k)
	}
}

func TestLoadDefaults(t *testing.T) {
	unsetAll(t)
	t.Chdir(t.TempDir())

	c, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, config.Config{
		Bind:      "0.0.0.0:0",
		TTL:       64,
		LogLevel:  slog.LevelInfo,
		LogFormat: config.FormatText,
	}, c)
}

func TestLoadEnv(t *testing.T) {
	unsetAll(t)
	t.Setenv("DGSCHED_BIND", "127.0.0.1:9000")
	t.Setenv("DGSCHED_TTL", "8")
	t.Setenv("DGSCHED_LOG_LEVEL", "debug")
	t.Setenv("DGSCHED_LOG_FORMAT", "json")

	c, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	require.Zero(t, c)

	t.Chdir(t.TempDir())
	c, err = config.Load()
	require.NoError(t, err)
	require.Equal(t, config.Config{
		Bind:      "127.0.0.1:9000",
		TTL:       8,
		LogLevel:  slog.LevelDebug,
		LogFormat: config.FormatJSON,
	}, c)
}

func TestLoadFile(t *testing.T) {
	unsetAll(t)
	t.Setenv("DGSCHED_TTL", "4")

	f := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(f, []byte(
		"DGSCHED_TTL=100\nDGSCHED_LOG_FORMAT=json\n",
	), 0o600))

	c, err := config.Load(f)
	require.NoError(t, err)
	// Variables already set take precedence
	require.Equal(t, 4, c.TTL)
	require.Equal(t, config.FormatJSON, c.LogFormat)
}

func TestLoadInvalid(t *testing.T) {
	t.Chdir(t.TempDir())

	for _, tt := range []struct {
		key, value string
		expect     error
	}{
		{"DGSCHED_TTL", "many", config.ErrParsingConfig},
		{"DGSCHED_TTL", "300", config.ErrInvalidConfig},
		{"DGSCHED_LOG_LEVEL", "loud", config.ErrParsingConfig},
		{"DGSCHED_LOG_FORMAT", "xml", config.ErrInvalidConfig},
	} {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			unsetAll(t)
			t.Setenv(tt.key, tt.value)

			_, err := config.Load()
			require.ErrorIs(t, err, tt.expect)
		})
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	config.Config{
		LogLevel:  slog.LevelWarn,
		LogFormat: config.FormatJSON,
	}.Logger(&buf).Info("dropped")
	require.Zero(t, buf.Len())

	config.Config{
		LogLevel:  slog.LevelInfo,
		LogFormat: config.FormatJSON,
	}.Logger(&buf).Info("scheduled", slog.Int("task_id", 1))

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	require.Equal(t, "scheduled", record["msg"])
	require.Equal(t, float64(1), record["task_id"])

	buf.Reset()
	config.Config{LogFormat: config.FormatText}.Logger(&buf).Info("scheduled")
	require.Contains(t, buf.String(), "msg=scheduled")
}
