package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	assert.True(t, cfg.AutoReconnect)
	assert.Equal(t, time.Second, cfg.ReconnectBaseDelay.Std())
	assert.Equal(t, 60*time.Second, cfg.MaxReconnectDelay.Std())
	assert.Equal(t, 2.0, cfg.ReconnectMultiplier)
	assert.Equal(t, 0, cfg.MaxReconnectAttempts)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.NoError(t, cfg.Validate())
}

func TestLoadCreatesFileOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.Equal(t, Default().ServerURL, cfg.ServerURL)

	// Second load reads the file it just wrote
	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	partial := `{
		"server_url": "wss://chat.example.com/ws",
		"history_limit": 100,
		"reconnect_base_delay": "500ms"
	}`
	require.NoError(t, os.WriteFile(path, []byte(partial), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Values from the file
	assert.Equal(t, "wss://chat.example.com/ws", cfg.ServerURL)
	assert.Equal(t, 100, cfg.HistoryLimit)
	assert.Equal(t, 500*time.Millisecond, cfg.ReconnectBaseDelay.Std())

	// Absent keys keep their defaults
	assert.True(t, cfg.AutoReconnect)
	assert.Equal(t, 60*time.Second, cfg.MaxReconnectDelay.Std())
}

func TestLoadAppliesEnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	t.Setenv("TERMCHAT_SERVER_URL", "wss://override.example.com/ws")
	t.Setenv("TERMCHAT_MAX_RECONNECT_ATTEMPTS", "3")
	t.Setenv("TERMCHAT_WRITE_TIMEOUT", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://override.example.com/ws", cfg.ServerURL)
	assert.Equal(t, 3, cfg.MaxReconnectAttempts)
	assert.Equal(t, 2*time.Second, cfg.WriteTimeout.Std())
}

func TestLoadRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `server_url = nope`},
		{"empty server url", `{"server_url": ""}`},
		{"bad url", `{"server_url": "not a url"}`},
		{"negative history limit", `{"history_limit": -1}`},
		{"multiplier below one", `{"reconnect_multiplier": 0.5}`},
		{"bad duration", `{"write_timeout": "soonish"}`},
		{"bad log level", `{"log_level": "loud"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.json), 0600))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestDurationJSONRoundTrip(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"1m30s"`)))
	assert.Equal(t, 90*time.Second, d.Std())

	data, err := d.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(data))
}
