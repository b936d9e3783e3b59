// Package config loads and validates the resolved client configuration.
// Settings live in a JSON file under the user's config directory, created
// with defaults on first run, and can be overridden per-process through
// TERMCHAT_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const (
	// Directory under $HOME holding config, key material and history
	configDirName = ".terminal-chat"

	configFileName = "config.json"

	envPrefix = "termchat"
)

// Duration wraps time.Duration so config files can say "500ms" or "1m".
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText makes Duration usable for environment overrides as well.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// Config is the resolved client configuration. It is captured read-only by
// the connection at construction; mutating it afterwards has no effect on a
// live connection.
type Config struct {
	ServerURL string `json:"server_url" envconfig:"SERVER_URL" validate:"required,url"`
	Username  string `json:"username" envconfig:"USERNAME"`

	KeyFile     string `json:"key_file" envconfig:"KEY_FILE" validate:"required"`
	HistoryFile string `json:"history_file" envconfig:"HISTORY_FILE"`

	// Reconnect policy
	AutoReconnect        bool     `json:"auto_reconnect" envconfig:"AUTO_RECONNECT"`
	ReconnectBaseDelay   Duration `json:"reconnect_base_delay" envconfig:"RECONNECT_BASE_DELAY" validate:"min=1"`
	ReconnectMultiplier  float64  `json:"reconnect_multiplier" envconfig:"RECONNECT_MULTIPLIER" validate:"gte=1"`
	MaxReconnectDelay    Duration `json:"max_reconnect_delay" envconfig:"MAX_RECONNECT_DELAY" validate:"min=1"`
	ReconnectJitter      Duration `json:"reconnect_jitter" envconfig:"RECONNECT_JITTER" validate:"min=0"`
	MaxReconnectAttempts int      `json:"max_reconnect_attempts" envconfig:"MAX_RECONNECT_ATTEMPTS" validate:"gte=0"`

	// Timeouts
	ConnectTimeout Duration `json:"connect_timeout" envconfig:"CONNECT_TIMEOUT" validate:"min=1"`
	WriteTimeout   Duration `json:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"min=1"`
	PingInterval   Duration `json:"ping_interval" envconfig:"PING_INTERVAL" validate:"min=0"`

	HistoryLimit int `json:"history_limit" envconfig:"HISTORY_LIMIT" validate:"gte=0"`

	// Optional local diagnostics endpoint, e.g. "127.0.0.1:7800"; empty
	// disables it
	DebugListen string `json:"debug_listen" envconfig:"DEBUG_LISTEN"`

	LogLevel string `json:"log_level" envconfig:"LOG_LEVEL" validate:"oneof=trace debug info warn error"`
}

// Default returns the built-in configuration.
func Default() Config {
	dir := DefaultDir()
	return Config{
		ServerURL:            "ws://localhost:8000/ws",
		KeyFile:              filepath.Join(dir, "encryption.key"),
		HistoryFile:          filepath.Join(dir, "history.db"),
		AutoReconnect:        true,
		ReconnectBaseDelay:   Duration(time.Second),
		ReconnectMultiplier:  2.0,
		MaxReconnectDelay:    Duration(60 * time.Second),
		ReconnectJitter:      Duration(250 * time.Millisecond),
		MaxReconnectAttempts: 0, // unlimited
		ConnectTimeout:       Duration(10 * time.Second),
		WriteTimeout:         Duration(5 * time.Second),
		PingInterval:         Duration(30 * time.Second),
		HistoryLimit:         50,
		LogLevel:             "info",
	}
}

// DefaultDir returns the client's config directory under $HOME.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return configDirName
	}
	return filepath.Join(home, configDirName)
}

// DefaultPath returns the default config file path.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), configFileName)
}

// Load resolves the configuration: defaults, then the JSON file at path,
// then environment overrides, then validation. A missing file is created
// with defaults so users have something to edit.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// File fields overlay the defaults; absent keys keep them
		if err := json.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case os.IsNotExist(err):
		if err := Save(path, cfg); err != nil {
			return Config{}, err
		}
	default:
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Save writes the configuration as indented JSON, creating the config
// directory if needed.
func Save(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, append(data, '\n'), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
