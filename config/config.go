// Package config provides configuration loading for ccr using TOML, with
// CCR_* environment variables layered on top.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// HTTP fetching settings
type Fetcher struct {
	UserAgent       string `toml:"userAgent" env:"CCR_USER_AGENT"`
	TimeoutSeconds  int    `toml:"timeoutSeconds" env:"CCR_TIMEOUT_SECONDS"`
	ChromePath      string `toml:"chromePath" env:"CCR_CHROME_PATH"`
	BrowserFallback bool   `toml:"browserFallback" env:"CCR_BROWSER_FALLBACK"` // retry blocked or empty pages in headless Chrome
}

// Engine settings
type Engine struct {
	WaitTimeoutSeconds int `toml:"waitTimeoutSeconds" env:"CCR_WAIT_TIMEOUT_SECONDS"` // 0 waits until interrupted
	SettleMillis       int `toml:"settleMillis" env:"CCR_SETTLE_MILLIS"`
}

// Clipboard settings
type Clipboard struct {
	Backend       string   `toml:"backend" env:"CCR_CLIPBOARD"` // "system", "browser" or "memory"
	ConfirmMillis int      `toml:"confirmMillis" env:"CCR_CONFIRM_MILLIS"`
	Command       []string `toml:"command" env:"CCR_CLIPBOARD_COMMAND" envSeparator:" "` // empty = auto-detect
}

// GitHub REST API settings
type GitHub struct {
	Token string `toml:"token" env:"CCR_GITHUB_TOKEN"`
	API   string `toml:"api" env:"CCR_GITHUB_API"` // empty = https://api.<host>
}

// Log settings
type Log struct {
	Level string `toml:"level" env:"CCR_LOG_LEVEL"` // debug, info, warn or error
}

// Config is the main configuration struct
type Config struct {
	Fetcher   Fetcher   `toml:"fetcher"`
	Engine    Engine    `toml:"engine"`
	Clipboard Clipboard `toml:"clipboard"`
	GitHub    GitHub    `toml:"github"`
	Log       Log       `toml:"log"`
}

// Clipboard backends.
const (
	BackendSystem  = "system"
	BackendBrowser = "browser"
	BackendMemory  = "memory"
)

var (
	backends = []string{BackendSystem, BackendBrowser, BackendMemory}
	levels   = []string{"debug", "info", "warn", "error"}
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Fetcher: Fetcher{
			UserAgent:       "ccr/1.0 (copy commit reference)",
			TimeoutSeconds:  30,
			BrowserFallback: true,
		},
		Engine: Engine{
			WaitTimeoutSeconds: 30,
			SettleMillis:       100,
		},
		Clipboard: Clipboard{
			Backend:       BackendSystem,
			ConfirmMillis: 2000,
		},
		Log: Log{
			Level: "info",
		},
	}
}

// WaitTimeout bounds each wait for an element of the page.
func (e Engine) WaitTimeout() time.Duration {
	return time.Duration(e.WaitTimeoutSeconds) * time.Second
}

// Settle is the delay after history traversal before the URL is checked.
func (e Engine) Settle() time.Duration {
	return time.Duration(e.SettleMillis) * time.Millisecond
}

// Confirm is how long the "copied" confirmation stays visible.
func (c Clipboard) Confirm() time.Duration {
	return time.Duration(c.ConfirmMillis) * time.Millisecond
}

// configDir returns the configuration directory path.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ccr"), nil
}

// ConfigPath returns the path to the user's config file.
func ConfigPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load loads the user's config file, if any, then the environment.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		path = "" // defaults and environment only
	}
	return LoadFile(path)
}

// LoadFile layers the TOML file at path over the defaults and the CCR_*
// environment variables over that. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := loadFromTOML(path, cfg); err != nil {
				return nil, fmt.Errorf("loading config from %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading config from %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromTOML decodes path onto cfg, so keys missing from the file keep
// their current values. Unknown keys are rejected; they are almost always
// typos.
func loadFromTOML(path string, cfg *Config) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("parsing config TOML: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

// Validate checks values that cannot be checked by decoding alone.
func (c *Config) Validate() error {
	if !slices.Contains(backends, c.Clipboard.Backend) {
		return fmt.Errorf("clipboard.backend must be one of %s, got %q", strings.Join(backends, ", "), c.Clipboard.Backend)
	}
	if !slices.Contains(levels, c.Log.Level) {
		return fmt.Errorf("log.level must be one of %s, got %q", strings.Join(levels, ", "), c.Log.Level)
	}
	if c.Fetcher.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetcher.timeoutSeconds must be positive, got %d", c.Fetcher.TimeoutSeconds)
	}
	if c.Engine.WaitTimeoutSeconds < 0 || c.Engine.SettleMillis < 0 || c.Clipboard.ConfirmMillis < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}

// DefaultTOML returns the default configuration as a TOML string.
// Used by init-config to generate a user config file.
func DefaultTOML() (string, error) {
	var buf bytes.Buffer
	buf.WriteString("# ccr configuration\n")
	buf.WriteString("# Save to ~/.config/ccr/config.toml and customize\n")
	buf.WriteString("# Every setting can also be overridden with a CCR_* environment variable\n\n")
	if err := toml.NewEncoder(&buf).Encode(Default()); err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	return buf.String(), nil
}
