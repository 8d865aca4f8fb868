// Package config loads, validates and hot-reloads the daemon's TOML
// configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the immutable-per-read configuration snapshot consumed by the
// supervisor, Event Engine and Discord RPC client.
type Config struct {
	DiscordAppID  string            `toml:"discord_app_id"`
	Intervals     IntervalConfig    `toml:"intervals"`
	EnableButtons bool              `toml:"enable_buttons"`
	Assets        AssetsConfig      `toml:"assets"`
	Logging       LoggingConfig     `toml:"logging"`
	Diagnostics   DiagnosticsConfig `toml:"diagnostics"`
	Reload        ReloadConfig      `toml:"reload"`
}

// IntervalConfig holds the cadence knobs the Scheduler and Event Engine read.
type IntervalConfig struct {
	PlayingPollMs       int64 `toml:"playing_poll_ms"`
	PausedPollMs        int64 `toml:"paused_poll_ms"`
	StoppedPollMs       int64 `toml:"stopped_poll_ms"`
	PresenceMinUpdateMs int64 `toml:"presence_min_update_ms"`
	DebounceMs          int64 `toml:"debounce_ms"`
}

// AssetsConfig names the Discord application's uploaded image assets.
type AssetsConfig struct {
	LargeImage      string `toml:"large_image"`
	LargeText       string `toml:"large_text"`
	SmallPlayImage  string `toml:"small_play_image"`
	SmallPauseImage string `toml:"small_pause_image"`
}

// LoggingConfig controls the logrus formatter/level used by every component.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// DiagnosticsConfig controls the optional local status HTTP server.
type DiagnosticsConfig struct {
	Enabled        bool   `toml:"enabled"`
	Address        string `toml:"address"`
	NgrokEnabled   bool   `toml:"ngrok_enabled"`
	NgrokAuthToken string `toml:"ngrok_auth_token"`
}

// ReloadConfig controls SIGHUP/fsnotify-driven config hot reload.
type ReloadConfig struct {
	FileWatchPollMs int64 `toml:"file_watch_poll_ms"`
}

// DefaultConfig returns a configuration populated with the defaults named in
// the spec (§4.1, §4.3).
func DefaultConfig() *Config {
	return &Config{
		DiscordAppID: "",
		Intervals: IntervalConfig{
			PlayingPollMs:       1000,
			PausedPollMs:        7000,
			StoppedPollMs:       30000,
			PresenceMinUpdateMs: 15000,
			DebounceMs:          500,
		},
		EnableButtons: false,
		Assets: AssetsConfig{
			LargeImage:      "logo",
			LargeText:       "presence-bridge",
			SmallPlayImage:  "play",
			SmallPauseImage: "pause",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Diagnostics: DiagnosticsConfig{
			Enabled: true,
			Address: "127.0.0.1:34115",
		},
		Reload: ReloadConfig{
			FileWatchPollMs: 5000,
		},
	}
}

// LoadConfig loads configuration from a TOML file, applies environment
// overrides, and validates the result. It does not create a missing file —
// use `config init` (cmd/presence-bridge) for that, matching §6's "absence
// is a fatal startup error with exit code 2".
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file %q does not exist: run `presence-bridge config init`", configPath)
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies the PRESENCE_BRIDGE_* environment variables
// named in §6, layered over whatever the file specified.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PRESENCE_BRIDGE_DISCORD_APP_ID"); v != "" {
		c.DiscordAppID = v
	}
	if v := os.Getenv("PRESENCE_BRIDGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PRESENCE_BRIDGE_ENABLE_BUTTONS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.EnableButtons = b
		}
	}
}

// SaveToFile writes the configuration to a TOML file. It refuses to
// overwrite an existing file unless overwrite is true, matching `config
// init`'s non-destructive default.
func (c *Config) SaveToFile(configPath string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("config file %q already exists", configPath)
		}
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# presence-bridge configuration
# Mirrors the discord rich-presence bridge onto your local Discord client.
# discord_app_id is mandatory; get one at https://discord.com/developers/applications

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks invariants the loader must enforce before handing a
// config to the supervisor.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DiscordAppID) == "" {
		return fmt.Errorf("discord_app_id is required")
	}

	if c.Intervals.PlayingPollMs <= 0 {
		return fmt.Errorf("intervals.playing_poll_ms must be positive")
	}
	if c.Intervals.PausedPollMs <= 0 {
		return fmt.Errorf("intervals.paused_poll_ms must be positive")
	}
	if c.Intervals.StoppedPollMs <= 0 {
		return fmt.Errorf("intervals.stopped_poll_ms must be positive")
	}
	if c.Intervals.PresenceMinUpdateMs < 0 {
		return fmt.Errorf("intervals.presence_min_update_ms must not be negative")
	}
	if c.Intervals.DebounceMs < 0 {
		return fmt.Errorf("intervals.debounce_ms must not be negative")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	if c.Reload.FileWatchPollMs <= 0 {
		return fmt.Errorf("reload.file_watch_poll_ms must be positive")
	}

	if c.Diagnostics.Enabled && strings.TrimSpace(c.Diagnostics.Address) == "" {
		return fmt.Errorf("diagnostics.address cannot be empty when diagnostics are enabled")
	}

	return nil
}

// Clone returns a copy of the Config. Every field is a value type, so the
// copy shares no state with the original.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
