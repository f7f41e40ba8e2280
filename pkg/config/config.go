package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"
	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	// Try []interface{} to handle mixed types
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Console  ConsoleConfig  `json:"console"`
	Storage  StorageConfig  `json:"storage"`
	Relay    RelayConfig    `json:"relay"`
	Log      LogConfig      `json:"log"`
}

type TelegramConfig struct {
	Enabled   bool                `env:"CHANRELAY_TELEGRAM_ENABLED"    json:"enabled"`
	Token     string              `env:"CHANRELAY_TELEGRAM_TOKEN"      json:"token"`
	APIServer string              `env:"CHANRELAY_TELEGRAM_API_SERVER" json:"api_server,omitempty"`
	AllowFrom FlexibleStringSlice `env:"CHANRELAY_TELEGRAM_ALLOW_FROM" json:"allow_from"`
	// MediaGroupDelayMS holds album members back so their siblings reach the
	// history before the relay looks for them. Without a delay the first
	// member would flush as a one-item album.
	MediaGroupDelayMS int `env:"CHANRELAY_TELEGRAM_MEDIA_GROUP_DELAY_MS" json:"media_group_delay_ms"`
	HistorySize       int `env:"CHANRELAY_TELEGRAM_HISTORY_SIZE"        json:"history_size"`
	PollTimeout       int `env:"CHANRELAY_TELEGRAM_POLL_TIMEOUT"        json:"poll_timeout"`
}

type ConsoleConfig struct {
	Prompt      string `env:"CHANRELAY_CONSOLE_PROMPT"       json:"prompt"`
	HistoryFile string `env:"CHANRELAY_CONSOLE_HISTORY_FILE" json:"history_file"`
}

type StorageConfig struct {
	Path string `env:"CHANRELAY_STORAGE_PATH" json:"path"`
}

type RelayConfig struct {
	FetchWindow       int    `env:"CHANRELAY_RELAY_FETCH_WINDOW"        json:"fetch_window"`
	MaxAlbumSize      int    `env:"CHANRELAY_RELAY_MAX_ALBUM_SIZE"      json:"max_album_size"`
	AlbumTTLSeconds   int    `env:"CHANRELAY_RELAY_ALBUM_TTL_SECONDS"   json:"album_ttl_seconds"`
	MaxBufferedAlbums int    `env:"CHANRELAY_RELAY_MAX_BUFFERED_ALBUMS" json:"max_buffered_albums"`
	SweepSchedule     string `env:"CHANRELAY_RELAY_SWEEP_SCHEDULE"      json:"sweep_schedule"`
	// StartEnabled starts forwarding without waiting for /start.
	StartEnabled bool `env:"CHANRELAY_RELAY_START_ENABLED" json:"start_enabled"`
}

func (r RelayConfig) AlbumTTL() time.Duration {
	return time.Duration(r.AlbumTTLSeconds) * time.Second
}

type LogConfig struct {
	Level string `env:"CHANRELAY_LOG_LEVEL" json:"level"`
	File  string `env:"CHANRELAY_LOG_FILE"  json:"file,omitempty"`
	// MaxSizeMB rotates File once it grows past this size.
	MaxSizeMB int `env:"CHANRELAY_LOG_MAX_SIZE_MB" json:"max_size_mb"`
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks the values that would otherwise fail deep inside the
// relay at runtime.
func (c *Config) Validate() error {
	var errs []error
	positive := []struct {
		name  string
		value int
	}{
		{"relay.fetch_window", c.Relay.FetchWindow},
		{"relay.max_album_size", c.Relay.MaxAlbumSize},
		{"relay.album_ttl_seconds", c.Relay.AlbumTTLSeconds},
		{"relay.max_buffered_albums", c.Relay.MaxBufferedAlbums},
		{"telegram.history_size", c.Telegram.HistorySize},
		{"telegram.media_group_delay_ms", c.Telegram.MediaGroupDelayMS},
		{"log.max_size_mb", c.Log.MaxSizeMB},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", p.name, p.value))
		}
	}
	if c.Telegram.HistorySize > 0 && c.Telegram.HistorySize < 2*c.Relay.FetchWindow+1 {
		errs = append(errs, fmt.Errorf("telegram.history_size (%d) must cover the fetch window (%d)",
			c.Telegram.HistorySize, 2*c.Relay.FetchWindow+1))
	}
	if s := c.Relay.SweepSchedule; s != "" {
		g := gronx.New()
		if !g.IsValid(s) {
			errs = append(errs, fmt.Errorf("relay.sweep_schedule %q is not a valid cron expression", s))
		}
	}
	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path is required"))
	}
	return errors.Join(errs...)
}

// StoragePath returns the configuration store path with ~ expanded.
func (c *Config) StoragePath() string {
	return expandHome(c.Storage.Path)
}

func (c *Config) LogFile() string {
	return expandHome(c.Log.File)
}

func (c *Config) ConsoleHistoryFile() string {
	return expandHome(c.Console.HistoryFile)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
