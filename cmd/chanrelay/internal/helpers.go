package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/tinyland-inc/chanrelay/pkg/config"
	"github.com/tinyland-inc/chanrelay/pkg/logger"
)

const Logo = "📡"

var (
	version   = "dev"
	gitCommit string
	buildTime string
	goVersion string
)

// ConfigPath is set by the root --config flag.
var ConfigPath string

func GetConfigPath() string {
	if ConfigPath != "" {
		return ConfigPath
	}
	if p := os.Getenv("CHANRELAY_CONFIG"); p != "" {
		return p
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chanrelay", "config.json")
}

func LoadConfig() (*config.Config, error) {
	return config.LoadConfig(GetConfigPath())
}

// SetupLogging applies the configured level and file sink. debug overrides
// the level.
func SetupLogging(cfg *config.Config, debug bool) error {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	if debug {
		level = logger.DEBUG
	}
	logger.SetLevel(level)

	if path := cfg.LogFile(); path != "" {
		if err := logger.EnableFileLogging(path, cfg.Log.MaxSizeMB); err != nil {
			return fmt.Errorf("enabling file logging: %w", err)
		}
	}
	return nil
}

// FormatVersion returns the version string with optional git commit
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v
}

// FormatBuildInfo returns build time and go version info
func FormatBuildInfo() (string, string) {
	build := buildTime
	goVer := goVersion
	if goVer == "" {
		goVer = runtime.Version()
	}
	return build, goVer
}

func GetVersion() string {
	return version
}
