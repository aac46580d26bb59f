package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// EnvFileVar points at an explicit config file; when unset the default
// location under XDG_CONFIG_HOME is tried.
const EnvFileVar = "WAYFREEZE_CONFIG"

// LoadFromEnv loads configuration from environment variables
// Environment variables override default values
func LoadFromEnv(cfg *Config) {
	if hideCursor := os.Getenv("WAYFREEZE_HIDE_CURSOR"); hideCursor != "" {
		if val, err := strconv.ParseBool(hideCursor); err == nil {
			cfg.Freeze.HideCursor = val
		}
	}

	if beforeCmd := os.Getenv("WAYFREEZE_BEFORE_CMD"); beforeCmd != "" {
		cfg.Command.BeforeCmd = beforeCmd
	}

	if beforeTimeout := os.Getenv("WAYFREEZE_BEFORE_TIMEOUT"); beforeTimeout != "" {
		if ms, err := strconv.Atoi(beforeTimeout); err == nil && ms >= 0 {
			cfg.Command.BeforeTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	if afterCmd := os.Getenv("WAYFREEZE_AFTER_CMD"); afterCmd != "" {
		cfg.Command.AfterCmd = afterCmd
	}

	if afterTimeout := os.Getenv("WAYFREEZE_AFTER_TIMEOUT"); afterTimeout != "" {
		if ms, err := strconv.Atoi(afterTimeout); err == nil && ms >= 0 {
			cfg.Command.AfterTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	if level := os.Getenv("WAYFREEZE_LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}

	if format := os.Getenv("WAYFREEZE_LOG_FORMAT"); format != "" {
		cfg.Log.Format = format
	}
}

// LoadEnvFile merges the config file into the process environment
// without overriding variables that are already set, so the precedence
// stays flags over environment over file over defaults.
func LoadEnvFile() {
	path := resolveEnvFile()
	if path == "" {
		return
	}
	_ = godotenv.Load(path)
}

func resolveEnvFile() string {
	if explicit := os.Getenv(EnvFileVar); explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(home, ".config")
	}

	path := filepath.Join(configDir, "wayfreeze", "config.env")
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}

// New creates a new Config with default values, the config file merged
// into the environment, and environment overrides applied
func New() *Config {
	cfg := Default()
	LoadEnvFile()
	LoadFromEnv(cfg)
	return cfg
}
