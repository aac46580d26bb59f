package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Freeze behavior configuration
	Freeze FreezeConfig

	// Command hook configuration
	Command CommandConfig

	// Log output configuration
	Log LogConfig
}

// FreezeConfig holds capture and presentation configuration
type FreezeConfig struct {
	HideCursor bool // Leave the cursor out of the captured frames
}

// CommandConfig holds the before and after command hooks
type CommandConfig struct {
	BeforeCmd     string        // Shell command spawned before capture starts
	BeforeTimeout time.Duration // Wait after spawning the before command
	AfterCmd      string        // Shell command spawned after teardown
	AfterTimeout  time.Duration // Wait after spawning the after command
}

// LogConfig holds log output configuration
type LogConfig struct {
	Level  string // debug, info, warn or error
	Format string // text or json
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Freeze: FreezeConfig{
			HideCursor: false, // Cursor is composited into the frames by default
		},
		Command: CommandConfig{
			BeforeCmd:     "",
			BeforeTimeout: 0,
			AfterCmd:      "",
			AfterTimeout:  0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Command.BeforeTimeout < 0 {
		return fmt.Errorf("before-freeze timeout cannot be negative, got %v", c.Command.BeforeTimeout)
	}
	if c.Command.AfterTimeout < 0 {
		return fmt.Errorf("after-freeze timeout cannot be negative, got %v", c.Command.AfterTimeout)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be debug, info, warn or error, got %q", c.Log.Level)
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(`Configuration:
  Freeze:
    Hide Cursor: %v
  Command:
    Before: %q (wait %v)
    After: %q (wait %v)
  Log:
    Level: %s
    Format: %s`,
		c.Freeze.HideCursor,
		c.Command.BeforeCmd,
		c.Command.BeforeTimeout,
		c.Command.AfterCmd,
		c.Command.AfterTimeout,
		c.Log.Level,
		c.Log.Format,
	)
}
