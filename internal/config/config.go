// Package config provides configuration loading for the debug agent.
// Values layer in order: built-in defaults, then an optional YAML file,
// then REMORA_* environment variables.
package config

import (
	"fmt"
	"time"
)

// Config is the full agent configuration.
type Config struct {
	Listen ListenConfig `yaml:"listen"`
	Log    LogConfig    `yaml:"log"`
	Agent  AgentConfig  `yaml:"agent"`
}

// ListenConfig controls the client-facing TCP listener.
type ListenConfig struct {
	// Address is the bind address, without port.
	Address string `yaml:"address" env:"REMORA_LISTEN_ADDRESS"`

	// Port is the TCP port clients connect to.
	Port int `yaml:"port" env:"REMORA_LISTEN_PORT"`

	// AcceptBackoff bounds the retry backoff after transient accept
	// failures.
	AcceptBackoff time.Duration `yaml:"accept_backoff" env:"REMORA_ACCEPT_BACKOFF"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `yaml:"level" env:"REMORA_LOG_LEVEL"`

	// Pretty switches from JSON to human-readable console output.
	Pretty bool `yaml:"pretty" env:"REMORA_LOG_PRETTY"`
}

// AgentConfig controls debug-session behavior.
type AgentConfig struct {
	// QuitOnExit makes the agent shut down when the last debugged
	// process exits. A client can flip this at runtime.
	QuitOnExit bool `yaml:"quit_on_exit" env:"REMORA_QUIT_ON_EXIT"`

	// MaxWorkers bounds the worker pool used for asynchronous request
	// handling.
	MaxWorkers int `yaml:"max_workers" env:"REMORA_MAX_WORKERS"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Address:       "127.0.0.1",
			Port:          2345,
			AcceptBackoff: 1 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		Agent: AgentConfig{
			MaxWorkers: 4,
		},
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen port %d out of range", c.Listen.Port)
	}
	if c.Listen.Address == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	if c.Agent.MaxWorkers < 1 {
		return fmt.Errorf("max workers must be at least 1, got %d", c.Agent.MaxWorkers)
	}
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// ListenAddr returns the address:port string for net.Listen.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Listen.Address, c.Listen.Port)
}
