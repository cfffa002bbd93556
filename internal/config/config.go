// Package config holds the ralph configuration, loaded through viper from
// (in increasing precedence) built-in defaults, the YAML config file, and
// RALPH_-prefixed environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete ralph configuration
type Config struct {
	Agent    AgentConfig    `mapstructure:"agent"`
	Session  SessionConfig  `mapstructure:"session"`
	Workflow WorkflowConfig `mapstructure:"workflow"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AgentConfig controls how the external agent CLI is invoked
type AgentConfig struct {
	// Command is the agent CLI binary (default: "claude")
	Command string `mapstructure:"command"`
	// OneShotFlag is appended for non-interactive single-prompt runs
	OneShotFlag string `mapstructure:"one_shot_flag"`
	// SkipPermissions passes the agent's permission-bypass flag
	SkipPermissions bool `mapstructure:"skip_permissions"`
	// Model optionally pins a model name passed via --model
	Model string `mapstructure:"model"`
}

// SessionConfig controls session persistence
type SessionConfig struct {
	// Dir is the base directory holding all session directories
	// (default: ~/.ralph/sessions)
	Dir string `mapstructure:"dir"`
}

// WorkflowConfig controls the workflow engine
type WorkflowConfig struct {
	// MaxIterations caps implementation/review retries (0 = unbounded)
	MaxIterations int `mapstructure:"max_iterations"`
	// MessageDispatchDelayMs is the pause before a queued user message is
	// released after a turn ends, so it does not visually collide with
	// the finished turn's output
	MessageDispatchDelayMs int `mapstructure:"message_dispatch_delay_ms"`
	// FeatureList is the default feature-list file consulted when
	// starting without --yolo
	FeatureList string `mapstructure:"feature_list"`
}

// MessageDispatchDelay returns the queued-message dispatch delay as a Duration.
func (w *WorkflowConfig) MessageDispatchDelay() time.Duration {
	return time.Duration(w.MessageDispatchDelayMs) * time.Millisecond
}

// LoggingConfig controls debug logging
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR
	Level string `mapstructure:"level"`
}

// Default returns the built-in configuration defaults.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Command:         "claude",
			OneShotFlag:     "--print",
			SkipPermissions: true,
		},
		Session: SessionConfig{
			Dir: defaultSessionDir(),
		},
		Workflow: WorkflowConfig{
			MaxIterations:          5,
			MessageDispatchDelayMs: 250,
			FeatureList:            "FEATURES.md",
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// SetDefaults registers the default values with viper.
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("agent.command", defaults.Agent.Command)
	viper.SetDefault("agent.one_shot_flag", defaults.Agent.OneShotFlag)
	viper.SetDefault("agent.skip_permissions", defaults.Agent.SkipPermissions)
	viper.SetDefault("agent.model", defaults.Agent.Model)

	viper.SetDefault("session.dir", defaults.Session.Dir)

	viper.SetDefault("workflow.max_iterations", defaults.Workflow.MaxIterations)
	viper.SetDefault("workflow.message_dispatch_delay_ms", defaults.Workflow.MessageDispatchDelayMs)
	viper.SetDefault("workflow.feature_list", defaults.Workflow.FeatureList)

	viper.SetDefault("logging.level", defaults.Logging.Level)
}

// Load unmarshals and validates the current viper state.
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the directory holding the config file.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ralph")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ralph"
	}
	return filepath.Join(home, ".config", "ralph")
}

// defaultSessionDir returns the default base directory for sessions.
func defaultSessionDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ralph", "sessions")
	}
	return filepath.Join(home, ".ralph", "sessions")
}
