package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete Grove configuration
type Config struct {
	Tool         ToolConfig         `mapstructure:"tool"`
	Timeouts     TimeoutConfig      `mapstructure:"timeouts"`
	Retry        RetryConfig        `mapstructure:"retry"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Reports      ReportConfig       `mapstructure:"reports"`
	Assessment   AssessmentConfig   `mapstructure:"assessment"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ToolConfig describes the external generation tool and how to probe it
type ToolConfig struct {
	// Command is the external tool binary to invoke (default: "claude")
	Command string `mapstructure:"command"`
	// Args are fixed flags appended to every invocation (default: ["--print"])
	Args []string `mapstructure:"args"`
	// VersionFlag is the cheap availability probe flag (default: "--version")
	VersionFlag string `mapstructure:"version_flag"`
	// AuthPrompt is the minimal generation prompt used to verify authentication
	// (default: "Respond with exactly: OK")
	AuthPrompt string `mapstructure:"auth_prompt"`
	// AuthMarker is the substring expected in the auth probe's stdout (default: "OK")
	AuthMarker string `mapstructure:"auth_marker"`
}

// TimeoutConfig holds the tiered timeout budgets.
// The tiers are ordered: quick probe < auth check < full execution.
type TimeoutConfig struct {
	// QuickSeconds is the version-probe timeout (default: 20)
	QuickSeconds int `mapstructure:"quick_seconds"`
	// AuthSeconds is the authentication-check timeout (default: 30)
	AuthSeconds int `mapstructure:"auth_seconds"`
	// ExecutionSeconds is the full-invocation timeout (default: 600)
	ExecutionSeconds int `mapstructure:"execution_seconds"`
}

// RetryConfig controls the exponential-backoff retry policy for full invocations
type RetryConfig struct {
	// MaxRetries is the number of retry attempts after the initial failure (default: 3)
	MaxRetries int `mapstructure:"max_retries"`
	// BackoffBaseMs is the base delay in milliseconds (default: 2000)
	BackoffBaseMs int `mapstructure:"backoff_base_ms"`
	// JitterFraction is the upper bound of the uniform jitter as a fraction
	// of the computed delay (default: 0.2)
	JitterFraction float64 `mapstructure:"jitter_fraction"`
}

// OrchestratorConfig controls stage execution
type OrchestratorConfig struct {
	// MaxConcurrent is the maximum number of tasks executing at once within
	// a stage (default: 3)
	MaxConcurrent int `mapstructure:"max_concurrent"`
	// SweepStages is the stage count for the fixed numeric sweep
	// configuration (default: 5)
	SweepStages int `mapstructure:"sweep_stages"`
	// SweepTasksPerStage is the task count per sweep stage (default: 25)
	SweepTasksPerStage int `mapstructure:"sweep_tasks_per_stage"`
}

// ReportConfig controls where execution reports are written
type ReportConfig struct {
	// OutputRoot is the preferred report directory. Empty means
	// ".grove/reports" under the working directory. If the root cannot be
	// created the orchestrator falls back to a temp directory, then skips
	// reporting entirely.
	OutputRoot string `mapstructure:"output_root"`
}

// AssessmentConfig bounds the project assessment heuristic's file-system probes
type AssessmentConfig struct {
	// MaxDepth is the maximum directory depth scanned (default: 6)
	MaxDepth int `mapstructure:"max_depth"`
	// MaxFiles is the maximum number of files inspected (default: 500)
	MaxFiles int `mapstructure:"max_files"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled turns file logging on or off (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the log level: debug, info, warn, error (default: "info")
	Level string `mapstructure:"level"`
}

// QuickTimeout returns the version-probe timeout as a duration.
func (t *TimeoutConfig) QuickTimeout() time.Duration {
	return time.Duration(t.QuickSeconds) * time.Second
}

// AuthTimeout returns the authentication-check timeout as a duration.
func (t *TimeoutConfig) AuthTimeout() time.Duration {
	return time.Duration(t.AuthSeconds) * time.Second
}

// ExecutionTimeout returns the full-invocation timeout as a duration.
func (t *TimeoutConfig) ExecutionTimeout() time.Duration {
	return time.Duration(t.ExecutionSeconds) * time.Second
}

// BackoffBase returns the backoff base delay as a duration.
func (r *RetryConfig) BackoffBase() time.Duration {
	return time.Duration(r.BackoffBaseMs) * time.Millisecond
}

// ResolveOutputRoot returns the resolved report output root.
// If OutputRoot is empty, it returns the default path relative to baseDir.
// If OutputRoot starts with ~, it expands to the user's home directory.
// If OutputRoot is a relative path, it's resolved relative to baseDir.
func (r *ReportConfig) ResolveOutputRoot(baseDir string) string {
	if r.OutputRoot == "" {
		return filepath.Join(baseDir, ".grove", "reports")
	}

	path := r.OutputRoot

	// Expand ~ to home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	return path
}

// Default returns a Config populated with default values
func Default() *Config {
	return &Config{
		Tool: ToolConfig{
			Command:     "claude",
			Args:        []string{"--print"},
			VersionFlag: "--version",
			AuthPrompt:  "Respond with exactly: OK",
			AuthMarker:  "OK",
		},
		Timeouts: TimeoutConfig{
			QuickSeconds:     20,
			AuthSeconds:      30,
			ExecutionSeconds: 600,
		},
		Retry: RetryConfig{
			MaxRetries:     3,
			BackoffBaseMs:  2000,
			JitterFraction: 0.2,
		},
		Orchestrator: OrchestratorConfig{
			MaxConcurrent:      3,
			SweepStages:        5,
			SweepTasksPerStage: 25,
		},
		Reports: ReportConfig{
			OutputRoot: "",
		},
		Assessment: AssessmentConfig{
			MaxDepth: 6,
			MaxFiles: 500,
		},
		Logging: LoggingConfig{
			Enabled: true,
			Level:   "info",
		},
	}
}

// SetDefaults registers all default values with viper.
// Call this before reading the config file so defaults are available
// even when no config file exists.
func SetDefaults() {
	defaults := Default()

	// Tool defaults
	viper.SetDefault("tool.command", defaults.Tool.Command)
	viper.SetDefault("tool.args", defaults.Tool.Args)
	viper.SetDefault("tool.version_flag", defaults.Tool.VersionFlag)
	viper.SetDefault("tool.auth_prompt", defaults.Tool.AuthPrompt)
	viper.SetDefault("tool.auth_marker", defaults.Tool.AuthMarker)

	// Timeout defaults
	viper.SetDefault("timeouts.quick_seconds", defaults.Timeouts.QuickSeconds)
	viper.SetDefault("timeouts.auth_seconds", defaults.Timeouts.AuthSeconds)
	viper.SetDefault("timeouts.execution_seconds", defaults.Timeouts.ExecutionSeconds)

	// Retry defaults
	viper.SetDefault("retry.max_retries", defaults.Retry.MaxRetries)
	viper.SetDefault("retry.backoff_base_ms", defaults.Retry.BackoffBaseMs)
	viper.SetDefault("retry.jitter_fraction", defaults.Retry.JitterFraction)

	// Orchestrator defaults
	viper.SetDefault("orchestrator.max_concurrent", defaults.Orchestrator.MaxConcurrent)
	viper.SetDefault("orchestrator.sweep_stages", defaults.Orchestrator.SweepStages)
	viper.SetDefault("orchestrator.sweep_tasks_per_stage", defaults.Orchestrator.SweepTasksPerStage)

	// Report defaults
	viper.SetDefault("reports.output_root", defaults.Reports.OutputRoot)

	// Assessment defaults
	viper.SetDefault("assessment.max_depth", defaults.Assessment.MaxDepth)
	viper.SetDefault("assessment.max_files", defaults.Assessment.MaxFiles)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "grove")
	}
	// Fall back to ~/.config/grove
	home, err := os.UserHomeDir()
	if err != nil {
		return ".grove"
	}
	return filepath.Join(home, ".config", "grove")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
