package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "retry.max_retries")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateTool()...)
	errors = append(errors, c.validateTimeouts()...)
	errors = append(errors, c.validateRetry()...)
	errors = append(errors, c.validateOrchestrator()...)
	errors = append(errors, c.validateAssessment()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateTool() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Tool.Command) == "" {
		errors = append(errors, ValidationError{
			Field:   "tool.command",
			Value:   c.Tool.Command,
			Message: "must not be empty",
		})
	}
	if strings.TrimSpace(c.Tool.AuthMarker) == "" {
		errors = append(errors, ValidationError{
			Field:   "tool.auth_marker",
			Value:   c.Tool.AuthMarker,
			Message: "must not be empty",
		})
	}

	return errors
}

func (c *Config) validateTimeouts() []ValidationError {
	var errors []ValidationError

	if c.Timeouts.QuickSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "timeouts.quick_seconds",
			Value:   c.Timeouts.QuickSeconds,
			Message: "must be positive",
		})
	}
	if c.Timeouts.AuthSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "timeouts.auth_seconds",
			Value:   c.Timeouts.AuthSeconds,
			Message: "must be positive",
		})
	}
	if c.Timeouts.ExecutionSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "timeouts.execution_seconds",
			Value:   c.Timeouts.ExecutionSeconds,
			Message: "must be positive",
		})
	}

	// The tiers must stay ordered: quick probe < auth check < full execution.
	if c.Timeouts.QuickSeconds > 0 && c.Timeouts.AuthSeconds > 0 &&
		c.Timeouts.QuickSeconds > c.Timeouts.AuthSeconds {
		errors = append(errors, ValidationError{
			Field:   "timeouts.quick_seconds",
			Value:   c.Timeouts.QuickSeconds,
			Message: "must not exceed timeouts.auth_seconds",
		})
	}
	if c.Timeouts.AuthSeconds > 0 && c.Timeouts.ExecutionSeconds > 0 &&
		c.Timeouts.AuthSeconds > c.Timeouts.ExecutionSeconds {
		errors = append(errors, ValidationError{
			Field:   "timeouts.auth_seconds",
			Value:   c.Timeouts.AuthSeconds,
			Message: "must not exceed timeouts.execution_seconds",
		})
	}

	return errors
}

func (c *Config) validateRetry() []ValidationError {
	var errors []ValidationError

	if c.Retry.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.max_retries",
			Value:   c.Retry.MaxRetries,
			Message: "must be non-negative",
		})
	}
	if c.Retry.BackoffBaseMs <= 0 {
		errors = append(errors, ValidationError{
			Field:   "retry.backoff_base_ms",
			Value:   c.Retry.BackoffBaseMs,
			Message: "must be positive",
		})
	}
	if c.Retry.JitterFraction < 0 || c.Retry.JitterFraction > 1 {
		errors = append(errors, ValidationError{
			Field:   "retry.jitter_fraction",
			Value:   c.Retry.JitterFraction,
			Message: "must be between 0 and 1",
		})
	}

	return errors
}

func (c *Config) validateOrchestrator() []ValidationError {
	var errors []ValidationError

	if c.Orchestrator.MaxConcurrent <= 0 {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.max_concurrent",
			Value:   c.Orchestrator.MaxConcurrent,
			Message: "must be positive",
		})
	}
	if c.Orchestrator.SweepStages <= 0 {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.sweep_stages",
			Value:   c.Orchestrator.SweepStages,
			Message: "must be positive",
		})
	}
	if c.Orchestrator.SweepTasksPerStage <= 0 {
		errors = append(errors, ValidationError{
			Field:   "orchestrator.sweep_tasks_per_stage",
			Value:   c.Orchestrator.SweepTasksPerStage,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateAssessment() []ValidationError {
	var errors []ValidationError

	if c.Assessment.MaxDepth <= 0 {
		errors = append(errors, ValidationError{
			Field:   "assessment.max_depth",
			Value:   c.Assessment.MaxDepth,
			Message: "must be positive",
		})
	}
	if c.Assessment.MaxFiles <= 0 {
		errors = append(errors, ValidationError{
			Field:   "assessment.max_files",
			Value:   c.Assessment.MaxFiles,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
