package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // the config field path (e.g., "workflow.max_iterations")
	Value   any    // the invalid value
	Message string // human-readable error description
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
	return []string{"DEBUG", "INFO", "WARN", "ERROR"}
}

// Validate checks the Config for invalid values and returns all
// validation errors found.
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Agent.Command) == "" {
		errors = append(errors, ValidationError{
			Field:   "agent.command",
			Value:   c.Agent.Command,
			Message: "agent command must not be empty",
		})
	}

	if strings.TrimSpace(c.Session.Dir) == "" {
		errors = append(errors, ValidationError{
			Field:   "session.dir",
			Value:   c.Session.Dir,
			Message: "session directory must not be empty",
		})
	}

	if c.Workflow.MaxIterations < 0 {
		errors = append(errors, ValidationError{
			Field:   "workflow.max_iterations",
			Value:   c.Workflow.MaxIterations,
			Message: "must be >= 0 (0 means unbounded)",
		})
	}

	if c.Workflow.MessageDispatchDelayMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "workflow.message_dispatch_delay_ms",
			Value:   c.Workflow.MessageDispatchDelayMs,
			Message: "must be >= 0",
		})
	}

	level := strings.ToUpper(c.Logging.Level)
	if !slices.Contains(ValidLogLevels(), level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of %v", ValidLogLevels()),
		})
	}

	return errors
}
