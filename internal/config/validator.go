package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "orchestration.max_parallel")
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

	errors = append(errors, c.validateOrchestration()...)
	errors = append(errors, c.validateTUI()...)
	errors = append(errors, c.validateControl()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validatePaths()...)

	return errors
}

// validateOrchestration validates the OrchestrationConfig
func (c *Config) validateOrchestration() []ValidationError {
	var errors []ValidationError

	o := c.Orchestration

	// Parallelism bounds (0 means unlimited, which is valid)
	const maxMaxParallel = 128
	if o.MaxParallel < 0 {
		errors = append(errors, ValidationError{
			Field:   "orchestration.max_parallel",
			Value:   o.MaxParallel,
			Message: "must be non-negative (0 = unlimited)",
		})
	}
	if o.MaxParallel > maxMaxParallel {
		errors = append(errors, ValidationError{
			Field:   "orchestration.max_parallel",
			Value:   o.MaxParallel,
			Message: fmt.Sprintf("exceeds maximum of %d", maxMaxParallel),
		})
	}

	// Timeout validation (0 means disabled, which is valid; negative is invalid)
	const maxUnitTimeoutSeconds = 86400 // 24 hours
	if o.UnitTimeoutSeconds < 0 {
		errors = append(errors, ValidationError{
			Field:   "orchestration.unit_timeout_seconds",
			Value:   o.UnitTimeoutSeconds,
			Message: "must be non-negative (0 disables timeout)",
		})
	}
	if o.UnitTimeoutSeconds > maxUnitTimeoutSeconds {
		errors = append(errors, ValidationError{
			Field:   "orchestration.unit_timeout_seconds",
			Value:   o.UnitTimeoutSeconds,
			Message: fmt.Sprintf("exceeds maximum of %d seconds", maxUnitTimeoutSeconds),
		})
	}

	// Retry validation
	const maxMaxRetries = 20
	if o.MaxRetries < 0 {
		errors = append(errors, ValidationError{
			Field:   "orchestration.max_retries",
			Value:   o.MaxRetries,
			Message: "must be non-negative (0 disables retries)",
		})
	}
	if o.MaxRetries > maxMaxRetries {
		errors = append(errors, ValidationError{
			Field:   "orchestration.max_retries",
			Value:   o.MaxRetries,
			Message: fmt.Sprintf("exceeds maximum of %d", maxMaxRetries),
		})
	}

	// Backoff must exist when retries are enabled; entries must be sane
	if o.MaxRetries > 0 && len(o.BackoffSeconds) == 0 {
		errors = append(errors, ValidationError{
			Field:   "orchestration.backoff_seconds",
			Value:   o.BackoffSeconds,
			Message: "at least one backoff entry is required when retries are enabled",
		})
	}
	const maxBackoffSeconds = 3600
	for i, s := range o.BackoffSeconds {
		if s < 0 {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("orchestration.backoff_seconds[%d]", i),
				Value:   s,
				Message: "must be non-negative",
			})
		}
		if s > maxBackoffSeconds {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("orchestration.backoff_seconds[%d]", i),
				Value:   s,
				Message: fmt.Sprintf("exceeds maximum of %d seconds", maxBackoffSeconds),
			})
		}
	}

	// Threshold validation (0 means disabled)
	if o.PauseThreshold < 0 {
		errors = append(errors, ValidationError{
			Field:   "orchestration.pause_threshold",
			Value:   o.PauseThreshold,
			Message: "must be non-negative (0 disables pausing)",
		})
	}
	if o.AbortThreshold < 0 {
		errors = append(errors, ValidationError{
			Field:   "orchestration.abort_threshold",
			Value:   o.AbortThreshold,
			Message: "must be non-negative (0 disables aborting)",
		})
	}

	// If both are set, the pause threshold should trip first; consecutive
	// failures also count toward the cumulative total, so a higher pause
	// threshold could never fire
	if o.PauseThreshold > 0 && o.AbortThreshold > 0 && o.PauseThreshold > o.AbortThreshold {
		errors = append(errors, ValidationError{
			Field:   "orchestration.pause_threshold",
			Value:   o.PauseThreshold,
			Message: fmt.Sprintf("should not exceed abort_threshold (%v)", o.AbortThreshold),
		})
	}

	return errors
}

// validateTUI validates the TUIConfig
func (c *Config) validateTUI() []ValidationError {
	var errors []ValidationError

	// Refresh interval validation (0 means use default, which is valid)
	const minRefreshMs = 16
	const maxRefreshMs = 1000
	if c.TUI.RefreshMs != 0 {
		if c.TUI.RefreshMs < minRefreshMs {
			errors = append(errors, ValidationError{
				Field:   "tui.refresh_ms",
				Value:   c.TUI.RefreshMs,
				Message: fmt.Sprintf("must be at least %dms", minRefreshMs),
			})
		}
		if c.TUI.RefreshMs > maxRefreshMs {
			errors = append(errors, ValidationError{
				Field:   "tui.refresh_ms",
				Value:   c.TUI.RefreshMs,
				Message: fmt.Sprintf("exceeds maximum of %dms", maxRefreshMs),
			})
		}
	}

	return errors
}

// validateControl validates the ControlConfig
func (c *Config) validateControl() []ValidationError {
	var errors []ValidationError

	const maxDebounceMs = 5000
	if c.Control.DebounceMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "control.debounce_ms",
			Value:   c.Control.DebounceMs,
			Message: "must be non-negative",
		})
	}
	if c.Control.DebounceMs > maxDebounceMs {
		errors = append(errors, ValidationError{
			Field:   "control.debounce_ms",
			Value:   c.Control.DebounceMs,
			Message: fmt.Sprintf("exceeds maximum of %dms", maxDebounceMs),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}

// validatePaths validates the PathsConfig
func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	errors = append(errors, validatePathValue(c.Paths.RunDir, "paths.run_dir")...)
	errors = append(errors, validatePathValue(c.Paths.ControlDir, "paths.control_dir")...)

	return errors
}

// validatePathValue checks a configured path for invalid characters and length
func validatePathValue(path, field string) []ValidationError {
	var errors []ValidationError

	if path == "" {
		return nil
	}

	// Check for null bytes which are invalid in paths
	if strings.ContainsRune(path, '\x00') {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: "path contains invalid null character",
		})
	}

	// Reasonable path length limit (most filesystems have limits around 4096)
	const maxPathLength = 4096
	if len(path) > maxPathLength {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   path,
			Message: fmt.Sprintf("path exceeds maximum length of %d characters", maxPathLength),
		})
	}

	return errors
}
