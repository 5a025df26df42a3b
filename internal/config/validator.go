package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/lull/internal/persist"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "session.grace_period")
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

// Bounds for timing settings.
const (
	minPollInterval = 10 * time.Millisecond
	maxGracePeriod  = 24 * time.Hour
)

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateSession()...)
	errors = append(errors, c.validatePersistence()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateActivity()...)

	return errors
}

// validateSession validates the SessionConfig
func (c *Config) validateSession() []ValidationError {
	var errors []ValidationError

	// Zero is allowed: sessions then expire on the first tick after ending
	if c.Session.GracePeriod < 0 {
		errors = append(errors, ValidationError{
			Field:   "session.grace_period",
			Value:   c.Session.GracePeriod,
			Message: "must be non-negative",
		})
	}
	if c.Session.GracePeriod > maxGracePeriod {
		errors = append(errors, ValidationError{
			Field:   "session.grace_period",
			Value:   c.Session.GracePeriod,
			Message: fmt.Sprintf("exceeds maximum of %s", maxGracePeriod),
		})
	}

	if c.Session.PollInterval < minPollInterval {
		errors = append(errors, ValidationError{
			Field:   "session.poll_interval",
			Value:   c.Session.PollInterval,
			Message: fmt.Sprintf("must be at least %s", minPollInterval),
		})
	}

	return errors
}

// validatePersistence validates the PersistenceConfig
func (c *Config) validatePersistence() []ValidationError {
	var errors []ValidationError

	if _, err := persist.CodecFor(c.Persistence.Format); err != nil {
		errors = append(errors, ValidationError{
			Field:   "persistence.format",
			Value:   c.Persistence.Format,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(persist.ValidFormats(), ", ")),
		})
	}

	if strings.ContainsRune(c.Persistence.Path, 0) {
		errors = append(errors, ValidationError{
			Field:   "persistence.path",
			Value:   c.Persistence.Path,
			Message: "contains a NUL byte",
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	// Reasonable upper bound for log file size
	const maxLogSizeMB = 1000 // 1GB
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// validateActivity validates the ActivityConfig
func (c *Config) validateActivity() []ValidationError {
	var errors []ValidationError

	if c.Activity.IdleTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "activity.idle_timeout",
			Value:   c.Activity.IdleTimeout,
			Message: "must be positive",
		})
	}

	return errors
}
