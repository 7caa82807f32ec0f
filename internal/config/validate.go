package config

import (
	"fmt"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:", len(e))
	for _, err := range e {
		msg += "\n  - " + err.Error()
	}
	return msg
}

// Validate checks the configuration for errors.
// Returns nil if valid, or ValidationErrors if invalid.
func Validate(cfg Config) error {
	var errs ValidationErrors

	// No IMAGE_API_KEYS is valid: image search falls back to scraping.
	if cfg.KeyBuffer >= cfg.KeyCeiling {
		errs = append(errs, ValidationError{
			Field:   "KEY_BUFFER",
			Message: fmt.Sprintf("must be below KEY_CEILING (%d >= %d)", cfg.KeyBuffer, cfg.KeyCeiling),
		})
	}

	if cfg.GeneratorURL == "" {
		errs = append(errs, ValidationError{
			Field:   "GENERATOR_URL",
			Message: "required",
		})
	}

	durations := []struct {
		field string
		value string
	}{
		{"CALL_TIMEOUT", cfg.CallTimeoutStr},
		{"CAP_BACKOFF", cfg.CapBackoffStr},
		{"RETRY_BACKOFF", cfg.RetryBackoffStr},
		{"CHECK_GRANULARITY", cfg.CheckGranularityStr},
	}
	for _, dur := range durations {
		if dur.value == "" {
			continue
		}
		d, err := time.ParseDuration(dur.value)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   dur.field,
				Message: fmt.Sprintf("invalid duration: %v", err),
			})
		} else if d <= 0 {
			errs = append(errs, ValidationError{
				Field:   dur.field,
				Message: "must be positive",
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
