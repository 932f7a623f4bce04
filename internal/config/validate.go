package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// ValidationError represents a specific validation failure in the
// configuration.
type ValidationError struct {
	// Field is the dotted path of the offending setting (e.g., "server.port").
	Field string

	// Message describes what's wrong with the value.
	Message string
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s: %s", e.Field, e.Message)
}

// JoinValidationErrors folds a list of validation errors into one error.
func JoinValidationErrors(errs []ValidationError) error {
	joined := make([]error, 0, len(errs))
	for i := range errs {
		joined = append(joined, &errs[i])
	}
	return errors.Join(joined...)
}

// Validate checks the configuration and returns every problem found
// (empty list = valid configuration).
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port %d out of range (1-65535)", c.Server.Port),
		})
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, ValidationError{
			Field:   "server.max_upload_bytes",
			Message: "must be positive",
		})
	}
	if c.Server.ShutdownTimeout < 0 || c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "server",
			Message: "timeouts must not be negative",
		})
	}

	if _, err := c.Server.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, ValidationError{
			Field:   "server.trusted_proxies",
			Message: err.Error(),
		})
	}

	if c.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{
			Field:   "rate_limit.requests_per_second",
			Message: "must not be negative",
		})
	}
	if c.RateLimit.Enabled() && c.RateLimit.Burst < 1 {
		errs = append(errs, ValidationError{
			Field:   "rate_limit.burst",
			Message: "must be at least 1 when rate limiting is enabled",
		})
	}

	if c.Decoder.MaxDigits <= 0 {
		errs = append(errs, ValidationError{
			Field:   "decoder.max_digits",
			Message: "must be positive",
		})
	}
	if c.Decoder.MaxDecompressedBytes <= 0 {
		errs = append(errs, ValidationError{
			Field:   "decoder.max_decompressed_bytes",
			Message: "must be positive",
		})
	}
	if c.Decoder.SignatureCert != "" {
		if _, err := os.Stat(c.Decoder.SignatureCert); err != nil {
			errs = append(errs, ValidationError{
				Field:   "decoder.signature_cert",
				Message: fmt.Sprintf("certificate not readable: %v", err),
			})
		}
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: err.Error(),
		})
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid format %q (valid: text, json)", c.Log.Format),
		})
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, ValidationError{
			Field:   "metrics.path",
			Message: "must start with /",
		})
	}

	return errs
}
