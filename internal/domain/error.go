package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrNotInitialized      = errors.New("provider not initialized")
	ErrProviderNotFound    = errors.New("provider not registered")
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrNoActiveProvider    = errors.New("no active provider")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionInvalidated  = errors.New("session invalidated by model switch")
	ErrCancelled           = errors.New("prompt cancelled")
	ErrGPUContextLost      = errors.New("gpu context lost")
	ErrMissingResponseBody = errors.New("missing response body")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
)

// ConfigError marks a missing or invalid configuration value. It is always
// surfaced synchronously (from Initialize, SwitchModel and friends) and is
// never retried.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Message)
}

// NewConfigError builds a ConfigError for the given field.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{Field: field, Message: message}
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// TransportError carries a failed upstream exchange: a non-2xx status with
// the response body text, or a network-level failure with Status == 0.
type TransportError struct {
	Status int
	Body   string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transport error: http %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is (or wraps) a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
