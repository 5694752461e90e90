package model

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable marks a vector or graph backend that cannot be
	// reached. Query paths degrade that side to an empty result instead of
	// failing the lookup.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrNotFound marks a lookup miss. Readers translate it to an empty
	// result, not a failure.
	ErrNotFound = errors.New("not found")

	// ErrMalformedItem rejects a single add whose required fields are
	// missing. Batches continue past it.
	ErrMalformedItem = errors.New("malformed item")
)

// ConfigError reports an unusable configuration value, such as a non-positive
// tier weight or an unknown strategy name.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// NewConfigError builds a ConfigError for the named field.
func NewConfigError(field, reason string) error {
	return &ConfigError{Field: field, Reason: reason}
}
