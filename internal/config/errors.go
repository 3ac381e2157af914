package config

import "fmt"

// ConfigurationError reports a missing or invalid input detected before any
// network activity starts. It is always fatal.
type ConfigurationError struct {
	Field  string // Setting, flag or file that is wrong
	Reason string // Human-readable explanation
	Err    error  // Underlying error, if any
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error for %s: %s: %v", e.Field, e.Reason, e.Err)
	}

	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
