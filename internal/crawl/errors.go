package crawl

import (
	"errors"
	"fmt"
)

// ConfigError reports an invalid CrawlRequest. Nothing is fetched or
// written when one is returned.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Msg)
}

// RemoteError is a failed remote call after the retry policy gave up.
// Transient errors exhausted their retries; permanent errors were never
// retried.
type RemoteError struct {
	Transient  bool
	StatusCode int
	Err        error
}

func (e *RemoteError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("remote (%s, status %d): %v", kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote (%s): %v", kind, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// SchemaError reports an append-time column mismatch under
// fail_on_new_columns. Previously flushed rows are untouched.
type SchemaError struct {
	NewColumns []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: record introduces unseen columns %v", e.NewColumns)
}

// IOError wraps a disk failure on the output file. Fatal for the run.
type IOError struct {
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("io: %s: %v", e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable remote failure.
func IsTransient(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Transient
}

// IsPermanent reports whether err is a remote failure that must not be
// retried.
func IsPermanent(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && !re.Transient
}
