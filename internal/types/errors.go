package types

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is reported when an operation stops because its
	// context was cancelled between files.
	ErrCancelled = errors.New("operation cancelled")

	// ErrSourceNotFound is returned when the import source does not exist.
	ErrSourceNotFound = errors.New("source path not found")
)

// ValidationError reports a bad option value. It is raised before any
// work starts.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// SecurityValidationError reports a value rejected by the subprocess
// argument denylist.
type SecurityValidationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *SecurityValidationError) Error() string {
	return fmt.Sprintf("unsafe %s %q: %s", e.Field, e.Value, e.Reason)
}

// RepositoryStateError wraps a failure of one repository step (status,
// branch, pull, commit, push).
type RepositoryStateError struct {
	Stage string
	Err   error
}

func (e *RepositoryStateError) Error() string {
	return fmt.Sprintf("repository %s failed: %v", e.Stage, e.Err)
}

func (e *RepositoryStateError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a configuration problem that the
// user must fix before retrying.
func IsValidation(err error) bool {
	var v *ValidationError
	var s *SecurityValidationError
	return errors.As(err, &v) || errors.As(err, &s)
}
