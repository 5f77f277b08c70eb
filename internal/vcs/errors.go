package vcs

import (
	"errors"

	"github.com/noteport/noteport/internal/types"
)

// Common errors returned by repository operations.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, vcs.ErrNotInRepo) {
//	    // the sync target is not a git checkout
//	}
var (
	// ErrNotInRepo is returned when the path is not inside a git
	// working tree.
	ErrNotInRepo = errors.New("not in a git repository")

	// ErrGitNotAvailable is returned when the git binary is not installed
	// or not in PATH.
	ErrGitNotAvailable = errors.New("git binary not available")

	// ErrNoRemote is returned when an operation requires a remote
	// but none is configured.
	ErrNoRemote = errors.New("no remote configured")

	// ErrConflicts is returned when a pull leaves unresolved conflicts.
	ErrConflicts = errors.New("unresolved conflicts")

	// ErrDetached is returned when HEAD does not point at a branch and
	// the operation needs one.
	ErrDetached = errors.New("HEAD is detached")

	// ErrPushRejected is returned when the remote refuses the push,
	// usually because it has commits we do not.
	ErrPushRejected = errors.New("push rejected by remote")

	// ErrMergeRequired is returned when a fast-forward is impossible.
	ErrMergeRequired = errors.New("merge required")

	// ErrNothingToCommit is returned when a commit is asked for but no
	// staged change exists.
	ErrNothingToCommit = errors.New("nothing to commit")

	// ErrTimeout is returned when a git invocation exceeds its timeout.
	ErrTimeout = errors.New("git command timed out")
)

// IsRetryable returns true if the same call may succeed when repeated
// without user action.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTimeout)
}

// IsUserActionRequired returns true if the error needs the user
// to resolve (conflicts, divergent history, etc).
func IsUserActionRequired(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrConflicts) {
		return true
	}

	// Divergent histories need merge decision
	if errors.Is(err, ErrMergeRequired) {
		return true
	}

	// Push rejected usually means divergent remote
	if errors.Is(err, ErrPushRejected) {
		return true
	}

	return false
}

// IsFatal returns true if nothing can be done in this repository until
// the environment or the input changes.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var unsafe *types.SecurityValidationError
	return errors.Is(err, ErrNotInRepo) ||
		errors.Is(err, ErrGitNotAvailable) ||
		errors.As(err, &unsafe)
}
