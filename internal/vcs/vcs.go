// Package vcs describes the git operations the sync controller needs and
// the guards every caller must pass before a subprocess is started.
//
// # Architecture
//
// The Repository interface covers exactly what a sync run does:
//   - Read a status snapshot
//   - Switch to the configured branch
//   - Pull, commit the exported files, push
//
// Every implementation runs git as a subprocess with an explicit timeout
// per call. User-controlled strings (branch, remote, message, author,
// paths) go through Validate* before they reach an argument list.
//
// # Implementations
//
//   - internal/vcs/git: the git CLI, with go-git for read-only history
package vcs

import (
	"context"
	"time"
)

// DefaultTimeout bounds one git invocation when the caller sets none.
const DefaultTimeout = 30 * time.Second

// Status is a point-in-time snapshot of a working tree.
type Status struct {
	Branch    string
	Detached  bool
	Clean     bool
	Modified  []string
	Added     []string
	Deleted   []string
	Untracked []string
	Staged    []string
	Conflicts []string

	Remote    string
	RemoteURL string
	// RemoteHost is the host parsed from RemoteURL, empty when the URL
	// is not a recognisable git URL.
	RemoteHost string

	Recent []CommitInfo
}

// CommitInfo describes one commit of the recent history.
type CommitInfo struct {
	Hash    string
	Author  string
	Message string
	When    time.Time
}

// Author identifies the commit author. Both fields are optional; git's
// own configuration applies when they are empty.
type Author struct {
	Name  string
	Email string
}

// String returns the "Name <email>" form git accepts for --author.
func (a Author) String() string {
	switch {
	case a.Name == "" && a.Email == "":
		return ""
	case a.Email == "":
		return a.Name + " <>"
	default:
		return a.Name + " <" + a.Email + ">"
	}
}

// CommitOptions configures a commit.
type CommitOptions struct {
	Message string
	Author  Author
	// Paths limits the commit to these paths, relative to the repository
	// root. They are staged first.
	Paths []string
}

// PullOptions configures a pull. Empty fields fall back to the branch's
// configured upstream, then to origin and the current branch.
type PullOptions struct {
	Remote string
	Branch string
	FFOnly bool
}

// PushOptions configures a push.
type PushOptions struct {
	Remote      string
	Branch      string
	SetUpstream bool
}

// Repository is a git working tree driven by the sync controller.
type Repository interface {
	// Root returns the absolute path of the working tree.
	Root() string

	// Status returns the current snapshot. It runs first in every sync.
	Status(ctx context.Context) (*Status, error)

	// CurrentBranch returns the checked out branch, or ErrDetached.
	CurrentBranch(ctx context.Context) (string, error)

	// Checkout switches to branch. A missing local branch is created
	// tracking remote/branch when that exists, and from HEAD otherwise.
	Checkout(ctx context.Context, branch, remote string) error

	Pull(ctx context.Context, opts PullOptions) error
	Push(ctx context.Context, opts PushOptions) error

	// Commit stages opts.Paths and commits them.
	Commit(ctx context.Context, opts CommitOptions) error
}
