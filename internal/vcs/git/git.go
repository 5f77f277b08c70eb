// Package git implements vcs.Repository on top of the git command line.
//
// Every mutating call shells out to git with a per-call timeout. Read-only
// history and remote configuration come from go-git, which reads the
// repository files directly and needs no subprocess.
package git

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	gogit "github.com/go-git/go-git/v5"

	"github.com/noteport/noteport/internal/vcs"
)

// Options configures a Git instance.
type Options struct {
	// Timeout bounds each git invocation. Zero means vcs.DefaultTimeout.
	Timeout time.Duration
	// RecentCommits is how many commits Status reports. Zero means 5.
	RecentCommits int
	Logger        *log.Logger
}

// Git is a working tree driven through the git binary.
type Git struct {
	root    string
	timeout time.Duration
	recent  int
	logger  *log.Logger
}

var _ vcs.Repository = (*Git)(nil)

// Open returns the repository containing path.
func Open(ctx context.Context, path string, opts Options) (*Git, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	if fi, err := os.Stat(abs); err != nil || !fi.IsDir() {
		return nil, fmt.Errorf("%s: %w", path, vcs.ErrNotInRepo)
	}

	g := &Git{
		timeout: opts.Timeout,
		recent:  opts.RecentCommits,
		logger:  opts.Logger,
	}
	if g.timeout <= 0 {
		g.timeout = vcs.DefaultTimeout
	}
	if g.recent <= 0 {
		g.recent = 5
	}
	if g.logger == nil {
		g.logger = log.New(os.Stderr, "[git] ", log.LstdFlags)
	}

	out, err := vcs.ExecContext(ctx, g.timeout, abs, "git", "rev-parse", "--show-toplevel")
	if err != nil {
		if vcs.IsFatal(err) || vcs.IsRetryable(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", path, vcs.ErrNotInRepo)
	}
	root := vcs.TrimOutput(out)
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	g.root = filepath.FromSlash(root)
	return g, nil
}

// Root returns the working tree root.
func (g *Git) Root() string {
	return g.root
}

// run executes git in the working tree with the configured timeout.
func (g *Git) run(ctx context.Context, args ...string) ([]byte, error) {
	return vcs.ExecContext(ctx, g.timeout, g.root, "git", args...)
}

// open returns the go-git view of the repository.
func (g *Git) open() (*gogit.Repository, error) {
	repo, err := gogit.PlainOpenWithOptions(g.root, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	return repo, nil
}
