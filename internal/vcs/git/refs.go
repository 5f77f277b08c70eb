package git

import (
	"context"
	"fmt"

	"github.com/noteport/noteport/internal/vcs"
)

// CurrentBranch returns the checked out branch name, or vcs.ErrDetached.
func (g *Git) CurrentBranch(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		// symbolic-ref --quiet exits 1 without output on a detached HEAD
		if vcs.GetExitCode(err) == 1 {
			return "", vcs.ErrDetached
		}
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	return vcs.TrimOutput(out), nil
}

// refExists reports whether the fully qualified ref exists.
func (g *Git) refExists(ctx context.Context, ref string) bool {
	_, err := g.run(ctx, "show-ref", "--verify", "--quiet", ref)
	return err == nil
}

// Checkout switches to branch, trying in order: the local branch, a new
// branch tracking remote/branch, and a new branch from HEAD.
func (g *Git) Checkout(ctx context.Context, branch, remote string) error {
	if err := vcs.ValidateRef("branch", branch); err != nil {
		return err
	}
	if err := vcs.ValidateRef("remote", remote); err != nil {
		return err
	}
	if branch == "" {
		return fmt.Errorf("checkout: branch is required")
	}
	if remote == "" {
		remote = "origin"
	}

	if g.refExists(ctx, "refs/heads/"+branch) {
		if _, err := g.run(ctx, "checkout", branch, "--"); err != nil {
			return fmt.Errorf("git checkout %s failed: %w", branch, err)
		}
		return nil
	}

	tracking := remote + "/" + branch
	if g.refExists(ctx, "refs/remotes/"+tracking) {
		if _, err := g.run(ctx, "checkout", "-b", branch, "--track", tracking); err != nil {
			return fmt.Errorf("git checkout --track %s failed: %w", tracking, err)
		}
		g.logger.Printf("created branch %s tracking %s", branch, tracking)
		return nil
	}

	if _, err := g.run(ctx, "checkout", "-b", branch); err != nil {
		return fmt.Errorf("git checkout -b %s failed: %w", branch, err)
	}
	g.logger.Printf("created branch %s", branch)
	return nil
}
