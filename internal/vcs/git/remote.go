package git

import (
	"context"
	"fmt"
	"strings"

	"github.com/noteport/noteport/internal/vcs"
)

// target resolves the remote and branch of a pull or push. The remote
// defaults to the branch's configured upstream, then origin.
func (g *Git) target(ctx context.Context, remote, branch string) (string, string, error) {
	if err := vcs.ValidateRef("remote", remote); err != nil {
		return "", "", err
	}
	if err := vcs.ValidateRef("branch", branch); err != nil {
		return "", "", err
	}

	if branch == "" {
		b, err := g.CurrentBranch(ctx)
		if err != nil {
			return "", "", err
		}
		branch = b
	}

	if remote == "" {
		if out, err := g.run(ctx, "config", "--get", "branch."+branch+".remote"); err == nil {
			remote = vcs.TrimOutput(out)
		}
		if remote == "" {
			remote = "origin"
		}
	}

	out, err := g.run(ctx, "remote")
	if err != nil {
		return "", "", fmt.Errorf("git remote failed: %w", err)
	}
	for _, r := range vcs.ParseLines(out) {
		if r == remote {
			return remote, branch, nil
		}
	}
	return "", "", fmt.Errorf("%s: %w", remote, vcs.ErrNoRemote)
}

// Pull pulls branch from the remote.
func (g *Git) Pull(ctx context.Context, opts vcs.PullOptions) error {
	remote, branch, err := g.target(ctx, opts.Remote, opts.Branch)
	if err != nil {
		return err
	}

	args := []string{"pull", "--no-edit"}
	if opts.FFOnly {
		args = append(args, "--ff-only")
	}
	args = append(args, remote, branch)

	out, err := g.run(ctx, args...)
	if err != nil {
		msg := string(out) + err.Error()
		switch {
		case strings.Contains(msg, "CONFLICT"), strings.Contains(msg, "conflict"):
			return fmt.Errorf("git pull %s %s: %w", remote, branch, vcs.ErrConflicts)
		case strings.Contains(msg, "Not possible to fast-forward"), strings.Contains(msg, "non-fast-forward"),
			strings.Contains(msg, "divergent branches"):
			return fmt.Errorf("git pull %s %s: %w", remote, branch, vcs.ErrMergeRequired)
		}
		return fmt.Errorf("git pull failed: %w", err)
	}
	return nil
}

// Push pushes branch to the remote.
func (g *Git) Push(ctx context.Context, opts vcs.PushOptions) error {
	remote, branch, err := g.target(ctx, opts.Remote, opts.Branch)
	if err != nil {
		return err
	}

	args := []string{"push"}
	if opts.SetUpstream {
		args = append(args, "-u")
	}
	args = append(args, remote, branch)

	if _, err := g.run(ctx, args...); err != nil {
		if strings.Contains(err.Error(), "rejected") || strings.Contains(err.Error(), "non-fast-forward") {
			return fmt.Errorf("git push %s %s: %w", remote, branch, vcs.ErrPushRejected)
		}
		return fmt.Errorf("git push failed: %w", err)
	}
	return nil
}
