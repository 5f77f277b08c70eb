package git

import (
	"context"
	"fmt"

	"github.com/noteport/noteport/internal/vcs"
)

// Add stages paths. Every path is validated first.
func (g *Git) Add(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := vcs.ValidatePaths(paths); err != nil {
		return err
	}
	args := append([]string{"add", "--"}, paths...)
	if _, err := g.run(ctx, args...); err != nil {
		return fmt.Errorf("git add failed: %w", err)
	}
	return nil
}

// Commit stages and commits opts.Paths. It returns vcs.ErrNothingToCommit
// when none of them changed.
func (g *Git) Commit(ctx context.Context, opts vcs.CommitOptions) error {
	if err := vcs.ValidateCommit(opts); err != nil {
		return err
	}
	if err := g.Add(ctx, opts.Paths); err != nil {
		return err
	}

	// diff --cached --quiet exits 0 when nothing is staged for these paths
	diff := append([]string{"diff", "--cached", "--quiet", "--"}, opts.Paths...)
	if _, err := g.run(ctx, diff...); err == nil {
		return vcs.ErrNothingToCommit
	} else if vcs.GetExitCode(err) != 1 {
		return fmt.Errorf("git diff failed: %w", err)
	}

	args := []string{"commit", "-m", opts.Message}
	if author := opts.Author.String(); author != "" {
		args = append(args, "--author", author)
	}
	if len(opts.Paths) > 0 {
		args = append(args, "--")
		args = append(args, opts.Paths...)
	}

	if _, err := g.run(ctx, args...); err != nil {
		return fmt.Errorf("git commit failed: %w", err)
	}
	return nil
}
