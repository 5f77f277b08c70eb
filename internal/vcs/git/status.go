package git

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	giturls "github.com/whilp/git-urls"

	"github.com/noteport/noteport/internal/vcs"
)

// Unmerged XY codes of git status --porcelain.
var unmerged = map[string]bool{
	"DD": true, "AU": true, "UD": true, "UA": true, "DU": true, "AA": true, "UU": true,
}

// Status returns the working tree snapshot.
func (g *Git) Status(ctx context.Context) (*vcs.Status, error) {
	out, err := g.run(ctx, "status", "--porcelain", "-z", "--untracked-files=all")
	if err != nil {
		return nil, fmt.Errorf("git status failed: %w", err)
	}
	st := parseStatus(string(out))

	branch, err := g.CurrentBranch(ctx)
	switch {
	case errors.Is(err, vcs.ErrDetached):
		st.Detached = true
	case err != nil:
		return nil, err
	default:
		st.Branch = branch
	}

	repo, err := g.open()
	if err != nil {
		return nil, err
	}
	if remote, url := remoteOf(repo, st.Branch); remote != "" {
		st.Remote = remote
		st.RemoteURL = url
		if u, err := giturls.Parse(url); err == nil {
			st.RemoteHost = u.Hostname()
		} else {
			g.logger.Printf("remote %s has an unrecognised url %q: %v", remote, url, err)
		}
	}
	st.Recent, err = recentCommits(repo, g.recent)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// parseStatus reads git status --porcelain -z output. Renames and copies
// carry the original path in the following entry, which is skipped.
func parseStatus(out string) *vcs.Status {
	st := &vcs.Status{}
	entries := strings.Split(out, "\x00")
	for i := 0; i < len(entries); i++ {
		entry := entries[i]
		if len(entry) < 4 {
			continue
		}
		xy, path := entry[:2], entry[3:]
		x, y := xy[0], xy[1]
		if x == 'R' || x == 'C' {
			i++
		}

		switch {
		case xy == "??":
			st.Untracked = append(st.Untracked, path)
			continue
		case xy == "!!":
			continue
		case unmerged[xy]:
			st.Conflicts = append(st.Conflicts, path)
			continue
		}
		if x != ' ' {
			st.Staged = append(st.Staged, path)
		}
		switch {
		case x == 'A':
			st.Added = append(st.Added, path)
		case x == 'D' || y == 'D':
			st.Deleted = append(st.Deleted, path)
		case x == 'M' || y == 'M' || x == 'R' || x == 'C' || y == 'T' || x == 'T':
			st.Modified = append(st.Modified, path)
		}
	}
	st.Clean = len(st.Untracked) == 0 && len(st.Conflicts) == 0 &&
		len(st.Staged) == 0 && len(st.Modified) == 0 && len(st.Deleted) == 0
	return st
}

// remoteOf returns the remote the branch tracks, or origin when the branch
// has none configured. Both are empty when no such remote exists.
func remoteOf(repo *gogit.Repository, branch string) (string, string) {
	cfg, err := repo.Config()
	if err != nil {
		return "", ""
	}
	name := "origin"
	if b, ok := cfg.Branches[branch]; ok && b.Remote != "" {
		name = b.Remote
	}
	rc, ok := cfg.Remotes[name]
	if !ok || len(rc.URLs) == 0 {
		return "", ""
	}
	return name, rc.URLs[0]
}

func recentCommits(repo *gogit.Repository, limit int) ([]vcs.CommitInfo, error) {
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		// No commit yet.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	iter, err := repo.Log(&gogit.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("failed to get commit log: %w", err)
	}
	defer iter.Close()

	var commits []vcs.CommitInfo
	err = iter.ForEach(func(c *object.Commit) error {
		if len(commits) >= limit {
			return storer.ErrStop
		}
		commits = append(commits, vcs.CommitInfo{
			Hash:    c.Hash.String(),
			Author:  c.Author.Name,
			Message: strings.TrimSpace(c.Message),
			When:    c.Author.When,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate commits: %w", err)
	}
	return commits, nil
}
