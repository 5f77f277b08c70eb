// Package scan walks a source directory and produces the ordered list of
// files an import will consider.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/noteport/noteport/internal/debug"
	"github.com/noteport/noteport/internal/types"
)

// Options filters the walk.
type Options struct {
	// Include keeps only files matching at least one pattern. Patterns use
	// .gitignore syntax, so "*.md" matches at any depth.
	Include []string
	// Exclude drops files and directories matching any pattern.
	Exclude []string
	// MaxDepth drops files with more than MaxDepth separators in their
	// relative path; 1 keeps the root and its direct subdirectories. 0
	// means unlimited.
	MaxDepth int
	// IncludeHidden keeps dot files and dot directories.
	IncludeHidden bool
	// SkipDirs are directory names never descended into, hidden or not.
	SkipDirs []string
	// UseGitignore applies the root .gitignore.
	UseGitignore bool
	// Only restricts the result to these slash-separated relative paths.
	Only []string
}

// Scanner walks source trees.
type Scanner struct {
	logger *log.Logger
}

// New creates a scanner. If logger is nil, uses a default logger.
func New(logger *log.Logger) *Scanner {
	if logger == nil {
		logger = log.New(os.Stderr, "[scan] ", log.LstdFlags)
	}
	return &Scanner{logger: logger}
}

type matcher struct {
	include   *gitignore.GitIgnore
	exclude   *gitignore.GitIgnore
	gitignore *gitignore.GitIgnore
	skipDirs  map[string]bool
	only      map[string]bool
}

func newMatcher(root string, opts Options) (*matcher, error) {
	m := &matcher{skipDirs: make(map[string]bool)}
	if len(opts.Include) > 0 {
		m.include = gitignore.CompileIgnoreLines(opts.Include...)
	}
	if len(opts.Exclude) > 0 {
		m.exclude = gitignore.CompileIgnoreLines(opts.Exclude...)
	}
	for _, d := range opts.SkipDirs {
		m.skipDirs[d] = true
	}
	if opts.UseGitignore {
		path := filepath.Join(root, ".gitignore")
		if _, err := os.Stat(path); err == nil {
			gi, err := gitignore.CompileIgnoreFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
			m.gitignore = gi
		}
	}
	if len(opts.Only) > 0 {
		m.only = make(map[string]bool, len(opts.Only))
		for _, p := range opts.Only {
			m.only[filepath.ToSlash(p)] = true
		}
	}
	return m, nil
}

func (m *matcher) skipDir(rel, name string, includeHidden bool) bool {
	if m.skipDirs[name] {
		return true
	}
	if !includeHidden && strings.HasPrefix(name, ".") {
		return true
	}
	if m.exclude != nil && m.exclude.MatchesPath(rel+"/") {
		return true
	}
	return m.gitignore != nil && m.gitignore.MatchesPath(rel+"/")
}

func (m *matcher) keepFile(rel, name string, includeHidden bool) bool {
	if m.only != nil && !m.only[rel] {
		return false
	}
	if !includeHidden && strings.HasPrefix(name, ".") {
		return false
	}
	if m.gitignore != nil && m.gitignore.MatchesPath(rel) {
		return false
	}
	if m.exclude != nil && m.exclude.MatchesPath(rel) {
		return false
	}
	if m.include != nil && !m.include.MatchesPath(rel) {
		return false
	}
	return true
}

// Scan walks root and returns matching regular files sorted by relative
// path. Unreadable entries are logged and skipped.
func (s *Scanner) Scan(ctx context.Context, root string, opts Options) ([]types.FileInfo, error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", root, types.ErrSourceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, &types.ValidationError{Field: "source", Message: root + " is not a directory"}
	}

	m, err := newMatcher(root, opts)
	if err != nil {
		return nil, err
	}

	var files []types.FileInfo
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			s.logger.Printf("Warning: cannot access %s: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		depth := strings.Count(rel, "/")

		if d.IsDir() {
			if m.skipDir(rel, d.Name(), opts.IncludeHidden) {
				debug.Logf("scan: skip dir %s", rel)
				return fs.SkipDir
			}
			if opts.MaxDepth > 0 && depth+1 > opts.MaxDepth {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !m.keepFile(rel, d.Name(), opts.IncludeHidden) {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			s.logger.Printf("Warning: cannot stat %s: %v", path, err)
			return nil
		}
		files = append(files, types.NewFileInfo(root, rel, fi.Size(), fi.ModTime()))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelativePath < files[j].RelativePath })
	return files, nil
}

// Directories returns every directory path needed to hold files, ancestors
// included, sorted so that parents come before children.
func Directories(files []types.FileInfo) []string {
	seen := make(map[string]bool)
	var dirs []string
	for _, f := range files {
		dir := f.Meta.DirectoryPath
		for dir != "" && !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
			if i := strings.LastIndex(dir, "/"); i >= 0 {
				dir = dir[:i]
			} else {
				dir = ""
			}
		}
	}
	sort.Slice(dirs, func(i, j int) bool {
		di, dj := strings.Count(dirs[i], "/"), strings.Count(dirs[j], "/")
		if di != dj {
			return di < dj
		}
		return dirs[i] < dirs[j]
	})
	return dirs
}
