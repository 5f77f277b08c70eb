package hierarchy

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"strings"

	"github.com/noteport/noteport/internal/debug"
	"github.com/noteport/noteport/internal/store"
)

// DirectoryAttr is the label stored on folder notes.
const DirectoryAttr = "directory-path"

// DirResult reports what happened to one directory.
type DirResult struct {
	Path    string
	ID      string
	Created bool
	Err     error
}

// Mapper keeps the path -> note ID map for one run and creates folder
// notes for directories.
type Mapper struct {
	store    store.Store
	resolver *Resolver
	parentID string
	ids      map[string]string
	logger   *log.Logger
}

// NewMapper creates a mapper whose top level directories live under
// parentID. If logger is nil, uses a default logger.
func NewMapper(s store.Store, parentID string, logger *log.Logger) *Mapper {
	if logger == nil {
		logger = log.New(os.Stderr, "[hierarchy] ", log.LstdFlags)
	}
	if parentID == "" {
		parentID = store.RootNoteID
	}
	return &Mapper{
		store:    s,
		resolver: NewResolver(s, DirectoryAttr, parentID, PolicySkip, logger),
		parentID: parentID,
		ids:      map[string]string{"": parentID},
		logger:   logger,
	}
}

// ParentFor returns the note ID that files in dir belong under.
func (m *Mapper) ParentFor(dir string) (string, bool) {
	id, ok := m.ids[dir]
	return id, ok
}

// Set records id for dir.
func (m *Mapper) Set(dir, id string) { m.ids[dir] = id }

// Map returns a copy of the known directory mappings, excluding the root.
func (m *Mapper) Map() map[string]string {
	out := make(map[string]string, len(m.ids))
	for k, v := range m.ids {
		if k != "" {
			out[k] = v
		}
	}
	return out
}

// EnsureDirectories resolves or creates a folder note for each directory.
// dirs must be ordered parents first, as scan.Directories returns them; a
// directory whose parent failed fails too. With dryRun set nothing is
// written and placeholder IDs are recorded.
func (m *Mapper) EnsureDirectories(ctx context.Context, dirs []string, dryRun bool) []DirResult {
	results := make([]DirResult, 0, len(dirs))
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			results = append(results, DirResult{Path: dir, Err: err})
			continue
		}
		results = append(results, m.ensure(ctx, dir, dryRun))
	}
	return results
}

func (m *Mapper) ensure(ctx context.Context, dir string, dryRun bool) DirResult {
	parentDir := path.Dir(dir)
	if parentDir == "." {
		parentDir = ""
	}
	parentID, ok := m.ids[parentDir]
	if !ok {
		return DirResult{Path: dir, Err: fmt.Errorf("parent folder %q has no note", parentDir)}
	}

	if dryRun {
		id := "dry-run:" + dir
		m.ids[dir] = id
		return DirResult{Path: dir, ID: id}
	}

	if id := m.resolver.FindNote(ctx, dir); id != "" {
		debug.Logf("folder %s resolved to %s", dir, id)
		m.ids[dir] = id
		return DirResult{Path: dir, ID: id}
	}

	id, err := store.CreateNoteAtomic(ctx, m.store, store.CreateNoteParams{
		ParentID:   parentID,
		Title:      folderTitle(dir),
		Type:       store.TypeBook,
		Attributes: []store.Attribute{store.Label(DirectoryAttr, dir)},
	})
	if err != nil {
		m.logger.Printf("create folder note %s: %v", dir, err)
		return DirResult{Path: dir, Err: fmt.Errorf("create folder note %s: %w", dir, err)}
	}
	m.ids[dir] = id
	return DirResult{Path: dir, ID: id, Created: true}
}

func folderTitle(dir string) string {
	if i := strings.LastIndex(dir, "/"); i >= 0 {
		return dir[i+1:]
	}
	return dir
}
