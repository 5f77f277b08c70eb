// Package types holds the data model shared by the import, export and sync
// engines: scanned file descriptors, extracted content, per-file results and
// aggregate operation summaries.
package types

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ContentType is the classifier's label for a file.
type ContentType string

const (
	ContentMarkdown ContentType = "markdown"
	ContentHTML     ContentType = "html"
	ContentJSON     ContentType = "json"
	ContentText     ContentType = "text"
	ContentBinary   ContentType = "binary"
)

// IsText reports whether content of this type is stored as note text.
func (c ContentType) IsText() bool {
	return c != ContentBinary && c != ""
}

// FileKind distinguishes planned export entries.
type FileKind string

const (
	KindNote       FileKind = "note"
	KindAttachment FileKind = "attachment"
	KindDirectory  FileKind = "directory"
)

// FileMeta is the typed metadata carried by a FileInfo. Scanners fill the
// filesystem fields, the exporter fills the note identity fields.
type FileMeta struct {
	// DirectoryPath is the slash-separated parent directory relative to
	// the scan root; empty for files at the root.
	DirectoryPath string
	Hidden        bool
	ContentType   ContentType
	MimeType      string

	Kind         FileKind
	NoteID       string
	AttachmentID string
	Title        string

	// Extra holds format specific values (for example the obsidian
	// attachment folder flag) that do not deserve a dedicated field.
	Extra map[string]string
}

// FileInfo describes one file discovered by a scan or planned by an export.
// Values are treated as immutable; use the With* helpers to derive copies.
type FileInfo struct {
	RelativePath string // slash-separated, relative to the scan root
	AbsolutePath string
	Name         string
	Extension    string // lower case, including the dot
	Size         int64
	Depth        int
	ModTime      time.Time
	Meta         FileMeta
}

// NewFileInfo builds a FileInfo for rel under root.
func NewFileInfo(root, rel string, size int64, modTime time.Time) FileInfo {
	rel = filepath.ToSlash(rel)
	name := rel
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		name = rel[i+1:]
	}
	dir := ""
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		dir = rel[:i]
	}
	return FileInfo{
		RelativePath: rel,
		AbsolutePath: filepath.Join(root, filepath.FromSlash(rel)),
		Name:         name,
		Extension:    strings.ToLower(filepath.Ext(name)),
		Size:         size,
		Depth:        strings.Count(rel, "/"),
		ModTime:      modTime,
		Meta: FileMeta{
			DirectoryPath: dir,
			Hidden:        isHiddenPath(rel),
		},
	}
}

// WithMeta returns a copy of f carrying m.
func (f FileInfo) WithMeta(m FileMeta) FileInfo {
	if m.Extra != nil {
		extra := make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			extra[k] = v
		}
		m.Extra = extra
	}
	f.Meta = m
	return f
}

// WithContentType returns a copy of f labelled with ct.
func (f FileInfo) WithContentType(ct ContentType, mime string) FileInfo {
	m := f.Meta
	m.ContentType = ct
	m.MimeType = mime
	return f.WithMeta(m)
}

// BaseName is the file name without its extension.
func (f FileInfo) BaseName() string {
	return strings.TrimSuffix(f.Name, filepath.Ext(f.Name))
}

func isHiddenPath(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") && part != "." && part != ".." {
			return true
		}
	}
	return false
}

// WikiLink is a [[target]] or [[target|label]] reference found in content.
// Embed is set for the ![[target]] form.
type WikiLink struct {
	Raw    string
	Target string
	Label  string
	Embed  bool
	Offset int
}

// Link is a regular markdown link.
type Link struct {
	Text string
	URL  string
}

// ContentInfo is what the classifier extracts from a text file.
type ContentInfo struct {
	Type              ContentType
	Title             string
	Body              string
	FrontMatter       map[string]any
	FrontMatterFormat string // "yaml", "toml" or empty
	Tags              []string
	Links             []Link
	WikiLinks         []WikiLink
}

// OperationContext is the scratch state owned by a single top-level call.
// It is created at the start of the call and cleaned up when it returns.
type OperationContext struct {
	ID        string
	Operation string
	StartedAt time.Time

	tempDir string
	seq     atomic.Int64
}

// NewOperationContext allocates an identifier for a new operation.
func NewOperationContext(operation string) *OperationContext {
	return &OperationContext{
		ID:        uuid.NewString(),
		Operation: operation,
		StartedAt: time.Now(),
	}
}

// TempDir lazily creates a scratch directory for the operation.
func (o *OperationContext) TempDir() (string, error) {
	if o.tempDir != "" {
		return o.tempDir, nil
	}
	dir, err := os.MkdirTemp("", "noteport-"+o.Operation+"-*")
	if err != nil {
		return "", err
	}
	o.tempDir = dir
	return dir, nil
}

// Next returns a monotonically increasing sequence number.
func (o *OperationContext) Next() int64 {
	return o.seq.Add(1)
}

// Cleanup removes the scratch directory if one was created.
func (o *OperationContext) Cleanup() error {
	if o.tempDir == "" {
		return nil
	}
	err := os.RemoveAll(o.tempDir)
	o.tempDir = ""
	return err
}
