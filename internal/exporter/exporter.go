// Package exporter writes notes back out as files.
//
// An export runs in two phases. Plan walks the selected subtrees and
// decides every output path without writing anything. Export re-plans and
// then writes each entry, converting note HTML back to markdown with a YAML
// header built from the note's labels. The optional index file is written
// last and only when every other file was written.
package exporter

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/noteport/noteport/internal/importer"
	"github.com/noteport/noteport/internal/progress"
	"github.com/noteport/noteport/internal/store"
	"github.com/noteport/noteport/internal/types"
	"github.com/noteport/noteport/internal/vcs"
)

// DefaultIndexName is the index file written when none is configured.
const DefaultIndexName = "index.md"

// Options configures one export.
type Options struct {
	PlanOptions

	CreateIndex bool
	IndexName   string
	// Hold lists relative paths that must not be written. Held files are
	// still rendered and hashed.
	Hold   map[string]bool
	DryRun bool

	Progress progress.Func
}

// Result is the outcome of an export.
type Result struct {
	Summary *types.OperationSummary
	Plan    []types.FileInfo
	// Notes maps relative path to note ID for note entries.
	Notes map[string]string
	// Hashes holds the sha256 of the rendered bytes of every entry,
	// written or not.
	Hashes map[string]string
	Index  string
}

// Exported returns the paths written by this run, sorted.
func (r *Result) Exported() []string {
	paths := r.Summary.Paths(types.Written)
	sort.Strings(paths)
	return paths
}

// Exporter runs exports from a store.
type Exporter struct {
	store  store.Store
	logger *log.Logger
}

// New creates an exporter. If logger is nil, uses a default logger.
func New(s store.Store, logger *log.Logger) *Exporter {
	if logger == nil {
		logger = log.New(os.Stderr, "[export] ", log.LstdFlags)
	}
	return &Exporter{store: s, logger: logger}
}

// Plan is Plan on the exporter's store.
func (e *Exporter) Plan(ctx context.Context, opts PlanOptions) ([]types.FileInfo, error) {
	return Plan(ctx, e.store, opts)
}

// Export writes the planned files. The Result is never nil, even when an
// error is returned.
func (e *Exporter) Export(ctx context.Context, opts Options) (*Result, error) {
	oc := types.NewOperationContext("export")
	defer oc.Cleanup()

	format := opts.Format
	if format == "" {
		format = importer.FormatDirectory
	}
	res := &Result{
		Summary: types.NewSummary(oc, string(format), 0),
		Notes:   make(map[string]string),
		Hashes:  make(map[string]string),
	}
	res.Summary.DryRun = opts.DryRun

	plan, err := Plan(ctx, e.store, opts.PlanOptions)
	if err != nil {
		res.Summary.Finish()
		return res, err
	}
	res.Plan = plan
	for _, f := range plan {
		if f.Meta.Kind != types.KindDirectory {
			res.Summary.TotalFiles++
		}
	}
	if !opts.DryRun {
		if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
			res.Summary.Finish()
			return res, &types.ValidationError{Field: "out", Message: err.Error()}
		}
	}
	e.logger.Printf("exporting %d files to %s (%s)", res.Summary.TotalFiles, opts.OutDir, format)

	col := progress.NewCollector(res.Summary, opts.Progress)
	rnd := newRenderer(opts.Format, plan)

	for i, f := range plan {
		if err := ctx.Err(); err != nil {
			res.Summary.Aborted = true
			col.Close()
			return res, fmt.Errorf("export stopped after %d of %d entries: %w: %w", i, len(plan), types.ErrCancelled, err)
		}
		if f.Meta.Kind == types.KindDirectory {
			if err := checkTarget(opts.OutDir, f.RelativePath, f.AbsolutePath); err != nil {
				col.Warn("skip folder: %v", err)
				continue
			}
			if !opts.DryRun {
				if err := os.MkdirAll(f.AbsolutePath, 0755); err != nil {
					col.Warn("create folder %s: %v", f.RelativePath, err)
					continue
				}
			}
			res.Summary.Directories++
			continue
		}
		col.Record(e.exportFile(ctx, f, rnd, opts, res))
	}

	if opts.CreateIndex && !opts.DryRun {
		switch {
		case res.Summary.FailedFiles > 0:
			col.Warn("index not written: %d files failed", res.Summary.FailedFiles)
		default:
			if name, err := e.writeIndex(opts, plan); err != nil {
				col.Warn("index: %v", err)
			} else {
				res.Index = name
			}
		}
	}

	col.Close()
	return res, nil
}

func (e *Exporter) exportFile(ctx context.Context, f types.FileInfo, rnd *renderer, opts Options, res *Result) types.FileResult {
	rel := f.RelativePath

	var data []byte
	switch f.Meta.Kind {
	case types.KindNote:
		n, err := e.store.GetNote(ctx, f.Meta.NoteID)
		if err != nil {
			return types.Failed(rel, types.CodeReadFailed, err)
		}
		content, err := e.store.GetNoteContent(ctx, f.Meta.NoteID)
		if err != nil {
			return types.Failed(rel, types.CodeReadFailed, err)
		}
		data, err = rnd.note(f, n, content)
		if err != nil {
			return types.Failed(rel, types.CodeConvertFailed, err)
		}
		res.Notes[rel] = f.Meta.NoteID
	case types.KindAttachment:
		var err error
		data, err = e.store.GetAttachmentContent(ctx, f.Meta.AttachmentID)
		if err != nil {
			return types.Failed(rel, types.CodeReadFailed, err)
		}
	default:
		return types.Failed(rel, types.CodeConvertFailed, fmt.Errorf("unexpected entry kind %q", f.Meta.Kind))
	}
	res.Hashes[rel] = importer.HashContent(data)

	result := types.FileResult{
		Path:         rel,
		Success:      true,
		NoteID:       f.Meta.NoteID,
		AttachmentID: f.Meta.AttachmentID,
		Bytes:        int64(len(data)),
	}
	switch {
	case opts.Hold[rel]:
		result.Skipped, result.Reason, result.Bytes = true, "held", 0
		return result
	case opts.DryRun:
		result.Reason = "would export"
		return result
	}

	if err := checkTarget(opts.OutDir, rel, f.AbsolutePath); err != nil {
		return types.Failed(rel, types.CodeUnsafePath, err)
	}
	if old, err := os.ReadFile(f.AbsolutePath); err == nil && bytes.Equal(old, data) {
		result.Skipped, result.Reason, result.Bytes = true, "unchanged", 0
		return result
	}
	if err := writeAtomic(f.AbsolutePath, data); err != nil {
		return types.Failed(rel, types.CodeWriteFailed, err)
	}
	return result
}

func (e *Exporter) writeIndex(opts Options, plan []types.FileInfo) (string, error) {
	name := opts.IndexName
	if name == "" {
		name = DefaultIndexName
	}
	for _, f := range plan {
		if strings.EqualFold(f.RelativePath, name) {
			return "", fmt.Errorf("%s is also an exported note", name)
		}
	}

	var b strings.Builder
	b.WriteString("# Index\n\n")
	for _, f := range plan {
		if f.Meta.Kind != types.KindNote {
			continue
		}
		if opts.Format == importer.FormatObsidian {
			fmt.Fprintf(&b, "- %s\n", wikiLink(f.RelativePath, "", false))
			continue
		}
		fmt.Fprintf(&b, "- [%s](%s)\n", f.Meta.Title, (&url.URL{Path: f.RelativePath}).EscapedPath())
	}
	target := filepath.Join(opts.OutDir, name)
	if err := checkTarget(opts.OutDir, name, target); err != nil {
		return "", err
	}
	if err := writeAtomic(target, []byte(b.String())); err != nil {
		return "", err
	}
	return name, nil
}

// checkTarget refuses a write that would land outside outDir or inside its
// git directory. Symlinks already on disk are followed.
func checkTarget(outDir, rel, abs string) error {
	if vcs.InGitDir(rel) {
		return fmt.Errorf("%s is inside the git directory", rel)
	}
	if !vcs.IsSubPath(outDir, abs) {
		return fmt.Errorf("%s leaves %s", rel, outDir)
	}
	base, target := resolveExisting(outDir), resolveExisting(abs)
	inside, err := filepath.Rel(base, target)
	if err != nil || !vcs.IsSubPath(base, target) {
		return fmt.Errorf("%s resolves outside %s", rel, outDir)
	}
	if vcs.InGitDir(filepath.ToSlash(inside)) {
		return fmt.Errorf("%s resolves into the git directory", rel)
	}
	return nil
}

// resolveExisting returns p made absolute with symlinks followed in the
// longest prefix of it that exists.
func resolveExisting(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	rest := ""
	for {
		if r, err := filepath.EvalSymlinks(p); err == nil {
			return filepath.Join(r, rest)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return filepath.Join(p, rest)
		}
		rest = filepath.Join(filepath.Base(p), rest)
		p = parent
	}
}

// writeAtomic writes data next to path and renames it into place.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".noteport-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
