// Package importer turns a directory, an Obsidian vault or a git checkout
// into notes.
//
// Files are handled one at a time in path order:
//
//	scanned -> classified -> parent resolved -> duplicate checked -> written | skipped -> recorded
//
// A failure at any step is recorded for that file and the run moves on.
// Binary files become attachments of their folder note; everything else
// becomes a note. Each note carries a path label naming where it came from,
// which is how a later run recognises it.
package importer

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"

	"github.com/noteport/noteport/internal/classify"
	"github.com/noteport/noteport/internal/debug"
	"github.com/noteport/noteport/internal/hierarchy"
	"github.com/noteport/noteport/internal/progress"
	"github.com/noteport/noteport/internal/scan"
	"github.com/noteport/noteport/internal/store"
	"github.com/noteport/noteport/internal/types"
	"github.com/noteport/noteport/internal/wikilink"
)

// Options configures one import.
type Options struct {
	Source   string
	Format   Format
	ParentID string

	Include       []string
	Exclude       []string
	MaxDepth      int
	IncludeHidden bool
	// Only restricts the import to these relative paths.
	Only []string

	PreserveStructure bool
	Duplicates        hierarchy.Policy
	DryRun            bool

	// Workers bounds concurrent sample reads during classification.
	Workers  int
	Progress progress.Func
}

// Result is the outcome of an import.
type Result struct {
	Summary *types.OperationSummary
	// Notes maps relative path to note ID for every note imported or
	// found from an earlier run.
	Notes       map[string]string
	Attachments map[string]string
	Folders     map[string]string
	// Hashes holds the sha256 of every file read, by relative path.
	Hashes map[string]string
	Links  *wikilink.Report
}

// Imported returns the paths written by this run, sorted.
func (r *Result) Imported() []string {
	paths := r.Summary.Paths(types.Written)
	sort.Strings(paths)
	return paths
}

// Importer runs imports against a store.
type Importer struct {
	store   store.Store
	scanner *scan.Scanner
	logger  *log.Logger
}

// New creates an importer. If logger is nil, uses a default logger.
func New(s store.Store, logger *log.Logger) *Importer {
	if logger == nil {
		logger = log.New(os.Stderr, "[import] ", log.LstdFlags)
	}
	return &Importer{store: s, scanner: scan.New(logger), logger: logger}
}

type run struct {
	im       *Importer
	opts     Options
	profile  Profile
	mapper   *hierarchy.Mapper
	resolver *hierarchy.Resolver
	res      *Result

	index     *wikilink.Index
	linkNotes []string
}

// Import runs one import. The returned Result is never nil, even
// alongside an error, and holds everything done up to that point.
// Configuration problems fail with an empty summary before any work is
// done.
func (im *Importer) Import(ctx context.Context, opts Options) (*Result, error) {
	oc := types.NewOperationContext("import")
	defer oc.Cleanup()
	res := &Result{
		Summary:     types.NewSummary(oc, string(opts.Format), 0),
		Notes:       make(map[string]string),
		Attachments: make(map[string]string),
		Folders:     make(map[string]string),
		Hashes:      make(map[string]string),
	}
	res.Summary.DryRun = opts.DryRun

	profile, err := ProfileFor(opts.Format)
	if err != nil {
		res.Summary.Finish()
		return res, &types.ValidationError{Field: "format", Message: err.Error()}
	}
	res.Summary.Format = string(profile.Format)
	policy, err := hierarchy.ParsePolicy(string(opts.Duplicates))
	if err != nil {
		res.Summary.Finish()
		return res, &types.ValidationError{Field: "duplicates", Message: err.Error()}
	}
	if opts.ParentID == "" {
		opts.ParentID = store.RootNoteID
	}

	if _, err := im.store.GetNote(ctx, opts.ParentID); err != nil {
		res.Summary.Finish()
		return res, &types.ValidationError{Field: "parent", Message: fmt.Sprintf("parent note %s: %v", opts.ParentID, err)}
	}

	files, err := im.scanner.Scan(ctx, opts.Source, scan.Options{
		Include:       opts.Include,
		Exclude:       opts.Exclude,
		MaxDepth:      opts.MaxDepth,
		IncludeHidden: opts.IncludeHidden,
		SkipDirs:      profile.SkipDirs,
		UseGitignore:  profile.UseGitignore,
		Only:          opts.Only,
	})
	if err != nil {
		res.Summary.Finish()
		return res, err
	}
	files, readErrs := classify.LabelAll(ctx, files, opts.Workers)
	res.Summary.TotalFiles = len(files)
	im.logger.Printf("importing %d files from %s (%s)", len(files), opts.Source, profile.Format)

	col := progress.NewCollector(res.Summary, opts.Progress)
	r := &run{
		im:       im,
		opts:     opts,
		profile:  profile,
		mapper:   hierarchy.NewMapper(im.store, opts.ParentID, im.logger),
		resolver: hierarchy.NewResolver(im.store, profile.PathAttr, opts.ParentID, policy, im.logger),
		res:      res,
		index:    wikilink.NewIndex(),
	}

	if opts.PreserveStructure {
		for _, d := range r.mapper.EnsureDirectories(ctx, scan.Directories(files), opts.DryRun) {
			if d.Err != nil {
				col.Warn("folder %s: %v", d.Path, d.Err)
				continue
			}
			res.Summary.Directories++
			res.Folders[d.Path] = d.ID
		}
	}

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			res.Summary.Aborted = true
			col.Close()
			return res, fmt.Errorf("import stopped after %d of %d files: %w: %w", i, len(files), types.ErrCancelled, err)
		}
		if readErrs[i] != nil {
			col.Record(types.Failed(f.RelativePath, types.CodeReadFailed, readErrs[i]))
			continue
		}
		col.Record(r.importFile(ctx, f))
	}

	if profile.WikiLinks && !opts.DryRun && len(r.linkNotes) > 0 {
		rep, err := wikilink.NewResolver(im.store, nil, im.logger).ResolveNotes(ctx, r.linkNotes, r.index)
		res.Links = rep
		for _, u := range rep.Unresolved {
			col.Warn("%s", u)
		}
		for _, e := range rep.Errors {
			col.Warn("link pass: %v", e)
		}
		if err != nil {
			res.Summary.Aborted = true
			col.Close()
			return res, fmt.Errorf("link pass: %w: %w", types.ErrCancelled, err)
		}
	}

	col.Close()
	return res, nil
}

func (r *run) importFile(ctx context.Context, f types.FileInfo) types.FileResult {
	rel := f.RelativePath

	parentID := r.opts.ParentID
	if r.opts.PreserveStructure && f.Meta.DirectoryPath != "" {
		id, ok := r.mapper.ParentFor(f.Meta.DirectoryPath)
		if !ok {
			return types.Failed(rel, types.CodeParentMissing, fmt.Errorf("folder %s has no note", f.Meta.DirectoryPath))
		}
		parentID = id
	}

	if r.opts.DryRun {
		return types.FileResult{Path: rel, Success: true, Reason: "would import", Bytes: f.Size}
	}

	data, err := os.ReadFile(f.AbsolutePath)
	if err != nil {
		return types.Failed(rel, types.CodeReadFailed, err)
	}
	hash := HashContent(data)

	var res types.FileResult
	if f.Meta.ContentType == types.ContentBinary {
		res = r.importAttachment(ctx, f, parentID, data)
	} else {
		res = r.importNote(ctx, f, parentID, data, hash)
	}
	if res.Success {
		r.res.Hashes[rel] = hash
		if res.Bytes == 0 && !res.Skipped {
			res.Bytes = int64(len(data))
		}
	}
	debug.Logf("%s -> note=%s attachment=%s skipped=%v", rel, res.NoteID, res.AttachmentID, res.Skipped)
	return res
}

func (r *run) importNote(ctx context.Context, f types.FileInfo, parentID string, data []byte, hash string) types.FileResult {
	rel := f.RelativePath

	info, err := classify.Parse(data, f.Meta.ContentType, f.BaseName())
	if err != nil {
		return types.Failed(rel, types.CodeParseFailed, err)
	}
	noteType, mime, content, err := noteBody(info)
	if err != nil {
		return types.Failed(rel, types.CodeConvertFailed, err)
	}
	params := store.CreateNoteParams{
		ParentID:   parentID,
		Title:      info.Title,
		Type:       noteType,
		Mime:       mime,
		Content:    content,
		Attributes: noteLabels(r.profile.PathAttr, rel, hash, info),
	}

	var id string
	d := r.resolver.Check(ctx, rel)
	switch {
	case d.Skip:
		r.rememberNote(rel, d.ID, info.Title)
		return types.SkippedResult(rel, d.ID, "already imported")

	case d.Overwrite:
		if r.unchanged(ctx, d.ID, hash) {
			r.rememberNote(rel, d.ID, info.Title)
			return types.SkippedResult(rel, d.ID, "unchanged")
		}
		if err := r.resolver.Overwrite(ctx, d.ID, params); err != nil {
			return types.Failed(rel, types.CodeStoreWriteFailed, err)
		}
		id = d.ID

	default:
		id, err = store.CreateNoteAtomic(ctx, r.im.store, params)
		if err != nil {
			res := types.Failed(rel, types.CodeStoreWriteFailed, err)
			res.NoteID = id
			return res
		}
	}

	r.rememberNote(rel, id, info.Title)
	if len(info.WikiLinks) > 0 {
		r.linkNotes = append(r.linkNotes, id)
	}
	return types.Succeeded(rel, id)
}

func (r *run) importAttachment(ctx context.Context, f types.FileInfo, ownerID string, data []byte) types.FileResult {
	rel := f.RelativePath
	b64 := base64.StdEncoding.EncodeToString(data)

	var id string
	d := r.resolver.CheckAttachment(ctx, ownerID, f.Name)
	switch {
	case d.Skip:
		r.rememberAttachment(rel, d.ID, f.Name)
		res := types.SkippedResult(rel, "", "already imported")
		res.AttachmentID = d.ID
		return res

	case d.Overwrite:
		if err := r.im.store.UpdateAttachmentContent(ctx, d.ID, b64); err != nil {
			return types.Failed(rel, types.CodeStoreWriteFailed, err)
		}
		id = d.ID

	default:
		var err error
		id, err = r.im.store.CreateAttachment(ctx, store.CreateAttachmentParams{
			OwnerID: ownerID,
			Role:    attachmentRole(f.Meta.MimeType),
			Title:   f.Name,
			Mime:    f.Meta.MimeType,
			Base64:  b64,
		})
		if err != nil {
			return types.Failed(rel, types.CodeStoreWriteFailed, err)
		}
	}

	r.rememberAttachment(rel, id, f.Name)
	return types.FileResult{Path: rel, Success: true, AttachmentID: id}
}

func (r *run) unchanged(ctx context.Context, id, hash string) bool {
	n, err := r.im.store.GetNote(ctx, id)
	if err != nil {
		return false
	}
	v, ok := n.Label(AttrContentHash)
	return ok && v == hash
}

func (r *run) rememberNote(rel, id, title string) {
	r.res.Notes[rel] = id
	r.index.Add(rel, wikilink.Target{ID: id, Title: title})
}

func (r *run) rememberAttachment(rel, id, title string) {
	r.res.Attachments[rel] = id
	r.index.Add(rel, wikilink.Target{ID: id, Title: title, Attachment: true})
}

func attachmentRole(mime string) string {
	if strings.HasPrefix(mime, "image/") {
		return "image"
	}
	return "file"
}
