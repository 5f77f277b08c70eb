package exporter

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/noteport/noteport/internal/hierarchy"
	"github.com/noteport/noteport/internal/importer"
	"github.com/noteport/noteport/internal/store"
	"github.com/noteport/noteport/internal/types"
	"github.com/noteport/noteport/internal/vcs"
)

// pathAttrs are the labels that may carry an original location, in lookup
// order after the label of the export format itself.
var pathAttrs = []string{importer.AttrOriginalPath, importer.AttrObsidianPath, importer.AttrGitPath}

// PlanOptions selects what to export and where it would go.
type PlanOptions struct {
	RootIDs []string
	OutDir  string
	Format  importer.Format
	// Since drops notes and attachments last modified before it. Folders
	// are always kept.
	Since time.Time
}

type planner struct {
	store store.Store
	opts  PlanOptions
	attr  string

	seen  map[string]bool
	taken map[string]bool
	out   []types.FileInfo
}

// Plan lists the files an export would write, in a stable order. It only
// reads from the store and touches nothing else, so it can be called for a
// preview and calling it twice without changes in between gives the same
// list.
func Plan(ctx context.Context, s store.Store, opts PlanOptions) ([]types.FileInfo, error) {
	if len(opts.RootIDs) == 0 {
		return nil, &types.ValidationError{Field: "notes", Message: "no note to export"}
	}
	if opts.OutDir == "" {
		return nil, &types.ValidationError{Field: "out", Message: "output directory is required"}
	}
	p := &planner{
		store: s,
		opts:  opts,
		attr:  importer.PathAttrFor(opts.Format),
		seen:  make(map[string]bool),
		taken: make(map[string]bool),
	}
	for _, id := range opts.RootIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.GetNote(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("note %s: %w", id, err)
		}
		if isFolder(n) {
			// A folder root stands for the output directory itself.
			p.seen[n.ID] = true
			if err := p.attachments(ctx, n, ""); err != nil {
				return nil, err
			}
			if err := p.children(ctx, n, ""); err != nil {
				return nil, err
			}
			continue
		}
		if err := p.visit(ctx, n, ""); err != nil {
			return nil, err
		}
	}
	return p.out, nil
}

func (p *planner) visit(ctx context.Context, n *store.Note, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.seen[n.ID] {
		return nil
	}
	p.seen[n.ID] = true

	if isFolder(n) {
		rel := p.folderPath(n, dir)
		p.add(rel, types.FileMeta{Kind: types.KindDirectory, NoteID: n.ID, Title: n.Title}, n.DateModified)
		if err := p.attachments(ctx, n, rel); err != nil {
			return err
		}
		return p.children(ctx, n, rel)
	}

	rel := p.notePath(n, dir)
	if p.keep(n.DateModified) {
		p.add(rel, types.FileMeta{
			Kind:        types.KindNote,
			NoteID:      n.ID,
			Title:       n.Title,
			ContentType: contentTypeFor(rel),
			MimeType:    n.Mime,
		}, n.DateModified)
	}
	base := strings.TrimSuffix(rel, path.Ext(rel))
	if err := p.attachments(ctx, n, base+"_attachments"); err != nil {
		return err
	}
	return p.children(ctx, n, base)
}

func (p *planner) children(ctx context.Context, n *store.Note, dir string) error {
	for _, cid := range n.ChildIDs {
		c, err := p.store.GetNote(ctx, cid)
		if err != nil {
			return fmt.Errorf("note %s: %w", cid, err)
		}
		if err := p.visit(ctx, c, dir); err != nil {
			return err
		}
	}
	return nil
}

func (p *planner) attachments(ctx context.Context, n *store.Note, dir string) error {
	atts, err := p.store.ListAttachments(ctx, n.ID)
	if err != nil {
		return fmt.Errorf("attachments of %s: %w", n.ID, err)
	}
	for _, a := range atts {
		if !p.keep(a.DateModified) {
			continue
		}
		rel := p.unique(join(dir, SanitizeName(a.Title)))
		p.add(rel, types.FileMeta{
			Kind:         types.KindAttachment,
			NoteID:       n.ID,
			AttachmentID: a.ID,
			Title:        a.Title,
			ContentType:  types.ContentBinary,
			MimeType:     a.Mime,
		}, a.DateModified)
	}
	return nil
}

func (p *planner) add(rel string, meta types.FileMeta, mod time.Time) {
	f := types.NewFileInfo(p.opts.OutDir, rel, 0, mod)
	meta.DirectoryPath = f.Meta.DirectoryPath
	meta.Hidden = f.Meta.Hidden
	p.out = append(p.out, f.WithMeta(meta))
}

func (p *planner) keep(mod time.Time) bool {
	return p.opts.Since.IsZero() || !mod.Before(p.opts.Since)
}

func (p *planner) folderPath(n *store.Note, dir string) string {
	if v, ok := n.Label(hierarchy.DirectoryAttr); ok {
		if rel, ok := cleanRel(v); ok {
			return p.unique(rel)
		}
	}
	return p.unique(join(dir, SanitizeName(n.Title)))
}

func (p *planner) notePath(n *store.Note, dir string) string {
	for _, attr := range p.attrOrder() {
		if v, ok := n.Label(attr); ok {
			if rel, ok := cleanRel(v); ok {
				return p.unique(rel)
			}
		}
	}
	return p.unique(join(dir, SanitizeName(n.Title)+extensionFor(n)))
}

func (p *planner) attrOrder() []string {
	if p.attr == "" {
		return pathAttrs
	}
	out := []string{p.attr}
	for _, a := range pathAttrs {
		if a != p.attr {
			out = append(out, a)
		}
	}
	return out
}

// unique returns rel, or rel with a " (n)" suffix if an earlier entry took
// it. Comparison ignores case so case-insensitive filesystems are safe.
func (p *planner) unique(rel string) string {
	ext := path.Ext(rel)
	stem := strings.TrimSuffix(rel, ext)
	candidate := rel
	for i := 2; p.taken[strings.ToLower(candidate)]; i++ {
		candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
	}
	p.taken[strings.ToLower(candidate)] = true
	return candidate
}

func isFolder(n *store.Note) bool {
	if n.Type == store.TypeBook {
		return true
	}
	_, ok := n.Label(hierarchy.DirectoryAttr)
	return ok
}

// cleanRel accepts a stored relative path if it stays inside the output
// directory and outside the git directory. Each segment gets the same
// character mapping as SanitizeName so the path can be committed.
func cleanRel(v string) (string, bool) {
	v = strings.ReplaceAll(strings.TrimSpace(v), `\`, "/")
	if v == "" || strings.HasPrefix(v, "/") {
		return "", false
	}
	c := path.Clean(v)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") || vcs.InGitDir(c) {
		return "", false
	}
	segs := strings.Split(c, "/")
	for i, seg := range segs {
		segs[i] = safeSegment(seg)
		if segs[i] == "" {
			return "", false
		}
	}
	out := strings.Join(segs, "/")
	return out, !vcs.InGitDir(out)
}

func join(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func extensionFor(n *store.Note) string {
	switch {
	case n.Type == store.TypeCode && n.Mime == "application/json":
		return ".json"
	case n.Type == store.TypeCode:
		return ".txt"
	default:
		return ".md"
	}
}

func contentTypeFor(rel string) types.ContentType {
	switch strings.ToLower(path.Ext(rel)) {
	case ".md", ".markdown":
		return types.ContentMarkdown
	case ".html", ".htm":
		return types.ContentHTML
	case ".json":
		return types.ContentJSON
	default:
		return types.ContentText
	}
}

// SanitizeName makes a note title usable as a file name on every common
// filesystem and as a git pathspec. It never returns a name that opens the
// git directory.
func SanitizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if r == '/' {
			b.WriteRune('-')
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimRight(strings.TrimSpace(safeSegment(b.String())), ". ")
	if out == "" || out == "." || out == ".." {
		return "untitled"
	}
	if vcs.IsGitDirName(out) {
		out = "_" + strings.TrimPrefix(out, ".")
	}
	return out
}

// safeSegment maps one path segment onto characters that every filesystem
// and ValidatePaths accept.
func safeSegment(seg string) string {
	var b strings.Builder
	for _, r := range seg {
		switch {
		case r == 0 || unicode.IsControl(r):
			continue
		case strings.ContainsRune(vcs.PathMeta, r):
			b.WriteRune('_')
		case strings.ContainsRune(`:"?*`, r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if strings.HasPrefix(out, "-") {
		out = "_" + out[1:]
	}
	return out
}
