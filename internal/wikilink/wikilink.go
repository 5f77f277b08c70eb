// Package wikilink rewrites [[wikilink]] references into internal note
// links once every note of an import batch has an ID.
package wikilink

import (
	"context"
	"fmt"
	"html"
	"log"
	"os"
	"path"
	"strings"

	"github.com/noteport/noteport/internal/classify"
	"github.com/noteport/noteport/internal/store"
)

// Target is what a link name resolves to.
type Target struct {
	ID         string
	Title      string
	Attachment bool
}

// Index resolves link targets by file name. Lookups try an exact match
// first and fall back to a case-insensitive one.
type Index struct {
	exact  map[string]Target
	folded map[string]Target
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{exact: make(map[string]Target), folded: make(map[string]Target)}
}

// Add registers the file at rel (slash separated). It becomes reachable by
// its path and its file name, each with or without extension. Earlier
// registrations win on a clash.
func (ix *Index) Add(rel string, t Target) {
	base := path.Base(rel)
	for _, key := range []string{
		rel,
		strings.TrimSuffix(rel, path.Ext(rel)),
		base,
		strings.TrimSuffix(base, path.Ext(base)),
	} {
		if _, ok := ix.exact[key]; !ok {
			ix.exact[key] = t
		}
		lk := strings.ToLower(key)
		if _, ok := ix.folded[lk]; !ok {
			ix.folded[lk] = t
		}
	}
}

// Lookup resolves a wikilink target.
func (ix *Index) Lookup(target string) (Target, bool) {
	target = strings.TrimPrefix(strings.TrimSpace(target), "/")
	if t, ok := ix.exact[target]; ok {
		return t, true
	}
	t, ok := ix.folded[strings.ToLower(target)]
	return t, ok
}

// Len returns the number of registered keys.
func (ix *Index) Len() int { return len(ix.exact) }

// Unresolved is a link that matched nothing.
type Unresolved struct {
	NoteID string
	Target string
	Offset int
	Line   int
}

func (u Unresolved) String() string {
	return fmt.Sprintf("note %s line %d: unresolved link [[%s]]", u.NoteID, u.Line, u.Target)
}

// Rewrite replaces every resolvable wikilink in content and reports the
// targets it could not resolve. changed is false when nothing matched.
func Rewrite(content string, ix *Index) (out string, unresolved []Unresolved, changed bool) {
	links := classify.WikiLinks(content)
	if len(links) == 0 {
		return content, nil, false
	}

	var b strings.Builder
	last := 0
	for _, l := range links {
		t, ok := ix.Lookup(l.Target)
		if !ok {
			unresolved = append(unresolved, Unresolved{Target: l.Target, Offset: l.Offset})
			continue
		}
		b.WriteString(content[last:l.Offset])
		b.WriteString(render(l.Embed, l.Label, l.Target, t))
		last = l.Offset + len(l.Raw)
		changed = true
	}
	if !changed {
		return content, unresolved, false
	}
	b.WriteString(content[last:])
	return b.String(), unresolved, true
}

func render(embed bool, label, target string, t Target) string {
	if label == "" {
		label = target
	}
	switch {
	case embed && t.Attachment:
		return fmt.Sprintf(`<img src="api/attachments/%s/image/%s" alt="%s">`,
			t.ID, html.EscapeString(t.Title), html.EscapeString(label))
	case embed:
		return fmt.Sprintf(`<section class="include-note" data-note-id="%s"></section>`, t.ID)
	case t.Attachment:
		return fmt.Sprintf(`<a class="reference-link" href="#root/attachments/%s">%s</a>`, t.ID, html.EscapeString(label))
	default:
		return fmt.Sprintf(`<a class="reference-link" href="#root/%s">%s</a>`, t.ID, html.EscapeString(label))
	}
}

// Resolver runs the link pass over stored notes.
type Resolver struct {
	store  store.Store
	lines  *LineCache
	logger *log.Logger
}

// NewResolver creates a resolver with its own line cache. If logger is nil,
// uses a default logger.
func NewResolver(s store.Store, lines *LineCache, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(os.Stderr, "[wikilink] ", log.LstdFlags)
	}
	if lines == nil {
		lines = NewLineCache(0, 0)
	}
	return &Resolver{store: s, lines: lines, logger: logger}
}

// Report summarizes a link pass.
type Report struct {
	Scanned    int
	Rewritten  int
	Unresolved []Unresolved
	Errors     []error
}

// ResolveNotes rewrites links in each note of noteIDs. Notes without a
// resolvable link are not written. Per-note failures are collected and
// the pass continues; only cancellation stops it early.
func (r *Resolver) ResolveNotes(ctx context.Context, noteIDs []string, ix *Index) (*Report, error) {
	if n := r.lines.EvictExpired(); n > 0 {
		r.logger.Printf("dropped %d stale line tables", n)
	}
	rep := &Report{}
	for _, id := range noteIDs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		content, err := r.store.GetNoteContent(ctx, id)
		if err != nil {
			rep.Errors = append(rep.Errors, fmt.Errorf("read note %s: %w", id, err))
			continue
		}
		rep.Scanned++

		out, missing, changed := Rewrite(content, ix)
		for _, u := range missing {
			u.NoteID = id
			u.Line = r.lines.Line(id, content, u.Offset)
			rep.Unresolved = append(rep.Unresolved, u)
		}
		if !changed {
			continue
		}
		r.lines.Evict(id)
		if err := r.store.UpdateNoteContent(ctx, id, out); err != nil {
			rep.Errors = append(rep.Errors, fmt.Errorf("update note %s: %w", id, err))
			continue
		}
		rep.Rewritten++
	}
	if len(rep.Unresolved) > 0 {
		r.logger.Printf("%d unresolved wikilinks", len(rep.Unresolved))
	}
	return rep, nil
}
