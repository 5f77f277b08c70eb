// Package hierarchy maps source paths onto the note tree: folder notes for
// directories, and lookups of notes a previous run already created.
package hierarchy

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/noteport/noteport/internal/store"
)

// Policy decides what happens when a path was imported before.
type Policy string

const (
	PolicySkip      Policy = "skip"
	PolicyOverwrite Policy = "overwrite"
)

// ParsePolicy validates a policy name. Empty means skip.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicySkip:
		return PolicySkip, nil
	case PolicyOverwrite:
		return PolicyOverwrite, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q (want skip or overwrite)", s)
	}
}

// Decision is the outcome of a duplicate check.
type Decision struct {
	// ID of the existing note or attachment, empty when none was found.
	ID        string
	Skip      bool
	Overwrite bool
}

// Exists reports whether a previous target was found.
func (d Decision) Exists() bool { return d.ID != "" }

// Resolver finds notes carrying a stable path attribute and applies the
// duplicate policy to them.
type Resolver struct {
	store    store.Store
	attr     string
	ancestor string
	policy   Policy
	logger   *log.Logger
}

// NewResolver creates a resolver looking up attr values under ancestor.
// If logger is nil, uses a default logger.
func NewResolver(s store.Store, attr, ancestor string, policy Policy, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(os.Stderr, "[resolve] ", log.LstdFlags)
	}
	if policy == "" {
		policy = PolicySkip
	}
	return &Resolver{store: s, attr: attr, ancestor: ancestor, policy: policy, logger: logger}
}

// Attr is the label name the resolver searches on.
func (r *Resolver) Attr() string { return r.attr }

// Policy returns the configured policy.
func (r *Resolver) Policy() Policy { return r.policy }

// FindNote returns the ID of the note whose path label equals path, or ""
// when there is none. A failed lookup counts as not found.
func (r *Resolver) FindNote(ctx context.Context, path string) string {
	notes, err := r.store.SearchNotes(ctx, store.LabelQuery(r.attr, path, r.ancestor))
	if err != nil {
		r.logger.Printf("lookup %s=%q failed, treating as new: %v", r.attr, path, err)
		return ""
	}
	if len(notes) == 0 {
		return ""
	}
	if len(notes) > 1 {
		r.logger.Printf("%d notes carry %s=%q, using %s", len(notes), r.attr, path, notes[0].ID)
	}
	return notes[0].ID
}

// FindAttachment returns the ID of the attachment titled title on owner.
func (r *Resolver) FindAttachment(ctx context.Context, ownerID, title string) string {
	atts, err := r.store.ListAttachments(ctx, ownerID)
	if err != nil {
		r.logger.Printf("list attachments of %s failed, treating %q as new: %v", ownerID, title, err)
		return ""
	}
	for _, a := range atts {
		if a.Title == title {
			return a.ID
		}
	}
	return ""
}

// Check looks up path and applies the policy.
func (r *Resolver) Check(ctx context.Context, path string) Decision {
	return r.decide(r.FindNote(ctx, path))
}

// CheckAttachment is Check for attachments, keyed by owner and title.
func (r *Resolver) CheckAttachment(ctx context.Context, ownerID, title string) Decision {
	return r.decide(r.FindAttachment(ctx, ownerID, title))
}

func (r *Resolver) decide(id string) Decision {
	if id == "" {
		return Decision{}
	}
	if r.policy == PolicyOverwrite {
		return Decision{ID: id, Overwrite: true}
	}
	return Decision{ID: id, Skip: true}
}

// Overwrite replaces the title, type, content and listed labels of note id
// with those in p. The parent is not changed.
func (r *Resolver) Overwrite(ctx context.Context, id string, p store.CreateNoteParams) error {
	u := store.NoteUpdate{Title: &p.Title}
	if p.Type != "" {
		u.Type = &p.Type
	}
	if p.Mime != "" {
		u.Mime = &p.Mime
	}
	if err := r.store.UpdateNote(ctx, id, u); err != nil {
		return fmt.Errorf("update note %s: %w", id, err)
	}
	if err := r.store.UpdateNoteContent(ctx, id, p.Content); err != nil {
		return fmt.Errorf("update content of %s: %w", id, err)
	}
	if err := store.SyncLabels(ctx, r.store, id, p.Attributes); err != nil {
		return fmt.Errorf("update labels of %s: %w", id, err)
	}
	return nil
}
