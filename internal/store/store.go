// Package store defines the note store boundary used by the import and
// export engines.
//
// The engines only talk to the Store interface. Backends normalize their
// wire shapes (wrapped create responses, string dates, search envelopes)
// into the types below so callers never deal with them.
//
// # Implementations
//
//   - internal/store/etapi: HTTP client for a Trilium ETAPI server
//   - internal/store/sqlite: local single-file store
//   - internal/store/memory: in-process store used by tests and dry runs
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RootNoteID is the identifier of the tree root in every backend.
const RootNoteID = "root"

// Note types understood by the engines.
const (
	TypeText = "text"
	TypeCode = "code"
	TypeBook = "book"
	TypeFile = "file"
)

var (
	// ErrNotFound is returned when a note, attribute or attachment does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when the store rejects the credentials.
	ErrUnauthorized = errors.New("unauthorized")
)

// Note is the normalized view of a stored note.
type Note struct {
	ID           string
	Title        string
	Type         string
	Mime         string
	ParentIDs    []string
	ChildIDs     []string
	Attributes   []Attribute
	DateCreated  time.Time
	DateModified time.Time
}

// Label returns the value of the first label named name.
func (n *Note) Label(name string) (string, bool) {
	for _, a := range n.Attributes {
		if a.Type == AttributeLabel && a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Labels returns every label of the note in order.
func (n *Note) Labels() []Attribute {
	var out []Attribute
	for _, a := range n.Attributes {
		if a.Type == AttributeLabel {
			out = append(out, a)
		}
	}
	return out
}

// Attribute types.
const (
	AttributeLabel    = "label"
	AttributeRelation = "relation"
)

// Attribute is a label or relation attached to a note.
type Attribute struct {
	ID     string
	NoteID string
	Type   string
	Name   string
	Value  string
}

// Label builds a label attribute.
func Label(name, value string) Attribute {
	return Attribute{Type: AttributeLabel, Name: name, Value: value}
}

// Attachment describes a binary or text blob owned by a note.
type Attachment struct {
	ID           string
	OwnerID      string
	Role         string
	Title        string
	Mime         string
	Size         int64
	DateModified time.Time
}

// CreateNoteParams describes a note to create.
type CreateNoteParams struct {
	ParentID   string
	Title      string
	Type       string
	Mime       string
	Content    string
	Attributes []Attribute
}

// NoteUpdate patches note metadata. Nil fields are left unchanged.
type NoteUpdate struct {
	Title *string
	Type  *string
	Mime  *string
}

// CreateAttachmentParams describes an attachment to create. Content is
// base64 encoded.
type CreateAttachmentParams struct {
	OwnerID string
	Role    string
	Title   string
	Mime    string
	Base64  string
}

// Query selects notes carrying a label, optionally restricted to the
// subtree under AncestorID.
type Query struct {
	Label      string
	Value      string
	MatchValue bool
	AncestorID string
}

// LabelQuery builds a query for notes whose label name equals value.
func LabelQuery(name, value, ancestorID string) Query {
	return Query{Label: name, Value: value, MatchValue: true, AncestorID: ancestorID}
}

// String renders q in the note store search syntax.
func (q Query) String() string {
	if !q.MatchValue {
		return "#" + q.Label
	}
	v := strings.ReplaceAll(q.Value, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return fmt.Sprintf(`#%s="%s"`, q.Label, v)
}

// Matches reports whether n satisfies the label part of q. Backends apply
// the ancestor restriction themselves.
func (q Query) Matches(n *Note) bool {
	for _, a := range n.Attributes {
		if a.Type != AttributeLabel || a.Name != q.Label {
			continue
		}
		if !q.MatchValue || a.Value == q.Value {
			return true
		}
	}
	return false
}

// Store is the note store boundary.
type Store interface {
	CreateNote(ctx context.Context, p CreateNoteParams) (string, error)
	GetNote(ctx context.Context, id string) (*Note, error)
	GetNoteContent(ctx context.Context, id string) (string, error)
	UpdateNote(ctx context.Context, id string, u NoteUpdate) error
	UpdateNoteContent(ctx context.Context, id, content string) error
	DeleteNote(ctx context.Context, id string) error

	CreateAttachment(ctx context.Context, p CreateAttachmentParams) (string, error)
	ListAttachments(ctx context.Context, noteID string) ([]Attachment, error)
	GetAttachmentContent(ctx context.Context, id string) ([]byte, error)
	UpdateAttachmentContent(ctx context.Context, id, base64 string) error

	SearchNotes(ctx context.Context, q Query) ([]Note, error)

	CreateAttribute(ctx context.Context, a Attribute) (string, error)
	GetNoteAttributes(ctx context.Context, noteID string) ([]Attribute, error)
	UpdateAttribute(ctx context.Context, a Attribute) error
	DeleteAttribute(ctx context.Context, id string) error
}

// Closer is implemented by backends holding a connection.
type Closer interface {
	Close() error
}

// SyncLabels makes the labels of note noteID listed in want match want.
// Labels with other names are left alone.
func SyncLabels(ctx context.Context, s Store, noteID string, want []Attribute) error {
	have, err := s.GetNoteAttributes(ctx, noteID)
	if err != nil {
		return err
	}
	byName := make(map[string]Attribute)
	for _, a := range have {
		if a.Type == AttributeLabel {
			if _, dup := byName[a.Name]; !dup {
				byName[a.Name] = a
			}
		}
	}
	for _, w := range want {
		cur, ok := byName[w.Name]
		switch {
		case !ok:
			w.NoteID = noteID
			if _, err := s.CreateAttribute(ctx, w); err != nil {
				return err
			}
		case cur.Value != w.Value:
			cur.Value = w.Value
			if err := s.UpdateAttribute(ctx, cur); err != nil {
				return err
			}
		}
	}
	return nil
}

// CreateNoteAtomic creates a note and leaves nothing behind on failure.
// A backend that stores the note but then fails on its attributes returns
// the id alongside the error; that note is deleted again so a later run
// does not find an unlabeled copy.
func CreateNoteAtomic(ctx context.Context, s Store, p CreateNoteParams) (string, error) {
	id, err := s.CreateNote(ctx, p)
	if err == nil || id == "" {
		return id, err
	}
	if derr := s.DeleteNote(ctx, id); derr != nil {
		return id, errors.Join(err, fmt.Errorf("remove partial note %s: %w", id, derr))
	}
	return "", err
}
