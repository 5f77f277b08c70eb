package etapi

import (
	"time"

	"github.com/noteport/noteport/internal/store"
)

// Wire shapes of the ETAPI JSON bodies. They never leave this package.

type createNoteRequest struct {
	ParentNoteID string `json:"parentNoteId"`
	Title        string `json:"title"`
	Type         string `json:"type"`
	Mime         string `json:"mime,omitempty"`
	Content      string `json:"content"`
}

type createNoteResponse struct {
	Note   wireNote `json:"note"`
	Branch struct {
		BranchID string `json:"branchId"`
	} `json:"branch"`
}

type searchResponse struct {
	Results []wireNote `json:"results"`
}

type wireNote struct {
	NoteID          string          `json:"noteId"`
	Title           string          `json:"title"`
	Type            string          `json:"type"`
	Mime            string          `json:"mime"`
	ParentNoteIDs   []string        `json:"parentNoteIds"`
	ChildNoteIDs    []string        `json:"childNoteIds"`
	Attributes      []wireAttribute `json:"attributes"`
	DateCreated     string          `json:"dateCreated"`
	DateModified    string          `json:"dateModified"`
	UtcDateCreated  string          `json:"utcDateCreated"`
	UtcDateModified string          `json:"utcDateModified"`
}

type wireAttribute struct {
	AttributeID string `json:"attributeId"`
	NoteID      string `json:"noteId"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Value       string `json:"value"`
}

type wireAttachment struct {
	AttachmentID    string `json:"attachmentId"`
	OwnerID         string `json:"ownerId"`
	Role            string `json:"role"`
	Mime            string `json:"mime"`
	Title           string `json:"title"`
	ContentLength   int64  `json:"contentLength"`
	UtcDateModified string `json:"utcDateModified"`
}

// Trilium date layouts: local dates carry an offset, UTC dates end in Z.
var dateLayouts = []string{
	"2006-01-02 15:04:05.000Z07:00",
	"2006-01-02 15:04:05.000-0700",
	"2006-01-02 15:04:05.000Z",
	time.RFC3339Nano,
}

func parseDate(values ...string) time.Time {
	for _, v := range values {
		if v == "" {
			continue
		}
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

func (n wireNote) normalize() store.Note {
	note := store.Note{
		ID:           n.NoteID,
		Title:        n.Title,
		Type:         n.Type,
		Mime:         n.Mime,
		ParentIDs:    n.ParentNoteIDs,
		ChildIDs:     n.ChildNoteIDs,
		DateCreated:  parseDate(n.UtcDateCreated, n.DateCreated),
		DateModified: parseDate(n.UtcDateModified, n.DateModified),
	}
	for _, a := range n.Attributes {
		note.Attributes = append(note.Attributes, store.Attribute{
			ID:     a.AttributeID,
			NoteID: a.NoteID,
			Type:   a.Type,
			Name:   a.Name,
			Value:  a.Value,
		})
	}
	return note
}

func (a wireAttachment) normalize() store.Attachment {
	return store.Attachment{
		ID:           a.AttachmentID,
		OwnerID:      a.OwnerID,
		Role:         a.Role,
		Title:        a.Title,
		Mime:         a.Mime,
		Size:         a.ContentLength,
		DateModified: parseDate(a.UtcDateModified),
	}
}
