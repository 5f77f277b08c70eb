// Package memory implements the note store using in-memory data structures.
// It backs dry runs of the CLI and every engine test.
package memory

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noteport/noteport/internal/store"
)

type noteRecord struct {
	note    store.Note
	content string
}

type attachmentRecord struct {
	att     store.Attachment
	content []byte
}

// MemoryStore implements store.Store on maps.
type MemoryStore struct {
	mu sync.RWMutex // Protects all fields below

	notes       map[string]*noteRecord
	attachments map[string]*attachmentRecord
	attrOwner   map[string]string // attribute ID -> note ID
	seq         int

	writes  int
	created []string // note and attachment IDs in creation order

	// FailCreate, when set, is consulted before each note or attachment
	// creation; a non-nil return fails the call.
	FailCreate func(title string) error

	// FailSearch, when set, is returned from SearchNotes.
	FailSearch error

	now func() time.Time
}

var _ store.Store = (*MemoryStore)(nil)

// New creates an empty store holding only the root note.
func New() *MemoryStore {
	m := &MemoryStore{
		notes:       make(map[string]*noteRecord),
		attachments: make(map[string]*attachmentRecord),
		attrOwner:   make(map[string]string),
		now:         time.Now,
	}
	t := m.now()
	m.notes[store.RootNoteID] = &noteRecord{note: store.Note{
		ID:           store.RootNoteID,
		Title:        "root",
		Type:         store.TypeBook,
		DateCreated:  t,
		DateModified: t,
	}}
	return m
}

// Writes returns the number of mutating calls served.
func (m *MemoryStore) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Created returns note and attachment IDs in creation order.
func (m *MemoryStore) Created() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.created...)
}

// SetClock overrides the time source used for dates.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *MemoryStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s%d", prefix, m.seq)
}

func (m *MemoryStore) CreateNote(_ context.Context, p store.CreateNoteParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCreate != nil {
		if err := m.FailCreate(p.Title); err != nil {
			return "", err
		}
	}
	parent, ok := m.notes[p.ParentID]
	if !ok {
		return "", fmt.Errorf("parent %s: %w", p.ParentID, store.ErrNotFound)
	}

	id := m.nextID("n")
	t := m.now()
	rec := &noteRecord{
		note: store.Note{
			ID:           id,
			Title:        p.Title,
			Type:         p.Type,
			Mime:         p.Mime,
			ParentIDs:    []string{p.ParentID},
			DateCreated:  t,
			DateModified: t,
		},
		content: p.Content,
	}
	for _, a := range p.Attributes {
		a.ID = m.nextID("a")
		a.NoteID = id
		if a.Type == "" {
			a.Type = store.AttributeLabel
		}
		rec.note.Attributes = append(rec.note.Attributes, a)
		m.attrOwner[a.ID] = id
	}
	m.notes[id] = rec
	parent.note.ChildIDs = append(parent.note.ChildIDs, id)
	m.writes++
	m.created = append(m.created, id)
	return id, nil
}

func (m *MemoryStore) GetNote(_ context.Context, id string) (*store.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.notes[id]
	if !ok {
		return nil, fmt.Errorf("note %s: %w", id, store.ErrNotFound)
	}
	return copyNote(&rec.note), nil
}

func copyNote(n *store.Note) *store.Note {
	c := *n
	c.ParentIDs = append([]string(nil), n.ParentIDs...)
	c.ChildIDs = append([]string(nil), n.ChildIDs...)
	c.Attributes = append([]store.Attribute(nil), n.Attributes...)
	return &c
}

func (m *MemoryStore) GetNoteContent(_ context.Context, id string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.notes[id]
	if !ok {
		return "", fmt.Errorf("note %s: %w", id, store.ErrNotFound)
	}
	return rec.content, nil
}

func (m *MemoryStore) UpdateNote(_ context.Context, id string, u store.NoteUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.notes[id]
	if !ok {
		return fmt.Errorf("note %s: %w", id, store.ErrNotFound)
	}
	if u.Title != nil {
		rec.note.Title = *u.Title
	}
	if u.Type != nil {
		rec.note.Type = *u.Type
	}
	if u.Mime != nil {
		rec.note.Mime = *u.Mime
	}
	rec.note.DateModified = m.now()
	m.writes++
	return nil
}

func (m *MemoryStore) UpdateNoteContent(_ context.Context, id, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.notes[id]
	if !ok {
		return fmt.Errorf("note %s: %w", id, store.ErrNotFound)
	}
	rec.content = content
	rec.note.DateModified = m.now()
	m.writes++
	return nil
}

func (m *MemoryStore) DeleteNote(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id == store.RootNoteID {
		return fmt.Errorf("cannot delete root note")
	}
	if _, ok := m.notes[id]; !ok {
		return fmt.Errorf("note %s: %w", id, store.ErrNotFound)
	}
	m.deleteLocked(id)
	m.writes++
	return nil
}

func (m *MemoryStore) deleteLocked(id string) {
	rec, ok := m.notes[id]
	if !ok {
		return
	}
	for _, child := range rec.note.ChildIDs {
		m.deleteLocked(child)
	}
	for _, p := range rec.note.ParentIDs {
		if parent, ok := m.notes[p]; ok {
			parent.note.ChildIDs = removeString(parent.note.ChildIDs, id)
		}
	}
	for _, a := range rec.note.Attributes {
		delete(m.attrOwner, a.ID)
	}
	for aid, att := range m.attachments {
		if att.att.OwnerID == id {
			delete(m.attachments, aid)
		}
	}
	delete(m.notes, id)
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func (m *MemoryStore) CreateAttachment(_ context.Context, p store.CreateAttachmentParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailCreate != nil {
		if err := m.FailCreate(p.Title); err != nil {
			return "", err
		}
	}
	if _, ok := m.notes[p.OwnerID]; !ok {
		return "", fmt.Errorf("owner %s: %w", p.OwnerID, store.ErrNotFound)
	}
	data, err := base64.StdEncoding.DecodeString(p.Base64)
	if err != nil {
		return "", fmt.Errorf("decode attachment %s: %w", p.Title, err)
	}

	id := m.nextID("att")
	role := p.Role
	if role == "" {
		role = "file"
	}
	m.attachments[id] = &attachmentRecord{
		att: store.Attachment{
			ID:           id,
			OwnerID:      p.OwnerID,
			Role:         role,
			Title:        p.Title,
			Mime:         p.Mime,
			Size:         int64(len(data)),
			DateModified: m.now(),
		},
		content: data,
	}
	m.writes++
	m.created = append(m.created, id)
	return id, nil
}

func (m *MemoryStore) ListAttachments(_ context.Context, noteID string) ([]store.Attachment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.notes[noteID]; !ok {
		return nil, fmt.Errorf("note %s: %w", noteID, store.ErrNotFound)
	}
	var out []store.Attachment
	for _, a := range m.attachments {
		if a.att.OwnerID == noteID {
			out = append(out, a.att)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (m *MemoryStore) GetAttachmentContent(_ context.Context, id string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.attachments[id]
	if !ok {
		return nil, fmt.Errorf("attachment %s: %w", id, store.ErrNotFound)
	}
	return append([]byte(nil), a.content...), nil
}

func (m *MemoryStore) UpdateAttachmentContent(_ context.Context, id, b64 string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.attachments[id]
	if !ok {
		return fmt.Errorf("attachment %s: %w", id, store.ErrNotFound)
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("decode attachment %s: %w", id, err)
	}
	a.content = data
	a.att.Size = int64(len(data))
	a.att.DateModified = m.now()
	m.writes++
	return nil
}

func (m *MemoryStore) SearchNotes(_ context.Context, q store.Query) ([]store.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailSearch != nil {
		return nil, m.FailSearch
	}
	var out []store.Note
	for _, rec := range m.notes {
		if !q.Matches(&rec.note) {
			continue
		}
		if q.AncestorID != "" && !m.descendsLocked(rec.note.ID, q.AncestorID) {
			continue
		}
		out = append(out, *copyNote(&rec.note))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) descendsLocked(id, ancestor string) bool {
	seen := map[string]bool{}
	var walk func(string) bool
	walk = func(cur string) bool {
		if seen[cur] {
			return false
		}
		seen[cur] = true
		rec, ok := m.notes[cur]
		if !ok {
			return false
		}
		for _, p := range rec.note.ParentIDs {
			if p == ancestor || walk(p) {
				return true
			}
		}
		return false
	}
	return walk(id)
}

func (m *MemoryStore) CreateAttribute(_ context.Context, a store.Attribute) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.notes[a.NoteID]
	if !ok {
		return "", fmt.Errorf("note %s: %w", a.NoteID, store.ErrNotFound)
	}
	a.ID = m.nextID("a")
	if a.Type == "" {
		a.Type = store.AttributeLabel
	}
	rec.note.Attributes = append(rec.note.Attributes, a)
	m.attrOwner[a.ID] = a.NoteID
	m.writes++
	return a.ID, nil
}

func (m *MemoryStore) GetNoteAttributes(_ context.Context, noteID string) ([]store.Attribute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.notes[noteID]
	if !ok {
		return nil, fmt.Errorf("note %s: %w", noteID, store.ErrNotFound)
	}
	return append([]store.Attribute(nil), rec.note.Attributes...), nil
}

func (m *MemoryStore) UpdateAttribute(_ context.Context, a store.Attribute) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, ok := m.attrOwner[a.ID]
	if !ok {
		return fmt.Errorf("attribute %s: %w", a.ID, store.ErrNotFound)
	}
	rec := m.notes[owner]
	for i := range rec.note.Attributes {
		if rec.note.Attributes[i].ID == a.ID {
			rec.note.Attributes[i].Value = a.Value
		}
	}
	m.writes++
	return nil
}

func (m *MemoryStore) DeleteAttribute(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	owner, ok := m.attrOwner[id]
	if !ok {
		return fmt.Errorf("attribute %s: %w", id, store.ErrNotFound)
	}
	rec := m.notes[owner]
	attrs := rec.note.Attributes[:0]
	for _, a := range rec.note.Attributes {
		if a.ID != id {
			attrs = append(attrs, a)
		}
	}
	rec.note.Attributes = attrs
	delete(m.attrOwner, id)
	m.writes++
	return nil
}
