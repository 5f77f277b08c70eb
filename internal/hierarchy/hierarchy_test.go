package hierarchy

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/noteport/noteport/internal/store"
	"github.com/noteport/noteport/internal/store/memory"
)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func TestEnsureDirectoriesParentsFirst(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	m := NewMapper(s, store.RootNoteID, quietLogger())

	results := m.EnsureDirectories(ctx, []string{"a", "a/b", "a/b/c"}, false)
	for _, r := range results {
		if r.Err != nil || !r.Created {
			t.Fatalf("EnsureDirectories(%s) = %+v", r.Path, r)
		}
	}

	created := s.Created()
	if len(created) != 3 {
		t.Fatalf("created %d notes, want 3", len(created))
	}
	for i, dir := range []string{"a", "a/b", "a/b/c"} {
		id, _ := m.ParentFor(dir)
		if created[i] != id {
			t.Errorf("creation %d = %s, want %s (%s)", i, created[i], id, dir)
		}
	}

	c, err := s.GetNote(ctx, results[2].ID)
	if err != nil {
		t.Fatalf("GetNote() failed: %v", err)
	}
	if c.Title != "c" || c.Type != store.TypeBook || c.ParentIDs[0] != results[1].ID {
		t.Errorf("folder c = %+v", c)
	}
	if v, _ := c.Label(DirectoryAttr); v != "a/b/c" {
		t.Errorf("directory label = %q", v)
	}
}

func TestEnsureDirectoriesReusesExisting(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	NewMapper(s, store.RootNoteID, quietLogger()).EnsureDirectories(ctx, []string{"notes", "notes/sub"}, false)
	before := s.Writes()

	m := NewMapper(s, store.RootNoteID, quietLogger())
	results := m.EnsureDirectories(ctx, []string{"notes", "notes/sub"}, false)
	if s.Writes() != before {
		t.Errorf("second run wrote %d times", s.Writes()-before)
	}
	for _, r := range results {
		if r.Created || r.ID == "" {
			t.Errorf("second run %s = %+v, want reuse", r.Path, r)
		}
	}
}

func TestEnsureDirectoriesFailedParent(t *testing.T) {
	s := memory.New()
	s.FailCreate = func(title string) error {
		if title == "a" {
			return errors.New("boom")
		}
		return nil
	}
	m := NewMapper(s, store.RootNoteID, quietLogger())
	results := m.EnsureDirectories(context.Background(), []string{"a", "x", "a/b"}, false)

	if results[0].Err == nil || results[1].Err != nil {
		t.Fatalf("results = %+v", results)
	}
	if results[2].Err == nil || !strings.Contains(results[2].Err.Error(), "no note") {
		t.Errorf("a/b err = %v, want missing parent", results[2].Err)
	}
}

func TestEnsureDirectoriesDryRun(t *testing.T) {
	s := memory.New()
	m := NewMapper(s, store.RootNoteID, quietLogger())
	m.EnsureDirectories(context.Background(), []string{"a", "a/b"}, true)
	if s.Writes() != 0 {
		t.Errorf("dry run wrote %d times", s.Writes())
	}
	if id, ok := m.ParentFor("a/b"); !ok || id == "" {
		t.Errorf("ParentFor(a/b) = %q, %v", id, ok)
	}
	if len(m.Map()) != 2 {
		t.Errorf("Map() = %v", m.Map())
	}
}

func TestResolverPolicies(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	id, err := s.CreateNote(ctx, store.CreateNoteParams{
		ParentID:   store.RootNoteID,
		Title:      "Old",
		Type:       store.TypeText,
		Content:    "<p>old</p>",
		Attributes: []store.Attribute{store.Label("original-path", "a.md"), store.Label("keep", "1")},
	})
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}

	skip := NewResolver(s, "original-path", store.RootNoteID, PolicySkip, quietLogger())
	if d := skip.Check(ctx, "a.md"); !d.Skip || d.ID != id {
		t.Errorf("Check(skip) = %+v", d)
	}
	if d := skip.Check(ctx, "b.md"); d.Exists() {
		t.Errorf("Check(missing) = %+v", d)
	}

	over := NewResolver(s, "original-path", store.RootNoteID, PolicyOverwrite, quietLogger())
	d := over.Check(ctx, "a.md")
	if !d.Overwrite {
		t.Fatalf("Check(overwrite) = %+v", d)
	}
	err = over.Overwrite(ctx, d.ID, store.CreateNoteParams{
		Title:      "New",
		Content:    "<p>new</p>",
		Attributes: []store.Attribute{store.Label("original-path", "a.md"), store.Label("status", "done")},
	})
	if err != nil {
		t.Fatalf("Overwrite() failed: %v", err)
	}
	n, _ := s.GetNote(ctx, id)
	content, _ := s.GetNoteContent(ctx, id)
	if n.Title != "New" || content != "<p>new</p>" {
		t.Errorf("after overwrite: title %q content %q", n.Title, content)
	}
	if v, _ := n.Label("status"); v != "done" {
		t.Errorf("status label = %q", v)
	}
	if _, ok := n.Label("keep"); !ok {
		t.Error("unrelated label removed")
	}
}

func TestResolverLookupFailureIsNotFound(t *testing.T) {
	s := memory.New()
	s.FailSearch = errors.New("connection reset")
	r := NewResolver(s, "original-path", "", PolicySkip, quietLogger())
	if d := r.Check(context.Background(), "a.md"); d.Exists() {
		t.Errorf("Check() with failing search = %+v, want not found", d)
	}
	if d := r.CheckAttachment(context.Background(), "nope", "x.png"); d.Exists() {
		t.Errorf("CheckAttachment() on missing owner = %+v", d)
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{"": PolicySkip, "skip": PolicySkip, "overwrite": PolicyOverwrite} {
		if got, err := ParsePolicy(in); err != nil || got != want {
			t.Errorf("ParsePolicy(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParsePolicy("merge"); err == nil {
		t.Error("ParsePolicy(merge) succeeded")
	}
}
