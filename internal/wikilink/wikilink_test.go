package wikilink

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/noteport/noteport/internal/store"
	"github.com/noteport/noteport/internal/store/memory"
)

func testIndex() *Index {
	ix := NewIndex()
	ix.Add("notes/Project Plan.md", Target{ID: "n1", Title: "Project Plan"})
	ix.Add("daily/plan.md", Target{ID: "n2", Title: "plan"})
	ix.Add("assets/diagram.png", Target{ID: "att3", Title: "diagram.png", Attachment: true})
	return ix
}

func TestIndexLookup(t *testing.T) {
	ix := testIndex()
	tests := []struct {
		target string
		want   string
		ok     bool
	}{
		{"Project Plan", "n1", true},
		{"project plan", "n1", true},
		{"notes/Project Plan", "n1", true},
		{"plan", "n2", true},
		// Case-insensitive fallback.
		{"Plan", "n2", true},
		{"diagram.png", "att3", true},
		{"missing", "", false},
	}
	for _, tt := range tests {
		got, ok := ix.Lookup(tt.target)
		if ok != tt.ok || got.ID != tt.want {
			t.Errorf("Lookup(%q) = %q, %v, want %q, %v", tt.target, got.ID, ok, tt.want, tt.ok)
		}
	}
}

func TestIndexExactBeatsFolded(t *testing.T) {
	ix := NewIndex()
	ix.Add("Readme.md", Target{ID: "upper"})
	ix.Add("readme.md", Target{ID: "lower"})
	if got, _ := ix.Lookup("readme"); got.ID != "lower" {
		t.Errorf("Lookup(readme) = %s, want lower", got.ID)
	}
	if got, _ := ix.Lookup("README"); got.ID != "upper" {
		t.Errorf("Lookup(README) = %s, want first registered", got.ID)
	}
}

func TestRewrite(t *testing.T) {
	in := "<p>See [[Project Plan|the plan]] and ![[diagram.png]].</p>\n<p>Also [[Nowhere]].</p>"
	out, missing, changed := Rewrite(in, testIndex())
	if !changed {
		t.Fatal("Rewrite() reported no change")
	}
	if !strings.Contains(out, `<a class="reference-link" href="#root/n1">the plan</a>`) {
		t.Errorf("link not rewritten: %s", out)
	}
	if !strings.Contains(out, `api/attachments/att3/image/diagram.png`) {
		t.Errorf("embed not rewritten: %s", out)
	}
	if !strings.Contains(out, "[[Nowhere]]") {
		t.Errorf("unresolved link altered: %s", out)
	}
	if len(missing) != 1 || missing[0].Target != "Nowhere" {
		t.Errorf("unresolved = %+v", missing)
	}

	if _, _, changed := Rewrite("<p>no links</p>", testIndex()); changed {
		t.Error("Rewrite() without links reported a change")
	}
}

func TestResolveNotesWritesOnlyChanged(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	mk := func(title, content string) string {
		id, err := s.CreateNote(ctx, store.CreateNoteParams{ParentID: store.RootNoteID, Title: title, Type: store.TypeText, Content: content})
		if err != nil {
			t.Fatalf("CreateNote() failed: %v", err)
		}
		return id
	}
	a := mk("a", "<p>link to [[b]]</p>")
	b := mk("b", "<p>plain</p>")
	c := mk("c", "<p>first</p>\n<p>[[ghost]]</p>")

	ix := NewIndex()
	ix.Add("a.md", Target{ID: a})
	ix.Add("b.md", Target{ID: b})
	ix.Add("c.md", Target{ID: c})

	before := s.Writes()
	r := NewResolver(s, nil, log.New(io.Discard, "", 0))
	rep, err := r.ResolveNotes(ctx, []string{a, b, c}, ix)
	if err != nil {
		t.Fatalf("ResolveNotes() failed: %v", err)
	}
	if got := s.Writes() - before; got != 1 {
		t.Errorf("ResolveNotes() wrote %d times, want 1", got)
	}
	if rep.Scanned != 3 || rep.Rewritten != 1 {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.Unresolved) != 1 || rep.Unresolved[0].Line != 2 || rep.Unresolved[0].NoteID != c {
		t.Errorf("unresolved = %+v", rep.Unresolved)
	}
	content, _ := s.GetNoteContent(ctx, a)
	if !strings.Contains(content, "#root/"+b) {
		t.Errorf("note a = %s", content)
	}
}

func TestLineCache(t *testing.T) {
	c := NewLineCache(2, time.Minute)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	content := "one\ntwo\nthree"
	for offset, want := range map[int]int{0: 1, 3: 1, 4: 2, 8: 3, 12: 3} {
		if got := c.Line("n1", content, offset); got != want {
			t.Errorf("Line(%d) = %d, want %d", offset, got, want)
		}
	}

	c.Line("n2", "x", 0)
	c.Line("n3", "y", 0)
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want bound of 2", c.Len())
	}

	c.Evict("n3")
	if c.Len() != 1 {
		t.Errorf("Len() after Evict = %d", c.Len())
	}

	now = now.Add(2 * time.Minute)
	if n := c.EvictExpired(); n != 1 || c.Len() != 0 {
		t.Errorf("EvictExpired() = %d, Len() = %d", n, c.Len())
	}
}

func TestResolveNotesDropsStaleLines(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	c := NewLineCache(8, time.Minute)
	c.now = func() time.Time { return now }
	c.Line("gone", "a\nb\n", 2)

	now = now.Add(2 * time.Minute)
	r := NewResolver(memory.New(), c, log.New(io.Discard, "", 0))
	if _, err := r.ResolveNotes(context.Background(), nil, NewIndex()); err != nil {
		t.Fatalf("ResolveNotes() failed: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after pass, want stale entry dropped", c.Len())
	}
}
