package etapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/noteport/noteport/internal/store"
)

type recorded struct {
	method string
	path   string
	query  string
	body   string
	auth   string
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, recorded{r.Method, r.URL.Path, r.URL.RawQuery, string(body), r.Header.Get("Authorization")})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "secret-token")
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return c, &calls
}

func TestCreateNoteUnwrapsResponseAndAddsAttributes(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/etapi/create-note":
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"note":{"noteId":"abc123","title":"a"},"branch":{"branchId":"b1"}}`))
		case "/etapi/attributes":
			_, _ = w.Write([]byte(`{"attributeId":"attr1"}`))
		default:
			http.NotFound(w, r)
		}
	})

	id, err := c.CreateNote(context.Background(), store.CreateNoteParams{
		ParentID:   "root",
		Title:      "a",
		Content:    "<p>x</p>",
		Attributes: []store.Attribute{store.Label("original-path", "a.md")},
	})
	if err != nil {
		t.Fatalf("CreateNote() failed: %v", err)
	}
	if id != "abc123" {
		t.Errorf("CreateNote() = %q, want abc123", id)
	}

	if len(*calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(*calls))
	}
	first := (*calls)[0]
	if first.auth != "secret-token" {
		t.Errorf("Authorization = %q", first.auth)
	}
	var sent map[string]string
	_ = json.Unmarshal([]byte(first.body), &sent)
	if sent["parentNoteId"] != "root" || sent["type"] != "text" {
		t.Errorf("create-note body = %v", sent)
	}
	var attr map[string]string
	_ = json.Unmarshal([]byte((*calls)[1].body), &attr)
	if attr["noteId"] != "abc123" || attr["name"] != "original-path" || attr["type"] != "label" {
		t.Errorf("attribute body = %v", attr)
	}
}

func TestGetNoteNormalizesDates(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"noteId":"n1","title":"T","type":"text","mime":"text/html",
			"parentNoteIds":["root"],"childNoteIds":["n2"],
			"attributes":[{"attributeId":"a1","noteId":"n1","type":"label","name":"git-path","value":"x.md"}],
			"utcDateModified":"2024-03-01 10:20:30.123Z"
		}`))
	})

	n, err := c.GetNote(context.Background(), "n1")
	if err != nil {
		t.Fatalf("GetNote() failed: %v", err)
	}
	if n.DateModified.IsZero() || n.DateModified.Year() != 2024 {
		t.Errorf("DateModified = %v", n.DateModified)
	}
	if v, ok := n.Label("git-path"); !ok || v != "x.md" {
		t.Errorf("Label(git-path) = %q, %v", v, ok)
	}
	if len(n.ChildIDs) != 1 {
		t.Errorf("ChildIDs = %v", n.ChildIDs)
	}
}

func TestSearchNotesFiltersExactValues(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[
			{"noteId":"n1","attributes":[{"type":"label","name":"git-path","value":"a.md"}]},
			{"noteId":"n2","attributes":[{"type":"label","name":"git-path","value":"a.md.bak"}]}
		]}`))
	})

	notes, err := c.SearchNotes(context.Background(), store.LabelQuery("git-path", "a.md", "parent1"))
	if err != nil {
		t.Fatalf("SearchNotes() failed: %v", err)
	}
	if len(notes) != 1 || notes[0].ID != "n1" {
		t.Errorf("SearchNotes() = %+v, want only n1", notes)
	}
	q := (*calls)[0].query
	if q == "" || !strings.Contains(q, "ancestorNoteId=parent1") {
		t.Errorf("query = %q, want ancestorNoteId", q)
	}
}

func TestErrorEnvelopeMapsToSentinels(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":404,"code":"NOTE_NOT_FOUND","message":"Note 'zz' not found"}`))
	})

	_, err := c.GetNote(context.Background(), "zz")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("GetNote() error = %v, want ErrNotFound", err)
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "NOTE_NOT_FOUND" {
		t.Errorf("error = %#v, want APIError NOTE_NOT_FOUND", err)
	}
}

func TestNewRejectsBadURL(t *testing.T) {
	if _, err := New("", "t"); err == nil {
		t.Error("New(\"\") succeeded")
	}
	if _, err := New("localhost:8080", "t"); err == nil {
		t.Error("New() accepted url without scheme")
	}
}
