package gitsync

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/noteport/noteport/internal/store"
	"github.com/noteport/noteport/internal/store/memory"
	"github.com/noteport/noteport/internal/types"
	"github.com/noteport/noteport/internal/vcs"
)

// fakeRepo records every call instead of running git.
type fakeRepo struct {
	root   string
	status vcs.Status

	calls   []string
	commits []vcs.CommitOptions

	statusErr   error
	checkoutErr error
	pullErr     error
	commitErr   error
	pushErr     error
}

func (f *fakeRepo) Root() string { return f.root }

func (f *fakeRepo) Status(context.Context) (*vcs.Status, error) {
	f.calls = append(f.calls, "status")
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	st := f.status
	return &st, nil
}

func (f *fakeRepo) CurrentBranch(context.Context) (string, error) {
	f.calls = append(f.calls, "branch")
	return f.status.Branch, nil
}

func (f *fakeRepo) Checkout(_ context.Context, branch, _ string) error {
	f.calls = append(f.calls, "checkout "+branch)
	return f.checkoutErr
}

func (f *fakeRepo) Pull(context.Context, vcs.PullOptions) error {
	f.calls = append(f.calls, "pull")
	return f.pullErr
}

func (f *fakeRepo) Push(context.Context, vcs.PushOptions) error {
	f.calls = append(f.calls, "push")
	return f.pushErr
}

func (f *fakeRepo) Commit(_ context.Context, opts vcs.CommitOptions) error {
	f.calls = append(f.calls, "commit")
	if f.commitErr != nil {
		return f.commitErr
	}
	f.commits = append(f.commits, opts)
	return nil
}

func setup(t *testing.T, files map[string]string) (*fakeRepo, *memory.MemoryStore, *Controller) {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	repo := &fakeRepo{root: dir, status: vcs.Status{Branch: "main", Clean: true}}
	s := memory.New()
	c := New(repo, s, log.New(io.Discard, "", 0))
	c.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return repo, s, c
}

func stages(r *Result) string {
	parts := make([]string, len(r.Stages))
	for i, s := range r.Stages {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

func TestBidirectionalConflict(t *testing.T) {
	repo, _, c := setup(t, map[string]string{"x.md": "# X\n\nbody text\n"})

	res, err := c.Sync(context.Background(), Options{Direction: DirectionBidirectional})
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if len(res.Conflicts) != 1 || res.Conflicts[0] != "x.md" {
		t.Fatalf("Conflicts = %v, want [x.md]", res.Conflicts)
	}
	if len(res.Imported) != 0 {
		t.Errorf("Imported = %v, want none", res.Imported)
	}
	if len(res.Exported) != 0 {
		t.Errorf("Exported = %v, want none", res.Exported)
	}
	if res.Committed {
		t.Error("Committed = true with nothing exported")
	}
	if got, want := stages(res), "idle,status,import,export,done"; got != want {
		t.Errorf("Stages = %s, want %s", got, want)
	}
	for _, call := range repo.calls {
		if call == "commit" {
			t.Error("commit issued with no exported file")
		}
	}
	if len(res.Summary.Warnings) == 0 {
		t.Error("conflict not reported as a warning")
	}
}

func TestBacktickMessageRejectedBeforeGit(t *testing.T) {
	repo, s, c := setup(t, map[string]string{"a.md": "a\n"})

	res, err := c.Sync(context.Background(), Options{
		Direction: DirectionExport,
		Message:   "export `whoami`",
	})
	var sec *types.SecurityValidationError
	if !errors.As(err, &sec) {
		t.Fatalf("Sync() error = %v, want SecurityValidationError", err)
	}
	if len(repo.calls) != 0 {
		t.Errorf("git calls = %v, want none", repo.calls)
	}
	if s.Writes() != 0 {
		t.Errorf("store writes = %d, want 0", s.Writes())
	}
	if res == nil || res.Final() != StageIdle {
		t.Errorf("Final() = %v, want idle", res.Final())
	}
}

func TestUnsafeInputsRejected(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"branch", Options{Branch: "main;rm"}},
		{"remote", Options{Remote: "-upload-pack=x"}},
		{"author", Options{Author: vcs.Author{Name: "$(id)"}}},
		{"message", Options{Message: "a | b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, _, c := setup(t, nil)
			_, err := c.Sync(context.Background(), tt.opts)
			var sec *types.SecurityValidationError
			if !errors.As(err, &sec) {
				t.Fatalf("Sync() error = %v, want SecurityValidationError", err)
			}
			if len(repo.calls) != 0 {
				t.Errorf("git calls = %v, want none", repo.calls)
			}
		})
	}
}

func TestInvalidOptions(t *testing.T) {
	repo, _, c := setup(t, nil)
	_, err := c.Sync(context.Background(), Options{Direction: "sideways"})
	if !types.IsValidation(err) {
		t.Fatalf("Sync() error = %v, want validation error", err)
	}
	_, err = c.Sync(context.Background(), Options{Resolution: "coin-flip"})
	if !types.IsValidation(err) {
		t.Fatalf("Sync() error = %v, want validation error", err)
	}
	if len(repo.calls) != 0 {
		t.Errorf("git calls = %v, want none", repo.calls)
	}
}

func TestStatusFailureIsFatal(t *testing.T) {
	repo, s, c := setup(t, map[string]string{"a.md": "a\n"})
	repo.statusErr = vcs.ErrNotInRepo

	res, err := c.Sync(context.Background(), Options{Pull: true, Push: true})
	var rse *types.RepositoryStateError
	if !errors.As(err, &rse) || rse.Stage != string(StageStatus) {
		t.Fatalf("Sync() error = %v, want status RepositoryStateError", err)
	}
	if !errors.Is(err, vcs.ErrNotInRepo) {
		t.Error("error does not wrap the status failure")
	}
	if got, want := stages(res), "idle,status,failed"; got != want {
		t.Errorf("Stages = %s, want %s", got, want)
	}
	if s.Writes() != 0 {
		t.Errorf("store writes = %d, want 0", s.Writes())
	}
}

func TestExportCommitAndPush(t *testing.T) {
	repo, s, c := setup(t, nil)
	ctx := context.Background()
	if _, err := s.CreateNote(ctx, store.CreateNoteParams{
		ParentID: store.RootNoteID, Title: "Plan", Type: store.TypeText, Mime: "text/html",
		Content: "<p>ship it</p>",
	}); err != nil {
		t.Fatal(err)
	}

	res, err := c.Sync(ctx, Options{
		Direction: DirectionExport,
		Branch:    "notes",
		Pull:      true,
		Push:      true,
		Author:    vcs.Author{Name: "Bot", Email: "bot@example.com"},
		Message:   "{{direction}}: {{count}} files on {{date}}",
	})
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if got, want := strings.Join(repo.calls, ","), "status,checkout notes,commit,push"; got != want {
		t.Errorf("calls = %s, want %s (no pull for export)", got, want)
	}
	if len(res.Exported) != 1 || res.Exported[0] != "Plan.md" {
		t.Fatalf("Exported = %v, want [Plan.md]", res.Exported)
	}
	if !res.Committed || !res.Pushed {
		t.Errorf("Committed=%v Pushed=%v, want both", res.Committed, res.Pushed)
	}
	want := "export: 1 files on 2024-05-01 12:00:00Z"
	if len(repo.commits) != 1 || repo.commits[0].Message != want {
		t.Fatalf("commit = %+v, want message %q", repo.commits, want)
	}
	if got := repo.commits[0].Paths; len(got) != 1 || got[0] != "Plan.md" {
		t.Errorf("commit paths = %v, want [Plan.md]", got)
	}
	if _, err := os.Stat(filepath.Join(repo.root, "Plan.md")); err != nil {
		t.Errorf("Plan.md not written: %v", err)
	}
}

func TestAwkwardTitlesStillCommit(t *testing.T) {
	repo, s, c := setup(t, nil)
	ctx := context.Background()
	for _, title := range []string{"Q&A", "$HOME", "-rf"} {
		if _, err := s.CreateNote(ctx, store.CreateNoteParams{
			ParentID: store.RootNoteID, Title: title, Type: store.TypeText, Content: "<p>x</p>",
		}); err != nil {
			t.Fatal(err)
		}
	}
	book, err := s.CreateNote(ctx, store.CreateNoteParams{ParentID: store.RootNoteID, Title: ".git", Type: store.TypeBook})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateNote(ctx, store.CreateNoteParams{ParentID: book, Title: "hooks", Type: store.TypeText, Content: "<p>h</p>"}); err != nil {
		t.Fatal(err)
	}

	res, err := c.Sync(ctx, Options{Direction: DirectionExport})
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	want := "Q_A.md,_HOME.md,_git/hooks.md,_rf.md"
	if got := strings.Join(res.Exported, ","); got != want {
		t.Errorf("Exported = %s, want %s", got, want)
	}
	if !res.Committed || len(repo.commits) != 1 {
		t.Fatalf("Committed = %v, commits = %d", res.Committed, len(repo.commits))
	}
	if _, err := os.Stat(filepath.Join(repo.root, ".git")); !os.IsNotExist(err) {
		t.Errorf("export created .git: %v", err)
	}
}

func TestImportOnlyPullsAndNeverCommits(t *testing.T) {
	repo, s, c := setup(t, map[string]string{"a.md": "a\n", "sub/b.md": "b\n"})

	res, err := c.Sync(context.Background(), Options{
		Direction: DirectionImport,
		Branch:    "main",
		Pull:      true,
		Push:      true,
	})
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if got, want := strings.Join(repo.calls, ","), "status,pull"; got != want {
		t.Errorf("calls = %s, want %s", got, want)
	}
	if got := strings.Join(res.Imported, ","); got != "a.md,sub/b.md" {
		t.Errorf("Imported = %s, want a.md,sub/b.md", got)
	}
	if s.Writes() == 0 {
		t.Error("import wrote nothing")
	}
}

func TestPullFailureStopsBeforeImport(t *testing.T) {
	repo, s, c := setup(t, map[string]string{"a.md": "a\n"})
	repo.pullErr = vcs.ErrConflicts

	res, err := c.Sync(context.Background(), Options{Pull: true})
	if !errors.Is(err, vcs.ErrConflicts) {
		t.Fatalf("Sync() error = %v, want ErrConflicts", err)
	}
	if got, want := stages(res), "idle,status,pull,failed"; got != want {
		t.Errorf("Stages = %s, want %s", got, want)
	}
	if s.Writes() != 0 {
		t.Errorf("store writes = %d, want 0", s.Writes())
	}
}

func TestPushFailureKeepsWork(t *testing.T) {
	repo, s, c := setup(t, nil)
	repo.pushErr = vcs.ErrPushRejected
	ctx := context.Background()
	if _, err := s.CreateNote(ctx, store.CreateNoteParams{
		ParentID: store.RootNoteID, Title: "N", Type: store.TypeText, Mime: "text/html", Content: "<p>n</p>",
	}); err != nil {
		t.Fatal(err)
	}

	res, err := c.Sync(ctx, Options{Direction: DirectionExport, Push: true})
	if !errors.Is(err, vcs.ErrPushRejected) {
		t.Fatalf("Sync() error = %v, want ErrPushRejected", err)
	}
	if !res.Committed || res.Pushed {
		t.Errorf("Committed=%v Pushed=%v, want committed only", res.Committed, res.Pushed)
	}
	if res.Final() != StageFailed {
		t.Errorf("Final() = %s, want failed", res.Final())
	}
}

func TestNothingToCommitIsAWarning(t *testing.T) {
	repo, s, c := setup(t, nil)
	repo.commitErr = vcs.ErrNothingToCommit
	ctx := context.Background()
	if _, err := s.CreateNote(ctx, store.CreateNoteParams{
		ParentID: store.RootNoteID, Title: "N", Type: store.TypeText, Mime: "text/html", Content: "<p>n</p>",
	}); err != nil {
		t.Fatal(err)
	}

	res, err := c.Sync(ctx, Options{Direction: DirectionExport, Push: true})
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if res.Committed {
		t.Error("Committed = true")
	}
	for _, call := range repo.calls {
		if call == "push" {
			t.Error("push issued without a commit")
		}
	}
}

func TestPreferLocalHoldsImportedFiles(t *testing.T) {
	_, _, c := setup(t, map[string]string{"x.md": "# X\n\nlocal\n"})
	dir := c.repo.Root()

	res, err := c.Sync(context.Background(), Options{Resolution: ResolvePreferLocal})
	if err != nil {
		t.Fatalf("Sync() failed: %v", err)
	}
	if len(res.Conflicts) != 0 {
		t.Errorf("Conflicts = %v, want none", res.Conflicts)
	}
	if got := strings.Join(res.Imported, ","); got != "x.md" {
		t.Errorf("Imported = %s, want x.md", got)
	}
	if len(res.Exported) != 0 {
		t.Errorf("Exported = %v, want none", res.Exported)
	}
	if got := strings.Join(res.Resolved, ","); got != "x.md" {
		t.Errorf("Resolved = %s, want x.md", got)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "x.md"))
	if string(data) != "# X\n\nlocal\n" {
		t.Errorf("x.md rewritten: %q", data)
	}
}

func TestReconcile(t *testing.T) {
	s := sides{
		imported:     []string{"both.md", "same.md", "in.md"},
		importHashes: map[string]string{"both.md": "h1", "same.md": "h2", "in.md": "h3"},
		exported:     []string{"both.md", "out.md"},
		exportHashes: map[string]string{"both.md": "h9", "same.md": "h2", "out.md": "h4"},
	}
	tests := []struct {
		mode                                          Resolution
		imported, exported, conflicts, unchanged, res string
	}{
		{ResolvePath, "in.md,same.md", "out.md", "both.md", "", ""},
		{ResolveHash, "in.md", "out.md", "both.md", "same.md", ""},
		{ResolvePreferLocal, "both.md,in.md,same.md", "both.md,out.md", "", "", "both.md"},
		{ResolvePreferRemote, "in.md,same.md", "both.md,out.md", "", "", "both.md"},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			out := reconcile(tt.mode, s)
			check := func(name string, got []string, want string) {
				t.Helper()
				if g := strings.Join(got, ","); g != want {
					t.Errorf("%s = %q, want %q", name, g, want)
				}
			}
			check("imported", out.imported, tt.imported)
			check("exported", out.exported, tt.exported)
			check("conflicts", out.conflicts, tt.conflicts)
			check("unchanged", out.unchanged, tt.unchanged)
			check("resolved", out.resolved, tt.res)
		})
	}
}

func TestRenderMessage(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if got, want := renderMessage("", now, 3, DirectionBidirectional), "noteport: bidirectional sync of 3 files at 2024-01-02 03:04:05Z"; got != want {
		t.Errorf("renderMessage(default) = %q, want %q", got, want)
	}
	if got, want := renderMessage("{{count}} {{unknown}}", now, 0, DirectionExport), "0 {{unknown}}"; got != want {
		t.Errorf("renderMessage() = %q, want %q", got, want)
	}
}

func TestParseDirectionAndResolution(t *testing.T) {
	if d, err := ParseDirection(""); err != nil || d != DirectionBidirectional {
		t.Errorf("ParseDirection(\"\") = %v, %v", d, err)
	}
	if _, err := ParseDirection("both"); err == nil {
		t.Error("ParseDirection(both) succeeded")
	}
	if r, err := ParseResolution(""); err != nil || r != ResolvePath {
		t.Errorf("ParseResolution(\"\") = %v, %v", r, err)
	}
	if _, err := ParseResolution("newest"); err == nil {
		t.Error("ParseResolution(newest) succeeded")
	}
}
