package types

import (
	"errors"
	"os"
	"testing"
	"time"
)

var zeroTime time.Time

func TestNewFileInfo(t *testing.T) {
	f := NewFileInfo("/src", "notes/sub/Daily.MD", 12, zeroTime)

	if f.Name != "Daily.MD" {
		t.Errorf("Name = %q, want Daily.MD", f.Name)
	}
	if f.Extension != ".md" {
		t.Errorf("Extension = %q, want .md", f.Extension)
	}
	if f.Depth != 2 {
		t.Errorf("Depth = %d, want 2", f.Depth)
	}
	if f.Meta.DirectoryPath != "notes/sub" {
		t.Errorf("DirectoryPath = %q, want notes/sub", f.Meta.DirectoryPath)
	}
	if f.BaseName() != "Daily" {
		t.Errorf("BaseName() = %q, want Daily", f.BaseName())
	}
	if f.Meta.Hidden {
		t.Error("Hidden = true, want false")
	}

	hidden := NewFileInfo("/src", ".obsidian/app.json", 1, zeroTime)
	if !hidden.Meta.Hidden {
		t.Error("Hidden = false for .obsidian/app.json")
	}
}

func TestWithMetaDoesNotAlias(t *testing.T) {
	orig := NewFileInfo("/src", "a.md", 1, zeroTime)
	orig.Meta.Extra = map[string]string{"k": "v"}

	derived := orig.WithContentType(ContentMarkdown, "text/markdown")
	derived.Meta.Extra["k"] = "changed"

	if orig.Meta.Extra["k"] != "v" {
		t.Errorf("original Extra mutated: %q", orig.Meta.Extra["k"])
	}
	if orig.Meta.ContentType != "" {
		t.Errorf("original ContentType = %q, want empty", orig.Meta.ContentType)
	}
	if derived.Meta.ContentType != ContentMarkdown {
		t.Errorf("derived ContentType = %q, want markdown", derived.Meta.ContentType)
	}
}

func TestSummaryRecordKeepsCountsConsistent(t *testing.T) {
	s := NewSummary(NewOperationContext("import"), "directory", 4)

	s.Record(Succeeded("a.md", "n1"))
	s.Record(SkippedResult("b.md", "n2", "duplicate"))
	s.Record(Failed("c.md", CodeReadFailed, errors.New("boom")))
	s.Record(Succeeded("d.md", "n3"))

	if s.ProcessedFiles != s.SuccessfulFiles+s.FailedFiles {
		t.Errorf("processed %d != successful %d + failed %d", s.ProcessedFiles, s.SuccessfulFiles, s.FailedFiles)
	}
	if s.SkippedFiles != 1 {
		t.Errorf("SkippedFiles = %d, want 1", s.SkippedFiles)
	}
	if len(s.Errors) != 1 || s.Errors[0].Code != CodeReadFailed {
		t.Errorf("Errors = %+v, want one READ_FAILED", s.Errors)
	}
	written := s.Paths(Written)
	if len(written) != 2 {
		t.Errorf("Paths(Written) = %v, want 2 entries", written)
	}
}

func TestOperationContextTempDir(t *testing.T) {
	oc := NewOperationContext("sync")
	if oc.ID == "" {
		t.Fatal("ID is empty")
	}

	dir, err := oc.TempDir()
	if err != nil {
		t.Fatalf("TempDir() failed: %v", err)
	}
	again, _ := oc.TempDir()
	if again != dir {
		t.Errorf("TempDir() = %q on second call, want %q", again, dir)
	}

	if err := oc.Cleanup(); err != nil {
		t.Fatalf("Cleanup() failed: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("temp dir still exists after Cleanup: %v", err)
	}
	if oc.Next() != 1 || oc.Next() != 2 {
		t.Error("Next() is not monotonic")
	}
}

func TestRepositoryStateErrorUnwrap(t *testing.T) {
	base := errors.New("exit status 1")
	err := error(&RepositoryStateError{Stage: "push", Err: base})
	if !errors.Is(err, base) {
		t.Error("errors.Is did not see wrapped error")
	}
	if IsValidation(err) {
		t.Error("IsValidation() = true for repository error")
	}
	if !IsValidation(&SecurityValidationError{Field: "branch"}) {
		t.Error("IsValidation() = false for security error")
	}
}
