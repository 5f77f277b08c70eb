package importer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/noteport/noteport/internal/store"
	"github.com/noteport/noteport/internal/store/memory"
	"github.com/noteport/noteport/internal/store/sqlite"
)

func benchTree(b *testing.B, n int) string {
	b.Helper()
	files := make(map[string]string, n)
	for i := 0; i < n; i++ {
		files[fmt.Sprintf("dir%02d/note%03d.md", i%10, i)] = fmt.Sprintf("# Note %d\n\nSee [[note%03d]] #bench\n", i, (i+1)%n)
	}
	root := b.TempDir()
	for rel, content := range files {
		writeBenchFile(b, root, rel, content)
	}
	return root
}

func writeBenchFile(b *testing.B, root, rel, content string) {
	b.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		b.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		b.Fatalf("write %s: %v", rel, err)
	}
}

func runImportBench(b *testing.B, root string, newStore func() store.Store) {
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		s := newStore()
		b.StartTimer()

		res, err := newTestImporter(s).Import(ctx, Options{Source: root, Format: FormatObsidian, PreserveStructure: true})
		if err != nil {
			b.Fatalf("Import() failed: %v", err)
		}
		if res.Summary.FailedFiles > 0 {
			b.Fatalf("Import() had %d failures", res.Summary.FailedFiles)
		}
	}
}

func BenchmarkImport_100Files_Memory(b *testing.B) {
	root := benchTree(b, 100)
	runImportBench(b, root, func() store.Store { return memory.New() })
}

func BenchmarkImport_100Files_SQLite(b *testing.B) {
	root := benchTree(b, 100)
	dir := b.TempDir()
	n := 0
	runImportBench(b, root, func() store.Store {
		n++
		db, err := sqlite.Open(filepath.Join(dir, fmt.Sprintf("bench%d.db", n)))
		if err != nil {
			b.Fatalf("Open() failed: %v", err)
		}
		b.Cleanup(func() { db.Close() })
		if err := db.InitSchema(context.Background()); err != nil {
			b.Fatalf("InitSchema() failed: %v", err)
		}
		return db
	})
}
