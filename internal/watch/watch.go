// Package watch keeps a store in step with a directory by re-importing files
// as they change.
//
// The watcher:
//  1. Runs one full import of the directory
//  2. Watches every directory under the root for file events
//  3. Queues changed paths and re-imports them once they have been quiet for
//     the debounce interval, overwriting the notes from earlier runs
//
// Deleting a file does not delete its note.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/noteport/noteport/internal/hierarchy"
	"github.com/noteport/noteport/internal/importer"
	"github.com/noteport/noteport/internal/types"
)

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 500 * time.Millisecond

// Config holds configuration for the watcher.
type Config struct {
	// Debounce is how long a path must stay quiet before it is re-imported.
	Debounce time.Duration

	// SkipInitial skips the full import on start.
	SkipInitial bool

	// OnBatch is called after every import the watcher runs, including the
	// initial one. It runs on the watcher goroutine.
	OnBatch func(Batch)

	Logger *log.Logger
}

// Batch describes one import run by the watcher.
type Batch struct {
	Initial bool
	// Paths are the slash-separated relative paths handed to the importer.
	Paths  []string
	Result *importer.Result
	Err    error
	At     time.Time
}

// Watcher re-imports changed files from one directory.
type Watcher struct {
	importer *importer.Importer
	opts     importer.Options
	root     string
	skip     map[string]bool
	config   Config

	fs *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]time.Time // relative path -> last event
	now     func() time.Time
}

// New creates a watcher for opts.Source. The options are used as given for
// the initial import; later imports force the overwrite policy.
func New(im *importer.Importer, opts importer.Options, config Config) (*Watcher, error) {
	if im == nil {
		return nil, fmt.Errorf("importer cannot be nil")
	}
	if opts.Source == "" {
		return nil, fmt.Errorf("source directory cannot be empty")
	}
	profile, err := importer.ProfileFor(opts.Format)
	if err != nil {
		return nil, err
	}
	root, err := filepath.Abs(opts.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", opts.Source, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[watch] ", log.LstdFlags)
	}
	opts.Source = root

	skip := make(map[string]bool, len(profile.SkipDirs))
	for _, d := range profile.SkipDirs {
		skip[d] = true
	}

	return &Watcher{
		importer: im,
		opts:     opts,
		root:     root,
		skip:     skip,
		config:   config,
		pending:  make(map[string]time.Time),
		now:      time.Now,
	}, nil
}

// Run imports the directory, then watches it until ctx is cancelled.
// It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	w.fs = fw
	defer fw.Close()

	// Watch first so edits made during the initial import are not lost.
	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.config.Logger.Printf("watching %s", w.root)

	if !w.config.SkipInitial {
		res, err := w.importer.Import(ctx, w.opts)
		if types.IsValidation(err) {
			return fmt.Errorf("initial import failed: %w", err)
		}
		w.publish(Batch{Initial: true, Result: res, Err: err, At: w.now()})
	}

	ticker := time.NewTicker(w.config.Debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.config.Logger.Println("stopping")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(event)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.config.Logger.Printf("watcher error: %v", err)

		case <-ticker.C:
			w.processReady(ctx, false)
		}
	}
}

// Flush re-imports every queued path regardless of age.
func (w *Watcher) Flush(ctx context.Context) {
	w.processReady(ctx, true)
}

// Pending returns the queued paths, sorted.
func (w *Watcher) Pending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.pending))
	for p := range w.pending {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel, ok := w.relative(event.Name)
	if !ok {
		return
	}
	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			// Files written before the watch was added get no events of
			// their own.
			if err := w.addTree(event.Name); err != nil {
				w.config.Logger.Printf("failed to watch %s: %v", rel, err)
			}
			w.queueTree(event.Name)
			return
		}
		w.Queue(rel)
	case event.Has(fsnotify.Write):
		w.Queue(rel)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		w.mu.Lock()
		delete(w.pending, rel)
		w.mu.Unlock()
		w.config.Logger.Printf("%s removed; its note is left in place", rel)
	}
}

// Queue marks rel (slash-separated, relative to the root) as changed.
func (w *Watcher) Queue(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[filepath.ToSlash(rel)] = w.now()
}

func (w *Watcher) queueTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && w.skipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if rel, ok := w.relative(path); ok {
			w.Queue(rel)
		}
		return nil
	})
}

// ready removes and returns the paths quiet for at least the debounce
// interval, or all of them when all is set.
func (w *Watcher) ready(all bool) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	var out []string
	for p, at := range w.pending {
		if !all && now.Sub(at) < w.config.Debounce {
			continue
		}
		out = append(out, p)
		delete(w.pending, p)
	}
	sort.Strings(out)
	return out
}

func (w *Watcher) processReady(ctx context.Context, all bool) {
	paths := w.ready(all)
	if len(paths) == 0 {
		return
	}

	var existing []string
	for _, p := range paths {
		if info, err := os.Stat(filepath.Join(w.root, filepath.FromSlash(p))); err == nil && !info.IsDir() {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return
	}

	opts := w.opts
	opts.Only = existing
	opts.Duplicates = hierarchy.PolicyOverwrite

	w.config.Logger.Printf("re-importing %d changed files", len(existing))
	res, err := w.importer.Import(ctx, opts)
	if err != nil {
		w.config.Logger.Printf("import failed: %v", err)
	}
	w.publish(Batch{Paths: existing, Result: res, Err: err, At: w.now()})
}

func (w *Watcher) publish(b Batch) {
	if b.Result != nil && b.Result.Summary != nil {
		s := b.Result.Summary
		w.config.Logger.Printf("imported %d, skipped %d, failed %d", s.SuccessfulFiles-s.SkippedFiles, s.SkippedFiles, s.FailedFiles)
	}
	if w.config.OnBatch != nil {
		w.config.OnBatch(b)
	}
}

// addTree watches dir and every directory below it that an import would
// descend into.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) skipDir(name string) bool {
	if w.skip[name] {
		return true
	}
	return strings.HasPrefix(name, ".") && !w.opts.IncludeHidden
}

// relative maps an absolute event path to a root-relative slash path.
// Paths outside the root or inside skipped directories are rejected.
func (w *Watcher) relative(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	for _, part := range strings.Split(rel, "/") {
		if w.skipDir(part) {
			return "", false
		}
	}
	return rel, true
}
