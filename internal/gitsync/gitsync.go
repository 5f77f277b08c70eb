// Package gitsync runs an import, an export or both against a git working
// tree and records the result as a commit.
//
// A sync is a fixed sequence of stages:
//
//	idle -> status -> [branch] -> [pull] -> import | export | import+export -> [commit] -> [push] -> done | failed
//
// Every value that ends up in a git argument list is validated before the
// first stage runs. A failure after the status stage stops the remaining
// stages. Work already done is kept; a sync is not a transaction.
package gitsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/noteport/noteport/internal/exporter"
	"github.com/noteport/noteport/internal/hierarchy"
	"github.com/noteport/noteport/internal/importer"
	"github.com/noteport/noteport/internal/store"
	"github.com/noteport/noteport/internal/types"
	"github.com/noteport/noteport/internal/vcs"
)

// Direction selects which pipelines a sync runs.
type Direction string

const (
	DirectionImport        Direction = "import"
	DirectionExport        Direction = "export"
	DirectionBidirectional Direction = "bidirectional"
)

// ParseDirection validates s. Empty means bidirectional.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case "":
		return DirectionBidirectional, nil
	case DirectionImport, DirectionExport, DirectionBidirectional:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("unknown direction %q (want import, export or bidirectional)", s)
	}
}

func (d Direction) imports() bool { return d != DirectionExport }
func (d Direction) exports() bool { return d != DirectionImport }

// Stage names one step of a sync.
type Stage string

const (
	StageIdle   Stage = "idle"
	StageStatus Stage = "status"
	StageBranch Stage = "branch"
	StagePull   Stage = "pull"
	StageImport Stage = "import"
	StageExport Stage = "export"
	StageCommit Stage = "commit"
	StagePush   Stage = "push"
	StageDone   Stage = "done"
	StageFailed Stage = "failed"
)

// Options configures one sync.
type Options struct {
	Direction  Direction
	Resolution Resolution

	Branch string
	Remote string
	Pull   bool
	Push   bool

	Author vcs.Author
	// Message is the commit message template. See DefaultMessage.
	Message string

	// Import and Export carry the pipeline options. Source, OutDir and
	// Format are set by the controller.
	Import importer.Options
	Export exporter.Options
}

// Result is the outcome of a sync.
type Result struct {
	Summary *types.OperationSummary
	Status  *vcs.Status
	// Stages lists every stage entered, in order.
	Stages []Stage

	Imported  []string
	Exported  []string
	Conflicts []string
	// Unchanged lists paths touched by both directions with equal bytes.
	Unchanged []string
	// Resolved lists paths a prefer-local or prefer-remote policy settled.
	Resolved []string

	Committed bool
	Message   string
	Pushed    bool
}

// Final returns the last stage reached.
func (r *Result) Final() Stage {
	if len(r.Stages) == 0 {
		return StageIdle
	}
	return r.Stages[len(r.Stages)-1]
}

// Controller runs syncs against one repository and one store.
type Controller struct {
	repo     vcs.Repository
	importer *importer.Importer
	exporter *exporter.Exporter
	logger   *log.Logger
	now      func() time.Time
}

// New creates a controller. If logger is nil, uses a default logger.
func New(repo vcs.Repository, s store.Store, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Controller{
		repo:     repo,
		importer: importer.New(s, logger),
		exporter: exporter.New(s, logger),
		logger:   logger,
		now:      time.Now,
	}
}

// validate checks the options and every git argument known up front.
func (c *Controller) validate(opts *Options) error {
	dir, err := ParseDirection(string(opts.Direction))
	if err != nil {
		return &types.ValidationError{Field: "direction", Message: err.Error()}
	}
	opts.Direction = dir
	res, err := ParseResolution(string(opts.Resolution))
	if err != nil {
		return &types.ValidationError{Field: "conflict-resolution", Message: err.Error()}
	}
	opts.Resolution = res

	if err := vcs.ValidateRef("branch", opts.Branch); err != nil {
		return err
	}
	if err := vcs.ValidateRef("remote", opts.Remote); err != nil {
		return err
	}
	if err := vcs.ValidateAuthor(opts.Author); err != nil {
		return err
	}
	if dir.exports() {
		// Placeholders expand to safe text, so checking one rendering
		// checks them all.
		if err := vcs.ValidateMessage(renderMessage(opts.Message, c.now(), 0, dir)); err != nil {
			return err
		}
	}
	return nil
}

// Sync runs one sync. Validation and security errors are returned before
// any git command runs. The Result is never nil.
func (c *Controller) Sync(ctx context.Context, opts Options) (*Result, error) {
	oc := types.NewOperationContext("sync")
	defer oc.Cleanup()

	res := &Result{
		Summary: types.NewSummary(oc, string(importer.FormatGit), 0),
		Stages:  []Stage{StageIdle},
	}
	defer res.Summary.Finish()

	if err := c.validate(&opts); err != nil {
		return res, err
	}

	// fail stops the run. The returned error joins the stage failure with
	// the per-file failures recorded so far.
	fail := func(stage Stage, err error) (*Result, error) {
		res.Stages = append(res.Stages, StageFailed)
		errs := []error{&types.RepositoryStateError{Stage: string(stage), Err: err}}
		for _, e := range res.Summary.Errors {
			errs = append(errs, fmt.Errorf("%s: %s", e.Path, e.Message))
		}
		c.logger.Printf("sync failed at %s: %v", stage, err)
		return res, errors.Join(errs...)
	}
	enter := func(s Stage) { res.Stages = append(res.Stages, s) }

	enter(StageStatus)
	st, err := c.repo.Status(ctx)
	if err != nil {
		return fail(StageStatus, err)
	}
	res.Status = st

	if opts.Branch != "" && opts.Branch != st.Branch {
		enter(StageBranch)
		if err := c.repo.Checkout(ctx, opts.Branch, opts.Remote); err != nil {
			return fail(StageBranch, err)
		}
	}

	if opts.Pull && opts.Direction.imports() {
		enter(StagePull)
		if err := c.repo.Pull(ctx, vcs.PullOptions{Remote: opts.Remote, Branch: opts.Branch}); err != nil {
			return fail(StagePull, err)
		}
	}

	root := c.repo.Root()
	parent := opts.Import.ParentID
	if parent == "" {
		parent = store.RootNoteID
	}

	var sd sides
	if opts.Direction.imports() {
		enter(StageImport)
		iopts := opts.Import
		iopts.Source = root
		iopts.Format = importer.FormatGit
		iopts.ParentID = parent
		if opts.Resolution == ResolvePreferRemote {
			iopts.Duplicates = hierarchy.PolicySkip
		}
		ir, err := c.importer.Import(ctx, iopts)
		if ir != nil {
			res.Summary.Merge(ir.Summary)
			sd.imported = ir.Imported()
			sd.importHashes = ir.Hashes
		}
		if err != nil {
			return fail(StageImport, err)
		}
	}

	if opts.Direction.exports() {
		enter(StageExport)
		eo := opts.Export
		eo.OutDir = root
		eo.Format = importer.FormatGit
		if len(eo.RootIDs) == 0 {
			eo.RootIDs = []string{parent}
		}
		if opts.Resolution == ResolvePreferLocal && len(sd.imported) > 0 {
			eo.Hold = toSet(sd.imported)
			for p := range opts.Export.Hold {
				eo.Hold[p] = true
			}
		}
		er, err := c.exporter.Export(ctx, eo)
		if er != nil {
			res.Summary.Merge(er.Summary)
			sd.exported = er.Exported()
			sd.exportHashes = er.Hashes
		}
		if err != nil {
			return fail(StageExport, err)
		}
	}

	out := reconcile(opts.Resolution, sd)
	res.Imported, res.Exported = out.imported, out.exported
	res.Conflicts, res.Unchanged, res.Resolved = out.conflicts, out.unchanged, out.resolved
	for _, p := range res.Conflicts {
		res.Summary.Warn("conflict: %s changed on both sides", p)
	}

	if len(res.Exported) > 0 {
		enter(StageCommit)
		commit := vcs.CommitOptions{
			Message: renderMessage(opts.Message, c.now(), len(res.Exported), opts.Direction),
			Author:  opts.Author,
			Paths:   res.Exported,
		}
		if err := vcs.ValidateCommit(commit); err != nil {
			res.Stages = append(res.Stages, StageFailed)
			return res, err
		}
		err := c.repo.Commit(ctx, commit)
		switch {
		case errors.Is(err, vcs.ErrNothingToCommit):
			res.Summary.Warn("commit skipped: exported files match HEAD")
		case err != nil:
			return fail(StageCommit, err)
		default:
			res.Committed = true
			res.Message = commit.Message
		}
	}

	if opts.Push && res.Committed {
		enter(StagePush)
		if err := c.repo.Push(ctx, vcs.PushOptions{Remote: opts.Remote, Branch: opts.Branch}); err != nil {
			return fail(StagePush, err)
		}
		res.Pushed = true
	}

	enter(StageDone)
	c.logger.Printf("sync done: %d imported, %d exported, %d conflicts", len(res.Imported), len(res.Exported), len(res.Conflicts))
	return res, nil
}
