package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/noteport/noteport/internal/config"
	"github.com/noteport/noteport/internal/exporter"
	"github.com/noteport/noteport/internal/gitsync"
	"github.com/noteport/noteport/internal/types"
	"github.com/noteport/noteport/internal/ui"
	"github.com/noteport/noteport/internal/vcs"
	"github.com/noteport/noteport/internal/vcs/git"
)

var syncCmd = &cobra.Command{
	Use:   "sync <repo>",
	Short: "Sync notes with a git working tree",
	Long: `Import from and/or export to a git working tree, then commit.

Stages run in order and a failure stops the rest:
  status -> branch -> pull -> import/export -> commit -> push

A path both imported and exported in one run is a conflict. With the
default "path" resolution it is left out of both; "hash" only flags it
when the bytes differ; "prefer-local" keeps the file and "prefer-remote"
keeps the note.

Only files the export wrote are committed. The message may use {{date}},
{{count}} and {{direction}}.

Examples:
  noteport sync ~/notes-repo --direction export --push
  noteport sync . --branch notes --pull --message "notes: {{count}} files"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		opts, err := syncOptions(cmd)
		if err != nil {
			fatalf("%v", err)
		}

		repo, err := git.Open(ctx, args[0], git.Options{
			Timeout: config.GetDuration("git.timeout"),
			Logger:  newLogger("git"),
		})
		if err != nil {
			fatalf("%v", err)
		}

		s, closeStore, err := openStore(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer closeStore()

		res, err := gitsync.New(repo, s, newLogger("sync")).Sync(ctx, opts)
		closeStore()

		if jsonOutput {
			printJSON(res)
		} else if res != nil {
			fmt.Print(renderSyncResult(res))
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			var se *types.SecurityValidationError
			switch {
			case errors.As(err, &se):
				fmt.Fprintf(os.Stderr, "%s refused unsafe %s; nothing was run\n", ui.RenderFail("✗"), se.Field)
			case types.IsValidation(err):
				fmt.Fprintf(os.Stderr, "%s fix the option above and run sync again\n", ui.RenderWarn("⚠"))
			case vcs.IsUserActionRequired(err):
				fmt.Fprintf(os.Stderr, "%s resolve the repository state by hand, then run sync again\n", ui.RenderWarn("⚠"))
			case vcs.IsRetryable(err):
				fmt.Fprintf(os.Stderr, "%s the operation timed out; try again\n", ui.RenderWarn("⚠"))
			}
			os.Exit(1)
		}
		if res.Summary != nil && res.Summary.FailedFiles > 0 {
			os.Exit(1)
		}
	},
}

// syncOptions builds sync options from flags over config.
func syncOptions(cmd *cobra.Command) (gitsync.Options, error) {
	dir, err := gitsync.ParseDirection(stringOpt(cmd, "direction", "sync.direction"))
	if err != nil {
		return gitsync.Options{}, err
	}
	resolution, err := gitsync.ParseResolution(stringOpt(cmd, "resolution", "sync.conflict-resolution"))
	if err != nil {
		return gitsync.Options{}, err
	}

	iopts, err := importOptions(cmd, "")
	if err != nil {
		return gitsync.Options{}, err
	}
	iopts.Progress = progressPrinter()

	eopts := exporter.Options{
		CreateIndex: config.GetBool("export.create-index"),
		IndexName:   config.GetString("export.index-name"),
		Progress:    progressPrinter(),
	}
	if roots, _ := cmd.Flags().GetStringSlice("note"); len(roots) > 0 {
		eopts.RootIDs = roots
	}

	return gitsync.Options{
		Direction:  dir,
		Resolution: resolution,
		Branch:     stringOpt(cmd, "branch", "git.branch"),
		Remote:     stringOpt(cmd, "remote", "git.remote"),
		Pull:       boolOpt(cmd, "pull", "git.pull-before-import"),
		Push:       boolOpt(cmd, "push", "git.push-after-export"),
		Author: vcs.Author{
			Name:  stringOpt(cmd, "author-name", "git.author-name"),
			Email: stringOpt(cmd, "author-email", "git.author-email"),
		},
		Message: stringOpt(cmd, "message", "git.commit-message"),
		Import:  iopts,
		Export:  eopts,
	}, nil
}

func init() {
	syncCmd.Flags().StringP("direction", "d", "", "import, export or bidirectional (default: sync.direction)")
	syncCmd.Flags().String("resolution", "", "Conflicts: path, hash, prefer-local or prefer-remote")
	syncCmd.Flags().StringSlice("note", nil, "Notes to export (default: the import parent)")
	syncCmd.Flags().StringP("branch", "b", "", "Branch to check out first")
	syncCmd.Flags().String("remote", "", "Remote to pull from and push to")
	syncCmd.Flags().Bool("pull", false, "Pull before importing")
	syncCmd.Flags().Bool("push", false, "Push after committing")
	syncCmd.Flags().StringP("message", "m", "", "Commit message template")
	syncCmd.Flags().String("author-name", "", "Commit author name")
	syncCmd.Flags().String("author-email", "", "Commit author email")
	addImportFlags(syncCmd)

	rootCmd.AddCommand(syncCmd)
}
