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
	"github.com/noteport/noteport/internal/hierarchy"
	"github.com/noteport/noteport/internal/importer"
	"github.com/noteport/noteport/internal/types"
	"github.com/noteport/noteport/internal/ui"
)

var importCmd = &cobra.Command{
	Use:   "import <dir>",
	Short: "Import a directory, Obsidian vault or git checkout",
	Long: `Import every file under <dir> into the note tree.

Text, Markdown and HTML files become notes; images and other binary files
become attachments of their folder's note. Subdirectories become folder
notes unless --no-structure is given. Each note records the path it came
from, so running the import again skips files already imported, or
replaces them with --duplicates overwrite.

Formats:
  directory   plain directory (default)
  obsidian    vault: resolves [[wiki links]], skips .obsidian and .trash
  git         checkout: honours .gitignore, skips .git

Examples:
  noteport import ~/notes --parent root
  noteport import ~/vault --format obsidian --exclude "templates/**"
  noteport import . --format git --dry-run`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts, err := importOptions(cmd, args[0])
		if err != nil {
			fatalf("%v", err)
		}

		if opts.Duplicates == hierarchy.PolicyOverwrite && !opts.DryRun {
			yes, _ := cmd.Flags().GetBool("yes")
			if !yes && !confirm("Overwrite existing notes?", "Notes imported earlier from "+opts.Source+" will be replaced.") {
				fmt.Fprintln(os.Stderr, "Aborted.")
				os.Exit(1)
			}
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		s, closeStore, err := openStore(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer closeStore()

		opts.Progress = progressPrinter()
		res, err := importer.New(s, newLogger("import")).Import(ctx, opts)
		if types.IsValidation(err) || errors.Is(err, types.ErrSourceNotFound) {
			closeStore()
			fatalf("%v", err)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderWarn("⚠"), err)
		}
		if res.Links != nil && !jsonOutput {
			fmt.Printf("%s %d wiki links rewritten, %d unresolved\n",
				ui.RenderAccent("🔗"), res.Links.Rewritten, len(res.Links.Unresolved))
		}
		closeStore()
		report(res, res.Summary)
	},
}

// importOptions builds importer options from flags over config.
func importOptions(cmd *cobra.Command, source string) (importer.Options, error) {
	policy, err := hierarchy.ParsePolicy(stringOpt(cmd, "duplicates", "import.duplicate-handling"))
	if err != nil {
		return importer.Options{}, err
	}
	format := importer.Format(stringOpt(cmd, "format", ""))
	if _, err := importer.ProfileFor(format); err != nil {
		return importer.Options{}, err
	}
	structure := config.GetBool("import.preserve-structure")
	if noStructure, _ := cmd.Flags().GetBool("no-structure"); noStructure {
		structure = false
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	return importer.Options{
		Source:            source,
		Format:            format,
		ParentID:          stringOpt(cmd, "parent", "import.parent-note"),
		Include:           sliceOpt(cmd, "include", "import.include"),
		Exclude:           sliceOpt(cmd, "exclude", "import.exclude"),
		MaxDepth:          intOpt(cmd, "max-depth", "import.max-depth"),
		IncludeHidden:     boolOpt(cmd, "hidden", "import.include-hidden"),
		PreserveStructure: structure,
		Duplicates:        policy,
		DryRun:            dryRun,
		Workers:           intOpt(cmd, "workers", "import.workers"),
	}, nil
}

func addImportFlags(cmd *cobra.Command) {
	cmd.Flags().String("parent", "", "Note to import under (default: import.parent-note)")
	cmd.Flags().StringSlice("include", nil, "Only import files matching these globs")
	cmd.Flags().StringSlice("exclude", nil, "Skip files matching these globs")
	cmd.Flags().Int("max-depth", 0, "Maximum directory depth, 0 for no limit")
	cmd.Flags().Bool("hidden", false, "Include hidden files and directories")
	cmd.Flags().Bool("no-structure", false, "Put every file directly under the parent note")
	cmd.Flags().String("duplicates", "", "Existing notes: skip or overwrite")
	cmd.Flags().Int("workers", 0, "Concurrent file reads while classifying")
}

func init() {
	importCmd.Flags().StringP("format", "f", "directory", "Source format: directory, obsidian or git")
	importCmd.Flags().Bool("dry-run", false, "Show what would be imported without writing")
	importCmd.Flags().BoolP("yes", "y", false, "Do not ask before overwriting")
	addImportFlags(importCmd)

	rootCmd.AddCommand(importCmd)
}
