package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/noteport/noteport/internal/exporter"
	"github.com/noteport/noteport/internal/importer"
	"github.com/noteport/noteport/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:   "export <noteId>... --out <dir>",
	Short: "Export note subtrees to a directory",
	Long: `Export each given note and its descendants to --out.

Text notes are written as Markdown with a YAML front matter header,
code notes with their language extension, and attachments next to their
note. A note exported before lands at the same path again; others get a
path from their titles, with a numeric suffix on collisions.

--since accepts a date (2024-05-01, RFC 3339) or an expression such as
"last week" or "3 days ago"; notes modified before it are left out.

Examples:
  noteport export root --out ./backup
  noteport export abc123 --out ~/vault --format obsidian --index
  noteport export root --out ./recent --since "last monday"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts, err := exportOptions(cmd, args)
		if err != nil {
			fatalf("%v", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		s, closeStore, err := openStore(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer closeStore()

		opts.Progress = progressPrinter()
		res, err := exporter.New(s, newLogger("export")).Export(ctx, opts)
		if err != nil && res == nil {
			closeStore()
			fatalf("%v", err)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderWarn("⚠"), err)
		}
		if res.Index != "" && !jsonOutput {
			fmt.Printf("%s index written to %s\n", ui.RenderPass("✓"), res.Index)
		}
		closeStore()
		report(res, res.Summary)
	},
}

var planCmd = &cobra.Command{
	Use:   "plan <noteId>... --out <dir>",
	Short: "List the files an export would write",
	Long: `Print the relative path of every file an export of the given notes
would write, without writing anything.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts, err := exportOptions(cmd, args)
		if err != nil {
			fatalf("%v", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		s, closeStore, err := openStore(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		defer closeStore()

		plan, err := exporter.Plan(ctx, s, opts.PlanOptions)
		if err != nil {
			closeStore()
			fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(plan)
			return
		}
		for _, f := range plan {
			kind := string(f.Meta.Kind)
			fmt.Printf("%-10s %s\n", ui.RenderMuted(kind), f.RelativePath)
		}
		fmt.Printf("\n%d files\n", len(plan))
	},
}

// exportOptions builds exporter options from flags over config.
func exportOptions(cmd *cobra.Command, ids []string) (exporter.Options, error) {
	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		return exporter.Options{}, fmt.Errorf("--out is required")
	}
	format := importer.Format(stringOpt(cmd, "format", "export.format"))
	if _, err := importer.ProfileFor(format); err != nil {
		return exporter.Options{}, err
	}

	var since time.Time
	if expr, _ := cmd.Flags().GetString("since"); expr != "" {
		var err error
		if since, err = parseSince(expr, time.Now()); err != nil {
			return exporter.Options{}, err
		}
	}

	opts := exporter.Options{
		PlanOptions: exporter.PlanOptions{
			RootIDs: ids,
			OutDir:  out,
			Format:  format,
			Since:   since,
		},
	}
	if f := cmd.Flags().Lookup("index"); f != nil {
		opts.CreateIndex = boolOpt(cmd, "index", "export.create-index")
		opts.IndexName = stringOpt(cmd, "index-name", "export.index-name")
	}
	if f := cmd.Flags().Lookup("dry-run"); f != nil {
		opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
	}
	return opts, nil
}

// parseSince reads an absolute date or a natural-language expression
// relative to now.
func parseSince(expr string, now time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, expr, now.Location()); err == nil {
			return t, nil
		}
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(expr, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: %w", expr, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: not a date", expr)
	}
	return r.Time, nil
}

func init() {
	for _, c := range []*cobra.Command{exportCmd, planCmd} {
		c.Flags().StringP("out", "o", "", "Output directory")
		c.Flags().StringP("format", "f", "", "Layout: directory, obsidian or git (default: export.format)")
		c.Flags().String("since", "", "Only notes modified since this date or expression")
		rootCmd.AddCommand(c)
	}
	exportCmd.Flags().Bool("index", false, "Write an index file linking every note")
	exportCmd.Flags().String("index-name", "", "Index file name (default: export.index-name)")
	exportCmd.Flags().Bool("dry-run", false, "Render without writing")
}
