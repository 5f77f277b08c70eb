package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noteport/noteport/internal/config"
	"github.com/noteport/noteport/internal/gitsync"
	"github.com/noteport/noteport/internal/ui"
	"github.com/noteport/noteport/internal/vcs"
	"github.com/noteport/noteport/internal/vcs/git"
)

var statusCmd = &cobra.Command{
	Use:   "status <repo>",
	Short: "Show the state of a git working tree",
	Long: `Show the branch, remote, pending changes and recent commits of the git
working tree a sync would run against.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		repo, err := git.Open(ctx, args[0], git.Options{
			Timeout: config.GetDuration("git.timeout"),
			Logger:  newLogger("git"),
		})
		if err != nil {
			fatalf("%v", err)
		}
		st, err := repo.Status(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			printJSON(st)
			return
		}
		fmt.Print(renderStatus(repo.Root(), st))
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func renderStatus(root string, st *vcs.Status) string {
	var b strings.Builder

	branch := st.Branch
	if st.Detached {
		branch = ui.RenderWarn("detached HEAD")
	}
	fmt.Fprintf(&b, "%s %s\n", ui.RenderAccent("Repository"), root)
	fmt.Fprintf(&b, "  branch  %s\n", branch)
	if st.Remote != "" {
		fmt.Fprintf(&b, "  remote  %s %s\n", st.Remote, ui.RenderMuted(st.RemoteURL))
	} else {
		fmt.Fprintf(&b, "  remote  %s\n", ui.RenderMuted("none"))
	}
	if st.Clean {
		fmt.Fprintf(&b, "  state   %s\n", ui.RenderPass("clean"))
	} else {
		fmt.Fprintf(&b, "  state   %s\n", ui.RenderWarn("dirty"))
	}
	b.WriteString("\n")

	b.WriteString(ui.RenderList("Conflicts", st.Conflicts))
	b.WriteString(ui.RenderList("Staged", st.Staged))
	b.WriteString(ui.RenderList("Modified", st.Modified))
	b.WriteString(ui.RenderList("Added", st.Added))
	b.WriteString(ui.RenderList("Deleted", st.Deleted))
	b.WriteString(ui.RenderList("Untracked", st.Untracked))

	if len(st.Recent) > 0 {
		commits := make([]string, 0, len(st.Recent))
		for _, c := range st.Recent {
			hash := c.Hash
			if len(hash) > 8 {
				hash = hash[:8]
			}
			commits = append(commits, fmt.Sprintf("%s %s %s", ui.RenderMuted(hash), c.Message, ui.RenderMuted("("+c.Author+")")))
		}
		b.WriteString(ui.RenderList("Recent commits", commits))
	}
	return b.String()
}

func renderSyncResult(res *gitsync.Result) string {
	var b strings.Builder

	stages := make([]string, len(res.Stages))
	for i, s := range res.Stages {
		stages[i] = string(s)
	}
	final := string(res.Final())
	switch res.Final() {
	case gitsync.StageDone:
		final = ui.RenderPass(final)
	case gitsync.StageFailed:
		final = ui.RenderFail(final)
	}
	fmt.Fprintf(&b, "%s %s %s\n", ui.RenderAccent("Sync"), final, ui.RenderMuted(strings.Join(stages, " → ")))

	if res.Summary != nil && res.Summary.TotalFiles > 0 {
		b.WriteString(ui.RenderSummary(res.Summary))
		b.WriteString("\n")
	}

	b.WriteString(ui.RenderList("Imported", res.Imported))
	b.WriteString(ui.RenderList("Exported", res.Exported))
	b.WriteString(ui.RenderList("Unchanged", res.Unchanged))
	b.WriteString(ui.RenderList("Resolved", res.Resolved))
	b.WriteString(ui.RenderList("Conflicts", res.Conflicts))

	if res.Committed {
		fmt.Fprintf(&b, "%s committed: %s\n", ui.RenderPass("✓"), firstLine(res.Message))
	}
	if res.Pushed {
		fmt.Fprintf(&b, "%s pushed\n", ui.RenderPass("✓"))
	}
	return b.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
