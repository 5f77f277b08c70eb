package main

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/noteport/noteport/internal/config"
	"github.com/noteport/noteport/internal/gitsync"
	"github.com/noteport/noteport/internal/hierarchy"
	"github.com/noteport/noteport/internal/importer"
	"github.com/noteport/noteport/internal/types"
	"github.com/noteport/noteport/internal/ui"
	"github.com/noteport/noteport/internal/vcs"
)

func init() {
	ui.DisableColor()
}

func TestParseSince(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"2024-05-01", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{"2024-05-01T08:15", time.Date(2024, 5, 1, 8, 15, 0, 0, time.UTC)},
		{"2024-05-01T08:15:00Z", time.Date(2024, 5, 1, 8, 15, 0, 0, time.UTC)},
		{"  2024-05-01 ", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseSince(tt.expr, now)
		if err != nil {
			t.Errorf("parseSince(%q) failed: %v", tt.expr, err)
			continue
		}
		if !got.Equal(tt.want) {
			t.Errorf("parseSince(%q) = %v, want %v", tt.expr, got, tt.want)
		}
	}
}

func TestParseSinceRelative(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC)
	got, err := parseSince("3 days ago", now)
	if err != nil {
		t.Fatalf("parseSince() failed: %v", err)
	}
	if got.Before(now.Add(-73*time.Hour)) || got.After(now.Add(-71*time.Hour)) {
		t.Errorf("parseSince(3 days ago) = %v, want about %v", got, now.Add(-72*time.Hour))
	}

	if _, err := parseSince("whenever you like", now); err == nil {
		t.Error("parseSince(nonsense) succeeded, want error")
	}
}

func newImportCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringP("format", "f", "directory", "")
	cmd.Flags().Bool("dry-run", false, "")
	addImportFlags(cmd)
	return cmd
}

func TestImportOptionsFlagsOverConfig(t *testing.T) {
	config.ResetForTesting()
	t.Cleanup(config.ResetForTesting)

	cmd := newImportCommand()
	for flag, value := range map[string]string{
		"format":       "obsidian",
		"parent":       "abc",
		"exclude":      "*.tmp,drafts/**",
		"max-depth":    "2",
		"duplicates":   "overwrite",
		"dry-run":      "true",
		"no-structure": "true",
	} {
		if err := cmd.Flags().Set(flag, value); err != nil {
			t.Fatalf("Set(%s) failed: %v", flag, err)
		}
	}

	opts, err := importOptions(cmd, "/vault")
	if err != nil {
		t.Fatalf("importOptions() failed: %v", err)
	}
	if opts.Source != "/vault" || opts.Format != importer.FormatObsidian || opts.ParentID != "abc" {
		t.Errorf("opts = source %q format %q parent %q", opts.Source, opts.Format, opts.ParentID)
	}
	if len(opts.Exclude) != 2 || opts.Exclude[1] != "drafts/**" {
		t.Errorf("Exclude = %v", opts.Exclude)
	}
	if opts.MaxDepth != 2 || !opts.DryRun || opts.PreserveStructure {
		t.Errorf("opts = depth %d dry %v structure %v", opts.MaxDepth, opts.DryRun, opts.PreserveStructure)
	}
	if opts.Duplicates != hierarchy.PolicyOverwrite {
		t.Errorf("Duplicates = %q, want overwrite", opts.Duplicates)
	}
}

func TestImportOptionsRejects(t *testing.T) {
	config.ResetForTesting()
	t.Cleanup(config.ResetForTesting)

	cmd := newImportCommand()
	_ = cmd.Flags().Set("duplicates", "merge")
	if _, err := importOptions(cmd, "."); err == nil {
		t.Error("importOptions(duplicates=merge) succeeded, want error")
	}

	cmd = newImportCommand()
	_ = cmd.Flags().Set("format", "notion")
	if _, err := importOptions(cmd, "."); err == nil {
		t.Error("importOptions(format=notion) succeeded, want error")
	}
}

func TestRenderStatus(t *testing.T) {
	st := &vcs.Status{
		Branch:    "main",
		Remote:    "origin",
		RemoteURL: "git@github.com:noteport/vault.git",
		Modified:  []string{"a.md"},
		Untracked: []string{"b.md", "c.md"},
		Recent: []vcs.CommitInfo{
			{Hash: "0123456789abcdef", Author: "Test User", Message: "initial"},
		},
	}
	out := renderStatus("/repo", st)
	for _, want := range []string{
		"Repository /repo",
		"branch  main",
		"remote  origin git@github.com:noteport/vault.git",
		"state   dirty",
		"Modified (1)",
		"Untracked (2)",
		"01234567 initial (Test User)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("renderStatus() missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Conflicts") {
		t.Errorf("renderStatus() listed empty conflicts:\n%s", out)
	}

	out = renderStatus("/repo", &vcs.Status{Detached: true, Clean: true})
	if !strings.Contains(out, "detached HEAD") || !strings.Contains(out, "state   clean") || !strings.Contains(out, "remote  none") {
		t.Errorf("renderStatus(detached) = %s", out)
	}
}

func TestRenderSyncResult(t *testing.T) {
	sum := types.NewSummary(types.NewOperationContext("sync"), "git", 1)
	sum.Record(types.Succeeded("Plan.md", "n1"))
	res := &gitsync.Result{
		Summary:   sum,
		Stages:    []gitsync.Stage{gitsync.StageIdle, gitsync.StageStatus, gitsync.StageExport, gitsync.StageCommit, gitsync.StageDone},
		Exported:  []string{"Plan.md"},
		Conflicts: []string{"x.md"},
		Committed: true,
		Message:   "export: 1 files\n\ndetails",
	}
	out := renderSyncResult(res)
	for _, want := range []string{
		"Sync done",
		"idle → status → export → commit → done",
		"Exported (1)",
		"Conflicts (1)",
		"  x.md",
		"committed: export: 1 files\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("renderSyncResult() missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "pushed") {
		t.Errorf("renderSyncResult() reported a push:\n%s", out)
	}
}
