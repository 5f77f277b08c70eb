// Package ui renders operation results for the terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/noteport/noteport/internal/types"
)

var (
	passColor   = lipgloss.Color("#10B981")
	warnColor   = lipgloss.Color("#F59E0B")
	failColor   = lipgloss.Color("#EF4444")
	accentColor = lipgloss.Color("#7C3AED")
	mutedColor  = lipgloss.Color("#6B7280")

	passStyle   = lipgloss.NewStyle().Foreground(passColor).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(warnColor)
	failStyle   = lipgloss.NewStyle().Foreground(failColor).Bold(true)
	accentStyle = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)

	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Width(12).Foreground(mutedColor)
)

func init() {
	if !ShouldUseColor(os.Stdout) {
		DisableColor()
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// ShouldUseColor reports whether output to f should be coloured. NO_COLOR
// always wins; otherwise colour needs a terminal.
func ShouldUseColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return IsTerminal(f)
}

// DisableColor makes every Render* function return plain text.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }

func row(label, value string) string {
	return labelStyle.Render(label) + " " + value + "\n"
}

// RenderSummary formats an operation summary.
func RenderSummary(s *types.OperationSummary) string {
	var b strings.Builder

	title := s.Operation
	if title != "" {
		title = strings.ToUpper(title[:1]) + title[1:]
	}
	if s.Format != "" {
		title += " (" + s.Format + ")"
	}
	if s.DryRun {
		title += " " + RenderMuted("[dry run]")
	}
	b.WriteString(headerStyle.Render(title))
	b.WriteString("\n")

	b.WriteString(row("files", fmt.Sprintf("%d", s.TotalFiles)))
	b.WriteString(row("succeeded", RenderPass(fmt.Sprintf("%d", s.SuccessfulFiles-s.SkippedFiles))))
	if s.SkippedFiles > 0 {
		b.WriteString(row("skipped", RenderMuted(fmt.Sprintf("%d", s.SkippedFiles))))
	}
	if s.FailedFiles > 0 {
		b.WriteString(row("failed", RenderFail(fmt.Sprintf("%d", s.FailedFiles))))
	}
	if s.Directories > 0 {
		b.WriteString(row("folders", fmt.Sprintf("%d", s.Directories)))
	}
	b.WriteString(row("bytes", FormatBytes(s.TotalBytes)))
	b.WriteString(row("duration", s.Duration.Round(time.Millisecond).String()))
	if s.Aborted {
		b.WriteString(row("status", RenderWarn("stopped early")))
	}

	if len(s.Errors) > 0 {
		b.WriteString("\n" + RenderFail("Errors") + "\n")
		for _, e := range s.Errors {
			fmt.Fprintf(&b, "  %s %s %s\n", RenderFail("✗"), e.Path, RenderMuted(string(e.Code)+": "+e.Message))
		}
	}
	if len(s.Warnings) > 0 {
		b.WriteString("\n" + RenderWarn("Warnings") + "\n")
		for _, w := range s.Warnings {
			fmt.Fprintf(&b, "  %s %s\n", RenderWarn("⚠"), w)
		}
	}
	return b.String()
}

// RenderList formats a titled list. Empty lists render nothing.
func RenderList(title string, items []string) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", RenderAccent(title), RenderMuted(fmt.Sprintf("(%d)", len(items))))
	for _, it := range items {
		fmt.Fprintf(&b, "  %s\n", it)
	}
	return b.String()
}

// FormatBytes renders n with a binary unit.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Fprint writes s to w, ignoring errors the way fmt.Print does.
func Fprint(w io.Writer, s string) {
	_, _ = io.WriteString(w, s)
}
