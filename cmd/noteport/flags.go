package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/noteport/noteport/internal/config"
	"github.com/noteport/noteport/internal/progress"
	"github.com/noteport/noteport/internal/ui"
)

// The helpers below return the flag value when it was set on the command
// line and the config value for key otherwise.

func stringOpt(cmd *cobra.Command, flag, key string) string {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		v, _ := cmd.Flags().GetString(flag)
		return v
	}
	return config.GetString(key)
}

func boolOpt(cmd *cobra.Command, flag, key string) bool {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		v, _ := cmd.Flags().GetBool(flag)
		return v
	}
	return config.GetBool(key)
}

func intOpt(cmd *cobra.Command, flag, key string) int {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		v, _ := cmd.Flags().GetInt(flag)
		return v
	}
	return config.GetInt(key)
}

func sliceOpt(cmd *cobra.Command, flag, key string) []string {
	if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
		v, _ := cmd.Flags().GetStringSlice(flag)
		return v
	}
	return config.GetStringSlice(key)
}

// progressPrinter shows a one-line counter on stderr when it is a terminal.
func progressPrinter() progress.Func {
	if jsonOutput || !ui.IsTerminal(os.Stderr) {
		return nil
	}
	return func(e progress.Event) {
		fmt.Fprintf(os.Stderr, "\r\033[K%s %s", ui.RenderMuted(fmt.Sprintf("[%d/%d]", e.Current, e.Total)), e.Path)
		if e.Current == e.Total {
			fmt.Fprint(os.Stderr, "\r\033[K")
		}
	}
}

// confirm asks a yes/no question when stdin is a terminal. Without a
// terminal it answers yes so scripted runs are not blocked.
func confirm(title, description string) bool {
	if !ui.IsTerminal(os.Stdin) {
		return true
	}
	ok := false
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		return false
	}
	return ok
}
