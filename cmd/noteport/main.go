// Command noteport moves notes between a Trilium server and a directory,
// an Obsidian vault or a git repository.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/noteport/noteport/internal/config"
	"github.com/noteport/noteport/internal/debug"
	"github.com/noteport/noteport/internal/types"
	"github.com/noteport/noteport/internal/ui"
)

var (
	verbose    bool
	jsonOutput bool

	// logOutput receives component logs: stderr, or the rotating file when
	// log.file is set.
	logOutput io.Writer = os.Stderr
	logFile   *lumberjack.Logger
)

var rootCmd = &cobra.Command{
	Use:   "noteport",
	Short: "Import, export and sync notes with a Trilium server",
	Long: `noteport moves notes between a Trilium server and plain files.

Directories, Obsidian vaults and git checkouts can be imported into the
note tree and exported back out, keeping folder structure, front matter,
tags, attachments and wiki links. A git checkout can be synced in either
or both directions and the result committed and pushed.

Settings come from .noteport/config.yaml (searched upward from the working
directory), then NOTEPORT_* environment variables, then flags.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		if verbose {
			debug.SetVerbose(true)
		}
		if err := config.Initialize(); err != nil {
			return err
		}
		applyStoreFlags(cmd)
		setupLogging()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			_ = logFile.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Print debug output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().String("backend", "", "Note store: etapi, sqlite or memory")
	rootCmd.PersistentFlags().String("server", "", "Trilium server URL")
	rootCmd.PersistentFlags().String("db", "", "Path of the sqlite note store")
}

// setupLogging points component loggers and debug output at the rotating
// log file when one is configured.
func setupLogging() {
	path := config.GetString("log.file")
	if path == "" {
		return
	}
	logFile = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    config.GetInt("log.max-size"),
		MaxBackups: config.GetInt("log.max-backups"),
		Compress:   true,
	}
	logOutput = logFile
	debug.SetOutput(logFile)
}

// newLogger returns a component logger with the given prefix.
func newLogger(component string) *log.Logger {
	if !verbose && logFile == nil {
		return log.New(io.Discard, "", 0)
	}
	return log.New(logOutput, "["+component+"] ", log.LstdFlags)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("failed to encode output: %v", err)
	}
}

// report prints v as JSON or s as a rendered summary, then exits non-zero
// when any file failed.
func report(v any, s *types.OperationSummary) {
	if jsonOutput {
		printJSON(v)
	} else {
		fmt.Println(ui.RenderSummary(s))
	}
	if s.FailedFiles > 0 {
		os.Exit(1)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
