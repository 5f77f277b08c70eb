package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/noteport/noteport/internal/config"
	"github.com/noteport/noteport/internal/dashboard"
	"github.com/noteport/noteport/internal/importer"
	"github.com/noteport/noteport/internal/ui"
	"github.com/noteport/noteport/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Import a directory and keep re-importing files as they change",
	Long: `Import <dir>, then watch it and re-import each changed file once it has
been quiet for watch.debounce. Re-imports replace the notes from earlier
runs. Deleting a file leaves its note alone.

With --dashboard-port, progress is also served over WebSocket at
ws://localhost:<port>/ws.

Examples:
  noteport watch ~/vault --format obsidian
  noteport watch ~/notes --dashboard-port 8089`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("dashboard-port")
		runWatch(cmd, args[0], port)
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard [dir]",
	Short: "Serve live progress over WebSocket while watching a directory",
	Long: `Start the progress dashboard and watch [dir] (default: the working
directory), broadcasting every imported file to connected clients.

WebSocket messages:
- stats: running totals, sent on connect and after every batch
- progress: one finished file
- summary: totals of one import batch

Example usage:
  noteport dashboard                 # Start on dashboard.port
  noteport dashboard ~/vault -p 9000 # Start on a custom port`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir := "."
		if len(args) == 1 {
			dir = args[0]
		}
		port := intOpt(cmd, "port", "dashboard.port")
		if port <= 0 {
			fatalf("--port must be positive")
		}
		runWatch(cmd, dir, port)
	},
}

func runWatch(cmd *cobra.Command, dir string, port int) {
	opts, err := importOptions(cmd, dir)
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

	var handler *dashboard.Handler
	if port > 0 {
		server := dashboard.NewServer(&dashboard.Config{Port: port, Logger: newLogger("dashboard")})
		handler = dashboard.NewHandler(server, newLogger("dashboard"))
		if err := server.Start(); err != nil {
			closeStore()
			fatalf("failed to start dashboard: %v", err)
		}
		defer server.Stop()
		opts.Progress = handler.Progress

		fmt.Printf("Dashboard: http://%s\n", server.GetAddr())
		fmt.Printf("WebSocket endpoint: ws://%s/ws\n", server.GetAddr())
	}

	w, err := watch.New(importer.New(s, newLogger("import")), opts, watch.Config{
		Debounce: config.GetDuration("watch.debounce"),
		Logger:   newLogger("watch"),
		OnBatch: func(b watch.Batch) {
			if b.Err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("✗"), b.Err)
			}
			if b.Result == nil {
				return
			}
			if handler != nil {
				handler.Summary(b.Result.Summary)
			}
			if jsonOutput {
				printJSON(b.Result.Summary)
				return
			}
			if b.Initial {
				fmt.Println(ui.RenderSummary(b.Result.Summary))
				return
			}
			s := b.Result.Summary
			mark := ui.RenderPass("✓")
			if s.FailedFiles > 0 {
				mark = ui.RenderFail("✗")
			}
			fmt.Printf("%s %s re-imported %d of %d changed files\n",
				mark, ui.RenderMuted(b.At.Format("15:04:05")), s.SuccessfulFiles, len(b.Paths))
		},
	})
	if err != nil {
		closeStore()
		fatalf("%v", err)
	}

	fmt.Printf("%s watching %s (Ctrl+C to stop)\n", ui.RenderAccent("👀"), dir)
	if err := w.Run(ctx); err != nil {
		closeStore()
		fatalf("%v", err)
	}
	fmt.Println("\nStopped.")
}

func init() {
	for _, c := range []*cobra.Command{watchCmd, dashboardCmd} {
		c.Flags().StringP("format", "f", "directory", "Source format: directory, obsidian or git")
		addImportFlags(c)
		rootCmd.AddCommand(c)
	}
	watchCmd.Flags().Int("dashboard-port", 0, "Also serve the progress dashboard on this port")
	dashboardCmd.Flags().IntP("port", "p", 0, "Port to listen on (default: dashboard.port)")
}
