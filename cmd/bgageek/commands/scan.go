package commands

import (
	"context"
	"log/slog"
	"time"

	"bgageek-backend/internal/pipeline"
	"bgageek-backend/internal/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(scanCmd)
}

var scanCmd = &cobra.Command{
	Use:   "scan <url...>",
	Short: "Scans game list and game panel pages and prints the statistics of every game on them.",
	Long:  "Scans game list and game panel pages and prints the statistics of every game on them. Uses the configured scan pages when no urls are given.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close()

		pages := args
		if len(pages) == 0 {
			pages = a.config.ScanPages
		}
		if len(pages) == 0 {
			slog.Warn("nothing to scan, pass urls or configure scan_pages")
			return
		}

		tasks, err := a.scanner(pages).Scan(ctx)
		if err != nil {
			slog.Warn("some pages could not be scanned", "err", err.Error())
		}
		slog.Info("scanned", "games", len(tasks))

		renderer := &tableRenderer{}
		scheduler := a.scheduler(renderer, slogSink)

		runCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go scheduler.Run(runCtx)

		for _, task := range tasks {
			scheduler.Enqueue(ctx, task)
		}
		err = waitDrained(ctx, scheduler)
		if err != nil {
			serviceutil.Fatal("interrupted", err)
		}
		renderer.Print()
	},
}

// waitDrained blocks until every detected task has been processed.
func waitDrained(ctx context.Context, scheduler *pipeline.Scheduler) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		status := scheduler.Status()
		if status.Pending == 0 && status.Processed >= status.Detected {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
