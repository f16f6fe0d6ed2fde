package commands

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"bgageek-backend/internal/chrono"
	"bgageek-backend/internal/pipeline"
	"bgageek-backend/internal/service"
	"bgageek-backend/internal/serviceutil"
	"bgageek-backend/internal/telemetry"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the pipeline behind the http API.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		a, err := openApp(ctx)
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close()

		telemetry.InstrumentPerfStats(ctx)

		clock := chrono.NewStandardTime()
		board := service.NewBoard(clock)
		logs := service.NewLogBuffer(service.DefaultLogCapacity, clock)
		scheduler := a.scheduler(
			board,
			pipeline.LogSinks(logs, pipeline.NewTelemetryLogSink(a.tel)),
		)
		scanner := a.scanner(a.config.ScanPages)

		go func() {
			err := scheduler.Run(ctx)
			if err != nil && ctx.Err() == nil {
				serviceutil.Fatal("scheduler stopped", err)
			}
		}()
		if len(a.config.ScanPages) > 0 {
			go scanPeriodically(ctx, scheduler, scanner, a.config.ScanInterval.Std())
		}

		mux := http.NewServeMux()
		service.NewService(
			scheduler,
			scanner,
			board,
			logs,
			service.WithAccessToken(a.config.AccessToken),
			service.WithCustomTelemetryAPI(a.tel),
		).Register(mux)

		err = serviceutil.StartHttpServer(ctx, a.config.HttpPort, mux)
		if err != nil {
			serviceutil.Fatal("failed to serve http", err)
		}
	},
}

// scanPeriodically enqueues whatever is new on the scanned pages, once at
// startup and then every interval. A zero interval only scans once.
func scanPeriodically(ctx context.Context, scheduler *pipeline.Scheduler, scanner pipeline.Scanner, interval time.Duration) {
	for {
		tasks, err := scanner.Scan(ctx)
		if err != nil {
			slog.Warn("scan failed", "err", err.Error())
		}
		for _, task := range tasks {
			scheduler.Enqueue(ctx, task)
		}
		if interval <= 0 {
			return
		}
		err = chrono.Sleep(ctx, interval)
		if err != nil {
			return
		}
	}
}
