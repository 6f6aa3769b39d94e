package commands

import (
	"context"
	"courtfetch/internal/components/chrono"
	"courtfetch/internal/components/serviceutil"
	"courtfetch/internal/components/telemetry"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"
)

var watchNow *bool

func init() {
	watchNow = watchCmd.Flags().Bool("now", false, "Run every watch once on start.")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [--now]",
	Short: "Runs the searches listed under `watches` in the config on their schedules.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			serviceutil.Fatal("failed to initialize", err)
		}
		defer a.Close(context.WithoutCancel(ctx))
		if len(a.config.Watches) == 0 {
			serviceutil.Fatal("nothing to watch", errors.New("the config has no watches"))
		}

		telemetry.InstrumentPerfStats(ctx, a.tel, time.Minute)

		cron := chrono.NewStandardCron(a.tel, a.clock)
		defer cron.Stop()

		// one search at a time
		var running sync.Mutex
		for _, w := range a.config.Watches {
			run := func() {
				running.Lock()
				defer running.Unlock()
				if ctx.Err() != nil {
					return
				}
				report, err := a.search(ctx, w.Portal, w.Query)
				if err != nil {
					slog.ErrorContext(ctx, "watch failed", "watch", w.Name, "err", err)
					return
				}
				slog.InfoContext(ctx, "watch finished", "watch", w.Name, "records", len(report.Records), "written", report.DocumentsWritten)
			}
			err := cron.Cron(w.Schedule, run)
			if err != nil {
				serviceutil.Fatal("invalid schedule for watch "+w.Name, err)
			}
			if *watchNow {
				go run()
			}
		}

		slog.InfoContext(ctx, "watching", "count", len(a.config.Watches))
		<-ctx.Done()
	},
}
