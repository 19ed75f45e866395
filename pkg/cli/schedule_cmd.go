package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"searchads-tap/internal/api"
	"searchads-tap/internal/service/extract"
)

func newScheduleCmd(app *appContext) *cobra.Command {
	var (
		spec        string
		metricsAddr string
		lookback    int
		streams     []string
		runNow      bool
		ov          = runOverrides{dailyJobLimit: -1}
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the extraction on a cron schedule",
		Long: `Runs the selected streams on a cron schedule (UTC) over the lookback window
ending yesterday, and serves /metrics, /healthz and /v1/runs on --metrics-addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.cfg
			if !cmd.Flags().Changed("cron") {
				spec = cfg.Schedule
			}
			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = cfg.MetricsAddr
			}
			if !cmd.Flags().Changed("lookback-days") {
				lookback = cfg.LookbackDays
			}
			if err := app.checkSinkForStreams(streams); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			p, err := app.buildPipeline(ctx, ov, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer p.Close() //nolint:errcheck

			scheduler := extract.NewScheduler(p.service, streams, lookback, app.logger)
			if err := scheduler.Start(spec); err != nil {
				return err
			}
			defer scheduler.Stop()

			srv := &http.Server{
				Addr:              metricsAddr,
				Handler:           api.NewRouter(p.metrics, scheduler, app.logger),
				ReadHeaderTimeout: 10 * time.Second,
			}
			serveErr := make(chan error, 1)
			go func() {
				app.logger.Info("metrics server listening", "addr", metricsAddr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			if runNow {
				go func() { _, _ = scheduler.Trigger(ctx) }()
			}

			select {
			case <-ctx.Done():
				app.logger.Info("shutting down")
			case err := <-serveErr:
				if err != nil {
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&spec, "cron", "", "Cron expression, UTC (default SCHEDULE)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Listen address for /metrics and /healthz (default METRICS_ADDR)")
	cmd.Flags().IntVar(&lookback, "lookback-days", 0, "Days ending yesterday covered by each run (default SYNC_LOOKBACK_DAYS)")
	cmd.Flags().StringSliceVar(&streams, "streams", extract.Streams, "Streams to run")
	cmd.Flags().BoolVar(&runNow, "run-now", false, "Trigger one run immediately after start")
	cmd.Flags().StringVar(&ov.selector, "selector", "", "Impression-share selector name (default REPORT_SELECTOR)")

	return cmd
}
