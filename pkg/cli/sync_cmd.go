package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"searchads-tap/internal/service/extract"
)

func newSyncCmd(app *appContext) *cobra.Command {
	var (
		rng rangeFlags
		ov  = runOverrides{dailyJobLimit: -1}
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Extract records and write them to the sink",
		Long: `Extract records for a date range and write them to the configured sink.

Without --start/--end the range is the SYNC_LOOKBACK_DAYS window ending yesterday (UTC).`,
	}

	pf := cmd.PersistentFlags()
	rng.register(pf)
	pf.StringVar(&ov.selector, "selector", "", "Impression-share selector name (default REPORT_SELECTOR)")
	pf.IntVar(&ov.maxChunkDays, "max-chunk-days", 0, "Maximum days per report job (default REPORT_MAX_CHUNK_DAYS)")
	pf.IntVar(&ov.dailyJobLimit, "daily-job-limit", -1, "Report jobs allowed per run (default REPORT_DAILY_JOB_LIMIT)")

	add := func(use, short string, streams []string) {
		cmd.AddCommand(&cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runSync(cmd, app, &rng, ov, streams)
			},
		})
	}
	add("impression-share", "Run the asynchronous impression-share report", []string{extract.StreamImpressionShare})
	add("campaigns", "List campaigns", []string{extract.StreamCampaigns})
	add("campaign-reports", "Fetch daily campaign-level reports", []string{extract.StreamCampaignReports})
	add("all", "Run every stream concurrently", extract.Streams)

	return cmd
}

func runSync(cmd *cobra.Command, app *appContext, rng *rangeFlags, ov runOverrides, streams []string) error {
	dr, err := rng.resolve(app.cfg, app.clock())
	if err != nil {
		return err
	}
	if err := app.checkSinkForStreams(streams); err != nil {
		return err
	}

	ctx := cmd.Context()
	p, err := app.buildPipeline(ctx, ov, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer p.Close() //nolint:errcheck

	app.logger.Info("sync started", "streams", streams, "range", dr.String(), "sink", app.cfg.Sink)
	results, err := p.service.Run(ctx, streams, dr)
	if err != nil {
		return err
	}

	// Records go to stdout when the sink is "-", so the summary goes to stderr.
	out := cmd.OutOrStdout()
	if target := app.cfg.Sink; target == "" || target == "-" {
		out = cmd.ErrOrStderr()
	}
	if getOutputFormat(cmd) == "json" {
		return printJSON(out, map[string]any{"range": dr.String(), "results": results})
	}
	rows := make([][]string, len(results))
	for i, r := range results {
		rows[i] = []string{r.Stream, strconv.Itoa(r.Rows)}
	}
	_, _ = fmt.Fprintf(out, "Range %s\n", dr)
	printTable(out, []string{"stream", "rows"}, rows)
	return nil
}
