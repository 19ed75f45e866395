package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"searchads-tap/internal/domain"
	"searchads-tap/internal/service/report"
)

type chunkView struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  int    `json:"days"`
	Name  string `json:"name"`
}

func newChunksCmd(app *appContext) *cobra.Command {
	var (
		rng          rangeFlags
		maxChunkDays int
	)

	cmd := &cobra.Command{
		Use:   "chunks",
		Short: "Show how a date range splits into report jobs",
		Long:  "Dry run of the impression-share chunk plan. No API calls are made.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dr, err := rng.resolve(app.cfg, app.clock())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-chunk-days") {
				maxChunkDays = app.cfg.MaxChunkDays
			}
			chunks, err := report.Split(dr, maxChunkDays)
			if err != nil {
				return err
			}

			views := make([]chunkView, len(chunks))
			for i, c := range chunks {
				name := domain.ReportTemplate{}.ForRange(report.DefaultNamePrefix, c)[domain.TemplateFieldName]
				views[i] = chunkView{Start: c.StartTime(), End: c.EndTime(), Days: c.Days(), Name: name.(string)}
			}

			if getOutputFormat(cmd) == "json" {
				return printJSON(cmd.OutOrStdout(), views)
			}
			rows := make([][]string, len(views))
			for i, v := range views {
				rows[i] = []string{strconv.Itoa(i + 1), v.Start, v.End, strconv.Itoa(v.Days), v.Name}
			}
			printTable(cmd.OutOrStdout(), []string{"#", "start", "end", "days", "name"}, rows)
			return nil
		},
	}

	rng.register(cmd.Flags())
	cmd.Flags().IntVar(&maxChunkDays, "max-chunk-days", 0, "Maximum days per report job (default REPORT_MAX_CHUNK_DAYS)")

	return cmd
}
