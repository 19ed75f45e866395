package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"searchads-tap/internal/db"
	"searchads-tap/internal/db/repository"
	"searchads-tap/internal/domain"
)

type jobView struct {
	ID               string     `json:"id"`
	RunID            string     `json:"run_id"`
	BackendID        string     `json:"backend_id"`
	Template         string     `json:"template"`
	ChunkStart       string     `json:"chunk_start"`
	ChunkEnd         string     `json:"chunk_end"`
	State            string     `json:"state"`
	BackendCreatedAt string     `json:"backend_created_at,omitempty"`
	DownloadLocation string     `json:"download_location,omitempty"`
	RowCount         int        `json:"row_count"`
	Error            string     `json:"error,omitempty"`
	MergedAt         *time.Time `json:"merged_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

func jobToView(j domain.ReportJobRecord) jobView {
	return jobView{
		ID:               j.ID,
		RunID:            j.RunID,
		BackendID:        j.BackendID,
		Template:         j.TemplateName,
		ChunkStart:       j.ChunkStart,
		ChunkEnd:         j.ChunkEnd,
		State:            string(j.State),
		BackendCreatedAt: j.BackendCreatedAt,
		DownloadLocation: deref(j.DownloadLocation),
		RowCount:         j.RowCount,
		Error:            deref(j.ErrorMessage),
		MergedAt:         j.MergedAt,
		CreatedAt:        j.CreatedAt,
	}
}

func newJobsCmd(app *appContext) *cobra.Command {
	var (
		runID string
		state string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List report jobs recorded in the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if app.cfg.LedgerDBPath == "" {
				return domain.ErrValidation("no ledger configured: set --ledger or LEDGER_DB_PATH")
			}
			ctx := cmd.Context()
			conn, err := db.OpenLedger(ctx, app.cfg.LedgerDBPath)
			if err != nil {
				return err
			}
			defer conn.Close() //nolint:errcheck
			repo := repository.NewReportJobRepo(conn)

			filter := domain.ReportJobFilter{Limit: limit}
			if runID != "" {
				filter.RunID = &runID
			}
			if state != "" {
				s := domain.JobState(strings.ToUpper(state))
				filter.State = &s
			}
			jobs, err := repo.List(ctx, filter)
			if err != nil {
				return err
			}
			recent, err := repo.CountCreatedSince(ctx, app.clock().Add(-24*time.Hour))
			if err != nil {
				return err
			}

			if getOutputFormat(cmd) == "json" {
				views := make([]jobView, len(jobs))
				for i, j := range jobs {
					views[i] = jobToView(j)
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"jobs":             views,
					"created_last_24h": recent,
					"daily_job_limit":  app.cfg.DailyJobLimit,
				})
			}
			rows := make([][]string, len(jobs))
			for i, j := range jobs {
				rows[i] = []string{
					j.RunID, j.BackendID, j.ChunkStart + ".." + j.ChunkEnd, string(j.State),
					strconv.Itoa(j.RowCount), deref(j.ErrorMessage), j.CreatedAt.UTC().Format(time.RFC3339),
				}
			}
			printTable(cmd.OutOrStdout(), []string{"run", "job", "range", "state", "rows", "error", "created"}, rows)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "\n%d job(s) created in the last 24h (limit per run: %d)\n",
				recent, app.cfg.DailyJobLimit)
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run-id", "", "Only jobs of this run")
	cmd.Flags().StringVar(&state, "state", "", "Only jobs in this state (REQUESTED, QUEUED, READY, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of jobs")

	return cmd
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
