package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"searchads-tap/internal/domain"
)

var _ domain.ReportJobRepository = (*ReportJobRepo)(nil)

// defaultListLimit caps List when the filter does not set a limit.
const defaultListLimit = 50

// sqliteTimestamp matches the text SQLite's CURRENT_TIMESTAMP produces.
const sqliteTimestamp = "2006-01-02 15:04:05"

// ReportJobRepo stores the report job ledger in SQLite.
type ReportJobRepo struct {
	db *sql.DB
}

// NewReportJobRepo creates a new ReportJobRepo.
func NewReportJobRepo(db *sql.DB) *ReportJobRepo {
	return &ReportJobRepo{db: db}
}

const reportJobColumns = `
	id, run_id, backend_id, template_name, chunk_start, chunk_end, state,
	backend_created_at, download_location, row_count, error_message,
	merged_at, created_at, updated_at`

// Create inserts a ledger entry for a newly created backend job.
func (r *ReportJobRepo) Create(ctx context.Context, rec *domain.ReportJobRecord) (*domain.ReportJobRecord, error) {
	if rec == nil {
		return nil, domain.ErrValidation("report job record is required")
	}
	if rec.RunID == "" || rec.BackendID == "" {
		return nil, domain.ErrValidation("run id and backend id are required")
	}
	if rec.ID == "" {
		rec.ID = domain.NewID()
	}
	if rec.State == "" {
		rec.State = domain.JobStateRequested
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO report_jobs (id, run_id, backend_id, template_name, chunk_start, chunk_end,
		                         state, backend_created_at, download_location)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.RunID, rec.BackendID, rec.TemplateName, rec.ChunkStart, rec.ChunkEnd,
		string(rec.State), rec.BackendCreatedAt, nullString(rec.DownloadLocation))
	if err != nil {
		return nil, mapDBError(err)
	}
	return r.GetByID(ctx, rec.ID)
}

// GetByID returns a ledger entry by ID.
func (r *ReportJobRepo) GetByID(ctx context.Context, id string) (*domain.ReportJobRecord, error) {
	rec, err := scanReportJob(r.db.QueryRowContext(ctx,
		`SELECT `+reportJobColumns+` FROM report_jobs WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// UpdateState records a state transition. A nil location keeps the stored one.
func (r *ReportJobRepo) UpdateState(ctx context.Context, id string, state domain.JobState, location *string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE report_jobs
		SET state = ?, download_location = COALESCE(?, download_location), updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(state), nullString(location), id)
	if err != nil {
		return mapDBError(err)
	}
	return requireOneRow(res, id)
}

// MarkMerged records that the job's rows were merged into the run result.
func (r *ReportJobRepo) MarkMerged(ctx context.Context, id string, rowCount int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE report_jobs
		SET state = ?, row_count = ?, error_message = NULL,
		    merged_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(domain.JobStateReady), rowCount, id)
	if err != nil {
		return mapDBError(err)
	}
	return requireOneRow(res, id)
}

// MarkFailed marks a job as failed with an error message.
func (r *ReportJobRepo) MarkFailed(ctx context.Context, id string, message string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE report_jobs
		SET state = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(domain.JobStateFailed), message, id)
	if err != nil {
		return mapDBError(err)
	}
	return requireOneRow(res, id)
}

// List returns ledger entries, newest first.
func (r *ReportJobRepo) List(ctx context.Context, filter domain.ReportJobFilter) ([]domain.ReportJobRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.RunID != nil {
		where = append(where, "run_id = ?")
		args = append(args, *filter.RunID)
	}
	if filter.State != nil {
		where = append(where, "state = ?")
		args = append(args, string(*filter.State))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT ` + reportJobColumns + ` FROM report_jobs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapDBError(err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.ReportJobRecord
	for rows.Next() {
		rec, err := scanReportJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report jobs: %w", err)
	}
	return out, nil
}

// CountCreatedSince counts jobs created at or after since.
func (r *ReportJobRepo) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM report_jobs WHERE created_at >= ?`,
		since.UTC().Format(sqliteTimestamp),
	).Scan(&n)
	if err != nil {
		return 0, mapDBError(err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReportJob(row rowScanner) (*domain.ReportJobRecord, error) {
	var (
		rec                  domain.ReportJobRecord
		state                string
		location, errMessage sql.NullString
		mergedAt             sql.NullTime
	)
	err := row.Scan(
		&rec.ID,
		&rec.RunID,
		&rec.BackendID,
		&rec.TemplateName,
		&rec.ChunkStart,
		&rec.ChunkEnd,
		&state,
		&rec.BackendCreatedAt,
		&location,
		&rec.RowCount,
		&errMessage,
		&mergedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, mapDBError(err)
	}

	rec.State = domain.JobState(state)
	if location.Valid {
		loc := location.String
		rec.DownloadLocation = &loc
	}
	if errMessage.Valid {
		msg := errMessage.String
		rec.ErrorMessage = &msg
	}
	if mergedAt.Valid {
		t := mergedAt.Time
		rec.MergedAt = &t
	}
	return &rec, nil
}
