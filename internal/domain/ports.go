package domain

import (
	"context"
	"time"
)

// ReportJobClient submits report jobs and polls their metadata.
// Implemented by searchads.Client.
type ReportJobClient interface {
	// Create submits a report job. It has no notion of quota.
	Create(ctx context.Context, tmpl ReportTemplate) (*ReportJob, error)
	// Poll fetches job metadata once. It never sleeps. Polling a READY job
	// returns it unchanged without issuing a request.
	Poll(ctx context.Context, job *ReportJob) (*ReportJob, error)
}

// ReportDownloader retrieves a finished report and parses it into rows.
// Implemented by searchads.Downloader.
type ReportDownloader interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
	Parse(payload []byte, joinValue string) ([]ReportRow, error)
}

// WaitStrategy decides how long to pause before the attempt-th poll of a
// queued job (attempt starts at 1).
type WaitStrategy interface {
	Wait(ctx context.Context, attempt int) error
	Delay(attempt int) time.Duration
}

// ReportJobRepository persists the report job ledger.
// Implemented by repository.ReportJobRepo.
type ReportJobRepository interface {
	Create(ctx context.Context, rec *ReportJobRecord) (*ReportJobRecord, error)
	UpdateState(ctx context.Context, id string, state JobState, location *string) error
	MarkMerged(ctx context.Context, id string, rowCount int) error
	MarkFailed(ctx context.Context, id string, message string) error
	List(ctx context.Context, filter ReportJobFilter) ([]ReportJobRecord, error)
	CountCreatedSince(ctx context.Context, since time.Time) (int, error)
}

// RowSink receives normalised rows for downstream ingestion.
// Implemented by the sink package.
type RowSink interface {
	Write(ctx context.Context, records []any) error
	Close(ctx context.Context) error
}

// CampaignAPI reads the synchronous campaign endpoints.
// Implemented by searchads.Client.
type CampaignAPI interface {
	ListCampaigns(ctx context.Context) ([]Record, error)
	CampaignReport(ctx context.Context, tmpl ReportTemplate) ([]Record, error)
}
