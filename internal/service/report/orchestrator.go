package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"searchads-tap/internal/domain"
	"searchads-tap/internal/metrics"
)

// MaxPollAttempts is the number of polls issued after a job is created. Each
// poll of a queued job is preceded by one wait, so a job still QUEUED after
// creation gets two wait-then-poll cycles before it is rejected.
const MaxPollAttempts = 2

// DefaultNamePrefix prefixes the per-chunk report name.
const DefaultNamePrefix = "impression_share_reports"

// Orchestrator drives a date range through chunking, job creation, polling,
// download and parsing, one chunk at a time.
type Orchestrator struct {
	client     domain.ReportJobClient
	downloader domain.ReportDownloader
	wait       domain.WaitStrategy
	jobs       domain.ReportJobRepository // optional ledger, may be nil
	metrics    *metrics.Metrics           // may be nil
	logger     *slog.Logger
	namePrefix string
	now        func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithWaitStrategy replaces the default fixed 15s wait.
func WithWaitStrategy(w domain.WaitStrategy) Option {
	return func(o *Orchestrator) {
		if w != nil {
			o.wait = w
		}
	}
}

// WithLedger records every job's lifecycle in repo.
func WithLedger(repo domain.ReportJobRepository) Option {
	return func(o *Orchestrator) {
		o.jobs = repo
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithNamePrefix sets the prefix of the per-chunk report name.
func WithNamePrefix(prefix string) Option {
	return func(o *Orchestrator) {
		if prefix != "" {
			o.namePrefix = prefix
		}
	}
}

// WithClock overrides time.Now (tests).
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(client domain.ReportJobClient, downloader domain.ReportDownloader, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		client:     client,
		downloader: downloader,
		wait:       FixedDelay{Duration: DefaultQueuedWait},
		logger:     logger,
		namePrefix: DefaultNamePrefix,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run splits dr into chunks of at most maxChunkDays and processes them in
// order. When more than dailyJobLimit jobs have already been created in this
// run, it stops and returns the rows accumulated so far without error. Any
// other failure aborts the run.
func (o *Orchestrator) Run(ctx context.Context, dr domain.DateRange, tmpl domain.ReportTemplate,
	maxChunkDays, dailyJobLimit int) ([]domain.ReportRow, error) {

	chunks, err := Split(dr, maxChunkDays)
	if err != nil {
		return nil, err
	}

	runID := domain.NewID()
	logger := o.logger.With("run_id", runID)
	quota := NewQuotaCounter(dailyJobLimit)

	logger.Info("report run started",
		"range", dr.String(),
		"chunks", len(chunks),
		"max_chunk_days", maxChunkDays,
		"daily_job_limit", dailyJobLimit,
	)

	var rows []domain.ReportRow
	for i, chunk := range chunks {
		if quota.Exhausted() {
			logger.Info("daily job limit reached, returning partial result",
				"jobs_created", quota.Created(),
				"limit", quota.Limit(),
				"chunks_processed", i,
				"chunks_skipped", len(chunks)-i,
				"first_skipped", chunk.String(),
			)
			o.metrics.QuotaCutoff()
			break
		}

		chunkRows, err := o.runChunk(ctx, logger.With("chunk", chunk.String()), runID, chunk, tmpl, quota)
		if err != nil {
			logger.Error("report run aborted", "chunk", chunk.String(), "error", err)
			return nil, fmt.Errorf("chunk %s: %w", chunk, err)
		}
		rows = append(rows, chunkRows...)
	}

	o.metrics.RunCompleted(len(rows), o.now())
	logger.Info("report run finished", "rows", len(rows), "jobs_created", quota.Created())
	return rows, nil
}

// runChunk creates, awaits, downloads and parses the report for one chunk.
func (o *Orchestrator) runChunk(ctx context.Context, logger *slog.Logger, runID string,
	chunk domain.DateRange, tmpl domain.ReportTemplate, quota *QuotaCounter) ([]domain.ReportRow, error) {

	started := o.now()
	body := tmpl.ForRange(o.namePrefix, chunk)

	job, err := o.client.Create(ctx, body)
	if err != nil {
		return nil, err
	}
	quota.Record()
	o.metrics.JobCreated()
	logger = logger.With("report_id", job.ID)
	logger.Info("report job created", "state", job.State, "jobs_created", quota.Created())

	recID := o.recordCreated(ctx, logger, runID, chunk, body, job)

	job, err = o.await(ctx, logger, job)
	if err != nil {
		o.recordFailed(ctx, logger, recID, err)
		o.metrics.JobFinished(string(domain.JobStateFailed))
		return nil, err
	}
	o.recordReady(ctx, logger, recID, job)

	payload, err := o.downloader.Fetch(ctx, job.DownloadLocation)
	if err != nil {
		o.recordFailed(ctx, logger, recID, err)
		o.metrics.JobFinished(string(domain.JobStateFailed))
		return nil, err
	}

	rows, err := o.downloader.Parse(payload, job.CreatedAt)
	if err != nil {
		o.recordFailed(ctx, logger, recID, err)
		o.metrics.JobFinished(string(domain.JobStateFailed))
		return nil, err
	}

	o.recordMerged(ctx, logger, recID, len(rows))
	o.metrics.JobFinished(string(domain.JobStateReady))
	o.metrics.RowsParsed(len(rows))
	o.metrics.ObserveChunk(o.now().Sub(started))
	logger.Info("report chunk merged", "rows", len(rows), "bytes", len(payload))
	return rows, nil
}

// await polls job until it is READY, waiting before each poll of a queued
// job. It gives up after MaxPollAttempts polls.
func (o *Orchestrator) await(ctx context.Context, logger *slog.Logger, job *domain.ReportJob) (*domain.ReportJob, error) {
	var err error
	for attempt := 1; job.State != domain.JobStateReady; attempt++ {
		if job.State == domain.JobStateFailed {
			return nil, domain.ErrBackendRejected("poll", 0, "report %s failed on the backend", job.ID)
		}
		if attempt > MaxPollAttempts {
			return nil, domain.ErrBackendRejected("poll", 0,
				"report %s not ready after %d polls", job.ID, MaxPollAttempts)
		}

		if job.State == domain.JobStateQueued {
			delay := o.wait.Delay(attempt)
			logger.Info("report is queued, waiting before poll", "attempt", attempt, "delay", delay)
			waitStart := o.now()
			if err := o.wait.Wait(ctx, attempt); err != nil {
				return nil, err
			}
			o.metrics.ObserveWait(o.now().Sub(waitStart))
		}

		job, err = o.client.Poll(ctx, job)
		if err != nil {
			return nil, err
		}
		logger.Debug("report polled", "attempt", attempt, "state", job.State)
	}
	return job, nil
}

// Ledger writes are best-effort: a ledger failure is logged and never fails
// the run.

func (o *Orchestrator) recordCreated(ctx context.Context, logger *slog.Logger, runID string,
	chunk domain.DateRange, body domain.ReportTemplate, job *domain.ReportJob) string {
	if o.jobs == nil {
		return ""
	}
	name, _ := body[domain.TemplateFieldName].(string)
	rec, err := o.jobs.Create(ctx, &domain.ReportJobRecord{
		RunID:            runID,
		BackendID:        job.ID,
		TemplateName:     name,
		ChunkStart:       chunk.StartTime(),
		ChunkEnd:         chunk.EndTime(),
		State:            job.State,
		BackendCreatedAt: job.CreatedAt,
	})
	if err != nil {
		logger.Warn("ledger: record job creation failed", "error", err)
		return ""
	}
	return rec.ID
}

func (o *Orchestrator) recordReady(ctx context.Context, logger *slog.Logger, recID string, job *domain.ReportJob) {
	if o.jobs == nil || recID == "" {
		return
	}
	loc := job.DownloadLocation
	if err := o.jobs.UpdateState(ctx, recID, domain.JobStateReady, &loc); err != nil {
		logger.Warn("ledger: record ready failed", "error", err)
	}
}

func (o *Orchestrator) recordMerged(ctx context.Context, logger *slog.Logger, recID string, rows int) {
	if o.jobs == nil || recID == "" {
		return
	}
	if err := o.jobs.MarkMerged(ctx, recID, rows); err != nil {
		logger.Warn("ledger: record merge failed", "error", err)
	}
}

func (o *Orchestrator) recordFailed(ctx context.Context, logger *slog.Logger, recID string, cause error) {
	if o.jobs == nil || recID == "" {
		return
	}
	if err := o.jobs.MarkFailed(ctx, recID, cause.Error()); err != nil {
		logger.Warn("ledger: record failure failed", "error", err)
	}
}
