// Package extract drives the extraction streams end to end: it pulls records
// from the search ads API (asynchronous impression-share reports, campaign
// listings, campaign-level reports) and hands them to row sinks.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"searchads-tap/internal/campaign"
	"searchads-tap/internal/domain"
)

// Stream names. They double as the {stream} placeholder in sink targets.
const (
	StreamImpressionShare = "impression_share"
	StreamCampaigns       = "campaigns"
	StreamCampaignReports = "campaign_reports"
)

// Streams lists every stream in the order `all` runs them.
var Streams = []string{StreamImpressionShare, StreamCampaigns, StreamCampaignReports}

// ReportRunner produces impression-share rows for a date range.
// Implemented by report.Orchestrator.
type ReportRunner interface {
	Run(ctx context.Context, dr domain.DateRange, tmpl domain.ReportTemplate,
		maxChunkDays, dailyJobLimit int) ([]domain.ReportRow, error)
}

// SinkFactory opens the sink a stream writes to.
type SinkFactory func(ctx context.Context, stream string) (domain.RowSink, error)

// Settings carries the per-run knobs of the report streams.
type Settings struct {
	MaxChunkDays            int
	DailyJobLimit           int
	ImpressionShareTemplate domain.ReportTemplate
	CampaignReportTemplate  domain.ReportTemplate
}

// Result summarises one stream of a run.
type Result struct {
	Stream string `json:"stream"`
	Rows   int    `json:"rows"`
}

// Service runs extraction streams.
type Service struct {
	reports   ReportRunner
	campaigns domain.CampaignAPI
	open      SinkFactory
	settings  Settings
	logger    *slog.Logger

	emitMu sync.Mutex // one sink open at a time
}

// NewService creates a new Service.
func NewService(
	reports ReportRunner,
	campaigns domain.CampaignAPI,
	open SinkFactory,
	settings Settings,
	logger *slog.Logger,
) *Service {
	return &Service{
		reports:   reports,
		campaigns: campaigns,
		open:      open,
		settings:  settings,
		logger:    logger,
	}
}

// Run executes the named streams concurrently. Each stream owns its sink,
// but sinks are written one at a time so streams sharing a destination
// (stdout, a DuckDB file) never interleave. The first failure cancels the
// others.
func (s *Service) Run(ctx context.Context, streams []string, dr domain.DateRange) ([]Result, error) {
	for _, name := range streams {
		if !slices.Contains(Streams, name) {
			return nil, domain.ErrValidation("unknown stream %q (want one of %v)", name, Streams)
		}
	}

	results := make([]Result, len(streams))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range streams {
		g.Go(func() error {
			n, err := s.runStream(gctx, name, dr)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			results[i] = Result{Stream: name, Rows: n}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) runStream(ctx context.Context, name string, dr domain.DateRange) (int, error) {
	switch name {
	case StreamImpressionShare:
		return s.ImpressionShare(ctx, dr)
	case StreamCampaigns:
		return s.Campaigns(ctx)
	default:
		return s.CampaignReports(ctx, dr)
	}
}

// ImpressionShare runs the asynchronous report engine over dr and writes the
// merged rows. A quota cutoff still writes the partial result.
func (s *Service) ImpressionShare(ctx context.Context, dr domain.DateRange) (int, error) {
	rows, err := s.reports.Run(ctx, dr, s.settings.ImpressionShareTemplate,
		s.settings.MaxChunkDays, s.settings.DailyJobLimit)
	if err != nil {
		return 0, err
	}
	records := make([]any, len(rows))
	for i, r := range rows {
		records[i] = r
	}
	return len(records), s.emit(ctx, StreamImpressionShare, records)
}

// Campaigns lists every campaign and writes the flattened records.
func (s *Service) Campaigns(ctx context.Context) (int, error) {
	recs, err := s.campaigns.ListCampaigns(ctx)
	if err != nil {
		return 0, err
	}
	records := make([]any, 0, len(recs))
	for i, rec := range recs {
		flat, err := campaign.Flatten(rec)
		if err != nil {
			return 0, fmt.Errorf("campaign %d: %w", i, err)
		}
		records = append(records, flat)
	}
	return len(records), s.emit(ctx, StreamCampaigns, records)
}

// CampaignReports fetches the synchronous campaign-level report for dr and
// writes one flattened row per campaign and granularity entry.
func (s *Service) CampaignReports(ctx context.Context, dr domain.DateRange) (int, error) {
	tmpl := s.settings.CampaignReportTemplate.Clone()
	if tmpl == nil {
		tmpl = domain.ReportTemplate{}
	}
	tmpl[domain.TemplateFieldStartTime] = dr.StartTime()
	tmpl[domain.TemplateFieldEndTime] = dr.EndTime()

	rows, err := s.campaigns.CampaignReport(ctx, tmpl)
	if err != nil {
		return 0, err
	}
	expanded, err := campaign.ExtendedSpendRows(rows)
	if err != nil {
		return 0, err
	}
	records := make([]any, 0, len(expanded))
	for _, row := range expanded {
		flat, err := campaign.FlattenSpendRow(row)
		if err != nil {
			return 0, err
		}
		records = append(records, flat)
	}
	return len(records), s.emit(ctx, StreamCampaignReports, records)
}

// emit opens the stream's sink, writes records and closes it. The sink is
// closed even when the write fails.
func (s *Service) emit(ctx context.Context, stream string, records []any) (err error) {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	sink, err := s.open(ctx, stream)
	if err != nil {
		return fmt.Errorf("open sink: %w", err)
	}
	defer func() {
		if cerr := sink.Close(ctx); cerr != nil && err == nil {
			err = fmt.Errorf("close sink: %w", cerr)
		}
	}()

	if err := sink.Write(ctx, records); err != nil {
		return fmt.Errorf("write sink: %w", err)
	}
	s.logger.Info("stream written", "stream", stream, "records", len(records))
	return nil
}
