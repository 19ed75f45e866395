package cli

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"searchads-tap/internal/config"
	"searchads-tap/internal/db"
	"searchads-tap/internal/db/repository"
	"searchads-tap/internal/domain"
	"searchads-tap/internal/metrics"
	"searchads-tap/internal/searchads"
	"searchads-tap/internal/selector"
	"searchads-tap/internal/service/extract"
	"searchads-tap/internal/service/report"
	"searchads-tap/internal/sink"
)

// appContext is resolved once per invocation by the root command and shared
// by the subcommands.
type appContext struct {
	cfg    *config.Config
	logger *slog.Logger
	now    func() time.Time
}

func (a *appContext) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

// runOverrides are per-command adjustments to the environment config.
type runOverrides struct {
	selector      string
	maxChunkDays  int
	dailyJobLimit int
}

// pipeline is everything a sync or schedule run needs.
type pipeline struct {
	service *extract.Service
	metrics *metrics.Metrics
	ledger  *sql.DB // nil when the ledger is disabled
}

func (p *pipeline) Close() error {
	if p.ledger != nil {
		return p.ledger.Close()
	}
	return nil
}

// buildPipeline wires the API client, report engine, optional ledger and
// sinks into an extract.Service.
func (a *appContext) buildPipeline(ctx context.Context, ov runOverrides, stdout io.Writer) (*pipeline, error) {
	cfg := a.cfg
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, domain.ErrValidation("%v", err)
	}

	selectors, err := selector.NewStore(cfg.SelectorDir, a.logger)
	if err != nil {
		return nil, err
	}
	isrName := cfg.Selector
	if ov.selector != "" {
		isrName = ov.selector
	}
	isrTemplate, err := selectors.Get(isrName)
	if err != nil {
		return nil, err
	}
	reportsTemplate, err := selectors.Get(selector.CampaignReports)
	if err != nil {
		return nil, err
	}

	wait, err := report.NewWaitStrategy(cfg.WaitStrategy, cfg.Wait)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	client := searchads.NewClient(searchads.Config{
		BaseURL:      cfg.BaseURL,
		CampaignsURL: cfg.CampaignsURL,
		Headers:      searchads.Headers{AccessToken: cfg.AccessToken, OrgID: cfg.OrgID},
		Timeout:      cfg.Timeout,
		RateLimit:    rate.Limit(cfg.RateLimitRPS),
		Burst:        cfg.RateLimitBurst,
	}, a.logger, searchads.WithClientMetrics(m))
	downloader := searchads.NewDownloader(&http.Client{Timeout: cfg.Timeout}, m, a.logger)

	p := &pipeline{metrics: m}
	opts := []report.Option{report.WithWaitStrategy(wait), report.WithMetrics(m)}
	if cfg.LedgerDBPath != "" {
		ledger, err := db.OpenLedger(ctx, cfg.LedgerDBPath)
		if err != nil {
			return nil, err
		}
		p.ledger = ledger
		opts = append(opts, report.WithLedger(repository.NewReportJobRepo(ledger)))
	}
	orchestrator := report.NewOrchestrator(client, downloader, a.logger, opts...)

	settings := extract.Settings{
		MaxChunkDays:            cfg.MaxChunkDays,
		DailyJobLimit:           cfg.DailyJobLimit,
		ImpressionShareTemplate: isrTemplate,
		CampaignReportTemplate:  reportsTemplate,
	}
	if ov.maxChunkDays > 0 {
		settings.MaxChunkDays = ov.maxChunkDays
	}
	if ov.dailyJobLimit >= 0 {
		settings.DailyJobLimit = ov.dailyJobLimit
	}

	p.service = extract.NewService(orchestrator, client, a.sinkFactory(stdout), settings, a.logger)
	return p, nil
}

// sinkFactory opens cfg.Sink for each stream.
func (a *appContext) sinkFactory(stdout io.Writer) extract.SinkFactory {
	cfg := a.cfg
	opts := sink.Options{
		Stdout:                stdout,
		Now:                   a.clock,
		GCSKeyFile:            cfg.GCSKeyFile,
		AzureConnectionString: cfg.AzureConnectionString,
	}
	if cfg.HasS3Config() {
		opts.S3.KeyID = *cfg.S3KeyID
		opts.S3.Secret = *cfg.S3Secret
	}
	if cfg.S3Endpoint != nil {
		opts.S3.Endpoint = *cfg.S3Endpoint
	}
	if cfg.S3Region != nil {
		opts.S3.Region = *cfg.S3Region
	}

	return func(ctx context.Context, stream string) (domain.RowSink, error) {
		o := opts
		o.Stream = stream
		return sink.Open(ctx, cfg.Sink, o)
	}
}

// checkSinkForStreams rejects a destination that several streams would
// overwrite.
func (a *appContext) checkSinkForStreams(streams []string) error {
	target, err := sink.ParseTarget(a.cfg.Sink)
	if err != nil {
		return err
	}
	if len(streams) > 1 && !target.Shareable() {
		return domain.ErrValidation("sink %q is written by %d streams; add a {stream} placeholder", a.cfg.Sink, len(streams))
	}
	return nil
}
