// Package searchads talks to the search ads reporting API: asynchronous
// custom-report jobs, report downloads and the synchronous campaign endpoints.
package searchads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"searchads-tap/internal/domain"
	"searchads-tap/internal/metrics"
)

// Default endpoints.
const (
	DefaultBaseURL      = "https://api.searchads.apple.com/api/v4"
	DefaultCampaignsURL = "https://api.searchads.apple.com/api/v5"
	DefaultTimeout      = 60 * time.Second
)

// maxErrorBody bounds how much of an unparseable error response is quoted.
const maxErrorBody = 512

var _ domain.ReportJobClient = (*Client)(nil)

// Config configures a Client.
type Config struct {
	BaseURL      string // custom-reports API root (v4)
	CampaignsURL string // campaigns and campaign-level reports root (v5)
	Headers      Headers
	Timeout      time.Duration
	RateLimit    rate.Limit // requests per second; 0 disables throttling
	Burst        int
}

// Client implements domain.ReportJobClient over HTTP.
type Client struct {
	http         *http.Client
	baseURL      string
	campaignsURL string
	headers      Headers
	limiter      *rate.Limiter
	metrics      *metrics.Metrics
	logger       *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithClientMetrics records outbound request counts.
func WithClientMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config, logger *slog.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CampaignsURL == "" {
		cfg.CampaignsURL = DefaultCampaignsURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		http:         &http.Client{Timeout: cfg.Timeout},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		campaignsURL: strings.TrimRight(cfg.CampaignsURL, "/"),
		headers:      cfg.Headers,
		logger:       logger,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// envelope is the common response wrapper: {"data": ..., "error": ...}.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error json.RawMessage `json:"error"`
}

type apiErrors struct {
	Errors []struct {
		MessageCode string `json:"messageCode"`
		Message     string `json:"message"`
		Field       string `json:"field"`
	} `json:"errors"`
}

// reportID accepts the job id as either a JSON number or a string.
type reportID string

func (r *reportID) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*r = reportID(n.String())
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("report id: %w", err)
	}
	*r = reportID(s)
	return nil
}

type reportData struct {
	ID           reportID `json:"id"`
	State        string   `json:"state"`
	CreationTime string   `json:"creationTime"`
	DownloadURI  string   `json:"downloadUri"`
}

// Create submits a custom-report job for tmpl.
func (c *Client) Create(ctx context.Context, tmpl domain.ReportTemplate) (*domain.ReportJob, error) {
	var data reportData
	if err := c.do(ctx, "create", http.MethodPost, c.baseURL+"/custom-reports", tmpl, &data); err != nil {
		return nil, err
	}
	if data.ID == "" {
		return nil, domain.ErrBackendRejected("create", 0, "response carries no report id")
	}

	state := domain.JobStateRequested
	if data.State == string(domain.JobStateQueued) {
		state = domain.JobStateQueued
	}
	c.logger.Debug("custom report created", "report_id", data.ID, "backend_state", data.State)
	return &domain.ReportJob{
		ID:        string(data.ID),
		State:     state,
		CreatedAt: data.CreationTime,
	}, nil
}

// Poll fetches job metadata once. A READY job is returned as is.
func (c *Client) Poll(ctx context.Context, job *domain.ReportJob) (*domain.ReportJob, error) {
	if job == nil {
		return nil, domain.ErrValidation("poll: job is nil")
	}
	out := *job
	if job.State == domain.JobStateReady {
		return &out, nil
	}

	var data reportData
	u := c.baseURL + "/custom-reports/" + url.PathEscape(job.ID)
	if err := c.do(ctx, "poll", http.MethodGet, u, nil, &data); err != nil {
		return nil, err
	}

	switch {
	case data.DownloadURI != "":
		out.State = domain.JobStateReady
		out.DownloadLocation = data.DownloadURI
	case data.State == string(domain.JobStateFailed):
		out.State = domain.JobStateFailed
	default:
		out.State = domain.JobStateQueued
	}
	if out.CreatedAt == "" {
		out.CreatedAt = data.CreationTime
	}
	return &out, nil
}

// ListCampaigns returns every campaign of the organisation as raw records.
func (c *Client) ListCampaigns(ctx context.Context) ([]domain.Record, error) {
	var campaigns []domain.Record
	if err := c.do(ctx, "campaigns", http.MethodGet, c.campaignsURL+"/campaigns", nil, &campaigns); err != nil {
		return nil, err
	}
	c.logger.Info("synced campaigns", "count", len(campaigns))
	return campaigns, nil
}

// CampaignReport runs a synchronous campaign-level report and returns its rows.
func (c *Client) CampaignReport(ctx context.Context, tmpl domain.ReportTemplate) ([]domain.Record, error) {
	var data struct {
		ReportingDataResponse struct {
			Row []domain.Record `json:"row"`
		} `json:"reportingDataResponse"`
	}
	if err := c.do(ctx, "campaign_report", http.MethodPost, c.campaignsURL+"/reports/campaigns", tmpl, &data); err != nil {
		return nil, err
	}
	return data.ReportingDataResponse.Row, nil
}

// do performs one JSON request and decodes the envelope's data into out.
func (c *Client) do(ctx context.Context, op, method, target string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &domain.TransportError{Op: op, Err: err}
		}
	}

	var reader io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(bs)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.headers.Apply(req.Header)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.APIRequest(op, "error")
		c.logger.Warn("search ads request failed", "op", op, "error", err)
		return &domain.TransportError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	c.metrics.APIRequest(op, metrics.StatusClass(resp.StatusCode))
	if err != nil {
		return &domain.TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	c.logger.Debug("search ads response",
		"op", op,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	var env envelope
	decodeErr := decodeJSON(raw, &env)

	if resp.StatusCode/100 != 2 {
		msg := ""
		if decodeErr == nil {
			msg = describeAPIError(env.Error)
		}
		if msg == "" {
			msg = truncate(strings.TrimSpace(string(raw)), maxErrorBody)
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return domain.ErrBackendRejected(op, resp.StatusCode, "%s", msg)
	}
	if decodeErr != nil {
		return domain.ErrBackendRejected(op, resp.StatusCode, "decode response: %v", decodeErr)
	}
	if msg := describeAPIError(env.Error); msg != "" {
		return domain.ErrBackendRejected(op, resp.StatusCode, "%s", msg)
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := decodeJSON(env.Data, out); err != nil {
		return domain.ErrBackendRejected(op, resp.StatusCode, "decode data: %v", err)
	}
	return nil
}

// decodeJSON decodes with UseNumber so ids and amounts keep their exact text.
func decodeJSON(raw []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return dec.Decode(out)
}

// describeAPIError renders the envelope's error field, or "" when the field
// is absent or empty.
func describeAPIError(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	switch s {
	case "", "null", "false", `""`, "{}", "[]":
		return ""
	}

	var ae apiErrors
	if err := json.Unmarshal(raw, &ae); err == nil && len(ae.Errors) > 0 {
		parts := make([]string, 0, len(ae.Errors))
		for _, e := range ae.Errors {
			p := e.Message
			if e.MessageCode != "" {
				p = e.MessageCode + ": " + p
			}
			if e.Field != "" {
				p += " (" + e.Field + ")"
			}
			parts = append(parts, p)
		}
		return strings.Join(parts, "; ")
	}

	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return truncate(s, maxErrorBody)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
