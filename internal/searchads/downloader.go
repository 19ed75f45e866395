package searchads

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"searchads-tap/internal/domain"
	"searchads-tap/internal/metrics"
)

var _ domain.ReportDownloader = (*Downloader)(nil)

// Downloader fetches finished reports from their pre-signed location and
// parses the CSV payload into impression-share rows.
type Downloader struct {
	http    *http.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewDownloader creates a Downloader. A nil httpClient gets DefaultTimeout.
func NewDownloader(httpClient *http.Client, m *metrics.Metrics, logger *slog.Logger) *Downloader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Downloader{http: httpClient, metrics: m, logger: logger}
}

// Fetch downloads the payload at location with a plain GET. The location is
// pre-signed, so no credentials are attached.
func (d *Downloader) Fetch(ctx context.Context, location string) ([]byte, error) {
	if location == "" {
		return nil, &domain.TransportError{Op: "fetch", Err: errors.New("empty download location")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, &domain.TransportError{Op: "fetch", Err: fmt.Errorf("build request: %w", err)}
	}

	resp, err := d.http.Do(req)
	if err != nil {
		d.metrics.APIRequest("fetch", "error")
		return nil, &domain.TransportError{Op: "fetch", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	d.metrics.APIRequest("fetch", metrics.StatusClass(resp.StatusCode))

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.TransportError{
			Op:         "fetch",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("download failed: %s", strings.TrimSpace(string(snippet))),
		}
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.TransportError{Op: "fetch", StatusCode: resp.StatusCode, Err: err}
	}
	d.logger.Debug("report downloaded", "bytes", len(payload))
	return payload, nil
}

// Parse reads a CSV payload with a header row. Every row gets its numeric
// columns coerced and joinValue stamped under extractedAt; all other columns
// pass through as strings. One bad row fails the whole payload.
func (d *Downloader) Parse(payload []byte, joinValue string) ([]domain.ReportRow, error) {
	return ParseReport(payload, joinValue)
}

// ParseReport is the stateless implementation behind Downloader.Parse.
func ParseReport(payload []byte, joinValue string) ([]domain.ReportRow, error) {
	r := csv.NewReader(bytes.NewReader(payload))

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return []domain.ReportRow{}, nil
	}
	if err != nil {
		return nil, &domain.MalformedRowError{Line: 0, Err: fmt.Errorf("read header: %w", err)}
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	for _, col := range []string{
		domain.FieldLowImpressionShare,
		domain.FieldHighImpressionShare,
		domain.FieldSearchPopularity,
	} {
		if _, ok := idx[col]; !ok {
			return nil, &domain.MalformedRowError{Line: 0, Field: col, Err: errors.New("missing column")}
		}
	}

	rows := []domain.ReportRow{}
	for line := 1; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &domain.MalformedRowError{Line: line, Err: err}
		}

		row, err := parseRow(header, rec, idx, line)
		if err != nil {
			return nil, err
		}
		row.ExtractedAt = joinValue
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(header, rec []string, idx map[string]int, line int) (domain.ReportRow, error) {
	var row domain.ReportRow
	var err error

	if row.LowImpressionShare, err = parseFloatField(rec, idx, domain.FieldLowImpressionShare, line); err != nil {
		return row, err
	}
	if row.HighImpressionShare, err = parseFloatField(rec, idx, domain.FieldHighImpressionShare, line); err != nil {
		return row, err
	}
	raw := strings.TrimSpace(rec[idx[domain.FieldSearchPopularity]])
	if row.SearchPopularity, err = strconv.ParseInt(raw, 10, 64); err != nil {
		return row, &domain.MalformedRowError{Line: line, Field: domain.FieldSearchPopularity, Value: raw, Err: err}
	}

	row.Fields = make(map[string]string, len(header))
	for i, col := range header {
		switch col {
		case domain.FieldLowImpressionShare, domain.FieldHighImpressionShare,
			domain.FieldSearchPopularity, domain.FieldExtractedAt:
			continue
		}
		row.Fields[col] = rec[i]
	}
	return row, nil
}

func parseFloatField(rec []string, idx map[string]int, field string, line int) (float64, error) {
	raw := strings.TrimSpace(rec[idx[field]])
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &domain.MalformedRowError{Line: line, Field: field, Value: raw, Err: err}
	}
	return v, nil
}
