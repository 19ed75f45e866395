package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"searchads-tap/internal/domain"
	"searchads-tap/internal/metrics"
	"searchads-tap/internal/service/extract"
)

type fakeRuns struct {
	last    *extract.RunStatus
	results []extract.Result
	err     error
	calls   int
	fn      func(ctx context.Context)
}

func (f *fakeRuns) Trigger(ctx context.Context) ([]extract.Result, error) {
	f.calls++
	if f.fn != nil {
		f.fn(ctx)
	}
	return f.results, f.err
}

func (f *fakeRuns) LastRun() *extract.RunStatus { return f.last }

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRouter_Metrics(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	m.QuotaCutoff()
	h := NewRouter(m, nil, slog.New(slog.DiscardHandler))

	rec := serve(t, h, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "searchads_report_quota_cutoffs_total 1")

	rec = serve(t, h, http.MethodPost, "/v1/runs")
	assert.Equal(t, http.StatusNotFound, rec.Code, "run endpoints need a trigger")
}

func TestRouter_Healthz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		last *extract.RunStatus
		want string
	}{
		{name: "no runs", want: "ok"},
		{name: "last run ok", last: &extract.RunStatus{Range: "2023-01-01..2023-01-07"}, want: "ok"},
		{name: "last run failed", last: &extract.RunStatus{Error: "boom"}, want: "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := NewRouter(nil, &fakeRuns{last: tt.last}, slog.New(slog.DiscardHandler))
			rec := serve(t, h, http.MethodGet, "/healthz")
			require.Equal(t, http.StatusOK, rec.Code)

			var body healthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Status)
		})
	}
}

func TestRouter_Runs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{name: "success", wantCode: http.StatusOK},
		{name: "already running", err: domain.ErrConflict("extraction run already in progress"), wantCode: http.StatusConflict},
		{name: "backend rejected", err: domain.ErrBackendRejected("poll", 0, "job failed"), wantCode: http.StatusBadGateway},
		{name: "bad range", err: domain.ErrValidation("lookback must be at least 1 day"), wantCode: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			runs := &fakeRuns{results: []extract.Result{{Stream: extract.StreamCampaigns, Rows: 4}}, err: tt.err}
			h := NewRouter(nil, runs, slog.New(slog.DiscardHandler))

			rec := serve(t, h, http.MethodPost, "/v1/runs")
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, 1, runs.calls)
			if tt.err == nil {
				assert.True(t, strings.Contains(rec.Body.String(), `"rows":4`))
			}
		})
	}
}

func TestRouter_LastRun(t *testing.T) {
	t.Parallel()

	runs := &fakeRuns{}
	h := NewRouter(nil, runs, slog.New(slog.DiscardHandler))
	assert.Equal(t, http.StatusNotFound, serve(t, h, http.MethodGet, "/v1/runs/last").Code)

	runs.last = &extract.RunStatus{Range: "2023-01-01..2023-01-07"}
	rec := serve(t, h, http.MethodGet, "/v1/runs/last")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2023-01-01..2023-01-07")
}

func TestRouter_TriggerRateLimited(t *testing.T) {
	t.Parallel()

	runs := &fakeRuns{}
	h := NewRouter(nil, runs, slog.New(slog.DiscardHandler))
	for range triggerLimit.Burst {
		require.Equal(t, http.StatusOK, serve(t, h, http.MethodPost, "/v1/runs").Code)
	}
	rec := serve(t, h, http.MethodPost, "/v1/runs")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, triggerLimit.Burst, runs.calls)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_TriggerSurvivesClientDisconnect(t *testing.T) {
	t.Parallel()

	runErr := make(chan error, 1)
	runs := &fakeRuns{fn: func(ctx context.Context) {
		time.Sleep(300 * time.Millisecond)
		runErr <- ctx.Err()
	}}
	srv := httptest.NewServer(NewRouter(nil, runs, slog.New(slog.DiscardHandler)))
	t.Cleanup(srv.Close)

	client := &http.Client{Timeout: 50 * time.Millisecond}
	resp, err := client.Post(srv.URL+"/v1/runs", "application/json", nil)
	if err == nil {
		_ = resp.Body.Close()
	}
	require.Error(t, err, "client gives up before the run finishes")

	select {
	case err := <-runErr:
		assert.NoError(t, err, "run context is not cancelled by the caller")
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}
}
