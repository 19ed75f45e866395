package searchads

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"searchads-tap/internal/domain"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		BaseURL:      srv.URL + "/api/v4",
		CampaignsURL: srv.URL + "/api/v5",
		Headers:      Headers{AccessToken: "tok", OrgID: "42"},
	}, slog.New(slog.DiscardHandler))
}

func TestClient_Create(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		status    int
		body      string
		wantState domain.JobState
		wantErr   bool
	}{
		{
			name:      "queued",
			status:    http.StatusOK,
			body:      `{"data":{"id":123456,"state":"QUEUED","creationTime":"2023-01-31T10:00:00.000"},"error":null}`,
			wantState: domain.JobStateQueued,
		},
		{
			name:      "completed maps to requested",
			status:    http.StatusOK,
			body:      `{"data":{"id":"123456","state":"COMPLETED","creationTime":"2023-01-31T10:00:00.000"},"error":null}`,
			wantState: domain.JobStateRequested,
		},
		{
			name:    "explicit error field",
			status:  http.StatusOK,
			body:    `{"data":null,"error":{"errors":[{"messageCode":"INVALID_DATE","message":"bad date","field":"startTime"}]}}`,
			wantErr: true,
		},
		{
			name:    "non-2xx",
			status:  http.StatusBadRequest,
			body:    `{"data":null,"error":{"errors":[{"messageCode":"INVALID_INPUT","message":"nope"}]}}`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var got map[string]any
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/api/v4/custom-reports", r.URL.Path)
				assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
				assert.Equal(t, "orgId=42", r.Header.Get("X-AP-Context"))
				b, _ := io.ReadAll(r.Body)
				_ = json.Unmarshal(b, &got)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))

			job, err := c.Create(context.Background(), domain.ReportTemplate{"name": "n", "startTime": "2023-01-01"})
			if tc.wantErr {
				var rejected *domain.BackendRejectedError
				require.ErrorAs(t, err, &rejected)
				assert.Equal(t, "create", rejected.Op)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "123456", job.ID)
			assert.Equal(t, tc.wantState, job.State)
			assert.Equal(t, "2023-01-31T10:00:00.000", job.CreatedAt)
			assert.Equal(t, "2023-01-01", got["startTime"])
		})
	}
}

func TestClient_CreateTransportError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url}, slog.New(slog.DiscardHandler))
	_, err := c.Create(context.Background(), domain.ReportTemplate{})

	var transport *domain.TransportError
	require.ErrorAs(t, err, &transport)
	assert.Equal(t, "create", transport.Op)
}

func TestClient_Poll(t *testing.T) {
	t.Parallel()

	t.Run("download uri makes job ready", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/api/v4/custom-reports/7", r.URL.Path)
			_, _ = w.Write([]byte(`{"data":{"id":7,"downloadUri":"https://files.example/r.csv"},"error":null}`))
		}))

		job, err := c.Poll(context.Background(), &domain.ReportJob{ID: "7", State: domain.JobStateQueued, CreatedAt: "t0"})
		require.NoError(t, err)
		assert.Equal(t, domain.JobStateReady, job.State)
		assert.Equal(t, "https://files.example/r.csv", job.DownloadLocation)
		assert.Equal(t, "t0", job.CreatedAt)
	})

	t.Run("empty download uri stays queued", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"id":7,"downloadUri":""},"error":null}`))
		}))

		in := &domain.ReportJob{ID: "7", State: domain.JobStateRequested}
		job, err := c.Poll(context.Background(), in)
		require.NoError(t, err)
		assert.Equal(t, domain.JobStateQueued, job.State)
		assert.Empty(t, job.DownloadLocation)
		assert.Equal(t, domain.JobStateRequested, in.State, "input job must not be mutated")
	})

	t.Run("backend failed state", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"data":{"id":7,"state":"FAILED"},"error":null}`))
		}))

		job, err := c.Poll(context.Background(), &domain.ReportJob{ID: "7", State: domain.JobStateQueued})
		require.NoError(t, err)
		assert.Equal(t, domain.JobStateFailed, job.State)
	})

	t.Run("error status", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`upstream exploded`))
		}))

		_, err := c.Poll(context.Background(), &domain.ReportJob{ID: "7", State: domain.JobStateQueued})
		var rejected *domain.BackendRejectedError
		require.ErrorAs(t, err, &rejected)
		assert.Equal(t, http.StatusInternalServerError, rejected.StatusCode)
		assert.Contains(t, rejected.Message, "upstream exploded")
	})
}

func TestClient_PollReadyIsIdempotent(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))

	ready := &domain.ReportJob{ID: "7", State: domain.JobStateReady, CreatedAt: "t0", DownloadLocation: "https://files.example/r.csv"}
	for range 3 {
		job, err := c.Poll(context.Background(), ready)
		require.NoError(t, err)
		assert.Equal(t, *ready, *job)
	}
	assert.Zero(t, calls.Load())
}

func TestClient_ListCampaigns(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/campaigns", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[{"id":1,"name":"a"},{"id":2,"name":"b"}],"error":null}`))
	}))

	got, err := c.ListCampaigns(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0]["name"])
	assert.Equal(t, json.Number("2"), got[1]["id"])
}

func TestClient_CampaignReport(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v5/reports/campaigns", r.URL.Path)
		_, _ = w.Write([]byte(`{"data":{"reportingDataResponse":{"row":[{"metadata":{"campaignId":9},"granularity":[]}]}},"error":null}`))
	}))

	rows, err := c.CampaignReport(context.Background(), domain.ReportTemplate{"startTime": "2023-01-01"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0], "metadata")
}

func TestDescribeAPIError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want string
	}{
		{"", ""},
		{"null", ""},
		{"{}", ""},
		{`"quota exceeded"`, "quota exceeded"},
		{`{"errors":[{"messageCode":"X","message":"y","field":"z"}]}`, "X: y (z)"},
		{`{"unexpected":true}`, `{"unexpected":true}`},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, describeAPIError(json.RawMessage(tc.raw)), tc.raw)
	}
}

func TestHeaders_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, Headers{AccessToken: "a", OrgID: "b"}.Validate())

	var ve *domain.ValidationError
	assert.True(t, errors.As(Headers{OrgID: "b"}.Validate(), &ve))
	assert.True(t, errors.As(Headers{AccessToken: "a"}.Validate(), &ve))
}
