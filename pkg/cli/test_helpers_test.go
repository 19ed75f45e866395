package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// envKeys are cleared for every CLI test so the host environment never leaks in.
var envKeys = []string{
	"SEARCHADS_BASE_URL", "SEARCHADS_CAMPAIGNS_URL", "SEARCHADS_ACCESS_TOKEN", "SEARCHADS_ORG_ID",
	"SEARCHADS_TIMEOUT", "SEARCHADS_RATE_LIMIT_RPS", "SEARCHADS_RATE_LIMIT_BURST",
	"REPORT_MAX_CHUNK_DAYS", "REPORT_DAILY_JOB_LIMIT", "REPORT_WAIT", "REPORT_WAIT_STRATEGY",
	"REPORT_SELECTOR", "SELECTOR_DIR", "LEDGER_DB_PATH", "SINK",
	"KEY_ID", "SECRET", "ENDPOINT", "REGION", "GCS_KEY_FILE", "AZURE_STORAGE_CONNECTION_STRING",
	"SCHEDULE", "SYNC_LOOKBACK_DAYS", "METRICS_ADDR", "LOG_LEVEL", "LOG_FORMAT", "SEARCHADS_OUTPUT",
}

// isolate gives the test an empty environment and a private HOME.
func isolate(t *testing.T) string {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

// runCLI executes the root command with args and returns stdout and stderr.
func runCLI(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// requestRecorder is a thread-safe recorder for HTTP requests received by httptest servers.
type requestRecorder struct {
	mu       sync.Mutex
	requests []*http.Request
}

func (r *requestRecorder) record(req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req.Clone(context.Background()))
}

func (r *requestRecorder) count(method, prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, req := range r.requests {
		if req.Method == method && strings.HasPrefix(req.URL.Path, prefix) {
			n++
		}
	}
	return n
}

func (r *requestRecorder) last() *http.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.requests) == 0 {
		return nil
	}
	return r.requests[len(r.requests)-1]
}

// newFakeAPI serves the custom-report, download and campaign endpoints.
// Created jobs are READY on their first poll.
func newFakeAPI(t *testing.T) (*httptest.Server, *requestRecorder) {
	t.Helper()
	rec := &requestRecorder{}
	mux := http.NewServeMux()
	var srv *httptest.Server

	var mu sync.Mutex
	nextID := 0
	mux.HandleFunc("POST /v4/custom-reports", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		mu.Lock()
		nextID++
		id := nextID
		mu.Unlock()
		fmt.Fprintf(w, `{"data":{"id":%d,"state":"PENDING","creationTime":"2023-05-01T10:00:00.000"},"error":null}`, id)
	})
	mux.HandleFunc("GET /v4/custom-reports/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		id := r.PathValue("id")
		fmt.Fprintf(w, `{"data":{"id":%s,"state":"COMPLETED","downloadUri":"%s/dl/%s"}}`, id, srv.URL, id)
	})
	mux.HandleFunc("GET /dl/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		_, _ = io.WriteString(w, "lowImpressionShare,highImpressionShare,searchPopularity,adamId\n0.1,0.2,3,"+r.PathValue("id")+"\n")
	})
	mux.HandleFunc("GET /v5/campaigns", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		_, _ = io.WriteString(w, `{"data":[{"id":1,"name":"brand","budgetAmount":{"currency":"USD","amount":"5"}}]}`)
	})
	mux.HandleFunc("POST /v5/reports/campaigns", func(w http.ResponseWriter, r *http.Request) {
		rec.record(r)
		_, _ = io.WriteString(w, `{"data":{"reportingDataResponse":{"row":[{"metadata":{"campaignId":1},`+
			`"granularity":[{"date":"2023-01-01","localSpend":{"amount":"1","currency":"USD"}},{"date":"2023-01-02"}]}]}}}`)
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, rec
}

// useFakeAPI points the environment at srv with valid credentials.
func useFakeAPI(t *testing.T, srv *httptest.Server) {
	t.Helper()
	t.Setenv("SEARCHADS_BASE_URL", srv.URL+"/v4")
	t.Setenv("SEARCHADS_CAMPAIGNS_URL", srv.URL+"/v5")
	t.Setenv("SEARCHADS_ACCESS_TOKEN", "token-from-env")
	t.Setenv("SEARCHADS_ORG_ID", "111")
	t.Setenv("SEARCHADS_RATE_LIMIT_RPS", "0")
	t.Setenv("LOG_LEVEL", "error")
}
