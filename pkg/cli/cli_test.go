package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"searchads-tap/internal/domain"
)

func readJSONLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestVersion(t *testing.T) {
	isolate(t)

	out, _, err := runCLI(t, "version", "-o", "json")
	require.NoError(t, err)
	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "dev", v["version"])

	out, _, err = runCLI(t, "version", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "searchads version dev")
}

func TestOutputDefaultsToJSONWhenPiped(t *testing.T) {
	isolate(t)

	out, _, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.True(t, json.Valid([]byte(out)), out)
}

func TestUnsupportedOutput(t *testing.T) {
	isolate(t)

	_, _, err := runCLI(t, "version", "-o", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestChunks(t *testing.T) {
	isolate(t)

	out, _, err := runCLI(t, "chunks", "--start", "2023-01-01", "--end", "2023-04-15", "-o", "json")
	require.NoError(t, err)

	var chunks []chunkView
	require.NoError(t, json.Unmarshal([]byte(out), &chunks))
	require.Len(t, chunks, 4)
	assert.Equal(t, chunkView{Start: "2023-01-01", End: "2023-01-30", Days: 30,
		Name: "impression_share_reports_2023-01-01_2023-01-30"}, chunks[0])
	assert.Equal(t, "2023-04-01", chunks[3].Start)
	assert.Equal(t, "2023-04-15", chunks[3].End)

	out, _, err = runCLI(t, "chunks", "--start", "2023-01-01", "--end", "2023-01-10", "--max-chunk-days", "7", "-o", "table")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "START")
	assert.Contains(t, lines[2], "2023-01-08")
}

func TestChunks_MaxChunkDaysFromEnv(t *testing.T) {
	isolate(t)
	t.Setenv("REPORT_MAX_CHUNK_DAYS", "10")

	out, _, err := runCLI(t, "chunks", "--start", "2023-01-01", "--end", "2023-01-30", "-o", "json")
	require.NoError(t, err)
	var chunks []chunkView
	require.NoError(t, json.Unmarshal([]byte(out), &chunks))
	assert.Len(t, chunks, 3)
}

func TestChunks_InvalidRange(t *testing.T) {
	isolate(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "start after end", args: []string{"--start", "2023-02-01", "--end", "2023-01-01"}},
		{name: "only start", args: []string{"--start", "2023-02-01"}},
		{name: "zero window", args: []string{"--start", "2023-01-01", "--end", "2023-01-02", "--max-chunk-days", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCLI(t, append([]string{"chunks"}, tt.args...)...)
			var ir *domain.InvalidRangeError
			require.ErrorAs(t, err, &ir)
			assert.Equal(t, "invalid_range", errorKind(err))
		})
	}

	_, _, err := runCLI(t, "chunks", "--start", "01/02/2023", "--end", "2023-01-03")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YYYY-MM-DD")
}

func TestSync_Campaigns(t *testing.T) {
	isolate(t)
	srv, rec := newFakeAPI(t)
	useFakeAPI(t, srv)

	dir := t.TempDir()
	target := filepath.Join(dir, "{stream}.jsonl")
	out, _, err := runCLI(t, "sync", "campaigns", "--sink", target, "-o", "json")
	require.NoError(t, err)

	var summary struct {
		Results []struct {
			Stream string `json:"stream"`
			Rows   int    `json:"rows"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	require.Len(t, summary.Results, 1)
	assert.Equal(t, 1, summary.Results[0].Rows)

	rows := readJSONLines(t, filepath.Join(dir, "campaigns.jsonl"))
	require.Len(t, rows, 1)
	assert.Equal(t, "USD", rows[0]["budgetAmount_currency"])

	req := rec.last()
	require.NotNil(t, req)
	assert.Equal(t, "Bearer token-from-env", req.Header.Get("Authorization"))
	assert.Equal(t, "orgId=111", req.Header.Get("X-AP-Context"))
}

func TestSync_ImpressionShareWithLedger(t *testing.T) {
	isolate(t)
	srv, rec := newFakeAPI(t)
	useFakeAPI(t, srv)

	dir := t.TempDir()
	sinkPath := filepath.Join(dir, "isr.jsonl")
	ledger := filepath.Join(dir, "ledger.db")

	_, _, err := runCLI(t, "sync", "impression-share",
		"--start", "2023-01-01", "--end", "2023-02-14",
		"--sink", sinkPath, "--ledger", ledger)
	require.NoError(t, err)

	assert.Equal(t, 2, rec.count("POST", "/v4/custom-reports"))
	assert.Equal(t, 2, rec.count("GET", "/v4/custom-reports/"))
	assert.Equal(t, 2, rec.count("GET", "/dl/"))

	rows := readJSONLines(t, sinkPath)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, "2023-05-01T10:00:00.000", r["extractedAt"])
		assert.InDelta(t, 0.1, r["lowImpressionShare"], 1e-9)
		assert.InDelta(t, 3, r["searchPopularity"], 0)
	}

	out, _, err := runCLI(t, "jobs", "--ledger", ledger, "-o", "json")
	require.NoError(t, err)
	var listing struct {
		Jobs           []jobView `json:"jobs"`
		CreatedLast24h int       `json:"created_last_24h"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &listing))
	require.Len(t, listing.Jobs, 2)
	assert.Equal(t, 2, listing.CreatedLast24h)
	for _, j := range listing.Jobs {
		assert.Equal(t, "READY", j.State)
		assert.Equal(t, 1, j.RowCount)
		assert.NotNil(t, j.MergedAt)
	}
	assert.Equal(t, listing.Jobs[0].RunID, listing.Jobs[1].RunID)
}

func TestSync_QuotaCutoffIsNotAnError(t *testing.T) {
	isolate(t)
	srv, rec := newFakeAPI(t)
	useFakeAPI(t, srv)

	sinkPath := filepath.Join(t.TempDir(), "isr.jsonl")
	_, _, err := runCLI(t, "sync", "impression-share",
		"--start", "2023-01-01", "--end", "2023-01-05", "--max-chunk-days", "1",
		"--daily-job-limit", "1", "--sink", sinkPath)
	require.NoError(t, err)

	assert.Equal(t, 2, rec.count("POST", "/v4/custom-reports"), "limit 1 admits two creations")
	assert.Len(t, readJSONLines(t, sinkPath), 2)
}

func TestSync_All(t *testing.T) {
	isolate(t)
	srv, _ := newFakeAPI(t)
	useFakeAPI(t, srv)

	dir := t.TempDir()
	_, _, err := runCLI(t, "sync", "all", "--start", "2023-01-01", "--end", "2023-01-02",
		"--sink", filepath.Join(dir, "{stream}.jsonl"))
	require.NoError(t, err)

	assert.Len(t, readJSONLines(t, filepath.Join(dir, "impression_share.jsonl")), 1)
	assert.Len(t, readJSONLines(t, filepath.Join(dir, "campaigns.jsonl")), 1)
	assert.Len(t, readJSONLines(t, filepath.Join(dir, "campaign_reports.jsonl")), 2)
}

func TestSync_Errors(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		isolate(t)
		_, _, err := runCLI(t, "sync", "campaigns")
		var ve *domain.ValidationError
		require.ErrorAs(t, err, &ve)
	})

	t.Run("shared file for several streams", func(t *testing.T) {
		isolate(t)
		srv, _ := newFakeAPI(t)
		useFakeAPI(t, srv)
		_, _, err := runCLI(t, "sync", "all", "--sink", filepath.Join(t.TempDir(), "out.jsonl"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "{stream}")
	})

	t.Run("unknown selector", func(t *testing.T) {
		isolate(t)
		srv, _ := newFakeAPI(t)
		useFakeAPI(t, srv)
		_, _, err := runCLI(t, "sync", "impression-share", "--selector", "nope")
		var nf *domain.NotFoundError
		require.ErrorAs(t, err, &nf)
	})

	t.Run("jobs without ledger", func(t *testing.T) {
		isolate(t)
		_, _, err := runCLI(t, "jobs")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no ledger configured")
	})
}

func TestProfilePrecedence(t *testing.T) {
	isolate(t)
	srv, rec := newFakeAPI(t)
	useFakeAPI(t, srv)
	t.Setenv("SEARCHADS_ORG_ID", "")

	_, _, err := runCLI(t, "config", "set-profile", "--name", "default", "--org-id", "222", "--access-token", "profile-token")
	require.NoError(t, err)
	sink := filepath.Join(t.TempDir(), "{stream}.jsonl")

	// Org id comes from the profile, token from the environment.
	_, _, err = runCLI(t, "sync", "campaigns", "--sink", sink)
	require.NoError(t, err)
	assert.Equal(t, "orgId=222", rec.last().Header.Get("X-AP-Context"))
	assert.Equal(t, "Bearer token-from-env", rec.last().Header.Get("Authorization"))

	// Flag beats everything.
	_, _, err = runCLI(t, "sync", "campaigns", "--sink", sink, "--org-id", "333")
	require.NoError(t, err)
	assert.Equal(t, "orgId=333", rec.last().Header.Get("X-AP-Context"))
}

func TestConfigCommands(t *testing.T) {
	home := isolate(t)

	_, _, err := runCLI(t, "config", "set-profile", "--name", "acme",
		"--access-token", "abcdefghijklmnop", "--org-id", "42", "--sink", "s3://lake/{stream}.jsonl")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(home, ".searchads", "config.yaml"))

	out, _, err := runCLI(t, "config", "show", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "abcd****mnop")
	assert.NotContains(t, out, "abcdefghijklmnop")

	out, _, err = runCLI(t, "config", "show", "--reveal", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "abcdefghijklmnop")

	_, _, err = runCLI(t, "config", "use-profile", "acme")
	require.NoError(t, err)
	cfg, err := LoadUserConfig()
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.CurrentProfile)
	assert.Equal(t, "42", cfg.ActiveProfile("").OrgID)

	_, _, err = runCLI(t, "config", "use-profile", "missing")
	require.Error(t, err)

	_, _, err = runCLI(t, "config", "set-profile", "--name", "x", "--default-output", "xml")
	require.Error(t, err)
}

func TestSelectors(t *testing.T) {
	isolate(t)

	out, _, err := runCLI(t, "selectors", "-o", "json")
	require.NoError(t, err)
	var names []string
	require.NoError(t, json.Unmarshal([]byte(out), &names))
	assert.Contains(t, names, "impression_share_selector")
	assert.Contains(t, names, "reports_selector")

	out, _, err = runCLI(t, "selectors", "show", "reports_selector")
	require.NoError(t, err)
	assert.Contains(t, out, `"granularity": "DAILY"`)
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{domain.ErrInvalidRange("x"), "invalid_range"},
		{domain.ErrValidation("x"), "validation"},
		{&domain.TransportError{Op: "fetch", Err: errors.New("x")}, "transport"},
		{domain.ErrBackendRejected("poll", 0, "x"), "backend_rejected"},
		{&domain.MalformedRowError{Line: 1, Err: errors.New("x")}, "malformed_row"},
		{domain.ErrNotFound("x"), "not_found"},
		{errors.New("x"), "internal"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, errorKind(tc.err))
	}
}

func TestPrintTable(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	printTable(&b, []string{"name", "rows"}, [][]string{{"campaigns", "3"}, {"x", "10"}})
	lines := strings.Split(strings.TrimRight(b.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "NAME       ROWS", lines[0])
	assert.Equal(t, "campaigns  3", lines[1])
	assert.Equal(t, "x          10", lines[2])

	b.Reset()
	printTable(&b, nil, [][]string{{"a"}})
	assert.Empty(t, b.String())
}

func TestMaskSecret(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", maskSecret(""))
	assert.Equal(t, "****", maskSecret("short"))
	assert.Equal(t, "abcd****mnop", maskSecret("abcdefghijklmnop"))
}
