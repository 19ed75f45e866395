package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLogger(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"success logs at debug", http.StatusOK, "DEBUG"},
		{"server error logs at warn", http.StatusBadGateway, "WARN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			})
			handler := RequestID(RequestLogger(logger)(inner))

			req := httptest.NewRequest(http.MethodGet, "/v1/runs/last", nil)
			req.Header.Set("X-Request-ID", "req-1")
			handler.ServeHTTP(httptest.NewRecorder(), req)

			var entry map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
			assert.Equal(t, tt.wantLevel, entry["level"])
			assert.Equal(t, "/v1/runs/last", entry["path"])
			assert.InDelta(t, float64(tt.status), entry["status"], 0.001)
			assert.InDelta(t, float64(4), entry["bytes"], 0.001)
			assert.Equal(t, "req-1", entry["request_id"])
		})
	}
}
