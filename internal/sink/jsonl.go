package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"searchads-tap/internal/domain"
)

var _ domain.RowSink = (*JSONLSink)(nil)

// JSONLSink writes one JSON object per line.
type JSONLSink struct {
	mu  sync.Mutex
	dst io.WriteCloser
	buf *bufio.Writer
	enc *json.Encoder
}

// NewJSONLSink writes to dst and closes it on Close.
func NewJSONLSink(dst io.WriteCloser) *JSONLSink {
	buf := bufio.NewWriter(dst)
	return &JSONLSink{dst: dst, buf: buf, enc: json.NewEncoder(buf)}
}

// OpenFile creates (or truncates) path and returns a sink writing to it.
func OpenFile(path string) (*JSONLSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sink directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open sink file: %w", err)
	}
	return NewJSONLSink(f), nil
}

// Write implements domain.RowSink.
func (s *JSONLSink) Write(_ context.Context, records []any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range records {
		if err := s.enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
	}
	return nil
}

// Close implements domain.RowSink.
func (s *JSONLSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.buf.Flush(); err != nil {
		_ = s.dst.Close()
		return fmt.Errorf("flush sink: %w", err)
	}
	return s.dst.Close()
}
