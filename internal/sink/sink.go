// Package sink writes extracted records to their destination: JSON lines on
// stdout or a local file, JSON lines objects in S3, GCS or Azure Blob
// Storage, or a DuckDB table.
package sink

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"searchads-tap/internal/domain"
)

// Options carries destination credentials and naming.
type Options struct {
	Stream string    // stream name, used in object keys and DuckDB rows
	Stdout io.Writer // destination for "-"; os.Stdout when nil
	Now    func() time.Time

	S3 S3Options
	// GCSKeyFile is a service-account JSON file; empty uses default credentials.
	GCSKeyFile string
	// AzureConnectionString authenticates the az:// sink.
	AzureConnectionString string
}

// S3Options configures the s3:// sink for AWS or S3-compatible storage.
type S3Options struct {
	KeyID    string
	Secret   string
	Endpoint string // host or URL; empty means AWS
	Region   string
}

// Target is a parsed sink destination.
type Target struct {
	Kind   string // "stdout", "file", "s3", "gs", "az", "duckdb"
	Bucket string // bucket or container for object stores
	Key    string // object key, file path or DuckDB database path
	Table  string // DuckDB table
}

const defaultDuckDBTable = "searchads_records"

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseTarget interprets a sink destination string.
func ParseTarget(raw string) (Target, error) {
	if raw == "" || raw == "-" {
		return Target{Kind: "stdout"}, nil
	}

	scheme, _, found := strings.Cut(raw, "://")
	if !found {
		return Target{Kind: "file", Key: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, domain.ErrValidation("parse sink %q: %v", raw, err)
	}

	switch scheme {
	case "s3", "gs", "az":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return Target{}, domain.ErrValidation("sink %q: expected %s://bucket/key", raw, scheme)
		}
		return Target{Kind: scheme, Bucket: u.Host, Key: key}, nil
	case "duckdb":
		path := u.Host + u.Path
		if path == "" {
			return Target{}, domain.ErrValidation("sink %q: missing database path", raw)
		}
		table := u.Query().Get("table")
		if table == "" {
			table = defaultDuckDBTable
		}
		if !identRe.MatchString(table) {
			return Target{}, domain.ErrValidation("sink %q: invalid table name %q", raw, table)
		}
		return Target{Kind: "duckdb", Key: path, Table: table}, nil
	default:
		return Target{}, domain.ErrValidation("sink %q: unsupported scheme %q", raw, scheme)
	}
}

// Shareable reports whether several streams can write to t without
// overwriting each other: stdout and DuckDB append, while files and objects
// need a {stream} placeholder in their key.
func (t Target) Shareable() bool {
	switch t.Kind {
	case "stdout", "duckdb":
		return true
	default:
		return strings.Contains(t.Key, "{stream}")
	}
}

// Open parses raw and opens the matching sink.
func Open(ctx context.Context, raw string, opts Options) (domain.RowSink, error) {
	t, err := ParseTarget(raw)
	if err != nil {
		return nil, err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	key := ExpandKey(t.Key, opts.Stream, opts.Now())

	switch t.Kind {
	case "stdout":
		w := opts.Stdout
		if w == nil {
			w = os.Stdout
		}
		return NewJSONLSink(nopCloser{w}), nil
	case "file":
		return OpenFile(key)
	case "s3":
		return NewS3Sink(ctx, t.Bucket, key, opts.S3)
	case "gs":
		return NewGCSSink(ctx, t.Bucket, key, opts.GCSKeyFile)
	case "az":
		return NewAzureSink(t.Bucket, key, opts.AzureConnectionString)
	case "duckdb":
		return OpenDuckDB(ctx, t.Key, t.Table, opts.Stream)
	default:
		return nil, fmt.Errorf("unhandled sink kind %q", t.Kind)
	}
}

// ExpandKey substitutes {stream} and {date} (YYYY-MM-DD, UTC) in key.
func ExpandKey(key, stream string, now time.Time) string {
	r := strings.NewReplacer(
		"{stream}", stream,
		"{date}", now.UTC().Format("2006-01-02"),
	)
	return r.Replace(key)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
