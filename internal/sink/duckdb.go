package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"

	"searchads-tap/internal/domain"
)

var _ domain.RowSink = (*DuckDBSink)(nil)

// DuckDBSink appends records as JSON documents to a DuckDB table with
// columns (stream, record, loaded_at).
type DuckDBSink struct {
	db     *sql.DB
	table  string
	stream string
}

// OpenDuckDB opens (or creates) the database at path and ensures table exists.
// table must already be a validated identifier.
func OpenDuckDB(ctx context.Context, path, table, stream string) (*DuckDBSink, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %s: %w", path, err)
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		stream    VARCHAR NOT NULL,
		record    VARCHAR NOT NULL,
		loaded_at TIMESTAMP DEFAULT current_timestamp
	)`, table) //nolint:gosec // table is validated by ParseTarget
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}
	return &DuckDBSink{db: db, table: table, stream: stream}, nil
}

// Write implements domain.RowSink. Each call is one transaction.
func (s *DuckDBSink) Write(ctx context.Context, records []any) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		fmt.Sprintf(`INSERT INTO %q (stream, record) VALUES (?, ?)`, s.table)) //nolint:gosec // validated identifier
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close() //nolint:errcheck

	for i, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, s.stream, string(b)); err != nil {
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// Close implements domain.RowSink.
func (s *DuckDBSink) Close(context.Context) error {
	return s.db.Close()
}
