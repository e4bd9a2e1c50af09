package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/adapters/datasource"
)

// tables the assistant never sees: SQLite internals and migration bookkeeping.
const userTablesQuery = `
	SELECT name, sql FROM sqlite_master
	WHERE type = 'table'
	  AND name NOT LIKE 'sqlite_%'
	  AND name <> 'schema_migrations'
	  AND sql IS NOT NULL
	ORDER BY name`

// Store is a datasource.Store backed by modernc.org/sqlite.
type Store struct {
	db            *sql.DB
	maxResultRows int
	logger        *zap.Logger
	closed        atomic.Bool
}

var _ datasource.Store = (*Store)(nil)

// NewStore opens the database and configures WAL mode.
func NewStore(ctx context.Context, cfg *Config, opts datasource.StoreOptions) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxResultRows <= 0 {
		opts.MaxResultRows = datasource.DefaultMaxResultRows
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	if cfg.IsMemory() {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: exec %s: %w", pragma, err)
		}
	}

	return &Store{
		db:            db,
		maxResultRows: opts.MaxResultRows,
		logger:        opts.Logger.Named("sqlite-store"),
	}, nil
}

// DB exposes the handle for schema migrations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect implements datasource.Store.
func (s *Store) Dialect() datasource.Dialect {
	return datasource.DialectSQLite
}

// Query implements datasource.Store.
func (s *Store) Query(ctx context.Context, sqlText string, params ...any) ([]map[string]any, error) {
	if s.closed.Load() {
		return nil, datasource.ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	result, truncated, err := collectRows(rows, s.maxResultRows)
	if err != nil {
		return nil, err
	}
	if truncated {
		s.logger.Warn("Result set truncated", zap.Int("max_result_rows", s.maxResultRows))
	}
	return result, nil
}

// QueryReadOnly implements datasource.Store. The statement runs on a
// dedicated connection with PRAGMA query_only set for its duration.
func (s *Store) QueryReadOnly(ctx context.Context, sqlText string) ([]map[string]any, error) {
	if s.closed.Load() {
		return nil, datasource.ErrStoreClosed
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return nil, fmt.Errorf("sqlite: enable query_only: %w", err)
	}
	defer s.restoreWritable(conn)

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("sqlite: query: %w", err)
	}
	defer rows.Close()

	result, truncated, err := collectRows(rows, s.maxResultRows)
	if err != nil {
		return nil, err
	}
	if truncated {
		s.logger.Warn("Result set truncated", zap.Int("max_result_rows", s.maxResultRows))
	}
	return result, nil
}

// restoreWritable clears query_only before conn goes back to the pool. A
// connection that cannot be reset is discarded instead.
func (s *Store) restoreWritable(conn *sql.Conn) {
	if _, err := conn.ExecContext(context.Background(), "PRAGMA query_only = OFF"); err != nil {
		s.logger.Error("Failed to reset query_only, discarding connection", zap.Error(err))
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	}
}

// Run implements datasource.Store.
func (s *Store) Run(ctx context.Context, sqlText string, params ...any) (datasource.RunResult, error) {
	if s.closed.Load() {
		return datasource.RunResult{}, datasource.ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx, sqlText, params...)
	if err != nil {
		return datasource.RunResult{}, fmt.Errorf("sqlite: exec: %w", err)
	}

	var out datasource.RunResult
	if id, err := res.LastInsertId(); err == nil {
		out.LastInsertID = id
	}
	if n, err := res.RowsAffected(); err == nil {
		out.RowsAffected = n
	}
	return out, nil
}

// GetSchema implements datasource.Store.
func (s *Store) GetSchema(ctx context.Context) (string, error) {
	tables, err := s.userTables(ctx)
	if err != nil {
		return "", err
	}

	ddl := make([]string, 0, len(tables))
	for _, t := range tables {
		ddl = append(ddl, t.ddl)
	}
	return strings.Join(ddl, "\n\n"), nil
}

// GetSampleData implements datasource.Store. A table that cannot be read
// yields an empty sample rather than failing the whole call.
func (s *Store) GetSampleData(ctx context.Context, limitPerTable int) ([]datasource.TableSample, error) {
	tables, err := s.userTables(ctx)
	if err != nil {
		return nil, err
	}

	samples := make([]datasource.TableSample, 0, len(tables))
	for _, t := range tables {
		sample := datasource.TableSample{Table: t.name, Rows: []map[string]any{}}

		rows, err := s.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT ?", quoteIdent(t.name)), limitPerTable)
		if err != nil {
			s.logger.Warn("Failed to sample table",
				zap.String("table", t.name),
				zap.Error(err))
		} else {
			sample.Rows = rows
		}
		samples = append(samples, sample)
	}
	return samples, nil
}

// Ping implements datasource.Store.
func (s *Store) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return datasource.ErrStoreClosed
	}
	return s.db.PingContext(ctx)
}

// Close implements datasource.Store.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

type tableDDL struct {
	name string
	ddl  string
}

func (s *Store) userTables(ctx context.Context) ([]tableDDL, error) {
	if s.closed.Load() {
		return nil, datasource.ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, userTablesQuery)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tables: %w", err)
	}
	defer rows.Close()

	var tables []tableDDL
	for rows.Next() {
		var t tableDDL
		if err := rows.Scan(&t.name, &t.ddl); err != nil {
			return nil, fmt.Errorf("sqlite: scan table: %w", err)
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate tables: %w", err)
	}
	return tables, nil
}

// collectRows reads at most limit rows. The statement itself is never
// rewritten, so a trailing comment cannot break the query.
func collectRows(rows *sql.Rows, limit int) ([]map[string]any, bool, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: read columns: %w", err)
	}

	result := make([]map[string]any, 0)
	truncated := false
	for rows.Next() {
		if len(result) >= limit {
			truncated = true
			break
		}

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, false, fmt.Errorf("sqlite: scan row: %w", err)
		}
		result = append(result, datasource.NormalizeRow(columns, values))
	}
	if err := rows.Err(); err != nil {
		return nil, false, fmt.Errorf("sqlite: iterate rows: %w", err)
	}
	return result, truncated, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
