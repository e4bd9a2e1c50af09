package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dealdesk-inc/dealdesk-engine/pkg/adapters/datasource"
	"github.com/dealdesk-inc/dealdesk-engine/pkg/logging"
)

// Store is a datasource.Store backed by a pgx connection pool.
type Store struct {
	pool          *pgxpool.Pool
	schema        string
	maxResultRows int
	logger        *zap.Logger
	connStr       string
	closed        atomic.Bool
}

var _ datasource.Store = (*Store)(nil)

// ConnectionString builds a PostgreSQL URL with proper escaping.
// User-provided fields are URL-escaped so passwords containing @, /, # or ?
// do not break URL parsing.
func (c *Config) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = DefaultSSLMode()
	}

	return fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		url.QueryEscape(c.Database),
		sslMode,
	)
}

// NewStore connects and verifies the pool with a ping.
func NewStore(ctx context.Context, cfg *Config, opts datasource.StoreOptions) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxResultRows <= 0 {
		opts.MaxResultRows = datasource.DefaultMaxResultRows
	}

	connStr := cfg.ConnectionString()
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %s", logging.SanitizeError(err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %s", logging.SanitizeError(err))
	}

	logger := opts.Logger.Named("postgres-store")
	logger.Info("Connected to PostgreSQL",
		zap.String("dsn", logging.SanitizeConnectionString(connStr)),
		zap.String("schema", cfg.Schema))

	return &Store{
		pool:          pool,
		connStr:       connStr,
		schema:        cfg.Schema,
		maxResultRows: opts.MaxResultRows,
		logger:        logger,
	}, nil
}

// ConnectionString returns the DSN the pool was opened with. Schema
// migrations use it to open their own database/sql handle.
func (s *Store) ConnectionString() string {
	return s.connStr
}

// Dialect implements datasource.Store.
func (s *Store) Dialect() datasource.Dialect {
	return datasource.DialectPostgres
}

// Query implements datasource.Store.
func (s *Store) Query(ctx context.Context, sqlText string, params ...any) ([]map[string]any, error) {
	if s.closed.Load() {
		return nil, datasource.ErrStoreClosed
	}

	return s.collect(ctx, s.pool, bindPlaceholders(sqlText, params), params...)
}

// QueryReadOnly implements datasource.Store. The statement runs inside a
// READ ONLY transaction that is always rolled back.
func (s *Store) QueryReadOnly(ctx context.Context, sqlText string) ([]map[string]any, error) {
	if s.closed.Load() {
		return nil, datasource.ErrStoreClosed
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Warn("Failed to roll back read-only transaction",
				zap.String("error", logging.SanitizeError(err)))
		}
	}()

	return s.collect(ctx, tx, sqlText)
}

// bindPlaceholders rewrites ? to $n only when there is something to bind, so
// parameterless text keeps the jsonb ?, ?| and ?& operators.
func bindPlaceholders(sqlText string, params []any) string {
	if len(params) == 0 {
		return sqlText
	}
	return datasource.DialectPostgres.Rebind(sqlText)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *Store) collect(ctx context.Context, q querier, sqlText string, params ...any) ([]map[string]any, error) {
	rows, err := q.Query(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	columns := make([]string, len(fieldDescs))
	for i, fd := range fieldDescs {
		columns[i] = fd.Name
	}

	result := make([]map[string]any, 0)
	truncated := false
	for rows.Next() {
		if len(result) >= s.maxResultRows {
			truncated = true
			break
		}

		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read row values: %w", err)
		}
		for i, v := range values {
			values[i] = normalizePGValue(v)
		}
		result = append(result, datasource.NormalizeRow(columns, values))
	}
	// Closing early discards the remaining rows.
	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	if truncated {
		s.logger.Warn("Result set truncated", zap.Int("max_result_rows", s.maxResultRows))
	}
	return result, nil
}

// Run implements datasource.Store. LastInsertID is always zero; use
// INSERT ... RETURNING through Query instead.
func (s *Store) Run(ctx context.Context, sqlText string, params ...any) (datasource.RunResult, error) {
	if s.closed.Load() {
		return datasource.RunResult{}, datasource.ErrStoreClosed
	}

	tag, err := s.pool.Exec(ctx, bindPlaceholders(sqlText, params), params...)
	if err != nil {
		return datasource.RunResult{}, fmt.Errorf("failed to execute statement: %w", err)
	}
	return datasource.RunResult{RowsAffected: tag.RowsAffected()}, nil
}

// GetSchema implements datasource.Store.
func (s *Store) GetSchema(ctx context.Context) (string, error) {
	if s.closed.Load() {
		return "", datasource.ErrStoreClosed
	}
	return s.describeSchema(ctx)
}

// GetSampleData implements datasource.Store. A table that cannot be read
// yields an empty sample rather than failing the whole call.
func (s *Store) GetSampleData(ctx context.Context, limitPerTable int) ([]datasource.TableSample, error) {
	tables, err := s.tableNames(ctx)
	if err != nil {
		return nil, err
	}

	samples := make([]datasource.TableSample, 0, len(tables))
	for _, table := range tables {
		sample := datasource.TableSample{Table: table, Rows: []map[string]any{}}

		query := fmt.Sprintf("SELECT * FROM %s LIMIT ?", pgx.Identifier{s.schema, table}.Sanitize())
		rows, err := s.Query(ctx, query, limitPerTable)
		if err != nil {
			s.logger.Warn("Failed to sample table",
				zap.String("table", table),
				zap.String("error", logging.SanitizeError(err)))
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
	return s.pool.Ping(ctx)
}

// Close implements datasource.Store.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.pool.Close()
	return nil
}

// normalizePGValue converts pgx-specific scalars before generic normalisation.
func normalizePGValue(v any) any {
	switch val := v.(type) {
	case pgtype.Numeric:
		if !val.Valid {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(val).String()
	default:
		return v
	}
}
