package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// columnDef is one row of information_schema.columns.
type columnDef struct {
	Name     string
	DataType string
	Nullable bool
	Default  *string
}

// tableDef is the information needed to render CREATE TABLE text.
type tableDef struct {
	Name       string
	Columns    []columnDef
	PrimaryKey []string
}

// Base tables in the exposed schema, excluding migration bookkeeping.
const columnsQuery = `
	SELECT c.table_name, c.column_name, c.data_type, c.is_nullable = 'YES', c.column_default
	FROM information_schema.columns c
	JOIN information_schema.tables t
	  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
	WHERE c.table_schema = $1
	  AND t.table_type = 'BASE TABLE'
	  AND c.table_name <> 'schema_migrations'
	ORDER BY c.table_name, c.ordinal_position`

const primaryKeysQuery = `
	SELECT tc.table_name, kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
	  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
	WHERE tc.table_schema = $1 AND tc.constraint_type = 'PRIMARY KEY'
	ORDER BY tc.table_name, kcu.ordinal_position`

// describeSchema synthesizes CREATE TABLE text for every user table, since
// PostgreSQL keeps no original DDL.
func (s *Store) describeSchema(ctx context.Context) (string, error) {
	tables, err := s.loadTables(ctx)
	if err != nil {
		return "", err
	}

	ddl := make([]string, 0, len(tables))
	for _, t := range tables {
		ddl = append(ddl, buildCreateTable(t))
	}
	return strings.Join(ddl, "\n\n"), nil
}

func (s *Store) tableNames(ctx context.Context) ([]string, error) {
	tables, err := s.loadTables(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	return names, nil
}

func (s *Store) loadTables(ctx context.Context) ([]tableDef, error) {
	rows, err := s.pool.Query(ctx, columnsQuery, s.schema)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer rows.Close()

	var tables []tableDef
	index := make(map[string]int)
	for rows.Next() {
		var (
			table string
			col   columnDef
		)
		if err := rows.Scan(&table, &col.Name, &col.DataType, &col.Nullable, &col.Default); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		i, ok := index[table]
		if !ok {
			i = len(tables)
			index[table] = i
			tables = append(tables, tableDef{Name: table})
		}
		tables[i].Columns = append(tables[i].Columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}

	pkRows, err := s.pool.Query(ctx, primaryKeysQuery, s.schema)
	if err != nil {
		return nil, fmt.Errorf("query primary keys: %w", err)
	}
	defer pkRows.Close()

	for pkRows.Next() {
		var table, column string
		if err := pkRows.Scan(&table, &column); err != nil {
			return nil, fmt.Errorf("scan primary key: %w", err)
		}
		if i, ok := index[table]; ok {
			tables[i].PrimaryKey = append(tables[i].PrimaryKey, column)
		}
	}
	if err := pkRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate primary keys: %w", err)
	}

	return tables, nil
}

// buildCreateTable renders one table as CREATE TABLE text.
func buildCreateTable(t tableDef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", pgx.Identifier{t.Name}.Sanitize())

	lines := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		line := fmt.Sprintf("  %s %s", pgx.Identifier{c.Name}.Sanitize(), c.DataType)
		if !c.Nullable {
			line += " NOT NULL"
		}
		if c.Default != nil {
			line += " DEFAULT " + *c.Default
		}
		lines = append(lines, line)
	}
	if len(t.PrimaryKey) > 0 {
		quoted := make([]string, len(t.PrimaryKey))
		for i, col := range t.PrimaryKey {
			quoted[i] = pgx.Identifier{col}.Sanitize()
		}
		lines = append(lines, fmt.Sprintf("  PRIMARY KEY (%s)", strings.Join(quoted, ", ")))
	}

	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n);")
	return b.String()
}
