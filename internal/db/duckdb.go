// Package db opens the DuckDB database backing `duckdb` asset layers and
// queries its spatial tables.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/paulmach/orb"
)

// Config holds database configuration. An empty DBName opens an in-memory
// database.
type Config struct {
	DataDir string
	DBName  string
	Logger  *slog.Logger
}

// Open opens the database and loads the spatial and parquet extensions.
// Extensions that cannot be installed (offline hosts) are logged and
// skipped; GeoJSON text columns still work without them.
func Open(cfg Config) (*sql.DB, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	dsn := ""
	if cfg.DBName != "" {
		dir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		dsn = filepath.Join(dir, cfg.DBName+".duckdb")
	}
	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, err
	}
	for _, ext := range []string{"spatial", "parquet"} {
		if _, err := conn.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			log.Warn("duckdb extension unavailable", slog.String("extension", ext), slog.String("error", err.Error()))
		}
	}
	return conn, nil
}

// Column describes one table column.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table describes a queryable table.
type Table struct {
	Name    string   `json:"name"`
	Columns []Column `json:"columns"`
}

// Tables lists the tables of the main schema with their columns.
func Tables(ctx context.Context, conn *sql.DB) ([]Table, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT table_name, column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = 'main'
		ORDER BY table_name, ordinal_position`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var t, c, typ string
		if err := rows.Scan(&t, &c, &typ); err != nil {
			return nil, err
		}
		if len(tables) == 0 || tables[len(tables)-1].Name != t {
			tables = append(tables, Table{Name: t})
		}
		last := &tables[len(tables)-1]
		last.Columns = append(last.Columns, Column{Name: c, Type: typ})
	}
	return tables, rows.Err()
}

var ident = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Row is one result of a spatial query: the geometry as GeoJSON text and
// every other column.
type Row struct {
	GeoJSON    string
	Attributes map[string]any
}

// Within returns rows of table whose geometry column intersects b.
// GEOMETRY columns are filtered by DuckDB spatial; text columns holding
// GeoJSON come back unfiltered and are left to the caller.
func Within(ctx context.Context, conn *sql.DB, table, geomCol string, b orb.Bound) ([]Row, bool, error) {
	if !ident.MatchString(table) || !ident.MatchString(geomCol) {
		return nil, false, fmt.Errorf("invalid identifier %q.%q", table, geomCol)
	}
	var typ string
	err := conn.QueryRowContext(ctx, `
		SELECT data_type FROM information_schema.columns
		WHERE table_schema = 'main' AND table_name = ? AND column_name = ?`, table, geomCol).Scan(&typ)
	if err == sql.ErrNoRows {
		return nil, false, fmt.Errorf("no column %s.%s", table, geomCol)
	}
	if err != nil {
		return nil, false, err
	}

	spatial := strings.EqualFold(typ, "GEOMETRY")
	var (
		q    string
		args []any
	)
	if spatial {
		q = fmt.Sprintf(`SELECT ST_AsGeoJSON(%[1]s) AS __geom, * EXCLUDE (%[1]s) FROM %[2]s
			WHERE ST_Intersects(%[1]s, ST_MakeEnvelope(?, ?, ?, ?))`, geomCol, table)
		args = []any{b.Min[0], b.Min[1], b.Max[0], b.Max[1]}
	} else {
		q = fmt.Sprintf(`SELECT CAST(%[1]s AS VARCHAR) AS __geom, * EXCLUDE (%[1]s) FROM %[2]s`, geomCol, table)
	}

	rows, err := conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, spatial, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, spatial, err
	}
	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, spatial, err
		}
		r := Row{Attributes: make(map[string]any, len(cols)-1)}
		if s, ok := values[0].(string); ok {
			r.GeoJSON = s
		}
		for i, c := range cols[1:] {
			r.Attributes[c] = values[i+1]
		}
		out = append(out, r)
	}
	return out, spatial, rows.Err()
}
