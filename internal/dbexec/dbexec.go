// Package dbexec implements the Database Executor (C9): an adapter
// interface keyed by datasource name, plus a lib/pq Postgres adapter.
//
// Grounded on the teacher's plugins/postgres/plugin.go (sql.DB pool setup,
// column-scan-into-map row decoding), generalized from a fixed Get/Exec task
// pair into a single adapter.Query contract the rest of the engine drives
// through rendered SQL.
package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/sisyphus-test/sisyphus/internal/errs"
)

// Result is one query's normalized outcome: column order plus rows as
// ordered column->value maps (order is recoverable via Columns).
type Result struct {
	Columns []string
	Rows    []map[string]any
}

// RowsAsAny returns Rows as []any so it can be handed to the jsonpath
// evaluator uniformly with the rest of the engine's "any" values.
func (r Result) RowsAsAny() []any {
	out := make([]any, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row
	}
	return out
}

// Adapter is one datasource connection.
type Adapter interface {
	Query(ctx context.Context, sql string) (Result, error)
	Close() error
}

// Registry resolves a configured datasource name to its Adapter.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register wires name to adapter, overwriting any prior registration.
func (r *Registry) Register(name string, adapter Adapter) {
	r.adapters[name] = adapter
}

// Get resolves name, returning DB_DATASOURCE_NOT_FOUND when unconfigured.
func (r *Registry) Get(name string) (Adapter, *errs.CaseError) {
	a, ok := r.adapters[name]
	if !ok {
		return nil, errs.New(errs.ClassStep, errs.CodeDBDatasourceMiss, fmt.Sprintf("datasource %q not configured", name))
	}
	return a, nil
}

// CloseAll shuts down every registered adapter, collecting errors.
func (r *Registry) CloseAll() error {
	var errStrs []string
	for name, a := range r.adapters {
		if err := a.Close(); err != nil {
			errStrs = append(errStrs, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(errStrs) > 0 {
		return fmt.Errorf("closing datasources: %s", strings.Join(errStrs, "; "))
	}
	return nil
}

// PostgresAdapter runs queries over a lib/pq connection pool.
type PostgresAdapter struct {
	db *sql.DB
}

// PostgresConfig is one datasource's pool configuration.
type PostgresConfig struct {
	ConnectionString string `mapstructure:"connectionString" validate:"required"`
	MaxOpenConns      int   `mapstructure:"maxOpenConns" default:"10"`
	MaxIdleConns      int   `mapstructure:"maxIdleConns" default:"5"`
}

// NewPostgresAdapter opens and pings a connection pool for cfg.
func NewPostgresAdapter(cfg PostgresConfig) (*PostgresAdapter, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("dbexec: opening postgres connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("dbexec: pinging postgres: %w", err)
	}
	return &PostgresAdapter{db: db}, nil
}

// Query runs sql and scans every row into an ordered column->value map.
func (p *PostgresAdapter) Query(ctx context.Context, query string) (Result, error) {
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return Result{}, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Result{}, err
	}

	result := Result{Columns: cols}
	for rows.Next() {
		scanTargets := make([]any, len(cols))
		scanValues := make([]any, len(cols))
		for i := range scanValues {
			scanTargets[i] = &scanValues[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = normalizeValue(scanValues[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, err
	}
	return result, nil
}

// Close closes the underlying pool.
func (p *PostgresAdapter) Close() error {
	return p.db.Close()
}

func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
