// Package warehouse exposes the tabular financial store the pipeline queries.
// It runs over database/sql so the same code serves an embedded DuckDB file in
// dev and a Postgres warehouse in prod.
package warehouse

import (
	"context"
	"time"
)

type ColumnMetadata struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

type TableMetadata struct {
	Name       string           `json:"name"`
	Columns    []ColumnMetadata `json:"columns"`
	RowCount   int64            `json:"row_count"`
	SampleRows [][]any          `json:"sample_rows,omitempty"`
}

type Result struct {
	Columns   []string
	Rows      [][]any
	RowCount  int
	Truncated bool
	Duration  time.Duration
}

type Store interface {
	ListTables(ctx context.Context) ([]string, error)
	TableMetadata(ctx context.Context, table string) (TableMetadata, error)
	SchemaForPrompt(ctx context.Context) (string, error)
	Execute(ctx context.Context, sqlText string) (Result, error)
	CheckSyntax(ctx context.Context, sqlText string) error
	DistinctValues(ctx context.Context, table, column string, limit int) ([]string, error)
}
