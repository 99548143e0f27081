package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ledgerchat/ledgerchat/internal/config"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore implements Store over a database/sql handle.
type SQLStore struct {
	db               *sql.DB
	schemaSampleRows int
	maxResultRows    int
	values           *valueCache
}

func NewSQLStore(db *sql.DB, cfg config.WarehouseConfig) *SQLStore {
	sampleRows := cfg.SchemaSampleRows
	if sampleRows < 0 {
		sampleRows = 0
	}
	maxRows := cfg.MaxResultRows
	if maxRows <= 0 {
		maxRows = 1000
	}
	return &SQLStore{
		db:               db,
		schemaSampleRows: sampleRows,
		maxResultRows:    maxRows,
		values:           newValueCache(),
	}
}

func (s *SQLStore) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema IN ('main', 'public') AND table_type = 'BASE TABLE'
		 ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return tables, nil
}

func (s *SQLStore) TableMetadata(ctx context.Context, table string) (TableMetadata, error) {
	if !identPattern.MatchString(table) {
		return TableMetadata{}, fmt.Errorf("invalid table name %q", table)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT column_name, data_type, is_nullable FROM information_schema.columns
		 WHERE table_name = $1 ORDER BY ordinal_position`, table)
	if err != nil {
		return TableMetadata{}, fmt.Errorf("describe table %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	meta := TableMetadata{Name: table}
	for rows.Next() {
		var column ColumnMetadata
		var nullable string
		if err := rows.Scan(&column.Name, &column.DataType, &nullable); err != nil {
			return TableMetadata{}, fmt.Errorf("scan column: %w", err)
		}
		column.Nullable = strings.EqualFold(nullable, "YES")
		meta.Columns = append(meta.Columns, column)
	}
	if err := rows.Err(); err != nil {
		return TableMetadata{}, fmt.Errorf("iterate columns: %w", err)
	}
	if len(meta.Columns) == 0 {
		return TableMetadata{}, fmt.Errorf("table %q not found", table)
	}

	primaryKeys := s.primaryKeyColumns(ctx, table)
	for i := range meta.Columns {
		if _, ok := primaryKeys[meta.Columns[i].Name]; ok {
			meta.Columns[i].PrimaryKey = true
		}
	}

	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(table))).Scan(&meta.RowCount); err != nil {
		return TableMetadata{}, fmt.Errorf("count rows of %q: %w", table, err)
	}

	if s.schemaSampleRows > 0 {
		sample, err := s.Execute(ctx, fmt.Sprintf(`SELECT * FROM %s LIMIT %d`, quoteIdent(table), s.schemaSampleRows))
		if err != nil {
			return TableMetadata{}, fmt.Errorf("sample rows of %q: %w", table, err)
		}
		meta.SampleRows = sample.Rows
	}

	return meta, nil
}

// primaryKeyColumns is best effort: not every engine exposes the constraint
// views, and a table without declared keys simply returns nothing.
func (s *SQLStore) primaryKeyColumns(ctx context.Context, table string) map[string]struct{} {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kcu.column_name
		 FROM information_schema.table_constraints tc
		 JOIN information_schema.key_column_usage kcu ON tc.constraint_name = kcu.constraint_name
		 WHERE tc.table_name = $1 AND tc.constraint_type = 'PRIMARY KEY'`, table)
	if err != nil {
		return nil
	}
	defer func() { _ = rows.Close() }()

	keys := map[string]struct{}{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil
		}
		keys[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil
	}
	return keys
}

// SchemaForPrompt renders the full schema as plain text for inclusion in model
// prompts: table names, columns with types, row counts, and a few sample rows.
func (s *SQLStore) SchemaForPrompt(ctx context.Context) (string, error) {
	tables, err := s.ListTables(ctx)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for i, table := range tables {
		meta, err := s.TableMetadata(ctx, table)
		if err != nil {
			return "", err
		}
		if i > 0 {
			builder.WriteString("\n")
		}
		fmt.Fprintf(&builder, "Table: %s (%d rows)\n", meta.Name, meta.RowCount)
		builder.WriteString("Columns:\n")
		for _, column := range meta.Columns {
			desc := fmt.Sprintf("  - %s (%s)", column.Name, column.DataType)
			if column.PrimaryKey {
				desc += " [PRIMARY KEY]"
			}
			builder.WriteString(desc + "\n")
		}
		if len(meta.SampleRows) > 0 {
			builder.WriteString("Sample rows:\n")
			for _, row := range meta.SampleRows {
				parts := make([]string, len(row))
				for j, value := range row {
					parts[j] = fmt.Sprintf("%v", value)
				}
				fmt.Fprintf(&builder, "  %s\n", strings.Join(parts, " | "))
			}
		}
	}
	return builder.String(), nil
}

// Execute runs a read-only query, capping the result at the configured row
// limit. Truncated is set when the cap cut rows off.
func (s *SQLStore) Execute(ctx context.Context, sqlText string) (Result, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return Result{}, fmt.Errorf("sql is required")
	}
	if !isReadOnly(sqlText) {
		return Result{}, fmt.Errorf("only SELECT statements are allowed")
	}

	start := time.Now()
	wrapped := fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, s.maxResultRows+1)

	rows, err := s.db.QueryContext(ctx, wrapped)
	if err != nil {
		return Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	truncated := false
	if len(resultRows) > s.maxResultRows {
		resultRows = resultRows[:s.maxResultRows]
		truncated = true
	}

	return Result{
		Columns:   columns,
		Rows:      resultRows,
		RowCount:  len(resultRows),
		Truncated: truncated,
		Duration:  time.Since(start),
	}, nil
}

// CheckSyntax validates a query without running it by preparing the statement
// against the live schema. Unknown tables and columns surface here.
func (s *SQLStore) CheckSyntax(ctx context.Context, sqlText string) error {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return fmt.Errorf("sql is required")
	}
	if !isReadOnly(sqlText) {
		return fmt.Errorf("only SELECT statements are allowed")
	}

	stmt, err := s.db.PrepareContext(ctx, sqlText)
	if err != nil {
		return err
	}
	return stmt.Close()
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func isReadOnly(sqlText string) bool {
	fields := strings.Fields(strings.ToUpper(sqlText))
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "SELECT", "WITH":
		return true
	default:
		return false
	}
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
