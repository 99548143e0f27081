package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/ledgerchat/ledgerchat/internal/config"
)

func TestListTables(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewSQLStore(db, config.WarehouseConfig{})

	mock.ExpectQuery("SELECT table_name FROM information_schema.tables").
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).
			AddRow("entity_business_units").
			AddRow("financial_data").
			AddRow("gl_accounts"))

	tables, err := store.ListTables(context.Background())
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if len(tables) != 3 {
		t.Fatalf("len(tables) = %d", len(tables))
	}
	if tables[1] != "financial_data" {
		t.Fatalf("tables[1] = %q", tables[1])
	}
	assertSQLMock(t, mock)
}

func TestTableMetadata(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewSQLStore(db, config.WarehouseConfig{SchemaSampleRows: 1, MaxResultRows: 100})

	mock.ExpectQuery("SELECT column_name, data_type, is_nullable FROM information_schema.columns").
		WithArgs("financial_data").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
			AddRow("year", "INTEGER", "NO").
			AddRow("month", "VARCHAR", "YES").
			AddRow("value", "DECIMAL(18,2)", "YES"))
	mock.ExpectQuery("SELECT kcu.column_name").
		WithArgs("financial_data").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("year"))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM "financial_data"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(240)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM (SELECT * FROM "financial_data" LIMIT 1) AS q LIMIT 101`)).
		WillReturnRows(sqlmock.NewRows([]string{"year", "month", "value"}).AddRow(2024, "2024-01", 1250.0))

	meta, err := store.TableMetadata(context.Background(), "financial_data")
	if err != nil {
		t.Fatalf("TableMetadata() error = %v", err)
	}
	if meta.RowCount != 240 {
		t.Fatalf("RowCount = %d", meta.RowCount)
	}
	if len(meta.Columns) != 3 {
		t.Fatalf("len(Columns) = %d", len(meta.Columns))
	}
	if meta.Columns[0].Nullable {
		t.Fatal("year should be non-nullable")
	}
	if !meta.Columns[0].PrimaryKey {
		t.Fatal("year should be marked as a primary key")
	}
	if meta.Columns[1].PrimaryKey {
		t.Fatal("entity should not be marked as a primary key")
	}
	if len(meta.SampleRows) != 1 {
		t.Fatalf("len(SampleRows) = %d", len(meta.SampleRows))
	}
	assertSQLMock(t, mock)
}

func TestTableMetadataRejectsBadIdentifier(t *testing.T) {
	db, _ := newSQLMock(t)
	store := NewSQLStore(db, config.WarehouseConfig{})

	if _, err := store.TableMetadata(context.Background(), `x"; DROP TABLE y`); err == nil {
		t.Fatal("expected error for invalid identifier")
	}
}

func TestExecuteNormalizesAndCaps(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewSQLStore(db, config.WarehouseConfig{MaxResultRows: 2})

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM (SELECT entity, value FROM financial_data) AS q LIMIT 3`)).
		WillReturnRows(sqlmock.NewRows([]string{"entity", "value"}).
			AddRow([]byte("EU-Hub"), 100.0).
			AddRow([]byte("US-Hub"), 200.0).
			AddRow([]byte("APAC-Hub"), 300.0))

	result, err := store.Execute(context.Background(), "SELECT entity, value FROM financial_data;")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Truncated {
		t.Fatal("expected truncated result")
	}
	if result.RowCount != 2 {
		t.Fatalf("RowCount = %d", result.RowCount)
	}
	if got := result.Rows[0][0]; got != "EU-Hub" {
		t.Fatalf("Rows[0][0] = %v (%T), want string", got, got)
	}
	assertSQLMock(t, mock)
}

func TestExecuteRejectsWrites(t *testing.T) {
	db, _ := newSQLMock(t)
	store := NewSQLStore(db, config.WarehouseConfig{})

	for _, sqlText := range []string{
		"DELETE FROM financial_data",
		"DROP TABLE gl_accounts",
		"UPDATE financial_data SET value = 0",
		"",
	} {
		if _, err := store.Execute(context.Background(), sqlText); err == nil {
			t.Fatalf("Execute(%q) expected error", sqlText)
		}
	}
}

func TestCheckSyntaxPreparesWithoutRunning(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewSQLStore(db, config.WarehouseConfig{})

	mock.ExpectPrepare(regexp.QuoteMeta("SELECT year, SUM(value) FROM financial_data GROUP BY year")).
		WillBeClosed()

	if err := store.CheckSyntax(context.Background(), "SELECT year, SUM(value) FROM financial_data GROUP BY year;"); err != nil {
		t.Fatalf("CheckSyntax() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestCheckSyntaxSurfacesPrepareError(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewSQLStore(db, config.WarehouseConfig{})

	prepareErr := errors.New(`Binder Error: Referenced column "reven" not found`)
	mock.ExpectPrepare("SELECT reven FROM financial_data").WillReturnError(prepareErr)

	err := store.CheckSyntax(context.Background(), "SELECT reven FROM financial_data")
	if err == nil {
		t.Fatal("expected prepare error")
	}
	if !errors.Is(err, prepareErr) {
		t.Fatalf("err = %v, want wrapped prepare error", err)
	}
	assertSQLMock(t, mock)
}

func TestDistinctValuesCaches(t *testing.T) {
	db, mock := newSQLMock(t)
	store := NewSQLStore(db, config.WarehouseConfig{})

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT DISTINCT "entity" FROM "financial_data" WHERE "entity" IS NOT NULL ORDER BY 1 LIMIT 100`)).
		WillReturnRows(sqlmock.NewRows([]string{"entity"}).AddRow("EU-Hub").AddRow("US-Hub"))

	first, err := store.DistinctValues(context.Background(), "financial_data", "entity", 0)
	if err != nil {
		t.Fatalf("DistinctValues() error = %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("len(first) = %d", len(first))
	}

	// Second call must come from the cache; no further query expected.
	second, err := store.DistinctValues(context.Background(), "financial_data", "entity", 0)
	if err != nil {
		t.Fatalf("DistinctValues() second call error = %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("len(second) = %d", len(second))
	}
	assertSQLMock(t, mock)
}

func TestDistinctValuesRejectsBadColumn(t *testing.T) {
	db, _ := newSQLMock(t)
	store := NewSQLStore(db, config.WarehouseConfig{})

	if _, err := store.DistinctValues(context.Background(), "financial_data", "entity; --", 10); err == nil {
		t.Fatal("expected error for invalid column identifier")
	}
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
