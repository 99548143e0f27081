package seed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS financial_data (
		"year" INTEGER NOT NULL,
		"month" VARCHAR NOT NULL,
		"version" VARCHAR NOT NULL,
		"scenario" VARCHAR NOT NULL,
		"currency" VARCHAR NOT NULL,
		"entity" VARCHAR NOT NULL,
		"gl_accounts" INTEGER NOT NULL,
		"department" VARCHAR NOT NULL,
		"location" VARCHAR NOT NULL,
		"property" VARCHAR NOT NULL,
		"project" VARCHAR NOT NULL,
		"value" DECIMAL(18,2) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS gl_accounts (
		"gl_accounts" INTEGER NOT NULL,
		"gl_description" VARCHAR NOT NULL,
		"pl_main_category" VARCHAR NOT NULL,
		"pl_sub_category" VARCHAR NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS entity_business_units (
		"entity" VARCHAR NOT NULL,
		"business_unit" VARCHAR NOT NULL,
		"additional_mapping" VARCHAR NOT NULL
	)`,
}

// Seeder creates the warehouse tables and loads generated rows. Statements
// use $n placeholders, which both DuckDB and Postgres accept.
type Seeder struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSeeder(db *sql.DB, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{db: db, logger: logger}
}

func (s *Seeder) Run(ctx context.Context, generator *Generator) error {
	if err := s.createTables(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	accounts := generator.GLAccounts()
	for _, row := range accounts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO gl_accounts ("gl_accounts", "gl_description", "pl_main_category", "pl_sub_category") VALUES ($1, $2, $3, $4)`,
			row.GLAccount, row.GLDescription, row.PLMainCategory, row.PLSubCategory,
		); err != nil {
			return fmt.Errorf("insert gl account %d: %w", row.GLAccount, err)
		}
	}

	units := generator.BusinessUnits()
	for _, row := range units {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entity_business_units ("entity", "business_unit", "additional_mapping") VALUES ($1, $2, $3)`,
			row.Entity, row.BusinessUnit, row.AdditionalMapping,
		); err != nil {
			return fmt.Errorf("insert business unit %q: %w", row.Entity, err)
		}
	}

	facts := generator.FinancialRows()
	for _, row := range facts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO financial_data ("year", "month", "version", "scenario", "currency", "entity", "gl_accounts", "department", "location", "property", "project", "value")
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			row.Year, row.Month, row.Version, row.Scenario, row.Currency, row.Entity,
			row.GLAccount, row.Department, row.Location, row.Property, row.Project, row.Value,
		); err != nil {
			return fmt.Errorf("insert financial row %s/%s: %w", row.Entity, row.Month, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed transaction: %w", err)
	}

	s.logger.InfoContext(ctx, "seed completed",
		slog.Int("gl_accounts", len(accounts)),
		slog.Int("business_units", len(units)),
		slog.Int("financial_rows", len(facts)),
	)
	return nil
}

func (s *Seeder) createTables(ctx context.Context) error {
	for _, statement := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}
