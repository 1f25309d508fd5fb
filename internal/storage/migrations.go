package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kyleking/sql-agent/internal/logging"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// Dialect captures the SQL differences between the supported databases
type Dialect struct {
	Name       string
	Migrations []Migration

	// Numbered switches "?" placeholders to $1, $2, ...
	Numbered bool
}

// Rebind rewrites "?" placeholders for the dialect
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}

	var b strings.Builder

	n := 0

	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))

			continue
		}

		b.WriteRune(r)
	}

	return b.String()
}

// documentsMigrations is shared by DuckDB and SQLite, which both accept this DDL
var documentsMigrations = []Migration{
	{
		Version:     1,
		Description: "Create documents table",
		Up: `
			CREATE TABLE IF NOT EXISTS documents (
				collection VARCHAR NOT NULL,
				id VARCHAR NOT NULL,
				document TEXT NOT NULL,
				metadata TEXT NOT NULL,
				embedding TEXT NOT NULL,
				updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (collection, id)
			);
		`,
		Down: `DROP TABLE IF EXISTS documents;`,
	},
	{
		Version:     2,
		Description: "Index documents by collection",
		Up:          `CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);`,
		Down:        `DROP INDEX IF EXISTS idx_documents_collection;`,
	},
}

// DuckDBDialect is used for file-backed DuckDB stores
var DuckDBDialect = Dialect{Name: "duckdb", Migrations: documentsMigrations}

// SQLiteDialect is used for file-backed SQLite stores
var SQLiteDialect = Dialect{Name: "sqlite", Migrations: documentsMigrations}

// PostgresDialect returns the pgvector layout for vectors of the given size
func PostgresDialect(dimensions int) Dialect {
	return Dialect{
		Name:     "postgres",
		Numbered: true,
		Migrations: []Migration{
			{
				Version:     1,
				Description: "Enable pgvector",
				Up:          `CREATE EXTENSION IF NOT EXISTS vector`,
				Down:        `DROP EXTENSION IF EXISTS vector`,
			},
			{
				Version:     2,
				Description: "Create schema_documents table",
				Up: fmt.Sprintf(`
					CREATE TABLE IF NOT EXISTS schema_documents (
						collection TEXT NOT NULL,
						id TEXT NOT NULL,
						document TEXT NOT NULL,
						metadata JSONB NOT NULL DEFAULT '{}',
						embedding vector(%d) NOT NULL,
						updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
						PRIMARY KEY (collection, id)
					)`, dimensions),
				Down: `DROP TABLE IF EXISTS schema_documents`,
			},
		},
	}
}

// MigrationManager handles database schema migrations
type MigrationManager struct {
	db      *sql.DB
	dialect Dialect
}

// NewMigrationManager creates a new migration manager
func NewMigrationManager(db *sql.DB, dialect Dialect) *MigrationManager {
	return &MigrationManager{db: db, dialect: dialect}
}

// GetMigrations returns all available migrations in order
func (m *MigrationManager) GetMigrations() []Migration {
	migrations := append([]Migration(nil), m.dialect.Migrations...)
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations
}

// InitializeMigrationTable creates the migration tracking table
func (m *MigrationManager) InitializeMigrationTable(ctx context.Context) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		description VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	if _, err := m.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	return nil
}

// GetAppliedMigrations returns a list of applied migration versions
func (m *MigrationManager) GetAppliedMigrations(ctx context.Context) ([]int, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	defer rows.Close()

	var versions []int

	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}

		versions = append(versions, version)
	}

	return versions, rows.Err()
}

// ApplyMigration applies a single migration and records it in one transaction
func (m *MigrationManager) ApplyMigration(ctx context.Context, migration Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
		return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
	}

	_, err = tx.ExecContext(ctx,
		m.dialect.Rebind("INSERT INTO schema_migrations (version, description) VALUES (?, ?)"),
		migration.Version, migration.Description)
	if err != nil {
		return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
	}

	return tx.Commit()
}

// RollbackMigration reverts a single migration and forgets it
func (m *MigrationManager) RollbackMigration(ctx context.Context, migration Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %d: %w", migration.Version, err)
	}

	_, err = tx.ExecContext(ctx,
		m.dialect.Rebind("DELETE FROM schema_migrations WHERE version = ?"), migration.Version)
	if err != nil {
		return fmt.Errorf("failed to remove migration record %d: %w", migration.Version, err)
	}

	return tx.Commit()
}

// MigrateUp applies all pending migrations
func (m *MigrationManager) MigrateUp(ctx context.Context) error {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return err
	}

	appliedVersions, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	applied := make(map[int]bool, len(appliedVersions))
	for _, version := range appliedVersions {
		applied[version] = true
	}

	for _, migration := range m.GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		logging.WithFields(map[string]interface{}{
			"dialect": m.dialect.Name,
			"version": migration.Version,
		}).Info("applying migration: " + migration.Description)

		if err := m.ApplyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// MigrateDown rolls back applied migrations newer than targetVersion
func (m *MigrationManager) MigrateDown(ctx context.Context, targetVersion int) error {
	appliedVersions, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	byVersion := make(map[int]Migration)
	for _, migration := range m.GetMigrations() {
		byVersion[migration.Version] = migration
	}

	sort.Sort(sort.Reverse(sort.IntSlice(appliedVersions)))

	for _, version := range appliedVersions {
		if version <= targetVersion {
			break
		}

		migration, exists := byVersion[version]
		if !exists {
			return fmt.Errorf("migration %d not found", version)
		}

		if err := m.RollbackMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", version, err)
		}
	}

	return nil
}

// GetMigrationStatus reports which known migrations have been applied
func (m *MigrationManager) GetMigrationStatus(ctx context.Context) ([]MigrationStatus, error) {
	if err := m.InitializeMigrationTable(ctx); err != nil {
		return nil, err
	}

	appliedVersions, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	applied := make(map[int]bool, len(appliedVersions))
	for _, version := range appliedVersions {
		applied[version] = true
	}

	var status []MigrationStatus
	for _, migration := range m.GetMigrations() {
		status = append(status, MigrationStatus{
			Version:     migration.Version,
			Description: migration.Description,
			Applied:     applied[migration.Version],
		})
	}

	return status, nil
}

// MigrationStatus represents the status of a migration
type MigrationStatus struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
	Applied     bool   `json:"applied"`
}
