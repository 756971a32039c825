// Package migration applies the store schema. Migrations are embedded SQL files
// written in the subset of SQL that both PostgreSQL and SQLite accept.
package migration

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"dqrules/domain/core"
	"dqrules/internal/errors"
	"dqrules/internal/logging"
)

//go:embed sql/*.sql
var embedded embed.FS

// Migration is one versioned schema change
type Migration struct {
	Version  string
	Name     string
	SQL      string
	Checksum core.Hash
}

// Status reports whether a migration has been applied
type Status struct {
	Version   string
	Name      string
	Applied   bool
	AppliedAt string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	migrations []Migration
	logger     *zap.Logger
}

// NewRunner creates a runner over the embedded migrations
func NewRunner(logger *zap.Logger) (*MigrationRunner, error) {
	migrations, err := Load(embedded, "sql")
	if err != nil {
		return nil, err
	}
	return &MigrationRunner{migrations: migrations, logger: logging.OrNop(logger)}, nil
}

// Load reads NNNN_name.sql files from dir, ordered by version
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list migrations")
	}
	var out []Migration
	seen := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, name, ok := strings.Cut(strings.TrimSuffix(e.Name(), ".sql"), "_")
		if !ok || version == "" {
			continue
		}
		if seen[version] {
			return nil, errors.ConfigInvalid(fmt.Sprintf("duplicate migration version %s", version))
		}
		seen[version] = true
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read migration %s", e.Name())
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(data), Checksum: core.NewHash(data)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Version returns the latest known migration version
func (r *MigrationRunner) Version() string {
	if len(r.migrations) == 0 {
		return ""
	}
	return r.migrations[len(r.migrations)-1].Version
}

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		checksum TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`

type appliedRow struct {
	Version   string `db:"version"`
	Checksum  string `db:"checksum"`
	AppliedAt string `db:"applied_at"`
}

// Run executes all pending migrations in version order. An applied migration
// whose checksum changed is an error.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	applied, err := r.applied(ctx, db)
	if err != nil {
		return err
	}

	for _, m := range r.migrations {
		if row, ok := applied[m.Version]; ok {
			if row.Checksum != string(m.Checksum) {
				return errors.DatabaseError(fmt.Sprintf("migration %s_%s was modified after it was applied", m.Version, m.Name), nil)
			}
			continue
		}
		if err := r.apply(ctx, db, m); err != nil {
			return errors.Wrapf(err, "failed to apply migration %s_%s", m.Version, m.Name)
		}
		r.logger.Info("[Migration] applied", zap.String("version", m.Version), zap.String("name", m.Name))
	}
	return nil
}

// Status lists every known migration and whether it has been applied
func (r *MigrationRunner) Status(ctx context.Context, db *sqlx.DB) ([]Status, error) {
	applied, err := r.applied(ctx, db)
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(r.migrations))
	for _, m := range r.migrations {
		row, ok := applied[m.Version]
		out = append(out, Status{Version: m.Version, Name: m.Name, Applied: ok, AppliedAt: row.AppliedAt})
	}
	return out, nil
}

func (r *MigrationRunner) applied(ctx context.Context, db *sqlx.DB) (map[string]appliedRow, error) {
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, errors.DatabaseError("failed to create schema_migrations", err)
	}
	var rows []appliedRow
	if err := db.SelectContext(ctx, &rows, "SELECT version, checksum, applied_at FROM schema_migrations"); err != nil {
		return nil, errors.DatabaseError("failed to read schema_migrations", err)
	}
	out := make(map[string]appliedRow, len(rows))
	for _, row := range rows {
		out[row.Version] = row
	}
	return out, nil
}

func (r *MigrationRunner) apply(ctx context.Context, db *sqlx.DB, m Migration) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError("failed to begin migration", err)
	}
	defer tx.Rollback()

	for _, stmt := range splitStatements(m.SQL) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.DatabaseError("migration statement failed", err)
		}
	}
	_, err = tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO schema_migrations (version, checksum, applied_at) VALUES (?, ?, ?)"),
		m.Version, string(m.Checksum), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return errors.DatabaseError("failed to record migration", err)
	}
	return tx.Commit()
}

// splitStatements splits a script on semicolons that end a line. Migration files
// keep one statement per terminating semicolon.
func splitStatements(script string) []string {
	var out []string
	var cur strings.Builder
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		cur.WriteString(line)
		cur.WriteString("\n")
		if strings.HasSuffix(trimmed, ";") {
			out = append(out, strings.TrimSuffix(strings.TrimSpace(cur.String()), ";"))
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}
