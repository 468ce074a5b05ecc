package postgres

import (
	"context"
	"embed"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const migrationsTable = "gallery_schema_migrations"

// migration is one embedded schema step, named NNN_description.sql.
type migration struct {
	File    string
	Version int
	Name    string
}

// parseMigrationFile splits "001_gallery_descriptors.sql" into version 1 and "gallery_descriptors".
func parseMigrationFile(file string) (migration, error) {
	base, ok := strings.CutSuffix(file, ".sql")
	if !ok {
		return migration{}, fmt.Errorf("migration %s: not an .sql file", file)
	}
	num, name, _ := strings.Cut(base, "_")
	v, err := strconv.Atoi(num)
	if err != nil || v <= 0 {
		return migration{}, fmt.Errorf("migration %s: missing numeric version prefix", file)
	}
	return migration{File: file, Version: v, Name: name}, nil
}

// embeddedMigrations returns the gallery schema steps ordered by version.
func embeddedMigrations() ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations directory: %w", err)
	}

	var out []migration
	seen := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		m, err := parseMigrationFile(e.Name())
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[m.Version]; dup {
			return nil, fmt.Errorf("migrations %s and %s share version %d", prev, m.File, m.Version)
		}
		seen[m.Version] = m.File
		out = append(out, m)
	}
	slices.SortFunc(out, func(a, b migration) int { return a.Version - b.Version })
	return out, nil
}

// pendingMigrations drops the steps whose version is already recorded.
func pendingMigrations(all []migration, applied map[int]bool) []migration {
	var out []migration
	for _, m := range all {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}

func (p *Pool) appliedVersions(ctx context.Context) (map[int]bool, error) {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+migrationsTable+` (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", migrationsTable, err)
	}

	versions, err := p.MigrationsApplied(ctx)
	if err != nil {
		return nil, err
	}
	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}

// Migrate brings the gallery schema up to date. Each step runs in its own transaction.
func (p *Pool) Migrate(ctx context.Context) error {
	logger := log.WithField("component", "migrations")

	all, err := embeddedMigrations()
	if err != nil {
		return err
	}
	applied, err := p.appliedVersions(ctx)
	if err != nil {
		return err
	}

	pending := pendingMigrations(all, applied)
	if len(pending) == 0 {
		logger.WithField("version", len(all)).Debug("gallery schema is up to date")
		return nil
	}

	for _, m := range pending {
		if err := p.applyMigration(ctx, m); err != nil {
			return err
		}
		logger.WithFields(log.Fields{
			"version": m.Version,
			"name":    m.Name,
		}).Info("applied gallery schema migration")
	}
	return nil
}

func (p *Pool) applyMigration(ctx context.Context, m migration) error {
	content, err := migrationsFS.ReadFile("migrations/" + m.File)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", m.File, err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("execute migration %s: %w", m.File, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO "+migrationsTable+" (version, name) VALUES ($1, $2)", m.Version, m.Name); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	return nil
}

// MigrationsApplied returns the applied schema versions in ascending order.
func (p *Pool) MigrationsApplied(ctx context.Context) ([]int, error) {
	rows, err := p.db.QueryContext(ctx, "SELECT version FROM "+migrationsTable+" ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration versions: %w", err)
	}
	return versions, nil
}
