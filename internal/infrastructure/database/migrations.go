package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// Migration source registered by the migrations package. Importing it
// for side effects is all a binary needs:
//
//	import _ "github.com/nerrad567/garage-door-core/migrations"
var (
	migrationSource fs.FS
	migrationDir    = "."
)

// RegisterMigrations points Migrate at a filesystem of migration files.
// Files are named <version>_<name>.up.sql with an optional matching
// .down.sql, where version is a YYYYMMDD_HHMMSS stamp that fixes the
// application order. Tests use this hook to inject fixture schemas.
func RegisterMigrations(fsys fs.FS, dir string) {
	migrationSource = fsys
	migrationDir = dir
}

// migration is one up/down pair loaded from the registered source.
type migration struct {
	version string
	name    string
	upSQL   string
	downSQL string
}

// Migrate brings the schema up to date. Pending migrations run oldest
// first, each inside its own transaction, and are recorded in
// schema_migrations. A failure stops the run at the broken migration;
// everything before it stays committed and the next run resumes there.
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.ensureVersionTable(ctx); err != nil {
		return err
	}

	all, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	if len(all) == 0 {
		return nil
	}

	done, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range all {
		if _, applied := done[m.version]; applied {
			continue
		}
		if err := db.applyUp(ctx, m); err != nil {
			return fmt.Errorf("migration %s (%s): %w", m.version, m.name, err)
		}
	}
	return nil
}

// Rollback reverts the most recently applied migration using its down
// SQL. Development convenience only; released schema changes move
// forward. Rolling back with nothing applied is a no-op.
func (db *DB) Rollback(ctx context.Context) error {
	if err := db.ensureVersionTable(ctx); err != nil {
		return err
	}

	var latest string
	err := db.QueryRowContext(ctx,
		"SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1",
	).Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading schema_migrations: %w", err)
	}

	all, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}
	var target *migration
	for i := range all {
		if all[i].version == latest {
			target = &all[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("migration %s is applied but missing from the source filesystem", latest)
	}
	if target.downSQL == "" {
		return fmt.Errorf("migration %s (%s) has no down SQL", target.version, target.name)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, target.downSQL); err != nil {
		return fmt.Errorf("reverting %s: %w", target.version, err)
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM schema_migrations WHERE version = ?", target.version,
	); err != nil {
		return fmt.Errorf("unrecording %s: %w", target.version, err)
	}
	return tx.Commit()
}

func (db *DB) ensureVersionTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		) STRICT
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}
	return nil
}

func (db *DB) appliedVersions(ctx context.Context) (map[string]struct{}, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("reading schema_migrations: %w", err)
	}
	defer rows.Close()

	done := make(map[string]struct{})
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scanning version: %w", err)
		}
		done[v] = struct{}{}
	}
	return done, rows.Err()
}

// applyUp runs one migration and its bookkeeping insert in a single
// transaction, so a failed migration leaves no trace of itself.
func (db *DB) applyUp(ctx context.Context, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.upSQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
		m.version, time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording version: %w", err)
	}
	return tx.Commit()
}

// loadMigrations reads every migration pair from the registered source,
// sorted by version. A down file without a matching up file is ignored.
func loadMigrations() ([]migration, error) {
	if migrationSource == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(migrationSource, migrationDir)
	if err != nil {
		// No directory means no migrations to run.
		return nil, nil
	}

	byVersion := make(map[string]*migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, up, ok := parseMigrationName(entry.Name())
		if !ok {
			continue
		}
		text, err := fs.ReadFile(migrationSource, path.Join(migrationDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", entry.Name(), err)
		}
		m := byVersion[version]
		if m == nil {
			m = &migration{version: version, name: name}
			byVersion[version] = m
		}
		if up {
			m.upSQL = string(text)
		} else {
			m.downSQL = string(text)
		}
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.upSQL == "" {
			continue
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// parseMigrationName splits "20260810_120000_create_door_events.up.sql"
// into version "20260810_120000", name "create_door_events" and the
// direction. Filenames that do not follow the convention are skipped.
func parseMigrationName(filename string) (version, name string, up, ok bool) {
	base, isUp := strings.CutSuffix(filename, ".up.sql")
	if !isUp {
		var isDown bool
		base, isDown = strings.CutSuffix(filename, ".down.sql")
		if !isDown {
			return "", "", false, false
		}
	}

	date, rest, found := strings.Cut(base, "_")
	if !found {
		return "", "", false, false
	}
	clock, desc, found := strings.Cut(rest, "_")
	if !found || desc == "" {
		return "", "", false, false
	}
	return date + "_" + clock, desc, isUp, true
}
