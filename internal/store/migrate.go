package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate runs every embedded .sql file whose name matches the store's
// dialect, in lexical order, against the underlying *sql.DB. It is a
// lightweight runner in the same spirit as the rest of this codebase's
// migration tooling: idempotency is the SQL's job (CREATE TABLE IF NOT
// EXISTS, CREATE INDEX IF NOT EXISTS), not the runner's.
func (s *GORMStore) Migrate(ctx context.Context) error {
	suffix := "_mysql.sql"
	if s.dialect == DialectPostgres {
		suffix = "_postgres.sql"
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read embedded migrations: %w", err)
	}

	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	for _, name := range names {
		if err := execMigrationFile(ctx, sqlDB, name); err != nil {
			return err
		}
	}
	return nil
}

func execMigrationFile(ctx context.Context, db *sql.DB, name string) error {
	content, err := migrationFiles.ReadFile("migrations/" + name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	for _, stmt := range strings.Split(string(content), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec %s: %w", name, err)
		}
	}
	return nil
}
