package journal

import (
	"context"
	"fmt"
	"strings"
)

// migration represents a single schema migration. SQL may reference
// {{id}} for the dialect's auto-increment primary key column type.
type migration struct {
	Version int
	Name    string
	SQL     []string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create journal entries",
		SQL: []string{
			`CREATE TABLE journal_entries (
				id                  {{id}},
				session_id          TEXT NOT NULL,
				customer_id         TEXT NOT NULL DEFAULT '',
				direction           TEXT NOT NULL,
				kind                TEXT NOT NULL,
				provider_message_id TEXT NOT NULL DEFAULT '',
				status              TEXT NOT NULL DEFAULT '',
				body                TEXT NOT NULL DEFAULT '',
				created_at          BIGINT NOT NULL
			)`,
			`CREATE INDEX idx_journal_session ON journal_entries(session_id, id)`,
			`CREATE INDEX idx_journal_created ON journal_entries(created_at)`,
		},
	},
	{
		Version: 2,
		Name:    "index provider message ids",
		SQL: []string{
			`CREATE INDEX idx_journal_provider_id ON journal_entries(provider_message_id)`,
		},
	},
}

func (m migration) statements(d dialect) []string {
	out := make([]string, len(m.SQL))
	for i, s := range m.SQL {
		out[i] = strings.ReplaceAll(s, "{{id}}", d.idColumn)
	}
	return out
}

// migrate runs all pending migrations.
func (db *DB) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	if _, err := db.sql.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			applied_at BIGINT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	for _, m := range migrations {
		applied, err := db.isMigrationApplied(ctx, m.Version)
		if err != nil {
			return err
		}
		if applied {
			continue
		}

		db.log.Info().Int("version", m.Version).Str("name", m.Name).Msg("applying migration")

		tx, err := db.sql.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		for _, stmt := range m.statements(db.dialect) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
			}
		}

		if _, err := tx.ExecContext(ctx, db.dialect.rebind("INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)"),
			m.Version, db.now().UnixMilli()); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

func (db *DB) isMigrationApplied(ctx context.Context, version int) (bool, error) {
	var count int
	err := db.sql.QueryRowContext(ctx, db.dialect.rebind("SELECT COUNT(*) FROM schema_migrations WHERE version = ?"), version).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking migration %d: %w", version, err)
	}
	return count > 0, nil
}
