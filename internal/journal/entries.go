package journal

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// Append writes one entry. A zero CreatedAt is stamped with the current time.
func (db *DB) Append(ctx context.Context, e Entry) error {
	if e.SessionID == "" {
		return fmt.Errorf("journal entry without session id")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = db.now()
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	_, err := db.sql.ExecContext(ctx, db.dialect.rebind(`
		INSERT INTO journal_entries
			(session_id, customer_id, direction, kind, provider_message_id, status, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		e.SessionID, e.CustomerID, string(e.Direction), string(e.Kind),
		e.ProviderMessageID, e.Status, e.Body, e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("appending journal entry: %w", err)
	}
	return nil
}

// List returns the most recent entries in chronological order, optionally
// restricted to one session. limit <= 0 means 100.
func (db *DB) List(ctx context.Context, sessionID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	query := `SELECT id, session_id, customer_id, direction, kind, provider_message_id, status, body, created_at
		FROM journal_entries`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.sql.QueryContext(ctx, db.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("listing journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			direction string
			kind      string
			created   int64
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.CustomerID, &direction, &kind,
			&e.ProviderMessageID, &e.Status, &e.Body, &created); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		e.Direction = Direction(direction)
		e.Kind = Kind(kind)
		e.CreatedAt = time.UnixMilli(created).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	slices.Reverse(entries)
	return entries, nil
}

// Prune deletes entries created before the cutoff and returns how many were removed.
func (db *DB) Prune(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	res, err := db.sql.ExecContext(ctx, db.dialect.rebind(`DELETE FROM journal_entries WHERE created_at < ?`), before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("pruning journal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		db.log.Debug().Int64("deleted", n).Time("before", before).Msg("journal pruned")
	}
	return n, nil
}

// Count returns the total number of entries.
func (db *DB) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, operationTimeout)
	defer cancel()

	var n int64
	if err := db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting journal: %w", err)
	}
	return n, nil
}
