package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/davitran/hr-notify/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// UpsertNotifications inserts or replaces a batch of notifications and
// reports how many were not previously mirrored.
func (s *SQLiteStore) UpsertNotifications(
	ctx context.Context,
	items []model.Notification,
) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	existing := make(map[string]bool)
	rows, err := s.db.QueryxContext(ctx, "SELECT key FROM notifications")
	if err != nil {
		return 0, fmt.Errorf("querying existing notifications: %w", err)
	}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning notification key: %w", err)
		}
		existing[key] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterating notification keys: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT OR REPLACE INTO notifications (
			key, id, origin, kind,
			title, body, actor, context,
			timestamp, read, fetched_at
		) VALUES (
			?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?
		)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	fresh := 0
	for _, n := range items {
		if !existing[n.Key()] {
			fresh++
		}

		contextJSON, err := json.Marshal(n.Context)
		if err != nil {
			return 0, fmt.Errorf("marshaling context for %s: %w", n.Key(), err)
		}

		_, err = stmt.ExecContext(ctx,
			n.Key(), n.ID, string(n.Origin), n.Kind,
			n.Title, n.Body, n.Actor, string(contextJSON),
			n.Timestamp.UTC(), boolToInt(n.Read), n.FetchedAt.UTC(),
		)
		if err != nil {
			return 0, fmt.Errorf("upserting notification %s: %w", n.Key(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return fresh, nil
}

// GetNotifications returns the newest mirrored notifications, ordered
// by timestamp descending with an (origin, id) tie-break matching the
// merge order.
func (s *SQLiteStore) GetNotifications(
	ctx context.Context,
	limit int,
) ([]model.Notification, error) {
	query := `
		SELECT id, origin, kind, title, body, actor, context,
		       timestamp, read, fetched_at
		FROM notifications
		ORDER BY timestamp DESC, origin ASC, id ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}
	defer rows.Close()

	var items []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, n)
	}

	return items, rows.Err()
}

// MarkNotificationRead marks every mirrored record with the given
// source id as read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("marking notification %s read: %w", id, err)
	}
	return nil
}

// MarkAllNotificationsRead marks every mirrored record as read.
func (s *SQLiteStore) MarkAllNotificationsRead(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "UPDATE notifications SET read = 1")
	if err != nil {
		return fmt.Errorf("marking all notifications read: %w", err)
	}
	return nil
}

// DeleteNotification removes every mirrored record with the given
// source id.
func (s *SQLiteStore) DeleteNotification(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting notification %s: %w", id, err)
	}
	return nil
}

// UnreadCount returns the number of unread mirrored records.
func (s *SQLiteStore) UnreadCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM notifications WHERE read = 0")
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return count, nil
}

// scanNotification scans a notification row from a sqlx.Rows result set.
func scanNotification(rows *sqlx.Rows) (model.Notification, error) {
	var (
		n           model.Notification
		origin      string
		contextJSON string
		readInt     int
		timestamp   time.Time
		fetchedAt   time.Time
	)

	err := rows.Scan(
		&n.ID, &origin, &n.Kind, &n.Title, &n.Body, &n.Actor,
		&contextJSON, &timestamp, &readInt, &fetchedAt,
	)
	if err != nil {
		return model.Notification{}, fmt.Errorf("scanning notification row: %w", err)
	}

	n.Origin = model.Origin(origin)
	n.Read = readInt != 0
	n.Timestamp = timestamp
	n.FetchedAt = fetchedAt

	if contextJSON != "" && contextJSON != "null" {
		if err := json.Unmarshal([]byte(contextJSON), &n.Context); err != nil {
			return model.Notification{}, fmt.Errorf("unmarshaling context: %w", err)
		}
	}

	return n, nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
