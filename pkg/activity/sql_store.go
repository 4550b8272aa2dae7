package activity

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Supported database/sql driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// SQLStore implements Store and UserSource over an activity_events table.
// Timestamps are stored as unix milliseconds so the same schema works on
// Postgres and SQLite.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLStore creates a store for an open database handle. driver selects the
// placeholder dialect.
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver}
}

// CreateTable creates the activity_events table and its index.
// This should be run during database migration, not at startup.
func (s *SQLStore) CreateTable(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS activity_events (
			user_id     TEXT NOT NULL,
			kind        TEXT NOT NULL,
			occurred_at BIGINT NOT NULL,
			value       DOUBLE PRECISION NOT NULL DEFAULT 0,
			initiated   BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_events_user_time
			ON activity_events (user_id, occurred_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating activity_events: %w", err)
		}
	}
	return nil
}

// WriteEvents inserts events in a single statement.
func (s *SQLStore) WriteEvents(ctx context.Context, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString(`INSERT INTO activity_events (user_id, kind, occurred_at, value, initiated) VALUES `)

	args := make([]interface{}, 0, len(events)*5)
	for i, e := range events {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, e.UserID, string(e.Kind), e.OccurredAt.UnixMilli(), e.Value, e.Initiated)
	}

	if _, err := s.db.ExecContext(ctx, s.rebind(b.String()), args...); err != nil {
		return fmt.Errorf("inserting activity events: %w", err)
	}
	return nil
}

// QueryActivity returns the user's events inside the window, oldest first.
func (s *SQLStore) QueryActivity(ctx context.Context, userID string, window Window) (Events, error) {
	query := s.rebind(`SELECT user_id, kind, occurred_at, value, initiated
		FROM activity_events
		WHERE user_id = ? AND occurred_at >= ? AND occurred_at < ?
		ORDER BY occurred_at ASC`)

	rows, err := s.db.QueryContext(ctx, query, userID, window.Start.UnixMilli(), window.End.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("querying activity events: %w", err)
	}
	defer rows.Close()

	events := Events{}
	for rows.Next() {
		var (
			e    Event
			kind string
			ms   int64
		)
		if err := rows.Scan(&e.UserID, &kind, &ms, &e.Value, &e.Initiated); err != nil {
			return nil, fmt.Errorf("scanning activity event: %w", err)
		}
		e.Kind = Kind(kind)
		e.OccurredAt = time.UnixMilli(ms).UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activity events: %w", err)
	}
	return events, nil
}

// ListUsers returns distinct users with events since the given time.
func (s *SQLStore) ListUsers(ctx context.Context, since time.Time) ([]string, error) {
	query := s.rebind(`SELECT DISTINCT user_id FROM activity_events WHERE occurred_at >= ? ORDER BY user_id`)

	rows, err := s.db.QueryContext(ctx, query, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("listing active users: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning user id: %w", err)
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
