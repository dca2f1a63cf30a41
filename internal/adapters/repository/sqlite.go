package repository

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/okian/repsense/internal/domain/model"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS rep_events (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		class TEXT NOT NULL,
		count INTEGER NOT NULL,
		ts_unix_nano INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS rep_events_session_idx ON rep_events (session_id, ts_unix_nano);
`

// SQLiteStore stores events in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists. ":memory:" gives a private in-memory database.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// Append stores ev.
func (s *SQLiteStore) Append(ctx context.Context, ev model.RepEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rep_events (id, session_id, class, count, ts_unix_nano)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.SessionID, ev.ClassName, ev.Count, ev.Timestamp.UnixNano())
	return err
}

// History returns the session's events.
func (s *SQLiteStore) History(ctx context.Context, sessionID string) ([]model.RepEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, class, count, ts_unix_nano FROM rep_events
		 WHERE session_id = ? ORDER BY ts_unix_nano, count`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.RepEvent
	for rows.Next() {
		var (
			ev model.RepEvent
			ts int64
		)
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.ClassName, &ev.Count, &ts); err != nil {
			return nil, err
		}
		ev.Timestamp = time.Unix(0, ts).UTC()
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// Totals returns the number of stored reps per class. Each event is one rep,
// so the result stays correct across session resets.
func (s *SQLiteStore) Totals(ctx context.Context, sessionID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT class, COUNT(*) FROM rep_events WHERE session_id = ? GROUP BY class`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var (
			class string
			n     int
		)
		if err := rows.Scan(&class, &n); err != nil {
			return nil, err
		}
		totals[class] = n
	}
	return totals, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
