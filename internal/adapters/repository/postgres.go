package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/okian/repsense/internal/domain/model"
)

const closeTimeout = 5 * time.Second

// PostgresStore stores events in PostgreSQL over a single connection.
type PostgresStore struct {
	mu   sync.Mutex // pgx.Conn is not safe for concurrent use
	conn *pgx.Conn
}

// NewPostgresStore connects to connString and ensures the schema exists.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &PostgresStore{conn: conn}, nil
}

func initSchema(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS rep_events (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			class TEXT NOT NULL,
			count INT NOT NULL,
			ts TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS rep_events_session_idx ON rep_events (session_id, ts);
	`)
	return err
}

// Append stores ev.
func (s *PostgresStore) Append(ctx context.Context, ev model.RepEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(ctx, `
		INSERT INTO rep_events (id, session_id, class, count, ts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, ev.SessionID, ev.ClassName, ev.Count, ev.Timestamp)
	return err
}

// History returns the session's events.
func (s *PostgresStore) History(ctx context.Context, sessionID string) ([]model.RepEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(ctx, `
		SELECT id, session_id, class, count, ts FROM rep_events
		WHERE session_id = $1 ORDER BY ts, count
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.RepEvent
	for rows.Next() {
		var ev model.RepEvent
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.ClassName, &ev.Count, &ev.Timestamp); err != nil {
			return nil, err
		}
		ev.Timestamp = ev.Timestamp.UTC()
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Totals returns the number of stored reps per class. Each event is one rep,
// so the result stays correct across session resets.
func (s *PostgresStore) Totals(ctx context.Context, sessionID string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.conn.Query(ctx,
		`SELECT class, COUNT(*) FROM rep_events WHERE session_id = $1 GROUP BY class`, sessionID)
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

// Close terminates the database connection.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return s.conn.Close(ctx)
}
