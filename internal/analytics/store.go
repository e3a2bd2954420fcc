package analytics

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// #region types
// Event is one recorded analytics triple.
type Event struct {
	ID        string
	Seq       int64
	SessionID string
	Category  string
	Action    string
	Label     string
	CreatedAt time.Time
}

// Session summarizes the events of one widget session.
type Session struct {
	ID      string
	Events  int
	FirstAt time.Time
	LastAt  time.Time
}

// #endregion types

// #region store-struct
// Store persists analytics events in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and applies pending migrations.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One connection keeps ":memory:" databases consistent and serializes
	// writes from the recorder.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, sub)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region append
// Append writes one event. Missing ID and timestamp are filled in.
func (s *Store) Append(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, seq, session_id, category, action, label, created_at)
		 VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM events), ?, ?, ?, ?, ?)`,
		e.ID,
		e.SessionID,
		e.Category,
		e.Action,
		nullIfEmpty(e.Label),
		e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// #endregion append

// #region queries
// List returns events in recording order. An empty sessionID lists every
// session; limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	q := `SELECT id, seq, session_id, category, action, label, created_at FROM events`
	var args []any
	if sessionID != "" {
		q += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	q += ` ORDER BY seq`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var label sql.NullString
		var created string
		if err := rows.Scan(&e.ID, &e.Seq, &e.SessionID, &e.Category, &e.Action, &label, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Label = label.String
		if e.CreatedAt, err = parseTimestamp(created); err != nil {
			return nil, fmt.Errorf("scan event %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByAction tallies events keyed "category/action".
func (s *Store) CountByAction(ctx context.Context, sessionID string) (map[string]int, error) {
	q := `SELECT category, action, COUNT(*) FROM events`
	var args []any
	if sessionID != "" {
		q += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	q += ` GROUP BY category, action`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var category, action string
		var n int
		if err := rows.Scan(&category, &action, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[category+"/"+action] = n
	}
	return out, rows.Err()
}

// Sessions lists every session, most recent first.
func (s *Store) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, COUNT(*), MIN(created_at), MAX(created_at), MAX(seq)
		 FROM events GROUP BY session_id ORDER BY MAX(seq) DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var sess Session
		var first, last string
		var maxSeq int64
		if err := rows.Scan(&sess.ID, &sess.Events, &first, &last, &maxSeq); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if sess.FirstAt, err = parseTimestamp(first); err != nil {
			return nil, fmt.Errorf("scan session %s: %w", sess.ID, err)
		}
		if sess.LastAt, err = parseTimestamp(last); err != nil {
			return nil, fmt.Errorf("scan session %s: %w", sess.ID, err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// #endregion queries

// #region helpers
func parseTimestamp(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("created_at %q: %w", v, err)
	}
	return t, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
