// Package sqlite keeps an audit log of admission decisions in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/flemzord/guildbot/internal/membership"
	"github.com/oklog/ulid/v2"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id         TEXT PRIMARY KEY,
	event      TEXT    NOT NULL,
	chat_id    INTEGER NOT NULL,
	user_id    INTEGER NOT NULL,
	decision   TEXT    NOT NULL,
	reason     TEXT    NOT NULL DEFAULT '',
	roles      TEXT    NOT NULL DEFAULT '[]',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS decisions_created_at ON decisions (created_at);
`

var (
	_ membership.Recorder    = (*Store)(nil)
	_ membership.DecisionLog = (*Store)(nil)
)

// Store persists decision records.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("audit: storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open sqlite db: %w", err)
	}
	// SQLite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts one decision. Missing ids and timestamps are filled in.
func (s *Store) Record(ctx context.Context, rec membership.DecisionRecord) error {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	roles := rec.Roles
	if roles == nil {
		roles = []string{}
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("audit: encode roles: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO decisions (id, event, chat_id, user_id, decision, reason, roles, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Event), rec.ChatID, rec.UserID, rec.Decision, rec.Reason,
		string(rolesJSON), toMillis(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("audit: record decision: %w", err)
	}
	return nil
}

// Recent returns up to limit decisions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]membership.DecisionRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event, chat_id, user_id, decision, reason, roles, created_at
		 FROM decisions ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query decisions: %w", err)
	}
	defer rows.Close()

	var out []membership.DecisionRecord
	for rows.Next() {
		var (
			rec       membership.DecisionRecord
			event     string
			rolesJSON string
			created   int64
		)
		if err := rows.Scan(&rec.ID, &event, &rec.ChatID, &rec.UserID, &rec.Decision, &rec.Reason, &rolesJSON, &created); err != nil {
			return nil, fmt.Errorf("audit: scan decision: %w", err)
		}
		rec.Event = membership.EventKind(event)
		rec.CreatedAt = fromMillis(created)
		if err := json.Unmarshal([]byte(rolesJSON), &rec.Roles); err != nil {
			return nil, fmt.Errorf("audit: decode roles of %s: %w", rec.ID, err)
		}
		if len(rec.Roles) == 0 {
			rec.Roles = nil
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Prune deletes decisions recorded before the cutoff.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM decisions WHERE created_at < ?`, toMillis(before))
	if err != nil {
		return 0, fmt.Errorf("audit: prune decisions: %w", err)
	}
	return res.RowsAffected()
}
