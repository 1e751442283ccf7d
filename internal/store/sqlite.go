package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	appLog "daycal/internal/log"
	"daycal/internal/model"
)

// SQLite implements Store on a single-file database.
type SQLite struct {
	db  *sql.DB
	loc *time.Location
	now func() time.Time
}

// NewSQLite opens or creates the database at path and migrates it.
func NewSQLite(path string, loc *time.Location) (*SQLite, error) {
	if loc == nil {
		loc = time.Local
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLite{db: db, loc: loc, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS events (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		category    TEXT NOT NULL DEFAULT '',
		start_at    TEXT NOT NULL,
		end_at      TEXT NOT NULL,
		all_day     INTEGER NOT NULL DEFAULT 0,
		location    TEXT,
		notes       TEXT,
		completed   INTEGER NOT NULL DEFAULT 0,
		reminders   TEXT NOT NULL DEFAULT '[]',
		recurrence  TEXT,
		created_at  TEXT NOT NULL,
		updated_at  TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_at);
	`)
	return err
}

const eventColumns = `id, title, category, start_at, end_at, all_day, location, notes,
	completed, reminders, recurrence, created_at, updated_at`

func (s *SQLite) GetAllEvents(ctx context.Context) ([]model.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]model.Event, 0)
	for rows.Next() {
		ev, err := s.scan(rows)
		if err != nil {
			appLog.Error("store: skipping unreadable event row", err)
			continue
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sortEvents(events)
	return events, nil
}

func (s *SQLite) GetEvent(ctx context.Context, id string) (model.Event, error) {
	return s.get(ctx, s.db, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLite) get(ctx context.Context, q queryer, id string) (model.Event, error) {
	row := q.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	ev, err := s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ev, err
}

func (s *SQLite) AddEvent(ctx context.Context, ev model.Event) (model.Event, error) {
	ev, err := prepareNew(ev, s.now())
	if err != nil {
		return model.Event{}, err
	}
	args, err := eventArgs(ev)
	if err != nil {
		return model.Event{}, err
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return model.Event{}, fmt.Errorf("%w: %s", ErrExists, ev.ID)
		}
		return model.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return s.normalize(ev), nil
}

func (s *SQLite) UpdateEvent(ctx context.Context, id string, p model.EventPatch) (model.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Event{}, err
	}
	defer tx.Rollback()

	cur, err := s.get(ctx, tx, id)
	if err != nil {
		return model.Event{}, err
	}
	next, err := cur.Apply(p)
	if err != nil {
		return model.Event{}, err
	}
	next.UpdatedAt = s.now()

	args, err := eventArgs(next)
	if err != nil {
		return model.Event{}, err
	}
	// Drop the id from the front and append it for the WHERE clause.
	args = append(args[1:], id)
	if _, err := tx.ExecContext(ctx, `UPDATE events SET
		title = ?, category = ?, start_at = ?, end_at = ?, all_day = ?, location = ?, notes = ?,
		completed = ?, reminders = ?, recurrence = ?, created_at = ?, updated_at = ?
		WHERE id = ?`, args...); err != nil {
		return model.Event{}, fmt.Errorf("update event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.Event{}, err
	}
	return s.normalize(next), nil
}

func (s *SQLite) DeleteEvent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (s *SQLite) parseTime(v string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(s.loc), nil
}

// normalize returns ev the way a later read would: times in s.loc.
func (s *SQLite) normalize(ev model.Event) model.Event {
	ev = ev.Clone()
	ev.Start, ev.End = ev.Start.In(s.loc), ev.End.In(s.loc)
	ev.CreatedAt, ev.UpdatedAt = ev.CreatedAt.In(s.loc), ev.UpdatedAt.In(s.loc)
	if ev.Recurrence != nil && ev.Recurrence.Until != nil {
		u := ev.Recurrence.Until.In(s.loc)
		ev.Recurrence.Until = &u
	}
	return ev
}

func eventArgs(ev model.Event) ([]any, error) {
	reminders, err := json.Marshal(ev.Reminders)
	if err != nil {
		return nil, err
	}
	var recurrence sql.NullString
	if ev.Recurrence != nil {
		r := ev.Recurrence.Clone()
		if r.Until != nil {
			u := r.Until.UTC()
			r.Until = &u
		}
		data, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		recurrence = sql.NullString{String: string(data), Valid: true}
	}
	return []any{
		ev.ID, ev.Title, ev.Category,
		formatTime(ev.Start), formatTime(ev.End), ev.AllDay,
		nullString(ev.Location), nullString(ev.Notes),
		ev.Completed, string(reminders), recurrence,
		formatTime(ev.CreatedAt), formatTime(ev.UpdatedAt),
	}, nil
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *SQLite) scan(row scanner) (model.Event, error) {
	var (
		ev                       model.Event
		start, end, created, upd string
		location, notes, rec     sql.NullString
		reminders                string
	)
	if err := row.Scan(&ev.ID, &ev.Title, &ev.Category, &start, &end, &ev.AllDay,
		&location, &notes, &ev.Completed, &reminders, &rec, &created, &upd); err != nil {
		return model.Event{}, err
	}

	var err error
	if ev.Start, err = s.parseTime(start); err != nil {
		return model.Event{}, fmt.Errorf("event %s start: %w", ev.ID, err)
	}
	if ev.End, err = s.parseTime(end); err != nil {
		return model.Event{}, fmt.Errorf("event %s end: %w", ev.ID, err)
	}
	if ev.CreatedAt, err = s.parseTime(created); err != nil {
		return model.Event{}, fmt.Errorf("event %s created_at: %w", ev.ID, err)
	}
	if ev.UpdatedAt, err = s.parseTime(upd); err != nil {
		return model.Event{}, fmt.Errorf("event %s updated_at: %w", ev.ID, err)
	}
	if location.Valid {
		ev.Location = model.StringPtr(location.String)
	}
	if notes.Valid {
		ev.Notes = model.StringPtr(notes.String)
	}
	if err := json.Unmarshal([]byte(reminders), &ev.Reminders); err != nil {
		return model.Event{}, fmt.Errorf("event %s reminders: %w", ev.ID, err)
	}
	if rec.Valid {
		var r model.Recurrence
		if err := json.Unmarshal([]byte(rec.String), &r); err != nil {
			return model.Event{}, fmt.Errorf("event %s recurrence: %w", ev.ID, err)
		}
		if r.Until != nil {
			u := r.Until.In(s.loc)
			r.Until = &u
		}
		ev.Recurrence = &r
	}
	return ev, nil
}
