// Package store persists calendar events.
package store

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"daycal/internal/model"
)

var (
	ErrNotFound = errors.New("store: event not found")
	ErrExists   = errors.New("store: event id already exists")
)

// Store is the event collaborator used by the app service and the reminder
// sweep. Returned events are copies.
type Store interface {
	GetAllEvents(ctx context.Context) ([]model.Event, error)
	GetEvent(ctx context.Context, id string) (model.Event, error)

	// AddEvent validates ev, assigns an id when it has none and fills missing
	// timestamps.
	AddEvent(ctx context.Context, ev model.Event) (model.Event, error)

	// UpdateEvent merges a partial update and bumps UpdatedAt.
	UpdateEvent(ctx context.Context, id string, p model.EventPatch) (model.Event, error)

	DeleteEvent(ctx context.Context, id string) error
	Close() error
}

// Open returns a Memory store for "" or ":memory:" and a SQLite store for
// any other path. loc is the zone events are returned in.
func Open(path string, loc *time.Location) (Store, error) {
	if path == "" || path == ":memory:" {
		return NewMemory(), nil
	}
	return NewSQLite(path, loc)
}

func prepareNew(ev model.Event, now time.Time) (model.Event, error) {
	if err := ev.Validate(); err != nil {
		return model.Event{}, err
	}
	ev = ev.Clone()
	ev.Location = model.StringPtr(ev.LocationOrEmpty())
	ev.Notes = model.StringPtr(ev.NotesOrEmpty())
	if strings.TrimSpace(ev.ID) == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now
	}
	if ev.UpdatedAt.IsZero() {
		ev.UpdatedAt = ev.CreatedAt
	}
	return ev, nil
}

func sortEvents(events []model.Event) {
	slices.SortFunc(events, func(a, b model.Event) int {
		if c := a.Start.Compare(b.Start); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
