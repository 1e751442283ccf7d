package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"daycal/internal/model"
)

// Memory is a map-backed Store for tests and ephemeral runs.
type Memory struct {
	mu     sync.RWMutex
	events map[string]model.Event
	now    func() time.Time
}

func NewMemory() *Memory {
	return &Memory{events: make(map[string]model.Event), now: time.Now}
}

func (m *Memory) GetAllEvents(context.Context) ([]model.Event, error) {
	m.mu.RLock()
	out := make([]model.Event, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.Clone())
	}
	m.mu.RUnlock()
	sortEvents(out)
	return out, nil
}

func (m *Memory) GetEvent(_ context.Context, id string) (model.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.events[id]
	if !ok {
		return model.Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ev.Clone(), nil
}

func (m *Memory) AddEvent(_ context.Context, ev model.Event) (model.Event, error) {
	ev, err := prepareNew(ev, m.now())
	if err != nil {
		return model.Event{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.events[ev.ID]; taken {
		return model.Event{}, fmt.Errorf("%w: %s", ErrExists, ev.ID)
	}
	m.events[ev.ID] = ev
	return ev.Clone(), nil
}

func (m *Memory) UpdateEvent(_ context.Context, id string, p model.EventPatch) (model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.events[id]
	if !ok {
		return model.Event{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next, err := cur.Apply(p)
	if err != nil {
		return model.Event{}, err
	}
	next.UpdatedAt = m.now()
	m.events[id] = next
	return next.Clone(), nil
}

func (m *Memory) DeleteEvent(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.events, id)
	return nil
}

func (m *Memory) Close() error { return nil }
