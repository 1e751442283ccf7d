// Package feeds keeps read-only events from subscribed calendars in memory
// and refreshes them on a cron schedule.
package feeds

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"daycal/internal/ics"
	appLog "daycal/internal/log"
	"daycal/internal/model"
)

// Fetcher is the part of ics.Fetcher the syncer needs.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, []error)
}

// Syncer owns the latest parsed events per source. A source that fails to
// fetch or parse keeps its previous events.
type Syncer struct {
	fetcher Fetcher
	sources []ics.Source
	loc     *time.Location

	mu     sync.RWMutex
	events map[string][]model.Event
	synced time.Time

	cron *cron.Cron
}

func NewSyncer(fetcher Fetcher, sources []ics.Source, loc *time.Location) *Syncer {
	if loc == nil {
		loc = time.Local
	}
	return &Syncer{
		fetcher: fetcher,
		sources: sources,
		loc:     loc,
		events:  make(map[string][]model.Event),
	}
}

// Refresh fetches and parses every source once. The returned error joins the
// per-source failures; successful sources are applied regardless.
func (s *Syncer) Refresh(ctx context.Context) error {
	if len(s.sources) == 0 {
		return nil
	}
	results, errs := s.fetcher.FetchAll(ctx, s.sources)

	parsed := make(map[string][]model.Event, len(results))
	for _, res := range results {
		evs, err := ics.ParseFeed(res.Source, res.Body, s.loc)
		if err != nil {
			errs = append(errs, fmt.Errorf("feeds: %s: %w", res.Source.ID, err))
			continue
		}
		parsed[res.Source.ID] = evs
	}

	s.mu.Lock()
	for id, evs := range parsed {
		s.events[id] = evs
	}
	s.synced = time.Now()
	s.mu.Unlock()

	appLog.Info("feeds refreshed", "sources", len(s.sources), "updated", len(parsed), "failed", len(errs))
	return errors.Join(errs...)
}

// Events returns the cached events of all sources in configuration order.
func (s *Syncer) Events() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Event
	for _, src := range s.sources {
		for _, ev := range s.events[src.ID] {
			out = append(out, ev.Clone())
		}
	}
	return out
}

// LastSync reports when Refresh last completed; zero before the first run.
func (s *Syncer) LastSync() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.synced
}

// Start runs an initial refresh and then refreshes on spec, a standard
// five-field cron expression or descriptor such as "@every 15m".
func (s *Syncer) Start(ctx context.Context, spec string) error {
	if s.cron != nil {
		return errors.New("feeds: syncer already started")
	}
	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(spec, func() {
		if err := s.Refresh(ctx); err != nil {
			appLog.Warn("feeds refresh incomplete", "err", err.Error())
		}
	}); err != nil {
		return fmt.Errorf("feeds: refresh schedule %q: %w", spec, err)
	}
	s.cron = c

	if err := s.Refresh(ctx); err != nil {
		appLog.Warn("feeds initial refresh incomplete", "err", err.Error())
	}
	c.Start()
	return nil
}

// Stop halts the refresh schedule and waits for a running refresh.
func (s *Syncer) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
}
