// Package app wires the event store, the reminder scheduler, subscribed
// feeds and the calendar computations into one service used by the HTTP
// and CLI surfaces.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"daycal/internal/calendar"
	"daycal/internal/feeds"
	"daycal/internal/ics"
	appLog "daycal/internal/log"
	"daycal/internal/model"
	"daycal/internal/notify"
	"daycal/internal/reminder"
	"daycal/internal/store"
)

type Options struct {
	Store     store.Store
	Scheduler *reminder.Scheduler
	Alerts    *reminder.AlertStore
	Platform  notify.Platform // optional
	Feeds     *feeds.Syncer   // optional
	Suggester *calendar.Suggester
	Location  *time.Location
	Now       func() time.Time
}

type App struct {
	store     store.Store
	scheduler *reminder.Scheduler
	alerts    *reminder.AlertStore
	platform  notify.Platform
	feeds     *feeds.Syncer
	suggester *calendar.Suggester
	loc       *time.Location
	now       func() time.Time
}

func New(opts Options) *App {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Suggester == nil {
		opts.Suggester = calendar.NewSuggester(calendar.SuggesterConfig{})
	}
	return &App{
		store:     opts.Store,
		scheduler: opts.Scheduler,
		alerts:    opts.Alerts,
		platform:  opts.Platform,
		feeds:     opts.Feeds,
		suggester: opts.Suggester,
		loc:       opts.Location,
		now:       opts.Now,
	}
}

// Location is the zone used for calendar-day arithmetic.
func (a *App) Location() *time.Location { return a.loc }

// Start arms reminders for every stored event and starts the scheduler and
// the feed refresh schedule.
func (a *App) Start(ctx context.Context, refreshSpec string) error {
	if err := a.ScheduleAll(ctx); err != nil {
		return err
	}
	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("app: start scheduler: %w", err)
		}
	}
	if a.feeds != nil && refreshSpec != "" {
		if err := a.feeds.Start(ctx, refreshSpec); err != nil {
			return fmt.Errorf("app: start feeds: %w", err)
		}
	}
	return nil
}

// Close stops background work and closes the store.
func (a *App) Close() error {
	if a.feeds != nil {
		a.feeds.Stop()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if c, ok := a.platform.(io.Closer); ok {
		if err := c.Close(); err != nil {
			appLog.Warn("platform close failed", "err", err.Error())
		}
	}
	return a.store.Close()
}

// RefreshFeeds fetches every subscribed feed once.
func (a *App) RefreshFeeds(ctx context.Context) error {
	if a.feeds == nil {
		return nil
	}
	return a.feeds.Refresh(ctx)
}

// ScheduleAll arms reminders for all stored events.
func (a *App) ScheduleAll(ctx context.Context) error {
	if a.scheduler == nil {
		return nil
	}
	events, err := a.store.GetAllEvents(ctx)
	if err != nil {
		return err
	}
	armed := 0
	for _, ev := range events {
		armed += a.scheduler.Schedule(ev)
	}
	appLog.Info("reminders scheduled", "events", len(events), "armed", armed)
	return nil
}

func (a *App) Events(ctx context.Context) ([]model.Event, error) {
	return a.store.GetAllEvents(ctx)
}

func (a *App) GetEvent(ctx context.Context, id string) (model.Event, error) {
	return a.store.GetEvent(ctx, id)
}

// AddEvent stores ev and arms its reminders.
func (a *App) AddEvent(ctx context.Context, ev model.Event) (model.Event, error) {
	added, err := a.store.AddEvent(ctx, ev)
	if err != nil {
		return model.Event{}, err
	}
	a.schedule(added)
	appLog.Info("event added", "id", added.ID, "title", added.Title, "recurring", added.IsRecurring())
	return added, nil
}

// UpdateEvent applies p and re-arms reminders; old timers are cancelled
// before the new ones are armed.
func (a *App) UpdateEvent(ctx context.Context, id string, p model.EventPatch) (model.Event, error) {
	updated, err := a.store.UpdateEvent(ctx, id, p)
	if err != nil {
		return model.Event{}, err
	}
	a.schedule(updated)
	appLog.Info("event updated", "id", id, "reminders_changed", p.RemindersChanged())
	return updated, nil
}

// DeleteEvent removes the event and cancels its reminders.
func (a *App) DeleteEvent(ctx context.Context, id string) error {
	if err := a.store.DeleteEvent(ctx, id); err != nil {
		return err
	}
	if a.scheduler != nil {
		a.scheduler.Cancel(id)
	}
	appLog.Info("event deleted", "id", id)
	return nil
}

func (a *App) schedule(ev model.Event) {
	if a.scheduler != nil {
		a.scheduler.Schedule(ev)
	}
}

// allEvents is stored events followed by feed events.
func (a *App) allEvents(ctx context.Context) ([]model.Event, error) {
	events, err := a.store.GetAllEvents(ctx)
	if err != nil {
		return nil, err
	}
	if a.feeds != nil {
		events = append(events, a.feeds.Events()...)
	}
	return events, nil
}

// Instances returns every occurrence overlapping [from, to), including
// feed events and occurrences that began before from.
func (a *App) Instances(ctx context.Context, from, to time.Time) (calendar.ExpandResult, error) {
	events, err := a.allEvents(ctx)
	if err != nil {
		return calendar.ExpandResult{}, err
	}
	res := calendar.ExpandCovering(events, from, to)
	kept := res.Instances[:0]
	for _, inst := range res.Instances {
		s, e := calendar.Span(inst)
		if calendar.Overlaps(from, to, s, e) {
			kept = append(kept, inst)
		}
	}
	res.Instances = kept
	return res, nil
}

// Conflicts lists the instances overlapping [start, end), ignoring
// excludeID.
func (a *App) Conflicts(ctx context.Context, start, end time.Time, excludeID string) ([]model.Instance, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end must be after start", model.ErrInvalidEvent)
	}
	events, err := a.allEvents(ctx)
	if err != nil {
		return nil, err
	}
	return calendar.ConflictsFor(start.In(a.loc), end.In(a.loc), events, excludeID), nil
}

// SuggestSlots proposes free slots on date or the following days.
func (a *App) SuggestSlots(ctx context.Context, date time.Time, durationMinutes int, category string) ([]model.Slot, error) {
	events, err := a.allEvents(ctx)
	if err != nil {
		return nil, err
	}
	return a.suggester.Suggest(events, date.In(a.loc), durationMinutes, category), nil
}

// Export writes the stored events as an iCalendar document.
func (a *App) Export(ctx context.Context, w io.Writer) error {
	events, err := a.store.GetAllEvents(ctx)
	if err != nil {
		return err
	}
	return ics.Encode(w, events, a.now())
}

// ImportResult summarizes one import.
type ImportResult struct {
	Added   []model.Event `json:"added"`
	Dropped int           `json:"dropped"` // blocks the decoder could not use
	Failed  int           `json:"failed"`  // decoded events the store rejected
}

// Import decodes an iCalendar document and adds every usable event. Bad
// blocks and rejected events are counted and skipped. An imported UID that
// is already taken gets a fresh id.
func (a *App) Import(ctx context.Context, r io.Reader) (ImportResult, error) {
	dec, err := ics.Decode(r, ics.DecodeOptions{Location: a.loc})
	if err != nil {
		return ImportResult{}, err
	}

	res := ImportResult{Added: make([]model.Event, 0, len(dec.Events)), Dropped: dec.Dropped}
	for _, ev := range dec.Events {
		added, err := a.AddEvent(ctx, ev)
		if errors.Is(err, store.ErrExists) {
			ev.ID = ""
			added, err = a.AddEvent(ctx, ev)
		}
		if err != nil {
			res.Failed++
			appLog.Warn("import: event rejected", "title", ev.Title, "err", err.Error())
			continue
		}
		res.Added = append(res.Added, added)
	}
	appLog.Info("import completed", "added", len(res.Added), "dropped", res.Dropped, "failed", res.Failed)
	return res, nil
}

func (a *App) Alerts() []reminder.Alert {
	if a.alerts == nil {
		return nil
	}
	return a.alerts.Active()
}

func (a *App) DismissAlert(id string) bool {
	if a.alerts == nil {
		return false
	}
	return a.alerts.Dismiss(id)
}

// RequestNotificationPermission asks the platform channel for permission.
func (a *App) RequestNotificationPermission(ctx context.Context) (bool, error) {
	if a.platform == nil {
		return false, notify.ErrPermissionDenied
	}
	return a.platform.RequestPermission(ctx)
}

// NotificationPermission reports the platform permission state.
func (a *App) NotificationPermission() bool {
	return a.platform != nil && a.platform.PermissionGranted()
}
