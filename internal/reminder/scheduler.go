// Package reminder arms per-occurrence reminders on a single timer and
// delivers them at most once through the in-app and platform channels.
package reminder

import (
	"container/heap"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"daycal/internal/calendar"
	appLog "daycal/internal/log"
	"daycal/internal/metric"
	"daycal/internal/model"
	"daycal/internal/notify"
)

const (
	DefaultHorizon       = 24 * time.Hour
	DefaultTolerance     = time.Minute
	DefaultGrace         = time.Hour
	DefaultSweepSpec     = "@every 1m"
	DefaultAlertDuration = 10 * time.Second
)

var ErrStopped = errors.New("reminder: scheduler stopped")

// EventLister supplies the stored events scanned by the sweep.
type EventLister interface {
	GetAllEvents(ctx context.Context) ([]model.Event, error)
}

type Options struct {
	Now      func() time.Time
	Alerts   AlertSink
	Platform notify.Platform // optional
	Events   EventLister     // optional; without it Sweep only retires

	Horizon       time.Duration // sweep look-ahead and arming window
	Tolerance     time.Duration // sweep match tolerance around each offset
	Grace         time.Duration // fired entries retire at event start + Grace
	SweepSpec     string        // cron spec for the periodic sweep
	AlertDuration time.Duration // in-app alert lifetime
}

func (o *Options) normalize() {
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Alerts == nil {
		o.Alerts = NewAlertStore(o.Now)
	}
	if o.Horizon <= 0 {
		o.Horizon = DefaultHorizon
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.Grace <= 0 {
		o.Grace = DefaultGrace
	}
	if o.SweepSpec == "" {
		o.SweepSpec = DefaultSweepSpec
	}
	if o.AlertDuration <= 0 {
		o.AlertDuration = DefaultAlertDuration
	}
}

// Scheduler owns the armed and fired reminder entries. All state changes
// happen under one mutex; delivery runs outside it.
type Scheduler struct {
	opts Options

	mu      sync.Mutex
	queue   entryQueue
	armed   map[Key]*Entry
	fired   map[Key]firedRecord
	started bool
	stopped bool

	wakeup chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
	cron   *cron.Cron
}

func New(opts Options) *Scheduler {
	opts.normalize()
	return &Scheduler{
		opts:   opts,
		armed:  make(map[Key]*Entry),
		fired:  make(map[Key]firedRecord),
		wakeup: make(chan struct{}, 1),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Alerts returns the in-app sink reminders are delivered to.
func (s *Scheduler) Alerts() AlertSink { return s.opts.Alerts }

// Start launches the timer loop and registers the periodic sweep.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(s.opts.SweepSpec, func() {
		s.Sweep(ctx, s.opts.Now())
	}); err != nil {
		return err
	}
	s.cron = c
	s.started = true
	heap.Init(&s.queue)
	c.Start()
	go s.loop(ctx)

	appLog.Info("reminder scheduler started", "sweep", s.opts.SweepSpec, "horizon", s.opts.Horizon.String())
	return nil
}

// Stop cancels the timer loop and the sweep together and waits for both.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started || s.stopped {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	c := s.cron
	s.mu.Unlock()

	<-c.Stop().Done()
	<-s.doneCh
	appLog.Info("reminder scheduler stopped")
}

// Schedule cancels every pending reminder of ev and arms one entry per
// offset and occurrence whose fire time is still in the future and within
// the horizon. Later occurrences are picked up by the sweep.
func (s *Scheduler) Schedule(ev model.Event) int {
	s.Cancel(ev.ID)
	if ev.Completed || len(ev.Reminders) == 0 {
		return 0
	}

	now := s.opts.Now()
	lookAhead := s.opts.Horizon + time.Duration(slices.Max(ev.Reminders))*time.Minute

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0
	}

	armed := 0
	for _, inst := range occurrences(ev, now, now.Add(lookAhead)) {
		for _, off := range ev.Reminders {
			e := newEntry(inst, off)
			if !e.FireAt.After(now) {
				continue
			}
			s.armed[e.Key] = e
			heap.Push(&s.queue, e)
			armed++
		}
	}
	metric.RemindersPending.Set(float64(len(s.armed)))
	if armed > 0 {
		s.signalWakeup()
	}
	appLog.Debug("reminders armed", "event", ev.ID, "count", armed)
	return armed
}

// Cancel disarms every pending reminder whose originating event is eventID.
// An entry already popped for delivery is not affected.
func (s *Scheduler) Cancel(eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.armed {
		if e.EventID == eventID {
			delete(s.armed, k)
			n++
		}
	}
	if n > 0 {
		metric.RemindersPending.Set(float64(len(s.armed)))
		s.signalWakeup()
		appLog.Debug("reminders cancelled", "event", eventID, "count", n)
	}
}

// Sweep scans non-completed events starting within the horizon and fires
// every offset whose distance from the time until start is within the
// tolerance. It also retires old fired entries. It returns the number of
// reminders delivered.
func (s *Scheduler) Sweep(ctx context.Context, now time.Time) int {
	defer s.Retire(now)
	if s.opts.Events == nil {
		return 0
	}

	events, err := s.opts.Events.GetAllEvents(ctx)
	if err != nil {
		appLog.Error("reminder sweep: list events failed", err)
		return 0
	}

	tol := s.opts.Tolerance
	delivered := 0
	for _, ev := range events {
		if ev.Completed || len(ev.Reminders) == 0 {
			continue
		}
		for _, inst := range occurrences(ev, now.Add(-tol), now.Add(s.opts.Horizon)) {
			until := inst.Start.Sub(now)
			if until < -tol || until > s.opts.Horizon {
				continue
			}
			for _, off := range ev.Reminders {
				diff := until - time.Duration(off)*time.Minute
				if diff < -tol || diff > tol {
					continue
				}
				if s.fire(ctx, newEntry(inst, off)) {
					delivered++
				}
			}
		}
	}
	return delivered
}

// Retire drops fired entries whose retirement instant has passed.
func (s *Scheduler) Retire(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, rec := range s.fired {
		if !now.Before(rec.retireAt) {
			delete(s.fired, k)
			n++
		}
	}
	return n
}

// Pending returns the armed entries ordered by fire time.
func (s *Scheduler) Pending() []Entry {
	s.mu.Lock()
	out := make([]Entry, 0, len(s.armed))
	for _, e := range s.armed {
		out = append(out, *e)
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b Entry) int {
		if c := a.FireAt.Compare(b.FireAt); c != 0 {
			return c
		}
		if a.InstanceID != b.InstanceID {
			if a.InstanceID < b.InstanceID {
				return -1
			}
			return 1
		}
		return a.Offset - b.Offset
	})
	return out
}

// Fired returns the keys currently held in the fired state.
func (s *Scheduler) Fired() []Key {
	s.mu.Lock()
	out := make([]Key, 0, len(s.fired))
	for k := range s.fired {
		out = append(out, k)
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b Key) int {
		if a.InstanceID != b.InstanceID {
			if a.InstanceID < b.InstanceID {
				return -1
			}
			return 1
		}
		return a.Offset - b.Offset
	})
	return out
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneCh)

	var timer *time.Timer
	defer func() { stopTimer(timer) }()
	for {
		next, ok := s.peek()
		if !ok {
			select {
			case <-s.wakeup:
				continue
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}

		wait := next.Sub(s.opts.Now())
		if wait < 0 {
			wait = 0
		}
		timer = resetTimer(timer, wait)

		select {
		case <-timer.C:
			s.fireDue(ctx, s.opts.Now())
		case <-s.wakeup:
			continue
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// peek returns the fire time of the earliest live entry, discarding stale
// heap entries on the way.
func (s *Scheduler) peek() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) > 0 {
		head := s.queue[0]
		if s.armed[head.Key] == head {
			return head.FireAt, true
		}
		heap.Pop(&s.queue)
	}
	return time.Time{}, false
}

// fireDue pops and delivers every live entry due at now.
func (s *Scheduler) fireDue(ctx context.Context, now time.Time) int {
	var due []*Entry
	s.mu.Lock()
	for len(s.queue) > 0 && !s.queue[0].FireAt.After(now) {
		e := heap.Pop(&s.queue).(*Entry)
		if s.armed[e.Key] != e {
			continue
		}
		delete(s.armed, e.Key)
		due = append(due, e)
	}
	metric.RemindersPending.Set(float64(len(s.armed)))
	s.mu.Unlock()

	delivered := 0
	for _, e := range due {
		if s.fire(ctx, e) {
			delivered++
		}
	}
	s.Retire(now)
	return delivered
}

// fire moves e to the fired state and delivers it. It reports false when
// the key had already fired for the same start; a moved occurrence fires
// again.
func (s *Scheduler) fire(ctx context.Context, e *Entry) bool {
	s.mu.Lock()
	if rec, done := s.fired[e.Key]; done && rec.start.Equal(e.Start) {
		s.mu.Unlock()
		metric.RemindersSkipped.WithLabelValues("already_fired").Inc()
		return false
	}
	s.fired[e.Key] = firedRecord{start: e.Start, retireAt: e.Start.Add(s.opts.Grace)}
	s.mu.Unlock()

	body := notify.ReminderBody(e.Title, e.Offset, e.Location)

	if s.opts.Alerts.HasAlertForEvent(e.InstanceID, e.Offset) {
		metric.RemindersSkipped.WithLabelValues("alert_exists").Inc()
	} else {
		s.opts.Alerts.ShowAlert(Alert{
			Type:          AlertTypeReminder,
			Title:         e.Title,
			Message:       body,
			EventID:       e.InstanceID,
			OffsetMinutes: e.Offset,
			DurationMs:    s.opts.AlertDuration.Milliseconds(),
		})
		metric.RemindersFired.WithLabelValues(metric.ChannelInApp).Inc()
	}

	p := s.opts.Platform
	switch {
	case p == nil || !p.PermissionGranted():
		metric.RemindersSkipped.WithLabelValues("permission").Inc()
	default:
		err := p.Notify(ctx, notify.Notification{
			Title: notify.ReminderTitle,
			Body:  body,
			Tag:   notify.EventTag(e.EventID),
		})
		if err != nil {
			appLog.Warn("platform notification failed", "event", e.EventID, "err", err.Error())
			metric.RemindersSkipped.WithLabelValues("platform_error").Inc()
		} else {
			metric.RemindersFired.WithLabelValues(metric.ChannelPlatform).Inc()
		}
	}

	appLog.Info("reminder fired", "event", e.EventID, "instance", e.InstanceID, "offset", e.Offset)
	return true
}

func (s *Scheduler) signalWakeup() {
	select {
	case s.wakeup <- struct{}{}:
	default:
	}
}

func occurrences(ev model.Event, from, to time.Time) []model.Instance {
	if !ev.IsRecurring() {
		return []model.Instance{{Event: ev, InstanceID: ev.ID}}
	}
	return calendar.Expand([]model.Event{ev}, from, to).Instances
}

func newEntry(inst model.Instance, offset int) *Entry {
	return &Entry{
		Key:      Key{InstanceID: inst.InstanceID, Offset: offset},
		EventID:  inst.ID,
		Title:    inst.Title,
		Location: inst.LocationOrEmpty(),
		Start:    inst.Start,
		FireAt:   inst.Start.Add(-time.Duration(offset) * time.Minute),
	}
}
