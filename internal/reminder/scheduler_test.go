package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daycal/internal/model"
	"daycal/internal/notify"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

type platform struct {
	mu      sync.Mutex
	granted bool
	sent    []notify.Notification
}

func (p *platform) PermissionGranted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted
}

func (p *platform) RequestPermission(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.granted = true
	return true, nil
}

func (p *platform) Notify(_ context.Context, n notify.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, n)
	return nil
}

type eventList []model.Event

func (l eventList) GetAllEvents(context.Context) ([]model.Event, error) { return l, nil }

func at(d, hh, mm int) time.Time {
	return time.Date(2024, 1, d, hh, mm, 0, 0, time.UTC)
}

func fixture(now time.Time, granted bool, events ...model.Event) (*Scheduler, *clock, *AlertStore, *platform) {
	c := &clock{t: now}
	alerts := NewAlertStore(c.Now)
	p := &platform{granted: granted}
	s := New(Options{
		Now:      c.Now,
		Alerts:   alerts,
		Platform: p,
		Events:   eventList(events),
	})
	return s, c, alerts, p
}

func dentist() model.Event {
	return model.Event{
		ID:        "dentist",
		Title:     "Dentist",
		Start:     at(1, 9, 30),
		End:       at(1, 10, 0),
		Location:  model.StringPtr("Main St"),
		Reminders: []int{15, 5},
	}
}

func TestScheduleTwiceSweepTwiceFiresOnce(t *testing.T) {
	ev := dentist()
	s, _, alerts, p := fixture(at(1, 9, 0), true, ev)
	ctx := context.Background()

	assert.Equal(t, 2, s.Schedule(ev))
	assert.Equal(t, 2, s.Schedule(ev))
	require.Len(t, s.Pending(), 2)

	assert.Equal(t, 1, s.Sweep(ctx, at(1, 9, 15)))
	assert.Equal(t, 0, s.Sweep(ctx, at(1, 9, 15)))
	assert.Equal(t, 0, s.fireDue(ctx, at(1, 9, 15)))

	require.Len(t, alerts.Active(), 1)
	alert := alerts.Active()[0]
	assert.Equal(t, "dentist", alert.EventID)
	assert.Equal(t, 15, alert.OffsetMinutes)
	assert.Equal(t, AlertTypeReminder, alert.Type)
	assert.Equal(t, "15 minutes until: Dentist\nLocation: Main St", alert.Message)

	require.Len(t, p.sent, 1)
	assert.Equal(t, notify.ReminderTitle, p.sent[0].Title)
	assert.Equal(t, "event-dentist", p.sent[0].Tag)
	assert.Equal(t, []Key{{InstanceID: "dentist", Offset: 15}}, s.Fired())

	// The five-minute reminder is still armed and fires on its own.
	pending := s.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, at(1, 9, 25), pending[0].FireAt)
	assert.Equal(t, 1, s.fireDue(ctx, at(1, 9, 25)))
	assert.Len(t, p.sent, 2)
}

func TestScheduleSkipsPastFireTimes(t *testing.T) {
	ev := dentist()
	s, _, _, _ := fixture(at(1, 9, 20), true)

	assert.Equal(t, 1, s.Schedule(ev))
	assert.Equal(t, 5, s.Pending()[0].Offset)
}

func TestCancelDisarmsPendingTimers(t *testing.T) {
	ev := dentist()
	s, _, alerts, p := fixture(at(1, 9, 0), true)

	s.Schedule(ev)
	s.Cancel(ev.ID)

	assert.Empty(t, s.Pending())
	assert.Equal(t, 0, s.fireDue(context.Background(), at(1, 10, 0)))
	assert.Empty(t, alerts.Active())
	assert.Empty(t, p.sent)
}

func TestRescheduleReplacesOldOffsets(t *testing.T) {
	ev := dentist()
	s, _, alerts, _ := fixture(at(1, 9, 0), true)
	ctx := context.Background()

	s.Schedule(ev)
	ev.Reminders = []int{10}
	s.Schedule(ev)

	pending := s.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 10, pending[0].Offset)

	assert.Equal(t, 0, s.fireDue(ctx, at(1, 9, 15)))
	assert.Equal(t, 1, s.fireDue(ctx, at(1, 9, 20)))
	assert.Len(t, alerts.Active(), 1)
}

func TestPermissionDeniedStillAlertsInApp(t *testing.T) {
	ev := dentist()
	s, _, alerts, p := fixture(at(1, 9, 0), false)

	s.Schedule(ev)
	assert.Equal(t, 1, s.fireDue(context.Background(), at(1, 9, 15)))

	assert.Len(t, alerts.Active(), 1)
	assert.Empty(t, p.sent)
}

func TestExistingAlertSuppressesDuplicateInApp(t *testing.T) {
	ev := dentist()
	s, _, alerts, p := fixture(at(1, 9, 0), true, ev)
	alerts.ShowAlert(Alert{Type: AlertTypeReminder, EventID: "dentist", OffsetMinutes: 15})

	assert.Equal(t, 1, s.Sweep(context.Background(), at(1, 9, 15)))
	assert.Len(t, alerts.Active(), 1)
	assert.Len(t, p.sent, 1)
}

func TestSweepToleranceAndHorizon(t *testing.T) {
	ev := dentist()
	s, _, _, _ := fixture(at(1, 0, 0), true, ev)
	ctx := context.Background()

	assert.Equal(t, 0, s.Sweep(ctx, at(1, 9, 13)))
	assert.Equal(t, 1, s.Sweep(ctx, at(1, 9, 14)))
	assert.Equal(t, 1, s.Sweep(ctx, at(1, 9, 26)))
	assert.Equal(t, 0, s.Sweep(ctx, at(1, 9, 27)))
}

func TestSweepSkipsCompletedEvents(t *testing.T) {
	ev := dentist()
	ev.Completed = true
	s, _, alerts, _ := fixture(at(1, 9, 0), true, ev)

	assert.Equal(t, 0, s.Schedule(ev))
	assert.Equal(t, 0, s.Sweep(context.Background(), at(1, 9, 15)))
	assert.Empty(t, alerts.Active())
}

func TestRecurringEventsRemindPerOccurrence(t *testing.T) {
	ev := model.Event{
		ID:         "pills",
		Title:      "Pills",
		Start:      at(1, 9, 0),
		End:        at(1, 9, 5),
		Reminders:  []int{10},
		Recurrence: &model.Recurrence{Frequency: model.FrequencyDaily, Interval: 1},
	}
	s, c, alerts, p := fixture(at(2, 8, 0), true, ev)
	ctx := context.Background()

	require.Equal(t, 1, s.Schedule(ev))
	pending := s.Pending()
	assert.Equal(t, "pills_20240102", pending[0].InstanceID)
	assert.Equal(t, "pills", pending[0].EventID)

	assert.Equal(t, 1, s.fireDue(ctx, at(2, 8, 50)))

	c.Set(at(3, 8, 50))
	assert.Equal(t, 1, s.Sweep(ctx, at(3, 8, 50)))

	// The first occurrence retired an hour after its start.
	assert.Equal(t, []Key{{"pills_20240103", 10}}, s.Fired())
	require.Len(t, p.sent, 2)
	assert.Equal(t, "event-pills", p.sent[1].Tag)
	var ids []string
	for _, a := range alerts.Active() {
		ids = append(ids, a.EventID)
	}
	assert.Equal(t, []string{"pills_20240103"}, ids)
}

func TestFiredEntriesRetireAfterGrace(t *testing.T) {
	ev := dentist()
	s, _, _, _ := fixture(at(1, 9, 0), true)
	ctx := context.Background()

	s.Schedule(ev)
	s.fireDue(ctx, at(1, 9, 25))
	require.Len(t, s.Fired(), 2)

	assert.Equal(t, 0, s.Retire(at(1, 10, 29)))
	assert.Equal(t, 2, s.Retire(at(1, 10, 30)))
	assert.Empty(t, s.Fired())
}

func TestTimerLoopDeliversOnTime(t *testing.T) {
	alerts := NewAlertStore(nil)
	s := New(Options{Alerts: alerts})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	start := time.Now().Add(80 * time.Millisecond)
	ev := model.Event{ID: "soon", Title: "Soon", Start: start, End: start.Add(time.Minute), Reminders: []int{0}}
	require.Equal(t, 1, s.Schedule(ev))

	require.Eventually(t, func() bool { return len(alerts.Active()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, s.Pending())
	assert.Equal(t, []Key{{"soon", 0}}, s.Fired())
}

func TestTimerLoopIgnoresCancelledEntry(t *testing.T) {
	alerts := NewAlertStore(nil)
	s := New(Options{Alerts: alerts})
	require.NoError(t, s.Start(context.Background()))

	start := time.Now().Add(50 * time.Millisecond)
	s.Schedule(model.Event{ID: "gone", Title: "Gone", Start: start, End: start.Add(time.Minute), Reminders: []int{0}})
	s.Cancel("gone")

	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, alerts.Active())

	s.Stop()
	assert.ErrorIs(t, s.Start(context.Background()), ErrStopped)
	assert.Equal(t, 0, s.Schedule(model.Event{ID: "late", Title: "Late", Start: start.Add(time.Hour), End: start.Add(2 * time.Hour), Reminders: []int{0}}))
}

func TestMovedEventRemindsAgain(t *testing.T) {
	ev := dentist()
	ev.Reminders = []int{15}
	s, c, _, p := fixture(at(1, 9, 0), true)
	ctx := context.Background()

	s.Schedule(ev)
	require.Equal(t, 1, s.fireDue(ctx, at(1, 9, 15)))

	// Pushed back by a quarter hour, well inside the grace period.
	c.Set(at(1, 9, 20))
	ev.Start, ev.End = at(1, 9, 45), at(1, 10, 15)
	require.Equal(t, 1, s.Schedule(ev))
	assert.Equal(t, at(1, 9, 30), s.Pending()[0].FireAt)

	assert.Equal(t, 1, s.fireDue(ctx, at(1, 9, 30)))
	assert.Len(t, p.sent, 2)
	assert.False(t, s.fire(ctx, newEntry(model.Instance{Event: ev, InstanceID: ev.ID}, 15)))
}

func TestLoopExitsWhenContextCancelled(t *testing.T) {
	s := New(Options{Alerts: NewAlertStore(nil)})
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, s.Start(ctx))

	cancel()
	select {
	case <-s.doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timer loop still running after cancel")
	}
	s.Stop()
}
