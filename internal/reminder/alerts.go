package reminder

import (
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// AlertTypeReminder is the Type of alerts raised by the scheduler.
const AlertTypeReminder = "reminder"

// Alert is one in-app notification.
type Alert struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Title         string    `json:"title"`
	Message       string    `json:"message"`
	EventID       string    `json:"eventId"`
	OffsetMinutes int       `json:"offsetMinutes"`
	DurationMs    int64     `json:"durationMs"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (a Alert) expired(now time.Time) bool {
	if a.DurationMs <= 0 {
		return false
	}
	return !now.Before(a.CreatedAt.Add(time.Duration(a.DurationMs) * time.Millisecond))
}

// AlertSink receives in-app alerts.
type AlertSink interface {
	ShowAlert(a Alert) Alert
	HasAlertForEvent(eventID string, offsetMinutes int) bool
}

// AlertStore is the in-memory AlertSink. Alerts with a positive DurationMs
// disappear once it has elapsed.
type AlertStore struct {
	now func() time.Time

	mu      sync.Mutex
	alerts  []Alert
	entropy *rand.Rand
}

func NewAlertStore(now func() time.Time) *AlertStore {
	if now == nil {
		now = time.Now
	}
	return &AlertStore{
		now:     now,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ShowAlert stores a, assigning its id and creation time.
func (s *AlertStore) ShowAlert(a Alert) Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	a.ID = ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
	a.CreatedAt = now
	s.prune(now)
	s.alerts = append(s.alerts, a)
	return a
}

func (s *AlertStore) HasAlertForEvent(eventID string, offsetMinutes int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(s.now())
	for _, a := range s.alerts {
		if a.EventID == eventID && a.OffsetMinutes == offsetMinutes {
			return true
		}
	}
	return false
}

// Active returns the visible alerts, oldest first.
func (s *AlertStore) Active() []Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(s.now())
	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// Dismiss removes one alert and reports whether it existed.
func (s *AlertStore) Dismiss(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.alerts {
		if a.ID == id {
			s.alerts = append(s.alerts[:i], s.alerts[i+1:]...)
			return true
		}
	}
	return false
}

func (s *AlertStore) Clear() {
	s.mu.Lock()
	s.alerts = nil
	s.mu.Unlock()
}

func (s *AlertStore) prune(now time.Time) {
	kept := s.alerts[:0]
	for _, a := range s.alerts {
		if !a.expired(now) {
			kept = append(kept, a)
		}
	}
	s.alerts = kept
}
