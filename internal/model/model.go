package model

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	ErrInvalidEvent      = errors.New("model: invalid event")
	ErrInvalidRecurrence = errors.New("model: invalid recurrence")
	ErrInvalidFrequency  = errors.New("model: invalid recurrence frequency")
)

// Event is a stored calendar record before recurrence expansion.
type Event struct {
	ID       string `json:"id" yaml:"id"`
	Title    string `json:"title" yaml:"title"`
	Category string `json:"category" yaml:"category"`

	Start  time.Time `json:"start" yaml:"start"`
	End    time.Time `json:"end" yaml:"end"`
	AllDay bool      `json:"all_day" yaml:"all_day"`

	Location *string `json:"location,omitempty" yaml:"location,omitempty"`
	Notes    *string `json:"notes,omitempty" yaml:"notes,omitempty"`

	Completed bool `json:"completed" yaml:"completed"`

	// Reminders are offsets in minutes before Start.
	Reminders []int `json:"reminders,omitempty" yaml:"reminders,omitempty"`

	// Recurrence is non-nil iff the event repeats.
	Recurrence *Recurrence `json:"recurrence,omitempty" yaml:"recurrence,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// NewEvent builds an event and validates it. The id is left empty; the store
// assigns one on insert.
func NewEvent(title, category string, start, end time.Time, allDay bool) (Event, error) {
	ev := Event{
		Title:    title,
		Category: category,
		Start:    start,
		End:      end,
		AllDay:   allDay,
	}
	if allDay {
		ev.Start, ev.End = AllDayBounds(start, end)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

// AllDayBounds returns 00:00:00 of start's date and 23:59:59 of end's date.
func AllDayBounds(start, end time.Time) (time.Time, time.Time) {
	s := StartOfDay(start)
	e := StartOfDay(end).Add(24*time.Hour - time.Second)
	return s, e
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (e Event) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if e.Start.IsZero() || e.End.IsZero() {
		return fmt.Errorf("%w: start and end are required", ErrInvalidEvent)
	}
	if e.End.Before(e.Start) {
		return fmt.Errorf("%w: end %s is before start %s", ErrInvalidEvent,
			e.End.Format(time.RFC3339), e.Start.Format(time.RFC3339))
	}
	if e.End.Equal(e.Start) && !e.AllDay {
		return fmt.Errorf("%w: zero-length timed event", ErrInvalidEvent)
	}
	for _, off := range e.Reminders {
		if off < 0 {
			return fmt.Errorf("%w: negative reminder offset %d", ErrInvalidEvent, off)
		}
	}
	if e.Recurrence != nil {
		if err := e.Recurrence.Validate(); err != nil {
			return err
		}
		if e.Recurrence.Until != nil && e.Recurrence.Until.Before(e.Start) {
			return fmt.Errorf("%w: recurrence ends before the event starts", ErrInvalidRecurrence)
		}
	}
	return nil
}

// Duration is End - Start.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// IsRecurring reports whether the event carries a recurrence rule.
func (e Event) IsRecurring() bool {
	return e.Recurrence != nil
}

// Clone returns a deep copy so callers cannot alias slices or pointers.
func (e Event) Clone() Event {
	out := e
	if e.Location != nil {
		out.Location = StringPtr(*e.Location)
	}
	if e.Notes != nil {
		out.Notes = StringPtr(*e.Notes)
	}
	if e.Reminders != nil {
		out.Reminders = slices.Clone(e.Reminders)
	}
	if e.Recurrence != nil {
		r := e.Recurrence.Clone()
		out.Recurrence = &r
	}
	return out
}

// LocationOrEmpty returns the location or "" when absent.
func (e Event) LocationOrEmpty() string {
	if e.Location == nil {
		return ""
	}
	return *e.Location
}

// NotesOrEmpty returns the notes or "" when absent.
func (e Event) NotesOrEmpty() string {
	if e.Notes == nil {
		return ""
	}
	return *e.Notes
}

// StringPtr returns nil for an empty string and &s otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Instance is a concrete occurrence of an Event inside a query window.
// Event.ID is the id of the originating event.
type Instance struct {
	Event

	// InstanceID is the originating id for plain events, and id_YYYYMMDD for
	// occurrences produced by recurrence expansion.
	InstanceID string `json:"instance_id"`
	Derived    bool   `json:"derived"`
}

// InstanceID builds the derived id of a recurring occurrence.
func InstanceID(eventID string, start time.Time) string {
	return eventID + "_" + start.Format("20060102")
}

// Slot is a proposed free interval for a new event.
type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Label     string    `json:"label"`
	Preferred bool      `json:"preferred"`
}
