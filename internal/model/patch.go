package model

import (
	"slices"
	"time"
)

// EventPatch is a partial update. Nil fields are left untouched.
//
// Location and Notes: a pointer to "" clears the field. ClearRecurrence
// removes the rule; otherwise a non-nil Recurrence replaces it.
type EventPatch struct {
	Title     *string    `json:"title,omitempty"`
	Category  *string    `json:"category,omitempty"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	AllDay    *bool      `json:"all_day,omitempty"`
	Location  *string    `json:"location,omitempty"`
	Notes     *string    `json:"notes,omitempty"`
	Completed *bool      `json:"completed,omitempty"`
	Reminders *[]int     `json:"reminders,omitempty"`

	Recurrence      *Recurrence `json:"recurrence,omitempty"`
	ClearRecurrence bool        `json:"clear_recurrence,omitempty"`
}

// Apply returns a copy of e with the patch merged in and validated.
func (e Event) Apply(p EventPatch) (Event, error) {
	out := e.Clone()
	if p.Title != nil {
		out.Title = *p.Title
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.Start != nil {
		out.Start = *p.Start
	}
	if p.End != nil {
		out.End = *p.End
	}
	if p.AllDay != nil {
		out.AllDay = *p.AllDay
	}
	if out.AllDay && (p.AllDay != nil || p.Start != nil || p.End != nil) {
		out.Start, out.End = AllDayBounds(out.Start, out.End)
	}
	if p.Location != nil {
		out.Location = StringPtr(*p.Location)
	}
	if p.Notes != nil {
		out.Notes = StringPtr(*p.Notes)
	}
	if p.Completed != nil {
		out.Completed = *p.Completed
	}
	if p.Reminders != nil {
		out.Reminders = slices.Clone(*p.Reminders)
	}
	switch {
	case p.ClearRecurrence:
		out.Recurrence = nil
	case p.Recurrence != nil:
		r := p.Recurrence.Clone()
		out.Recurrence = &r
	}
	if err := out.Validate(); err != nil {
		return Event{}, err
	}
	return out, nil
}

// RemindersChanged reports whether applying p could change reminder timing.
func (p EventPatch) RemindersChanged() bool {
	return p.Reminders != nil || p.Start != nil || p.AllDay != nil ||
		p.Completed != nil || p.Recurrence != nil || p.ClearRecurrence
}
