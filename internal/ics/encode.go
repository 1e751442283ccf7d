package ics

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"daycal/internal/model"
)

const (
	ProdID        = "-//Personal Calendar//EN"
	MIMEType      = "text/calendar"
	FileExtension = ".ics"

	uidSuffix       = "@personal-calendar"
	allDayProperty  = "X-MICROSOFT-CDO-ALLDAYEVENT"
	completedMarker = "X-DAYCAL-COMPLETED"
)

// Encode writes one VCALENDAR document with a VEVENT per stored event.
// Recurring events are written once with their RRULE; expansion is left to
// the reader. now is used for DTSTAMP.
//
// TEXT values are escaped and long lines folded by the serializer.
func Encode(w io.Writer, events []model.Event, now time.Time) error {
	cal := ical.NewCalendar()
	cal.SetProductId(ProdID)
	cal.SetCalscale("GREGORIAN")

	for _, ev := range events {
		encodeEvent(cal.AddEvent(ev.ID+uidSuffix), ev, now)
	}

	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("ics: encode: %w", err)
	}
	return nil
}

// EncodeString is Encode into a string.
func EncodeString(events []model.Event, now time.Time) (string, error) {
	var b strings.Builder
	if err := Encode(&b, events, now); err != nil {
		return "", err
	}
	return b.String(), nil
}

func encodeEvent(ve *ical.VEvent, ev model.Event, now time.Time) {
	ve.SetDtStampTime(now)
	if !ev.CreatedAt.IsZero() {
		ve.SetCreatedTime(ev.CreatedAt)
	}
	if !ev.UpdatedAt.IsZero() {
		ve.SetModifiedAt(ev.UpdatedAt)
	}

	if ev.AllDay {
		ve.SetAllDayStartAt(ev.Start)
		ve.SetAllDayEndAt(ev.End)
	} else {
		ve.SetStartAt(ev.Start)
		ve.SetEndAt(ev.End)
	}

	ve.SetSummary(ev.Title)
	ve.AddCategory(ev.Category)
	if ev.Location != nil {
		ve.SetLocation(*ev.Location)
	}
	if ev.Notes != nil {
		ve.SetDescription(*ev.Notes)
	}
	if ev.AllDay {
		ve.SetProperty(ical.ComponentProperty(allDayProperty), "TRUE")
	}
	if ev.Completed {
		ve.SetProperty(ical.ComponentProperty(completedMarker), "TRUE")
	}
	if ev.Recurrence != nil {
		ve.AddRrule(FormatRule(*ev.Recurrence))
	}

	for _, off := range ev.Reminders {
		alarm := ve.AddAlarm()
		alarm.SetAction(ical.ActionDisplay)
		alarm.SetDescription(ev.Title)
		alarm.SetTrigger(formatTrigger(off))
	}
}

func formatTrigger(minutes int) string {
	if minutes == 0 {
		return "PT0M"
	}
	return fmt.Sprintf("-PT%dM", minutes)
}
