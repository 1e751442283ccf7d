package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "daycal/internal/log"
	"daycal/internal/model"
)

var ErrEmptyFeed = errors.New("ics: empty feed body")

// ParseFeed parses a subscribed calendar into read-only events. Event ids
// are "<source id>:<UID>" so they never collide with stored events.
//
//   - VEVENTs without a UID, SUMMARY or DTSTART are skipped.
//   - Date-only DTEND is exclusive in feeds; it is turned into the inclusive
//     23:59:59 form used for stored all-day events.
//   - Overrides carrying RECURRENCE-ID are skipped since exception dates are
//     not modelled.
func ParseFeed(src Source, body []byte, loc *time.Location) ([]model.Event, error) {
	if len(body) == 0 {
		return nil, ErrEmptyFeed
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics feed parse failed", err, "id", src.ID, "url", redactURL(src.URL))
		return nil, fmt.Errorf("ics: parse feed %s: %w", src.ID, err)
	}

	events := make([]model.Event, 0)
	for _, comp := range cal.Events() {
		ev, perr := feedEvent(src, comp, loc)
		if perr != nil {
			appLog.Debug("ics feed vevent skipped", "id", src.ID, "reason", perr.Error())
			continue
		}
		events = append(events, ev)
	}

	appLog.Info("ics feed parsed", "id", src.ID, "url", redactURL(src.URL), "event_count", len(events))
	return events, nil
}

func feedEvent(src Source, ve *ical.VEvent, loc *time.Location) (model.Event, error) {
	uid := propValue(ve, ical.ComponentPropertyUniqueId)
	if uid == "" {
		return model.Event{}, errors.New("missing UID")
	}
	if ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")) != nil {
		return model.Event{}, errors.New("recurrence override")
	}

	ev := model.Event{
		ID:       src.ID + ":" + uid,
		Title:    propValue(ve, ical.ComponentPropertySummary),
		Category: propValue(ve, ical.ComponentPropertyCategories),
		Location: model.StringPtr(propValue(ve, ical.ComponentPropertyLocation)),
		Notes:    model.StringPtr(propValue(ve, ical.ComponentPropertyDescription)),
	}
	if ev.Category == "" {
		ev.Category = src.Name
	}

	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return model.Event{}, errors.New("missing DTSTART")
	}
	ev.AllDay = len(strings.TrimSpace(startProp.Value)) == len(dateLayout)

	if ev.AllDay {
		start, _, err := parseTime(startProp.Value, "", loc)
		if err != nil {
			return model.Event{}, err
		}
		last := start
		if endProp := ve.GetProperty(ical.ComponentPropertyDtEnd); endProp != nil {
			if end, _, err := parseTime(endProp.Value, "", loc); err == nil && end.After(start) {
				last = end.AddDate(0, 0, -1)
			}
		}
		ev.Start, ev.End = model.AllDayBounds(start, last)
	} else {
		// The library resolves TZID and VTIMEZONE references.
		start, err := ve.GetStartAt()
		if err != nil {
			return model.Event{}, err
		}
		end, err := ve.GetEndAt()
		if err != nil {
			return model.Event{}, fmt.Errorf("missing DTEND: %w", err)
		}
		ev.Start, ev.End = start.In(loc), end.In(loc)
	}

	if rule := propValue(ve, ical.ComponentPropertyRrule); rule != "" {
		r := ParseRule(rule, loc)
		ev.Recurrence = &r
	}

	if err := ev.Validate(); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return strings.TrimSpace(p.Value)
	}
	return ""
}
