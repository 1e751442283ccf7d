package ics

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "daycal/internal/log"
	"daycal/internal/metric"
	"daycal/internal/model"
)

// DecodeOptions control how floating and date-only values are interpreted.
type DecodeOptions struct {
	// Location for date-only and floating values; defaults to time.Local.
	Location *time.Location
}

// DecodeResult holds the events that survived decoding and the number of
// VEVENT blocks that were dropped.
type DecodeResult struct {
	Events  []model.Event
	Dropped int
}

// block accumulates the properties of one VEVENT.
type block struct {
	uid      string
	title    string
	category string

	start, end       time.Time
	hasStart, hasEnd bool
	allDay           bool

	location, notes *string
	completed       bool
	rule            *model.Recurrence
	reminders       []int

	created, modified time.Time
}

// Decode reads a calendar document. Unknown properties and unknown nested
// components are skipped. A VEVENT without a title, start or end, or one
// that fails validation, is dropped and counted; the rest of the document
// is still decoded.
func Decode(r io.Reader, opts DecodeOptions) (DecodeResult, error) {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	var physical []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		physical = append(physical, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return DecodeResult{}, fmt.Errorf("ics: decode: %w", err)
	}

	var (
		res     DecodeResult
		cur     *block
		inAlarm bool
		alarm   *int
		skip    []string // names of nested components being skipped
	)

	drop := func(reason string) {
		res.Dropped++
		metric.ImportBlocksDropped.Inc()
		appLog.Debug("ics block dropped", "reason", reason)
	}

	for _, line := range unfoldLines(physical) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		p, ok := parseProperty(line)
		if !ok {
			continue
		}

		if len(skip) > 0 {
			switch p.Name {
			case "BEGIN":
				skip = append(skip, strings.ToUpper(p.Value))
			case "END":
				if strings.EqualFold(p.Value, skip[len(skip)-1]) {
					skip = skip[:len(skip)-1]
				}
			}
			continue
		}

		switch p.Name {
		case "BEGIN":
			comp := strings.ToUpper(strings.TrimSpace(p.Value))
			switch {
			case comp == "VEVENT":
				if cur != nil {
					drop("unterminated VEVENT")
				}
				cur, inAlarm, alarm = &block{}, false, nil
			case comp == "VALARM" && cur != nil && !inAlarm:
				inAlarm, alarm = true, nil
			case cur != nil:
				skip = append(skip, comp)
			}
			continue
		case "END":
			comp := strings.ToUpper(strings.TrimSpace(p.Value))
			switch {
			case comp == "VALARM" && inAlarm:
				if alarm != nil {
					cur.reminders = append(cur.reminders, *alarm)
				}
				inAlarm, alarm = false, nil
			case comp == "VEVENT" && cur != nil:
				ev, reason := cur.event()
				if reason != "" {
					drop(reason)
				} else {
					res.Events = append(res.Events, ev)
				}
				cur, inAlarm = nil, false
			}
			continue
		}

		if cur == nil {
			continue
		}
		if inAlarm {
			if p.Name == "TRIGGER" && !strings.EqualFold(p.Params["VALUE"], "DATE-TIME") {
				if off, ok := parseTrigger(p.Value); ok {
					alarm = &off
				}
			}
			continue
		}
		cur.set(p, loc)
	}

	if cur != nil {
		drop("unterminated VEVENT")
	}

	appLog.Debug("ics decode completed", "events", len(res.Events), "dropped", res.Dropped)
	return res, nil
}

func (b *block) set(p property, loc *time.Location) {
	switch p.Name {
	case "UID":
		b.uid = strings.TrimSuffix(ical.FromText(strings.TrimSpace(p.Value)), uidSuffix)
	case "SUMMARY":
		b.title = ical.FromText(p.Value)
	case "CATEGORIES":
		b.category = ical.FromText(p.Value)
	case "LOCATION":
		b.location = model.StringPtr(ical.FromText(p.Value))
	case "DESCRIPTION":
		b.notes = model.StringPtr(ical.FromText(p.Value))
	case "DTSTART":
		if t, dateOnly, err := parseTime(p.Value, p.Params["TZID"], loc); err == nil {
			b.start, b.hasStart = t, true
			b.allDay = dateOnly
		}
	case "DTEND":
		if t, _, err := parseTime(p.Value, p.Params["TZID"], loc); err == nil {
			b.end, b.hasEnd = t, true
		}
	case "RRULE":
		r := ParseRule(p.Value, loc)
		b.rule = &r
	case completedMarker:
		b.completed = strings.EqualFold(strings.TrimSpace(p.Value), "TRUE")
	case "CREATED":
		if t, _, err := parseTime(p.Value, "", loc); err == nil {
			b.created = t
		}
	case "LAST-MODIFIED":
		if t, _, err := parseTime(p.Value, "", loc); err == nil {
			b.modified = t
		}
	}
}

// event converts the block, returning a non-empty reason when it must be
// dropped.
func (b *block) event() (model.Event, string) {
	if strings.TrimSpace(b.title) == "" {
		return model.Event{}, "missing SUMMARY"
	}
	if !b.hasStart {
		return model.Event{}, "missing DTSTART"
	}
	if !b.hasEnd {
		return model.Event{}, "missing DTEND"
	}

	ev := model.Event{
		ID:         b.uid,
		Title:      b.title,
		Category:   b.category,
		Start:      b.start,
		End:        b.end,
		AllDay:     b.allDay,
		Location:   b.location,
		Notes:      b.notes,
		Completed:  b.completed,
		Reminders:  b.reminders,
		Recurrence: b.rule,
		CreatedAt:  b.created,
		UpdatedAt:  b.modified,
	}
	if ev.AllDay {
		ev.Start, ev.End = model.AllDayBounds(ev.Start, ev.End)
	}
	if err := ev.Validate(); err != nil {
		return model.Event{}, err.Error()
	}
	return ev, ""
}

// parseTrigger reads a relative duration such as -PT15M or -P1DT2H and
// returns it as minutes before start. Triggers after the start are rejected.
func parseTrigger(v string) (int, bool) {
	v = strings.TrimSpace(v)
	negative := false
	switch {
	case strings.HasPrefix(v, "-"):
		negative, v = true, v[1:]
	case strings.HasPrefix(v, "+"):
		v = v[1:]
	}
	if !strings.HasPrefix(v, "P") {
		return 0, false
	}
	v = v[1:]

	var total time.Duration
	inTime := false
	num := ""
	parts := 0
	for _, c := range v {
		switch {
		case c >= '0' && c <= '9':
			num += string(c)
			continue
		case c == 'T':
			inTime = true
			continue
		}
		n, err := strconv.Atoi(num)
		if err != nil {
			return 0, false
		}
		num = ""
		parts++
		switch {
		case c == 'W' && !inTime:
			total += time.Duration(n) * 7 * 24 * time.Hour
		case c == 'D' && !inTime:
			total += time.Duration(n) * 24 * time.Hour
		case c == 'H' && inTime:
			total += time.Duration(n) * time.Hour
		case c == 'M' && inTime:
			total += time.Duration(n) * time.Minute
		case c == 'S' && inTime:
			total += time.Duration(n) * time.Second
		default:
			return 0, false
		}
	}
	if num != "" || parts == 0 {
		return 0, false
	}
	if total != 0 && !negative {
		return 0, false
	}
	return int(total / time.Minute), true
}
