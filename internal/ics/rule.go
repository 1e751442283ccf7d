package ics

import (
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"daycal/internal/model"
)

const (
	dateLayout     = "20060102"
	utcLayout      = "20060102T150405Z"
	floatingLayout = "20060102T150405"
)

var toRRuleFreq = map[model.Frequency]rrule.Frequency{
	model.FrequencyDaily:   rrule.DAILY,
	model.FrequencyWeekly:  rrule.WEEKLY,
	model.FrequencyMonthly: rrule.MONTHLY,
	model.FrequencyYearly:  rrule.YEARLY,
}

var fromRRuleFreq = map[rrule.Frequency]model.Frequency{
	rrule.DAILY:   model.FrequencyDaily,
	rrule.WEEKLY:  model.FrequencyWeekly,
	rrule.MONTHLY: model.FrequencyMonthly,
	rrule.YEARLY:  model.FrequencyYearly,
}

// FormatRule renders a recurrence as an RRULE value (without the "RRULE:"
// name). Unknown frequencies are written as DAILY, the cadence expansion
// falls back to for them.
func FormatRule(r model.Recurrence) string {
	freq, ok := toRRuleFreq[r.Frequency]
	if !ok {
		freq = rrule.DAILY
	}
	interval := r.Interval
	if interval <= 0 {
		interval = 1
	}
	opt := rrule.ROption{Freq: freq, Interval: interval}
	if r.Until != nil {
		opt.Until = r.Until.UTC()
	}
	return opt.RRuleString()
}

// ParseRule reads FREQ, INTERVAL and UNTIL from an RRULE value. Other keys
// are ignored. A missing or unsupported FREQ yields weekly; a missing or
// out-of-range INTERVAL yields 1.
func ParseRule(value string, loc *time.Location) model.Recurrence {
	if loc == nil {
		loc = time.Local
	}
	r := model.Recurrence{Frequency: model.FrequencyWeekly, Interval: 1}

	value = strings.TrimPrefix(strings.TrimSpace(value), "RRULE:")
	for _, part := range strings.Split(value, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		switch strings.ToUpper(strings.TrimSpace(k)) {
		case "FREQ":
			f, err := rrule.StrToFreq(strings.ToUpper(v))
			if err != nil {
				continue
			}
			if mf, ok := fromRRuleFreq[f]; ok {
				r.Frequency = mf
			}
		case "INTERVAL":
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= model.MaxInterval {
				r.Interval = n
			}
		case "UNTIL":
			if t, _, err := parseTime(v, "", loc); err == nil {
				r.Until = &t
			}
		}
	}
	return r
}

// parseTime parses a DATE or DATE-TIME value. The bool result is true for
// the 8-character date-only form.
func parseTime(v, tzid string, loc *time.Location) (time.Time, bool, error) {
	v = strings.TrimSpace(v)
	if len(v) == len(dateLayout) {
		t, err := time.ParseInLocation(dateLayout, v, loc)
		return t, true, err
	}
	if strings.HasSuffix(v, "Z") {
		t, err := time.Parse(utcLayout, v)
		if err != nil {
			return time.Time{}, false, err
		}
		return t.In(loc), false, nil
	}
	zone := loc
	if tzid != "" {
		if l, err := time.LoadLocation(tzid); err == nil {
			zone = l
		}
	}
	t, err := time.ParseInLocation(floatingLayout, v, zone)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.In(loc), false, nil
}
