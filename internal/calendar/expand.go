package calendar

import (
	"errors"
	"sort"
	"time"

	appLog "daycal/internal/log"
	"daycal/internal/metric"
	"daycal/internal/model"
)

// MaxOccurrencesPerEvent caps how many occurrences one recurring event may
// generate per call, whether or not they land inside the window.
const MaxOccurrencesPerEvent = 100

// ExpandResult wraps the expanded instances and reports events that were
// truncated by the cap or expanded with a fallback cadence.
type ExpandResult struct {
	Instances []model.Instance
	// Capped records ids that hit MaxOccurrencesPerEvent.
	Capped []string
	// Degraded records ids whose frequency was unknown and fell back to daily.
	Degraded []string
}

// Expand turns stored events into concrete instances for [windowStart, windowEnd].
//
//   - Non-recurring events are passed through unconditionally; callers that
//     need strict window filtering do it downstream.
//   - Recurring events emit one instance per period whose start lies inside
//     the window, preserving the original duration.
//   - An unknown frequency advances daily with interval 1 and is reported in
//     ExpandResult.Degraded.
//
// Expand is pure: the same input always yields the same, sorted output.
func Expand(events []model.Event, windowStart, windowEnd time.Time) ExpandResult {
	var result ExpandResult

	for _, ev := range events {
		if !ev.IsRecurring() {
			result.Instances = append(result.Instances, model.Instance{
				Event:      ev.Clone(),
				InstanceID: ev.ID,
			})
			continue
		}

		occ, capped, degraded := expandRecurring(ev, windowStart, windowEnd)
		result.Instances = append(result.Instances, occ...)
		if capped {
			result.Capped = append(result.Capped, ev.ID)
			metric.ExpansionCapped.Inc()
			appLog.Debug("expand: occurrence cap reached", "id", ev.ID, "cap", MaxOccurrencesPerEvent)
		}
		if degraded {
			result.Degraded = append(result.Degraded, ev.ID)
			appLog.Error("expand: unknown frequency, falling back to daily",
				errors.New("malformed recurrence"),
				"id", ev.ID,
				"frequency", string(ev.Recurrence.Frequency),
			)
		}
	}

	sort.SliceStable(result.Instances, func(i, j int) bool {
		a, b := result.Instances[i], result.Instances[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.InstanceID < b.InstanceID
	})

	metric.InstancesExpanded.Add(float64(len(result.Instances)))
	return result
}

// ExpandCovering expands over [start, end] but also finds recurring
// occurrences that begin before start and are still running at start.
func ExpandCovering(events []model.Event, start, end time.Time) ExpandResult {
	var longest time.Duration
	for _, ev := range events {
		if ev.IsRecurring() && ev.Duration() > longest {
			longest = ev.Duration()
		}
	}
	return Expand(events, start.Add(-longest), end)
}

func expandRecurring(ev model.Event, windowStart, windowEnd time.Time) ([]model.Instance, bool, bool) {
	rule := *ev.Recurrence
	end := rule.EffectiveEnd(ev.Start)
	duration := ev.Duration()

	step, degraded := stepper(rule)

	var out []model.Instance
	var prev time.Time
	hitCap := true
	for n := 0; n < MaxOccurrencesPerEvent; n++ {
		cur := step(ev.Start, n)
		if n > 0 && !cur.After(prev) {
			// Date arithmetic overflowed; the sequence stopped moving forward.
			hitCap = false
			break
		}
		prev = cur
		if cur.After(end) {
			hitCap = false
			break
		}
		if cur.After(windowEnd) {
			// Occurrences only move forward; nothing else can land in the window.
			hitCap = false
			break
		}
		if !cur.Before(windowStart) {
			inst := model.Instance{
				Event:      ev.Clone(),
				InstanceID: model.InstanceID(ev.ID, cur),
				Derived:    true,
			}
			inst.Start = cur
			inst.End = cur.Add(duration)
			out = append(out, inst)
		}
	}
	return out, hitCap, degraded
}

// stepper returns a function computing the n-th occurrence from the anchor.
// The second result is true when the rule fell back to daily cadence.
func stepper(r model.Recurrence) (func(anchor time.Time, n int) time.Time, bool) {
	k := r.Interval
	if k <= 0 {
		k = 1
	}
	switch r.Frequency {
	case model.FrequencyDaily:
		return func(a time.Time, n int) time.Time { return a.AddDate(0, 0, n*k) }, false
	case model.FrequencyWeekly:
		return func(a time.Time, n int) time.Time { return a.AddDate(0, 0, 7*n*k) }, false
	case model.FrequencyMonthly:
		return func(a time.Time, n int) time.Time { return AddMonthsClamped(a, n*k) }, false
	case model.FrequencyYearly:
		return func(a time.Time, n int) time.Time { return AddMonthsClamped(a, 12*n*k) }, false
	default:
		return func(a time.Time, n int) time.Time { return a.AddDate(0, 0, n) }, true
	}
}

// AddMonthsClamped adds months to t, clamping the day to the last day of the
// target month instead of rolling over. Jan 31 + 1 month is Feb 28/29.
func AddMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := first.AddDate(0, months, 0)
	if last := daysIn(target.Year(), target.Month(), t.Location()); d > last {
		d = last
	}
	return time.Date(target.Year(), target.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysIn(y int, m time.Month, loc *time.Location) int {
	return time.Date(y, m+1, 0, 0, 0, 0, 0, loc).Day()
}
