package calendar

import (
	"time"

	"daycal/internal/model"
)

// Conflicts returns the instances whose interval overlaps [start, end).
//
// Overlap is open: intervals that only share an endpoint do not conflict.
// An instance is skipped when its InstanceID or its originating event id
// equals excludeID, so an event being edited never conflicts with itself.
// All-day instances occupy their whole dates regardless of stored times.
func Conflicts(start, end time.Time, instances []model.Instance, excludeID string) []model.Instance {
	var out []model.Instance
	for _, inst := range instances {
		if excludeID != "" && (inst.InstanceID == excludeID || inst.ID == excludeID) {
			continue
		}
		s, e := Span(inst)
		if Overlaps(start, end, s, e) {
			out = append(out, inst)
		}
	}
	return out
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// Span returns the interval an instance blocks for conflict purposes.
func Span(inst model.Instance) (time.Time, time.Time) {
	if !inst.AllDay {
		return inst.Start, inst.End
	}
	return model.StartOfDay(inst.Start), model.StartOfDay(inst.End).AddDate(0, 0, 1)
}

// ConflictsFor checks a candidate against events expanded over every day
// the candidate touches.
func ConflictsFor(start, end time.Time, events []model.Event, excludeID string) []model.Instance {
	dayStart := model.StartOfDay(start)
	dayEnd := model.StartOfDay(end).AddDate(0, 0, 1)
	res := ExpandCovering(events, dayStart, dayEnd)
	return Conflicts(start, end, res.Instances, excludeID)
}
