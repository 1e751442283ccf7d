package calendar

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"daycal/internal/model"
)

const (
	DefaultWorkStart = 9
	DefaultWorkEnd   = 17
	DefaultMaxDays   = 365
)

// SuggesterConfig configures a Suggester. Zero values fall back to the
// package defaults.
type SuggesterConfig struct {
	WorkStart int
	WorkEnd   int
	// CategoryHours maps a category to its preferred start hours in order.
	CategoryHours map[string][]int
	// MaxDays caps how many days Suggest walks forward from the requested date.
	MaxDays int
}

// Suggester proposes free, hour-aligned start times inside the working window.
type Suggester struct {
	workStart int
	workEnd   int
	maxDays   int
	prefs     map[string][]int
}

func NewSuggester(cfg SuggesterConfig) *Suggester {
	s := &Suggester{
		workStart: cfg.WorkStart,
		workEnd:   cfg.WorkEnd,
		maxDays:   cfg.MaxDays,
		prefs:     make(map[string][]int, len(cfg.CategoryHours)),
	}
	if s.workStart < 0 || s.workEnd > 24 || s.workStart >= s.workEnd {
		s.workStart, s.workEnd = DefaultWorkStart, DefaultWorkEnd
	}
	if s.maxDays <= 0 {
		s.maxDays = DefaultMaxDays
	}
	for cat, hours := range cfg.CategoryHours {
		s.prefs[foldCategory(cat)] = append([]int(nil), hours...)
	}
	return s
}

// PreferredHours returns the configured hours for category, or nil.
func (s *Suggester) PreferredHours(category string) []int {
	if strings.TrimSpace(category) == "" {
		return nil
	}
	return s.prefs[foldCategory(category)]
}

// Suggest returns non-conflicting slots of durationMinutes on date.
//
// Preferred hours for the category are tried first, in configured order,
// and marked Preferred. When none fit, every working hour not already tried
// is tried in ascending order. When the day has no room the search moves to
// the next day, up to MaxDays days; an exhausted search returns nil.
func (s *Suggester) Suggest(events []model.Event, date time.Time, durationMinutes int, category string) []model.Slot {
	if durationMinutes <= 0 {
		return nil
	}
	dur := time.Duration(durationMinutes) * time.Minute
	if dur > time.Duration(s.workEnd-s.workStart)*time.Hour {
		return nil
	}

	preferred := s.PreferredHours(category)
	day := model.StartOfDay(date)
	for i := 0; i < s.maxDays; i++ {
		if slots := s.suggestDay(events, day, dur, preferred); len(slots) > 0 {
			return slots
		}
		day = day.AddDate(0, 0, 1)
	}
	return nil
}

func (s *Suggester) suggestDay(events []model.Event, day time.Time, dur time.Duration, preferred []int) []model.Slot {
	workEnd := atHour(day, s.workEnd)
	instances := ExpandCovering(events, day, day.AddDate(0, 0, 1)).Instances

	var out []model.Slot
	tried := make(map[int]bool, len(preferred))
	for _, h := range preferred {
		if tried[h] {
			continue
		}
		tried[h] = true
		if slot, ok := s.candidate(day, h, dur, workEnd, instances); ok {
			slot.Preferred = true
			out = append(out, slot)
		}
	}
	if len(out) > 0 {
		return out
	}

	for h := s.workStart; h < s.workEnd; h++ {
		if tried[h] {
			continue
		}
		if slot, ok := s.candidate(day, h, dur, workEnd, instances); ok {
			out = append(out, slot)
		}
	}
	return out
}

func (s *Suggester) candidate(day time.Time, hour int, dur time.Duration, workEnd time.Time, instances []model.Instance) (model.Slot, bool) {
	if hour < 0 || hour > 23 {
		return model.Slot{}, false
	}
	start := atHour(day, hour)
	end := start.Add(dur)
	if end.After(workEnd) {
		return model.Slot{}, false
	}
	if len(Conflicts(start, end, instances, "")) > 0 {
		return model.Slot{}, false
	}
	return model.Slot{
		Start: start,
		End:   end,
		Label: fmt.Sprintf("%d:00 - %d:%02d", hour, end.Hour(), end.Minute()),
	}, true
}

// atHour keeps wall-clock hours stable across DST changes.
func atHour(day time.Time, hour int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, day.Location())
}

func foldCategory(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
