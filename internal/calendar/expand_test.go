package calendar

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"daycal/internal/model"
)

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC)
}

func recurring(id string, start time.Time, dur time.Duration, freq model.Frequency, interval int, until *time.Time) model.Event {
	return model.Event{
		ID:         id,
		Title:      id,
		Start:      start,
		End:        start.Add(dur),
		Recurrence: &model.Recurrence{Frequency: freq, Interval: interval, Until: until},
	}
}

func ptr(t time.Time) *time.Time { return &t }

func TestExpandStandupScenario(t *testing.T) {
	ev := recurring("standup", at(2024, 1, 1, 9, 0), 15*time.Minute, model.FrequencyDaily, 1, ptr(at(2024, 1, 3, 0, 0)))

	res := Expand([]model.Event{ev}, at(2024, 1, 1, 0, 0), at(2024, 1, 4, 0, 0))

	require.Len(t, res.Instances, 3)
	for i, inst := range res.Instances {
		assert.Equal(t, at(2024, 1, 1+i, 9, 0), inst.Start)
		assert.Equal(t, 15*time.Minute, inst.End.Sub(inst.Start))
		assert.Equal(t, "standup", inst.ID)
		assert.True(t, inst.Derived)
	}
	assert.Equal(t, "standup_20240102", res.Instances[1].InstanceID)
	assert.Empty(t, res.Capped)
	assert.Empty(t, res.Degraded)
}

func TestExpandKeepsOnlyWindowStarts(t *testing.T) {
	ev := recurring("daily", at(2024, 1, 1, 9, 0), time.Hour, model.FrequencyDaily, 1, nil)
	windowStart, windowEnd := at(2024, 1, 5, 0, 0), at(2024, 1, 7, 23, 59)

	res := Expand([]model.Event{ev}, windowStart, windowEnd)

	require.Len(t, res.Instances, 3)
	for _, inst := range res.Instances {
		assert.False(t, inst.Start.Before(windowStart))
		assert.False(t, inst.Start.After(windowEnd))
	}
}

func TestExpandPassesThroughPlainEvents(t *testing.T) {
	plain := model.Event{ID: "once", Title: "once", Start: at(2023, 6, 1, 9, 0), End: at(2023, 6, 1, 10, 0)}

	res := Expand([]model.Event{plain}, at(2024, 1, 1, 0, 0), at(2024, 1, 2, 0, 0))

	require.Len(t, res.Instances, 1)
	assert.Equal(t, "once", res.Instances[0].InstanceID)
	assert.False(t, res.Instances[0].Derived)
}

func TestExpandCapsOpenEndedRules(t *testing.T) {
	ev := recurring("forever", at(2024, 1, 1, 9, 0), time.Hour, model.FrequencyDaily, 1, nil)

	res := Expand([]model.Event{ev}, at(2000, 1, 1, 0, 0), at(2040, 1, 1, 0, 0))

	assert.Len(t, res.Instances, MaxOccurrencesPerEvent)
	assert.Equal(t, []string{"forever"}, res.Capped)
}

func TestExpandStopsWhenDateArithmeticOverflows(t *testing.T) {
	for _, freq := range []model.Frequency{model.FrequencyDaily, model.FrequencyMonthly} {
		t.Run(string(freq), func(t *testing.T) {
			ev := recurring("huge", at(2024, 1, 1, 9, 0), time.Hour, freq, math.MaxInt64/3, nil)

			res := Expand([]model.Event{ev}, at(2000, 1, 1, 0, 0), at(2040, 1, 1, 0, 0))

			require.NotEmpty(t, res.Instances)
			assert.Equal(t, ev.Start, res.Instances[0].Start)
			seen := map[string]bool{}
			for _, inst := range res.Instances {
				assert.False(t, inst.Start.Before(ev.Start), "instance %s before start", inst.Start)
				assert.False(t, seen[inst.InstanceID], "duplicate %s", inst.InstanceID)
				seen[inst.InstanceID] = true
			}
			assert.Empty(t, res.Capped)
		})
	}
}

func TestExpandDefaultHorizonIsOneYear(t *testing.T) {
	ev := recurring("weekly", at(2024, 1, 1, 9, 0), time.Hour, model.FrequencyWeekly, 1, nil)

	res := Expand([]model.Event{ev}, at(2000, 1, 1, 0, 0), at(2040, 1, 1, 0, 0))

	// 2024-01-01 + 52 weeks = 2024-12-30, the next one passes 2025-01-01.
	require.Len(t, res.Instances, 53)
	assert.Equal(t, at(2024, 12, 30, 9, 0), res.Instances[52].Start)
	assert.Empty(t, res.Capped)
}

func TestExpandUnknownFrequencyFallsBackToDaily(t *testing.T) {
	ev := recurring("odd", at(2024, 1, 1, 9, 0), time.Hour, model.Frequency("fortnightly"), 3, ptr(at(2024, 1, 4, 0, 0)))

	res := Expand([]model.Event{ev}, at(2024, 1, 1, 0, 0), at(2024, 2, 1, 0, 0))

	require.Len(t, res.Instances, 4)
	assert.Equal(t, at(2024, 1, 2, 9, 0), res.Instances[1].Start)
	assert.Equal(t, []string{"odd"}, res.Degraded)
}

func TestExpandMonthlyClampsToMonthEnd(t *testing.T) {
	ev := recurring("rent", at(2024, 1, 31, 8, 0), 30*time.Minute, model.FrequencyMonthly, 1, ptr(at(2024, 4, 30, 0, 0)))

	res := Expand([]model.Event{ev}, at(2024, 1, 1, 0, 0), at(2024, 12, 31, 0, 0))

	var got []time.Time
	for _, inst := range res.Instances {
		got = append(got, inst.Start)
	}
	assert.Equal(t, []time.Time{
		at(2024, 1, 31, 8, 0),
		at(2024, 2, 29, 8, 0),
		at(2024, 3, 31, 8, 0),
		at(2024, 4, 30, 8, 0),
	}, got)
}

func TestExpandYearlyLeapDay(t *testing.T) {
	ev := recurring("leap", at(2024, 2, 29, 12, 0), time.Hour, model.FrequencyYearly, 1, ptr(at(2028, 3, 1, 0, 0)))

	res := Expand([]model.Event{ev}, at(2024, 1, 1, 0, 0), at(2030, 1, 1, 0, 0))

	require.Len(t, res.Instances, 5)
	assert.Equal(t, at(2025, 2, 28, 12, 0), res.Instances[1].Start)
	assert.Equal(t, at(2028, 2, 29, 12, 0), res.Instances[4].Start)
}

func TestExpandMatchesRRuleForDailyAndWeekly(t *testing.T) {
	start := at(2024, 3, 4, 7, 30)
	cases := []struct {
		name     string
		freq     model.Frequency
		rfreq    rrule.Frequency
		interval int
	}{
		{"daily every 3", model.FrequencyDaily, rrule.DAILY, 3},
		{"weekly every 2", model.FrequencyWeekly, rrule.WEEKLY, 2},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := rrule.NewRRule(rrule.ROption{Freq: tc.rfreq, Interval: tc.interval, Dtstart: start, Count: 12})
			require.NoError(t, err)
			want := r.All()
			require.Len(t, want, 12)

			ev := recurring("x", start, 45*time.Minute, tc.freq, tc.interval, ptr(want[len(want)-1]))
			res := Expand([]model.Event{ev}, start, want[len(want)-1])

			require.Len(t, res.Instances, len(want))
			for i := range want {
				assert.True(t, want[i].Equal(res.Instances[i].Start), "occurrence %d: want %s got %s", i, want[i], res.Instances[i].Start)
			}
		})
	}
}

func TestExpandPeriodAndDurationProperties(t *testing.T) {
	events := []model.Event{
		recurring("d2", at(2024, 1, 1, 9, 0), 90*time.Minute, model.FrequencyDaily, 2, nil),
		recurring("w1", at(2024, 1, 3, 18, 0), 2*time.Hour, model.FrequencyWeekly, 1, nil),
		recurring("m3", at(2024, 1, 15, 10, 0), 20*time.Minute, model.FrequencyMonthly, 3, nil),
	}
	next := map[string]func(time.Time) time.Time{
		"d2": func(t time.Time) time.Time { return t.AddDate(0, 0, 2) },
		"w1": func(t time.Time) time.Time { return t.AddDate(0, 0, 7) },
		"m3": func(t time.Time) time.Time { return AddMonthsClamped(t, 3) },
	}

	res := Expand(events, at(2024, 1, 1, 0, 0), at(2024, 12, 31, 0, 0))

	byID := map[string][]model.Instance{}
	for _, inst := range res.Instances {
		byID[inst.ID] = append(byID[inst.ID], inst)
	}
	for _, ev := range events {
		list := byID[ev.ID]
		require.NotEmpty(t, list, ev.ID)
		seen := map[time.Time]bool{}
		for i, inst := range list {
			assert.Equal(t, ev.Duration(), inst.End.Sub(inst.Start), ev.ID)
			assert.False(t, seen[inst.Start], "duplicate start for %s", ev.ID)
			seen[inst.Start] = true
			if i > 0 {
				assert.Equal(t, next[ev.ID](list[i-1].Start), inst.Start, ev.ID)
			}
		}
	}
}

func TestExpandIsDeterministic(t *testing.T) {
	events := []model.Event{
		recurring("b", at(2024, 1, 1, 9, 0), time.Hour, model.FrequencyDaily, 1, nil),
		recurring("a", at(2024, 1, 1, 9, 0), time.Hour, model.FrequencyDaily, 1, nil),
	}
	first := Expand(events, at(2024, 1, 1, 0, 0), at(2024, 1, 10, 0, 0))
	second := Expand(events, at(2024, 1, 1, 0, 0), at(2024, 1, 10, 0, 0))

	assert.Equal(t, first, second)
	assert.Equal(t, "a_20240101", first.Instances[0].InstanceID)
	assert.Equal(t, "b_20240101", first.Instances[1].InstanceID)
}

func TestExpandCoveringFindsRunningOccurrence(t *testing.T) {
	// Starts at 22:00 and runs for four hours into the next day.
	ev := recurring("night", at(2024, 1, 1, 22, 0), 4*time.Hour, model.FrequencyDaily, 1, nil)
	day := at(2024, 1, 3, 0, 0)

	plain := Expand([]model.Event{ev}, day, day.AddDate(0, 0, 1))
	covering := ExpandCovering([]model.Event{ev}, day, day.AddDate(0, 0, 1))

	assert.Len(t, plain.Instances, 1)
	require.Len(t, covering.Instances, 2)
	assert.Equal(t, at(2024, 1, 2, 22, 0), covering.Instances[0].Start)
}

func TestAddMonthsClamped(t *testing.T) {
	assert.Equal(t, at(2023, 2, 28, 0, 0), AddMonthsClamped(at(2023, 1, 31, 0, 0), 1))
	assert.Equal(t, at(2024, 1, 31, 0, 0), AddMonthsClamped(at(2023, 12, 31, 0, 0), 1))
	assert.Equal(t, at(2023, 11, 30, 0, 0), AddMonthsClamped(at(2024, 1, 30, 0, 0), -2))
}
