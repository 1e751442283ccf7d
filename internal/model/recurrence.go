package model

import (
	"fmt"
	"time"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
	FrequencyYearly  Frequency = "yearly"
)

// DefaultHorizon bounds open-ended recurrences.
const DefaultHorizon = 1 // years

// MaxInterval is the largest accepted recurrence interval.
const MaxInterval = 1000

func (f Frequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyYearly:
		return true
	default:
		return false
	}
}

type Recurrence struct {
	Frequency Frequency  `json:"frequency" yaml:"frequency"`
	Interval  int        `json:"interval" yaml:"interval"`
	Until     *time.Time `json:"until,omitempty" yaml:"until,omitempty"`
}

func (r Recurrence) Validate() error {
	if !r.Frequency.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidFrequency, r.Frequency)
	}
	if r.Interval <= 0 || r.Interval > MaxInterval {
		return fmt.Errorf("%w: interval %d", ErrInvalidRecurrence, r.Interval)
	}
	return nil
}

func (r Recurrence) Clone() Recurrence {
	out := r
	if r.Until != nil {
		u := *r.Until
		out.Until = &u
	}
	return out
}

// EffectiveEnd is the last instant at which an occurrence may start.
//
// An explicit end at exactly midnight is read as "through that date" and
// widened to the last nanosecond of the day. Without an explicit end the
// rule is bounded at start + DefaultHorizon years.
func (r Recurrence) EffectiveEnd(start time.Time) time.Time {
	if r.Until == nil {
		return start.AddDate(DefaultHorizon, 0, 0)
	}
	u := *r.Until
	if u.Equal(StartOfDay(u)) {
		return StartOfDay(u).AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return u
}
