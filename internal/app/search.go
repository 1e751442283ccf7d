package app

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"daycal/internal/model"
)

// UpcomingWindow is how far ahead Upcoming looks.
const UpcomingWindow = 7 * 24 * time.Hour

// Query filters stored events. Zero fields match everything.
type Query struct {
	// Text is matched case-insensitively against title, category, notes
	// and location.
	Text string
	// Category must equal the event category exactly.
	Category string
	// From and To bound the event start, both inclusive.
	From time.Time
	To   time.Time
}

func (q Query) matches(ev model.Event, folded string) bool {
	if q.Category != "" && ev.Category != q.Category {
		return false
	}
	if !q.From.IsZero() && ev.Start.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && ev.Start.After(q.To) {
		return false
	}
	if folded == "" {
		return true
	}
	fold := cases.Fold()
	for _, field := range []string{ev.Title, ev.Category, ev.NotesOrEmpty(), ev.LocationOrEmpty()} {
		if strings.Contains(fold.String(field), folded) {
			return true
		}
	}
	return false
}

// Search returns the stored events matching q ordered by start.
func (a *App) Search(ctx context.Context, q Query) ([]model.Event, error) {
	events, err := a.store.GetAllEvents(ctx)
	if err != nil {
		return nil, err
	}
	folded := cases.Fold().String(strings.TrimSpace(q.Text))

	out := make([]model.Event, 0, len(events))
	for _, ev := range events {
		if q.matches(ev, folded) {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Upcoming lists the instances, feed events included, starting in
// [now, now+UpcomingWindow).
func (a *App) Upcoming(ctx context.Context) ([]model.Instance, error) {
	now := a.now()
	res, err := a.Instances(ctx, now, now.Add(UpcomingWindow))
	if err != nil {
		return nil, err
	}
	out := make([]model.Instance, 0, len(res.Instances))
	for _, inst := range res.Instances {
		if !inst.Start.Before(now) {
			out = append(out, inst)
		}
	}
	return out, nil
}
