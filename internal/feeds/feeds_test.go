package feeds

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daycal/internal/ics"
)

const feedBody = "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nBEGIN:VEVENT\r\nUID:e1\r\nSUMMARY:Review\r\n" +
	"DTSTART:20240305T090000Z\r\nDTEND:20240305T100000Z\r\nEND:VEVENT\r\nEND:VCALENDAR\r\n"

type stubFetcher struct {
	fail  map[string]bool
	calls int
}

func (f *stubFetcher) FetchAll(_ context.Context, sources []ics.Source) ([]ics.FetchResult, []error) {
	f.calls++
	var out []ics.FetchResult
	var errs []error
	for _, src := range sources {
		if f.fail[src.ID] {
			errs = append(errs, errors.New("unreachable"))
			continue
		}
		out = append(out, ics.FetchResult{Source: src, Body: []byte(feedBody)})
	}
	return out, errs
}

func TestRefreshKeepsPreviousEventsOnFailure(t *testing.T) {
	fetcher := &stubFetcher{fail: map[string]bool{}}
	s := NewSyncer(fetcher, []ics.Source{{ID: "a", Name: "A"}, {ID: "b", Name: "B"}}, time.UTC)

	require.NoError(t, s.Refresh(context.Background()))
	evs := s.Events()
	require.Len(t, evs, 2)
	assert.Equal(t, "a:e1", evs[0].ID)
	assert.Equal(t, "b:e1", evs[1].ID)
	assert.Equal(t, "B", evs[1].Category)
	assert.False(t, s.LastSync().IsZero())

	fetcher.fail["b"] = true
	err := s.Refresh(context.Background())
	assert.Error(t, err)
	assert.Len(t, s.Events(), 2)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := NewSyncer(&stubFetcher{}, nil, time.UTC)
	assert.Error(t, s.Start(context.Background(), "not a schedule"))
}

func TestStartAndStop(t *testing.T) {
	fetcher := &stubFetcher{}
	s := NewSyncer(fetcher, []ics.Source{{ID: "a"}}, time.UTC)

	require.NoError(t, s.Start(context.Background(), "@every 1h"))
	assert.Equal(t, 1, fetcher.calls)
	assert.Error(t, s.Start(context.Background(), "@every 1h"))
	s.Stop()
	s.Stop()
}
