package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFeed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//Example//Feed//EN
BEGIN:VEVENT
UID:standup-1
SUMMARY:Team standup
DTSTART:20240305T090000Z
DTEND:20240305T091500Z
RRULE:FREQ=DAILY;INTERVAL=1;COUNT=10
END:VEVENT
BEGIN:VEVENT
UID:standup-1
RECURRENCE-ID:20240306T090000Z
SUMMARY:Team standup (moved)
DTSTART:20240306T100000Z
DTEND:20240306T101500Z
END:VEVENT
BEGIN:VEVENT
UID:holiday-1
SUMMARY:Holiday
CATEGORIES:Personal
DTSTART;VALUE=DATE:20240704
DTEND;VALUE=DATE:20240706
END:VEVENT
BEGIN:VEVENT
SUMMARY:No uid
DTSTART:20240305T090000Z
DTEND:20240305T100000Z
END:VEVENT
END:VCALENDAR
`

func TestParseFeed(t *testing.T) {
	src := Source{ID: "team", Name: "Team", URL: "https://example.com/team.ics"}
	body := []byte(strings.ReplaceAll(sampleFeed, "\n", "\r\n"))

	events, err := ParseFeed(src, body, time.UTC)
	require.NoError(t, err)
	require.Len(t, events, 2)

	standup := events[0]
	assert.Equal(t, "team:standup-1", standup.ID)
	assert.Equal(t, "Team standup", standup.Title)
	assert.Equal(t, "Team", standup.Category)
	assert.True(t, standup.Start.Equal(time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, 15*time.Minute, standup.Duration())
	require.NotNil(t, standup.Recurrence)
	assert.EqualValues(t, "daily", standup.Recurrence.Frequency)

	holiday := events[1]
	assert.Equal(t, "team:holiday-1", holiday.ID)
	assert.Equal(t, "Personal", holiday.Category)
	assert.True(t, holiday.AllDay)
	assert.Equal(t, time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC), holiday.Start)
	// DTEND is exclusive in feeds; the event covers the 4th and 5th.
	assert.Equal(t, time.Date(2024, 7, 5, 23, 59, 59, 0, time.UTC), holiday.End)
}

func TestParseFeedEmptyBody(t *testing.T) {
	_, err := ParseFeed(Source{ID: "x"}, nil, time.UTC)
	assert.ErrorIs(t, err, ErrEmptyFeed)
}
