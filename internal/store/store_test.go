package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daycal/internal/model"
)

func newSQLite(t *testing.T, path string) *SQLite {
	t.Helper()
	s, err := NewSQLite(path, time.UTC)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
	t.Run("sqlite", func(t *testing.T) {
		fn(t, newSQLite(t, filepath.Join(t.TempDir(), "events.db")))
	})
}

func sampleEvent() model.Event {
	until := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	return model.Event{
		Title:     "Gym",
		Category:  "Gym/Workout",
		Start:     time.Date(2024, 3, 4, 18, 0, 0, 0, time.UTC),
		End:       time.Date(2024, 3, 4, 19, 0, 0, 0, time.UTC),
		Location:  model.StringPtr("Downtown"),
		Reminders: []int{30, 5},
		Recurrence: &model.Recurrence{
			Frequency: model.FrequencyWeekly,
			Interval:  1,
			Until:     &until,
		},
	}
}

func TestAddAndGet(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		added, err := s.AddEvent(ctx, sampleEvent())
		require.NoError(t, err)

		_, err = uuid.Parse(added.ID)
		assert.NoError(t, err)
		assert.False(t, added.CreatedAt.IsZero())
		assert.True(t, added.CreatedAt.Equal(added.UpdatedAt))

		got, err := s.GetEvent(ctx, added.ID)
		require.NoError(t, err)
		assert.Equal(t, added.Title, got.Title)
		assert.True(t, added.Start.Equal(got.Start))
		assert.Equal(t, "Downtown", got.LocationOrEmpty())
		assert.Nil(t, got.Notes)
		assert.Equal(t, []int{30, 5}, got.Reminders)
		require.NotNil(t, got.Recurrence)
		assert.Equal(t, model.FrequencyWeekly, got.Recurrence.Frequency)
		assert.True(t, added.Recurrence.Until.Equal(*got.Recurrence.Until))
	})
}

func TestAddRejectsInvalidAndDuplicate(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		bad := sampleEvent()
		bad.Title = " "
		_, err := s.AddEvent(ctx, bad)
		assert.ErrorIs(t, err, model.ErrInvalidEvent)

		ev := sampleEvent()
		ev.ID = "fixed"
		_, err = s.AddEvent(ctx, ev)
		require.NoError(t, err)
		_, err = s.AddEvent(ctx, ev)
		assert.ErrorIs(t, err, ErrExists)
	})
}

func TestUpdateEvent(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		added, err := s.AddEvent(ctx, sampleEvent())
		require.NoError(t, err)

		title, empty, done := "Swim", "", true
		updated, err := s.UpdateEvent(ctx, added.ID, model.EventPatch{
			Title:           &title,
			Location:        &empty,
			Completed:       &done,
			ClearRecurrence: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "Swim", updated.Title)
		assert.Nil(t, updated.Location)
		assert.True(t, updated.Completed)
		assert.Nil(t, updated.Recurrence)
		assert.False(t, updated.UpdatedAt.Before(added.UpdatedAt))

		got, err := s.GetEvent(ctx, added.ID)
		require.NoError(t, err)
		assert.Equal(t, "Swim", got.Title)
		assert.Nil(t, got.Recurrence)
		assert.Equal(t, "Gym/Workout", got.Category)

		backwards := added.Start.Add(-time.Hour)
		_, err = s.UpdateEvent(ctx, added.ID, model.EventPatch{End: &backwards})
		assert.ErrorIs(t, err, model.ErrInvalidEvent)

		_, err = s.UpdateEvent(ctx, "missing", model.EventPatch{Title: &title})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestDeleteEvent(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		added, err := s.AddEvent(ctx, sampleEvent())
		require.NoError(t, err)

		require.NoError(t, s.DeleteEvent(ctx, added.ID))
		_, err = s.GetEvent(ctx, added.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteEvent(ctx, added.ID), ErrNotFound)
	})
}

func TestGetAllEventsOrderedByStart(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, h := range []int{15, 9, 12} {
			ev := sampleEvent()
			ev.Start = time.Date(2024, 3, 4, h, 0, 0, 0, time.UTC)
			ev.End = ev.Start.Add(time.Hour)
			_, err := s.AddEvent(ctx, ev)
			require.NoError(t, err)
		}

		all, err := s.GetAllEvents(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, 9, all[0].Start.Hour())
		assert.Equal(t, 12, all[1].Start.Hour())
		assert.Equal(t, 15, all[2].Start.Hour())
	})
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.db")
	ctx := context.Background()

	first, err := NewSQLite(path, time.UTC)
	require.NoError(t, err)
	allDay, err := model.NewEvent("Holiday", "Personal",
		time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC), time.Date(2024, 7, 4, 0, 0, 0, 0, time.UTC), true)
	require.NoError(t, err)
	added, err := first.AddEvent(ctx, allDay)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := newSQLite(t, path)
	got, err := second.GetEvent(ctx, added.ID)
	require.NoError(t, err)
	assert.True(t, got.AllDay)
	assert.Equal(t, time.Date(2024, 7, 4, 23, 59, 59, 0, time.UTC), got.End)
	assert.Nil(t, got.Reminders)
}

func TestOpenChoosesBackend(t *testing.T) {
	s, err := Open(":memory:", time.UTC)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(filepath.Join(t.TempDir(), "x.db"), time.UTC)
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &SQLite{}, s)
}

func TestAddNormalizesEmptyLocationAndNotes(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		ev := sampleEvent()
		empty := ""
		ev.Location, ev.Notes = &empty, &empty

		added, err := s.AddEvent(ctx, ev)
		require.NoError(t, err)
		assert.Nil(t, added.Location)
		assert.Nil(t, added.Notes)

		got, err := s.GetEvent(ctx, added.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Location)
		assert.Nil(t, got.Notes)
	})
}

func TestSQLiteSkipsUnreadableRows(t *testing.T) {
	s := newSQLite(t, filepath.Join(t.TempDir(), "events.db"))
	ctx := context.Background()

	good, err := s.AddEvent(ctx, sampleEvent())
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, `INSERT INTO events (id, title, start_at, end_at, created_at, updated_at)
		VALUES ('broken', 'Broken', 'not a time', 'not a time', 'x', 'x')`)
	require.NoError(t, err)

	all, err := s.GetAllEvents(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, good.ID, all[0].ID)

	_, err = s.GetEvent(ctx, "broken")
	assert.Error(t, err)
}
