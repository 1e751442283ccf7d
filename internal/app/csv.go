package app

import (
	"context"
	"encoding/csv"
	"io"

	"daycal/internal/model"
)

var csvHeader = []string{
	"Title", "Category", "Start Date", "Start Time", "End Date", "End Time",
	"All Day", "Location", "Notes", "Recurring", "Completed",
}

// ExportCSV writes stored events as a spreadsheet-friendly table. Time
// columns are empty for all-day events.
func (a *App) ExportCSV(ctx context.Context, w io.Writer) error {
	events, err := a.store.GetAllEvents(ctx)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, ev := range events {
		if err := cw.Write(a.csvRow(ev)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (a *App) csvRow(ev model.Event) []string {
	start, end := ev.Start.In(a.loc), ev.End.In(a.loc)
	startTime, endTime := start.Format("15:04"), end.Format("15:04")
	if ev.AllDay {
		startTime, endTime = "", ""
	}
	return []string{
		ev.Title,
		ev.Category,
		start.Format("2006-01-02"),
		startTime,
		end.Format("2006-01-02"),
		endTime,
		yesNo(ev.AllDay),
		ev.LocationOrEmpty(),
		ev.NotesOrEmpty(),
		yesNo(ev.IsRecurring()),
		yesNo(ev.Completed),
	}
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
