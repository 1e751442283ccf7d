package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"daycal/internal/app"
	"daycal/internal/model"
)

func init() {
	add := &cobra.Command{
		Use:   "add",
		Short: "Add an event",
		Run:   runAdd,
	}
	add.Flags().StringP("title", "t", "", "Title (required)")
	add.Flags().String("category", "", "Category")
	add.Flags().StringP("start", "s", "", `Start, e.g. "2024-01-08 10:00" or "tomorrow 3pm" (required)`)
	add.Flags().StringP("end", "e", "", "End (default: start + --duration)")
	add.Flags().IntP("duration", "d", 60, "Duration in minutes when --end is not set")
	add.Flags().Bool("all-day", false, "All-day event")
	add.Flags().String("location", "", "Location")
	add.Flags().String("notes", "", "Notes")
	add.Flags().IntSliceP("remind", "r", nil, "Reminder offsets in minutes before start")
	add.Flags().String("repeat", "", "Recurrence: daily, weekly, monthly or yearly")
	add.Flags().Int("interval", 1, "Recurrence interval")
	add.Flags().String("until", "", "Last day of the recurrence")
	add.MarkFlagRequired("title")
	add.MarkFlagRequired("start")

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored events, or the instances in a window",
		Run:   runList,
	}
	list.Flags().String("from", "", "Window start; with --to, lists expanded instances")
	list.Flags().String("to", "", "Window end")
	list.Flags().String("search", "", "Case-insensitive text in title, category, notes or location")
	list.Flags().String("category", "", "Only events in this category")
	list.Flags().Bool("upcoming", false, "List instances starting in the next seven days")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an event and its reminders",
		Args:  cobra.ExactArgs(1),
		Run:   runDelete,
	}

	done := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark an event completed",
		Args:  cobra.ExactArgs(1),
		Run:   runDone,
	}

	RootCmd.AddCommand(add, list, del, done)
}

func runAdd(cmd *cobra.Command, args []string) {
	title, _ := cmd.Flags().GetString("title")
	category, _ := cmd.Flags().GetString("category")
	startStr, _ := cmd.Flags().GetString("start")
	endStr, _ := cmd.Flags().GetString("end")
	duration, _ := cmd.Flags().GetInt("duration")
	allDay, _ := cmd.Flags().GetBool("all-day")
	location, _ := cmd.Flags().GetString("location")
	notes, _ := cmd.Flags().GetString("notes")
	remind, _ := cmd.Flags().GetIntSlice("remind")
	repeat, _ := cmd.Flags().GetString("repeat")
	interval, _ := cmd.Flags().GetInt("interval")
	untilStr, _ := cmd.Flags().GetString("until")

	a := openApp(cmd)
	defer a.Close()

	loc := a.Location()
	now := time.Now()
	dp := newDateParser()

	start, err := dp.parse(startStr, now, loc)
	if err != nil {
		exitErr("start", err)
	}
	end := start.Add(time.Duration(duration) * time.Minute)
	if allDay {
		end = start
	}
	if endStr != "" {
		if end, err = dp.parse(endStr, start, loc); err != nil {
			exitErr("end", err)
		}
	}

	ev, err := model.NewEvent(title, category, start, end, allDay)
	if err != nil {
		exitErr("event", err)
	}
	ev.Location = model.StringPtr(location)
	ev.Notes = model.StringPtr(notes)
	ev.Reminders = remind

	if repeat != "" {
		r := model.Recurrence{Frequency: model.Frequency(strings.ToLower(repeat)), Interval: interval}
		if untilStr != "" {
			until, err := dp.parse(untilStr, start, loc)
			if err != nil {
				exitErr("until", err)
			}
			r.Until = &until
		}
		ev.Recurrence = &r
	}

	added, err := a.AddEvent(cmd.Context(), ev)
	if err != nil {
		exitErr("add", err)
	}
	printJSON(added)
}

func runList(cmd *cobra.Command, args []string) {
	fromStr, _ := cmd.Flags().GetString("from")
	toStr, _ := cmd.Flags().GetString("to")

	search, _ := cmd.Flags().GetString("search")
	category, _ := cmd.Flags().GetString("category")
	upcoming, _ := cmd.Flags().GetBool("upcoming")

	a := openApp(cmd)
	defer a.Close()

	if upcoming {
		instances, err := a.Upcoming(cmd.Context())
		if err != nil {
			exitErr("list", err)
		}
		printJSON(instances)
		return
	}
	if search != "" || category != "" {
		runSearch(cmd, a, app.Query{Text: search, Category: category}, fromStr, toStr)
		return
	}
	if fromStr == "" && toStr == "" {
		events, err := a.Events(cmd.Context())
		if err != nil {
			exitErr("list", err)
		}
		printJSON(events)
		return
	}

	loc := a.Location()
	dp := newDateParser()
	from, err := dp.parse(fromStr, time.Now(), loc)
	if err != nil {
		exitErr("from", err)
	}
	to, err := dp.parse(toStr, from, loc)
	if err != nil {
		exitErr("to", err)
	}
	if !to.After(from) {
		exitErr("list", fmt.Errorf("--to must be after --from"))
	}

	res, err := a.Instances(cmd.Context(), from, to)
	if err != nil {
		exitErr("list", err)
	}
	printJSON(res.Instances)
}

// runSearch lists stored events matching q; from and to optionally bound
// the start.
func runSearch(cmd *cobra.Command, a *app.App, q app.Query, fromStr, toStr string) {
	loc := a.Location()
	dp := newDateParser()
	var err error
	if fromStr != "" {
		if q.From, err = dp.parse(fromStr, time.Now(), loc); err != nil {
			exitErr("from", err)
		}
	}
	if toStr != "" {
		if q.To, err = dp.parse(toStr, time.Now(), loc); err != nil {
			exitErr("to", err)
		}
	}

	events, err := a.Search(cmd.Context(), q)
	if err != nil {
		exitErr("list", err)
	}
	printJSON(events)
}

func runDelete(cmd *cobra.Command, args []string) {
	a := openApp(cmd)
	defer a.Close()

	if err := a.DeleteEvent(cmd.Context(), args[0]); err != nil {
		exitErr("delete", err)
	}
	fmt.Printf("deleted %s\n", args[0])
}

func runDone(cmd *cobra.Command, args []string) {
	a := openApp(cmd)
	defer a.Close()

	completed := true
	ev, err := a.UpdateEvent(cmd.Context(), args[0], model.EventPatch{Completed: &completed})
	if err != nil {
		exitErr("done", err)
	}
	printJSON(ev)
}
