package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	conflicts := &cobra.Command{
		Use:   "conflicts",
		Short: "List instances overlapping a proposed interval",
		Run:   runConflicts,
	}
	conflicts.Flags().StringP("start", "s", "", "Proposed start (required)")
	conflicts.Flags().StringP("end", "e", "", "Proposed end (default: start + --duration)")
	conflicts.Flags().IntP("duration", "d", 60, "Duration in minutes when --end is not set")
	conflicts.Flags().String("exclude", "", "Event id to ignore, e.g. the one being edited")
	conflicts.MarkFlagRequired("start")

	suggest := &cobra.Command{
		Use:   "suggest",
		Short: "Suggest free slots on a day",
		Run:   runSuggest,
	}
	suggest.Flags().String("date", "today", "Day to search from")
	suggest.Flags().IntP("duration", "d", 60, "Slot length in minutes")
	suggest.Flags().String("category", "", "Category whose preferred hours are tried first")

	RootCmd.AddCommand(conflicts, suggest)
}

func runConflicts(cmd *cobra.Command, args []string) {
	startStr, _ := cmd.Flags().GetString("start")
	endStr, _ := cmd.Flags().GetString("end")
	duration, _ := cmd.Flags().GetInt("duration")
	exclude, _ := cmd.Flags().GetString("exclude")

	a := openApp(cmd)
	defer a.Close()

	loc := a.Location()
	dp := newDateParser()
	start, err := dp.parse(startStr, time.Now(), loc)
	if err != nil {
		exitErr("start", err)
	}
	end := start.Add(time.Duration(duration) * time.Minute)
	if endStr != "" {
		if end, err = dp.parse(endStr, start, loc); err != nil {
			exitErr("end", err)
		}
	}

	found, err := a.Conflicts(cmd.Context(), start, end, exclude)
	if err != nil {
		exitErr("conflicts", err)
	}
	if len(found) == 0 {
		fmt.Println("no conflicts")
		return
	}
	printJSON(found)
}

func runSuggest(cmd *cobra.Command, args []string) {
	dateStr, _ := cmd.Flags().GetString("date")
	duration, _ := cmd.Flags().GetInt("duration")
	category, _ := cmd.Flags().GetString("category")

	a := openApp(cmd)
	defer a.Close()

	date, err := newDateParser().parse(dateStr, time.Now(), a.Location())
	if err != nil {
		exitErr("date", err)
	}

	slots, err := a.SuggestSlots(cmd.Context(), date, duration, category)
	if err != nil {
		exitErr("suggest", err)
	}
	for _, s := range slots {
		mark := ""
		if s.Preferred {
			mark = " *"
		}
		fmt.Printf("%s  %s%s\n", s.Start.Format("Mon 2006-01-02"), s.Label, mark)
	}
}
