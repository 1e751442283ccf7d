package app

import (
	"time"

	"daycal/internal/calendar"
	"daycal/internal/config"
	"daycal/internal/feeds"
	"daycal/internal/ics"
	appLog "daycal/internal/log"
	"daycal/internal/notify"
	"daycal/internal/reminder"
	"daycal/internal/store"
)

// platformDedupTTL bounds how long an identical platform notification is
// suppressed.
const platformDedupTTL = 10 * time.Minute

// FromConfig builds a fully wired App. The caller owns Start and Close.
func FromConfig(cfg *config.Config) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Database, loc)
	if err != nil {
		return nil, err
	}

	var platform notify.Platform = notify.NewLog(false)
	if d := cfg.Discord; d != nil && d.Token != "" && d.ChannelID != "" {
		platform = notify.NewDiscord(d.Token, d.ChannelID)
	}
	platform = notify.NewDedup(platform, platformDedupTTL)

	alerts := reminder.NewAlertStore(nil)
	rc := cfg.Reminders
	sched := reminder.New(reminder.Options{
		Alerts:        alerts,
		Platform:      platform,
		Events:        st,
		Horizon:       time.Duration(rc.HorizonHours) * time.Hour,
		Tolerance:     time.Duration(rc.ToleranceMinutes) * time.Minute,
		Grace:         time.Duration(rc.RetireAfterMinutes) * time.Minute,
		SweepSpec:     rc.Sweep,
		AlertDuration: time.Duration(rc.AlertDurationMs) * time.Millisecond,
	})

	var syncer *feeds.Syncer
	if len(cfg.Feeds) > 0 {
		sources := make([]ics.Source, 0, len(cfg.Feeds))
		for _, f := range cfg.Feeds {
			sources = append(sources, ics.Source{ID: f.ID, Name: f.Name, URL: f.URL})
		}
		syncer = feeds.NewSyncer(ics.NewFetcher(cfg.CacheDir, nil), sources, loc)
	}

	suggester := calendar.NewSuggester(calendar.SuggesterConfig{
		WorkStart:     cfg.WorkingHours.Start,
		WorkEnd:       cfg.WorkingHours.End,
		CategoryHours: cfg.CategoryHours,
		MaxDays:       cfg.SlotSearchDays,
	})

	appLog.Info("app configured",
		"database", cfg.Database,
		"timezone", loc.String(),
		"feeds", len(cfg.Feeds),
		"discord", cfg.Discord != nil,
	)

	return New(Options{
		Store:     st,
		Scheduler: sched,
		Alerts:    alerts,
		Platform:  platform,
		Feeds:     syncer,
		Suggester: suggester,
		Location:  loc,
	}), nil
}
