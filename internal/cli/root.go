// Package cli implements the daycal commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"daycal/internal/app"
	"daycal/internal/config"
	appLog "daycal/internal/log"
)

var (
	configPath string
	withFeeds  bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "daycal",
	Short: "Personal calendar with reminders and slot suggestions",
	Long: "daycal stores events in SQLite, expands recurring events, detects conflicts, " +
		"suggests free slots and fires reminders. Run `daycal serve` for the HTTP API.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config path (default: $DAYCAL_CONFIG or ./daycal.yaml)")
	RootCmd.PersistentFlags().BoolVar(&withFeeds, "feeds", false, "Fetch subscribed feeds before answering")
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if env := os.Getenv("DAYCAL_CONFIG"); env != "" {
		return env
	}
	return "./daycal.yaml"
}

// loadConfig reads the config file, applies DAYCAL_* overrides and the log
// level.
func loadConfig() (*config.Config, error) {
	path := getConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	cfg.ApplyEnv()
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// openApp builds the service for one-shot commands. Reminders are not
// started.
func openApp(cmd *cobra.Command) *app.App {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("config", err)
	}
	a, err := app.FromConfig(cfg)
	if err != nil {
		exitErr("open", err)
	}
	if withFeeds {
		if err := a.RefreshFeeds(cmd.Context()); err != nil {
			appLog.Warn("feed refresh incomplete", "err", err.Error())
		}
	}
	return a
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
