package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"daycal/internal/app"
	appLog "daycal/internal/log"
	"daycal/internal/web"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, reminder scheduler and feed refresh",
		Run:   runServe,
	}

	cmd.Flags().StringP("listen", "l", "", "HTTP listen address (overrides config if set)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	listen, _ := cmd.Flags().GetString("listen")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("config", err)
	}
	if listen != "" {
		cfg.Listen = listen
	}

	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"database", cfg.Database,
		"refresh", cfg.RefreshCron,
		"sweep", cfg.Reminders.Sweep,
		"feeds", len(cfg.Feeds),
	)

	a, err := app.FromConfig(cfg)
	if err != nil {
		exitErr("open", err)
	}
	defer a.Close()

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if cfg.Discord != nil {
		if _, err := a.RequestNotificationPermission(ctx); err != nil {
			appLog.Warn("platform notifications unavailable", "err", err.Error())
		}
	}

	if err := a.Start(ctx, cfg.RefreshCron); err != nil {
		appLog.Error("start failed", err)
		return
	}

	if err := web.NewServer(a, cfg).ListenAndServe(ctx); err != nil {
		appLog.Error("HTTP server stopped", err)
	}
	appLog.Info("daycal exiting")
}
