package main

import (
	"os"

	"github.com/joho/godotenv"

	"daycal/internal/cli"
	appLog "daycal/internal/log"
)

func main() {
	// .env is optional.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		appLog.Warn("failed to read .env", "err", err.Error())
	}

	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
