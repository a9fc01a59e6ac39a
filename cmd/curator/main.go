package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/STRATINT/eventcurator/internal/eventmanager"
)

const (
	exitSuccess      = 0
	exitError        = 1
	exitNoUsableData = 2
)

func main() {
	// .env is optional.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		if errors.Is(err, eventmanager.ErrNoUsableInput) {
			os.Exit(exitNoUsableData)
		}
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("curator failed", "error", err)
		os.Exit(exitError)
	}
	os.Exit(exitSuccess)
}
