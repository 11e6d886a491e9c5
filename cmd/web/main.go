package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"schemapipe/internal/app"
)

func main() {
	// Optional .env file for local development; the environment wins when
	// both define a key.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env file")
	}

	// Create application instance
	application, err := app.NewApplication()
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start application
	if err := application.Run(); err != nil {
		slog.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
