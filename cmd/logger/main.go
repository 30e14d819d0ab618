package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/saviobatista/airshow-tracker/internal/logging"
	"github.com/saviobatista/airshow-tracker/internal/nats"
	"github.com/saviobatista/airshow-tracker/internal/storage"
	"github.com/saviobatista/airshow-tracker/internal/types"
)

func main() {
	_ = godotenv.Load()
	log := logging.Component(logging.New(os.Getenv("LOG_LEVEL"), nil), "logger")

	if err := runLogger(log); err != nil {
		log.Error().Err(err).Msg("Logger failed")
		os.Exit(1)
	}
}

// Subscriber delivers tracker notifications
type Subscriber interface {
	SubscribePresence(handler func(*types.PresenceUpdate)) error
	SubscribeMarkers(handler func(*types.MarkerEvent)) error
}

// runLogger contains the main application logic
func runLogger(log zerolog.Logger) error {
	outputDir, natsURL := parseEnvironment()

	client, err := nats.New(natsURL)
	if err != nil {
		return fmt.Errorf("failed to create NATS client: %w", err)
	}
	defer client.Close()
	client.WithLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, client, outputDir, log)
}

// serve archives presence updates and marker events until ctx is done
func serve(ctx context.Context, sub Subscriber, outputDir string, log zerolog.Logger) error {
	presenceLog := storage.New(outputDir, "presence", storage.WithLogger(log))
	if err := presenceLog.Start(); err != nil {
		return fmt.Errorf("failed to start presence log: %w", err)
	}
	defer func() {
		if err := presenceLog.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to close presence log")
		}
	}()

	markerLog := storage.New(outputDir, "markers", storage.WithLogger(log))
	if err := markerLog.Start(); err != nil {
		return fmt.Errorf("failed to start marker log: %w", err)
	}
	defer func() {
		if err := markerLog.Stop(); err != nil {
			log.Warn().Err(err).Msg("Failed to close marker log")
		}
	}()

	if err := sub.SubscribePresence(func(update *types.PresenceUpdate) {
		if err := presenceLog.WriteJSON(update); err != nil {
			log.Error().Err(err).Msg("Failed to write presence update")
		}
	}); err != nil {
		return fmt.Errorf("failed to subscribe to presence updates: %w", err)
	}

	if err := sub.SubscribeMarkers(func(event *types.MarkerEvent) {
		if err := markerLog.WriteJSON(event); err != nil {
			log.Error().Err(err).Msg("Failed to write marker event")
		}
	}); err != nil {
		return fmt.Errorf("failed to subscribe to marker events: %w", err)
	}

	log.Info().
		Str("presence_file", presenceLog.CurrentPath()).
		Str("marker_file", markerLog.CurrentPath()).
		Msg("Archiving tracker notifications")
	<-ctx.Done()
	log.Info().Msg("Shutting down...")
	return nil
}

// parseEnvironment extracts environment variables with defaults
func parseEnvironment() (string, string) {
	outputDir := os.Getenv("OUTPUT_DIR")
	if outputDir == "" {
		outputDir = "./logs"
	}

	natsURL := os.Getenv("NATS_URL")
	if natsURL == "" {
		natsURL = "nats://nats:4222" // Default to Docker service name
	}

	return outputDir, natsURL
}
