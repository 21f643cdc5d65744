package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"live-transcription-service/internal/app"
	"live-transcription-service/internal/config"
	"live-transcription-service/internal/service/session"
)

const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create application")
		return 1
	}

	code := 0
	if err := a.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to start")
		code = 1
	} else {
		// The process lives as long as the session.
		select {
		case <-ctx.Done():
			log.Info().Msg("Signal received")
		case <-a.Done():
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Shutdown incomplete")
	}

	var fe *session.FatalError
	if errors.As(a.Err(), &fe) {
		log.Error().Str("kind", fe.Kind).Time("at", fe.At).Err(fe.Err).Msg("Session failed")
		code = 1
	}
	return code
}
