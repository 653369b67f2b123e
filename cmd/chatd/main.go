package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/relaychat/server/config"
	"github.com/relaychat/server/src/server"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().Timestamp().Logger()

	cfg := config.FromEnv()
	srv := server.New(cfg, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Fatal().Err(err).Msg("server exited")
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		if err := srv.Stop(); err != nil {
			logger.Error().Err(err).Msg("shutdown error")
		}
	}
}
