package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/shojbahmed330/voicebook/internal/adapters/http"
	"github.com/shojbahmed330/voicebook/internal/config"
	"github.com/shojbahmed330/voicebook/internal/history"
	"github.com/shojbahmed330/voicebook/internal/store"
	"github.com/shojbahmed330/voicebook/internal/token"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	archive, err := history.Open(cfg.HistoryPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.HistoryPath).Msg("failed to open history db")
	}

	sessions := store.NewMemory(store.WithArchive(archive))

	minter := token.NewMinter(cfg.Secret, cfg.TokenTTL)
	limiter := router.NewRateLimiter(cfg.TokenRateLimit, cfg.TokenRateWindow)
	tokens := router.NewTokenHandler(cfg.TokenUpstream, minter, limiter)

	r := router.SetupRouter(cfg, tokens, router.NewSessionHandler(sessions, archive))
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Voicebook session server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
