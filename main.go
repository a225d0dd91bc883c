package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/useless-store/scoreboard/internal/auth"
	"github.com/useless-store/scoreboard/internal/config"
	"github.com/useless-store/scoreboard/internal/httpserver"
	"github.com/useless-store/scoreboard/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	if cfg.UsingDefaultSecret() {
		log.Warn().Msg("JWT_SECRET not set; signing tokens with the development secret")
	}

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	srv := httpserver.New(httpserver.Deps{
		Store:          st,
		Tokens:         auth.NewTokens([]byte(cfg.JWTSecret), cfg.TokenTTL),
		StaticDir:      cfg.StaticDir,
		AllowedOrigins: cfg.Origins(),
		Metrics:        cfg.MetricsEnabled,
		Logger:         log.Logger,
	})

	log.Info().
		Str("addr", cfg.Addr()).
		Str("static_dir", cfg.StaticDir).
		Strs("origins", cfg.Origins()).
		Msg("starting scoreboard")
	if err := srv.Start(ctx, cfg.Addr()); err != nil {
		log.Error().Err(err).Msg("server exited")
		st.Close()
		os.Exit(1)
	}
	log.Info().Msg("bye")
}

func setupLogging(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	} else {
		log.Warn().Str("level", cfg.LogLevel).Msg("unknown LOG_LEVEL, keeping info")
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}
