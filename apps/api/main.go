package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bazarya/chat-core/pkg/auth"
	"github.com/bazarya/chat-core/pkg/config"
	"github.com/bazarya/chat-core/pkg/db"
	"github.com/bazarya/chat-core/pkg/snowflake"
	"github.com/bazarya/chat-core/pkg/store"
)

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Str("service", "api").Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", "api").Logger()
	}

	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid snowflake node id")
	}

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
	if err != nil {
		logger.Fatal().Err(err).Msg("scylla connection failed")
	}
	defer session.Close()
	logger.Info().Msg("connected to ScyllaDB")

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	verifier := auth.NewVerifier(cfg.JWTSecret, 24*time.Hour)
	chatStore := store.NewScyllaStore(session, node)

	handlers := NewHandlers(chatStore, chatStore, verifier, rdb, logger)
	router := NewRouter(handlers)

	srv := &http.Server{
		Addr:         cfg.APIAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.APIAddr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("api server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down api")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api shutdown failed")
	}
}
