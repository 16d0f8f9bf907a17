package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/bazarya/chat-core/pkg/config"
	"github.com/bazarya/chat-core/pkg/db"
	"github.com/bazarya/chat-core/pkg/snowflake"
	"github.com/bazarya/chat-core/pkg/store"
)

const consumerGroupID = "messaging-service"

// schemaStatements is run at startup so a fresh cluster comes up without a
// separate migration step. Every statement is IF NOT EXISTS, so restarts
// are harmless.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id bigint,
		user_name text,
		img_url text,
		PRIMARY KEY (id)
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id bigint,
		user_a bigint,
		user_b bigint,
		listing_id bigint,
		created_at timestamp,
		PRIMARY KEY (id)
	)`,
	`CREATE TABLE IF NOT EXISTS conversations_by_pair (
		user_a bigint,
		user_b bigint,
		listing_id bigint,
		conversation_id bigint,
		PRIMARY KEY ((user_a, user_b), listing_id)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		conversation_id bigint,
		id bigint,
		sender_id bigint,
		text text,
		created_at timestamp,
		sender_name text,
		sender_img text,
		PRIMARY KEY (conversation_id, id)
	) WITH CLUSTERING ORDER BY (id ASC)`,
	`CREATE TABLE IF NOT EXISTS conversation_summaries (
		user_id bigint,
		conversation_id bigint,
		other_user_id bigint,
		last_message_id bigint,
		last_message_text text,
		last_sender_id bigint,
		updated_at timestamp,
		PRIMARY KEY (user_id, conversation_id)
	)`,
	`CREATE TABLE IF NOT EXISTS unread_counters (
		user_id bigint,
		conversation_id bigint,
		unread_count counter,
		PRIMARY KEY (user_id, conversation_id)
	)`,
}

func main() {
	cfg := config.Load()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Str("service", "messaging").Logger()
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", "messaging").Logger()
	}

	// The keyspace has to exist before a keyspace-scoped session can
	// connect, so bootstrap it through the system keyspace first.
	sysSession, err := db.NewSession(cfg.ScyllaHosts, "system")
	if err != nil {
		logger.Fatal().Err(err).Msg("scylla system connection failed")
	}
	err = sysSession.Query(
		`CREATE KEYSPACE IF NOT EXISTS ` + cfg.ScyllaKeyspace +
			` WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`,
	).Exec()
	sysSession.Close()
	if err != nil {
		logger.Fatal().Err(err).Msg("keyspace creation failed")
	}

	session, err := db.NewSession(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
	if err != nil {
		logger.Fatal().Err(err).Msg("scylla connection failed")
	}
	defer session.Close()

	for _, stmt := range schemaStatements {
		if err := session.Query(stmt).Exec(); err != nil {
			logger.Fatal().Err(err).Msg("schema creation failed")
		}
	}
	logger.Info().Str("keyspace", cfg.ScyllaKeyspace).Msg("schema ready")

	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid snowflake node id")
	}
	chatStore := store.NewScyllaStore(session, node)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  consumerGroupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer := NewConsumer(reader, chatStore, chatStore, logger)
	logger.Info().Str("topic", cfg.KafkaTopic).Str("group", consumerGroupID).Msg("consuming events")
	consumer.Run(ctx)

	logger.Info().Msg("messaging service stopped")
}
