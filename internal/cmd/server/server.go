// Package server parses command flags and composes the chat service
// entrypoint.
package server

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/conclave-chat/conclave/internal/auth"
	"github.com/conclave-chat/conclave/internal/chat/api/httpapi"
	"github.com/conclave-chat/conclave/internal/chat/app"
	"github.com/conclave-chat/conclave/internal/chat/storage/sqlite"
	"github.com/conclave-chat/conclave/internal/platform/config"
)

// Config holds server command configuration.
type Config struct {
	HTTPAddr         string        `env:"CONCLAVE_HTTP_ADDR"          envDefault:":8080"`
	DBPath           string        `env:"CONCLAVE_DB_PATH"            envDefault:"conclave.db"`
	TokenSecret      string        `env:"CONCLAVE_TOKEN_SECRET"`
	TokenTTL         time.Duration `env:"CONCLAVE_TOKEN_TTL"          envDefault:"24h"`
	MaxRecipients    int           `env:"CONCLAVE_MAX_RECIPIENTS"     envDefault:"10"`
	MaxMessageLength int           `env:"CONCLAVE_MAX_MESSAGE_LENGTH" envDefault:"2000"`
	MaxTitleLength   int           `env:"CONCLAVE_MAX_TITLE_LENGTH"   envDefault:"100"`
}

// ParseConfig parses environment and flags into a Config. Flags override
// environment values.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.TokenSecret, "token-secret", cfg.TokenSecret, "auth token signing secret")
	fs.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "auth token lifetime")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse args: %w", err)
	}
	return cfg, nil
}

// Run wires the store, auth, registry, and API server, then serves until the
// context ends.
func Run(ctx context.Context, cfg Config) error {
	if cfg.TokenSecret == "" {
		return fmt.Errorf("token secret is required")
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	tokens, err := auth.NewTokenService([]byte(cfg.TokenSecret), cfg.TokenTTL, store)
	if err != nil {
		return fmt.Errorf("init token service: %w", err)
	}

	registry := app.NewRegistry(log.Default())
	go registry.Run(ctx)

	service := app.NewService(store, tokens, registry, log.Default(), app.Limits{
		MaxRecipients:    cfg.MaxRecipients,
		MaxMessageLength: cfg.MaxMessageLength,
		MaxTitleLength:   cfg.MaxTitleLength,
	})

	api := httpapi.NewServer(cfg.HTTPAddr, service, log.Default())
	if err := api.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve api: %w", err)
	}
	return nil
}
