package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openmedline/medmirror/internal/config"
	"github.com/openmedline/medmirror/internal/database"
	"github.com/openmedline/medmirror/internal/eutils"
	"github.com/openmedline/medmirror/internal/ingest"
	"github.com/openmedline/medmirror/internal/observability"
)

// app bundles the shared runtime of the database-backed commands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	db     *database.DB
}

// newLogger loads the configuration and builds the logger. Used directly by
// commands that do not need a database connection.
func newLogger() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	return cfg, logger, nil
}

// openApp loads the configuration, builds the logger, and connects to the
// database.
func openApp(ctx context.Context) (*app, error) {
	cfg, logger, err := newLogger()
	if err != nil {
		return nil, err
	}

	db, err := database.New(ctx, &cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &app{cfg: cfg, logger: logger, db: db}, nil
}

func (a *app) Close() {
	a.db.Close()
}

// pipeline builds the ingestion pipeline for one command.
func (a *app) pipeline(component string) *ingest.Pipeline {
	logger := observability.WithComponent(a.logger, component)

	fetcher := eutils.New(eutils.Config{
		BaseURL:   a.cfg.EUtils.BaseURL,
		APIKey:    a.cfg.EUtils.APIKey,
		Tool:      a.cfg.EUtils.Tool,
		Timeout:   a.cfg.EUtils.Timeout,
		RateLimit: a.cfg.EUtils.RateLimit,
	}, logger)

	return ingest.New(a.db, fetcher, ingest.Config{
		FetchSize: a.cfg.EUtils.FetchSize,
		Unique:    uniqueOnly,
	}, logger)
}
