// Package container wires the application's dependency graph in two
// phases, grounded on gohypo's Container: a config-only New followed
// by a database-dependent InitWithDatabase, so the composition root
// can construct the container before a connection exists and fail
// loudly at startup if the database is unreachable.
package container

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"cdss/adapters/postgres"
	"cdss/adapters/rules"
	"cdss/adapters/tak"
	"cdss/internal/concept"
	"cdss/internal/config"
	"cdss/internal/errors"
	"cdss/internal/history"
	"cdss/internal/logging"
	"cdss/internal/mediator"
	"cdss/internal/migration"
	"cdss/internal/orchestrator"
	"cdss/internal/records"
	"cdss/ports"
)

// Container holds all application dependencies and manages their
// lifecycle.
type Container struct {
	Config *config.Config
	Log    *logging.Logger

	// Infrastructure
	DB    *sqlx.DB
	Store ports.Store

	// Core services
	Resolver     *concept.Resolver
	Records      *records.Service
	History      *history.Service
	Mediator     *mediator.Mediator
	Orchestrator *orchestrator.Orchestrator

	// Document repositories
	TAKLoader *tak.Loader
	RuleRepo  *rules.Repository
	Migrator  *migration.MigrationRunner
}

// New creates a new dependency injection container. Components that
// need a database connection are left nil until InitWithDatabase runs.
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	log := logging.New(logging.ParseLevel(cfg.Runtime.LogLevel))

	c := &Container{
		Config:    cfg,
		Log:       log,
		TAKLoader: tak.New(),
		RuleRepo:  rules.New(),
		Migrator:  migration.NewRunner(log),
	}

	return c, nil
}

// InitWithDatabase initializes the components that require database
// access, then loads the TAK and rule document repositories from the
// configured paths.
func (c *Container) InitWithDatabase(db *sqlx.DB) error {
	if db == nil {
		return fmt.Errorf("database connection cannot be nil")
	}
	c.DB = db

	if err := db.Ping(); err != nil {
		return fmt.Errorf("database connection test failed: %w", err)
	}

	c.Store = postgres.New(db)

	c.Resolver = concept.New(c.Store)
	c.Records = records.New(c.Store, c.Resolver, c.Log)
	c.History = history.New(c.Store)

	takRules, err := c.TAKLoader.LoadAll(c.Config.Paths.TAKDir)
	if err != nil {
		return fmt.Errorf("failed to load TAK repository: %w", err)
	}
	c.Mediator = mediator.New(takRules, c.History, c.Records, c.Log)

	if violations := c.RuleRepo.Validate(c.Config.Paths.RulesDir); len(violations) > 0 {
		return errors.RulesValidation(violations)
	}

	c.Orchestrator = orchestrator.New(
		c.Store,
		c.Mediator,
		c.Records,
		c.RuleRepo,
		c.Config.Paths.RulesDir,
		c.Config.Runtime.DefaultRelevance,
		c.Log,
	)

	c.Log.Info("container initialized successfully with database connection")
	return nil
}

// Migrate runs the schema migrations against db and logs a summary of
// table row counts, the bootstrap diagnostics carried over from the
// original loader. Called before InitWithDatabase so the schema exists
// before any component issues a query.
func (c *Container) Migrate(ctx context.Context, db *sqlx.DB) error {
	if err := c.Migrator.Run(ctx, db); err != nil {
		return err
	}
	counts, err := c.Migrator.Summary(ctx, db)
	if err != nil {
		return err
	}
	c.Log.Info("bootstrap summary: patients=%d loinc=%d measurements=%d abstracted=%d",
		counts.Patients, counts.Loinc, counts.Measurements, counts.AbstractedMeasurements)
	return nil
}

// Shutdown gracefully shuts down all components.
func (c *Container) Shutdown(ctx context.Context) error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
