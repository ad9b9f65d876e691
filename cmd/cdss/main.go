// Command cdss is the composition-root binary: it connects to the
// database, runs schema migrations, wires the dependency container,
// and runs one abstraction pass (no analysis pass). It is not the CLI
// surface the external UI/dashboard collaborator would expose — that surface
// belongs to the excluded web dashboard collaborator — only a thin
// wiring entry point, grounded on gohypo/main.go and
// gohypo/cmd/migrate/main.go's connect-migrate-wire sequence.
package main

import (
	"context"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"cdss/internal/config"
	"cdss/internal/container"
)

func main() {
	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	db, err := sqlx.Connect("postgres", appConfig.Database.URL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	appContainer, err := container.New(appConfig)
	if err != nil {
		log.Fatalf("failed to create application container: %v", err)
	}
	defer appContainer.Shutdown(context.Background())

	ctx := context.Background()
	if err := appContainer.Migrate(ctx, db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	if err := appContainer.InitWithDatabase(db); err != nil {
		log.Fatalf("failed to initialize container: %v", err)
	}

	result, err := appContainer.Orchestrator.AbstractData(ctx, time.Now())
	if err != nil {
		appContainer.Log.Warn("abstraction pass skipped: %v", err)
		return
	}
	appContainer.Log.Info("startup abstraction pass complete: %s", result.Summary())
}
