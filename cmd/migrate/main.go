// Command migrate applies the database schema and prints a row-count
// summary. Kept separate from the main binary so operators can prepare
// a database without starting the application.
package main

import (
	"context"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"cdss/internal/logging"
	"cdss/internal/migration"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate <database_url>")
	}
	databaseURL := os.Args[1]

	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	runner := migration.NewRunner(logging.NewFromEnv())
	if err := runner.Run(ctx, db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	counts, err := runner.Summary(ctx, db)
	if err != nil {
		log.Fatalf("Failed to summarize tables: %v", err)
	}
	log.Printf("Migration complete: patients=%d loinc=%d measurements=%d abstracted=%d",
		counts.Patients, counts.Loinc, counts.Measurements, counts.AbstractedMeasurements)
}
