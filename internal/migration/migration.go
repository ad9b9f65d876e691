// Package migration creates the bi-temporal schema described in the
// external interfaces: Patients, Loinc, Measurements, and
// AbstractedMeasurements.
package migration

import (
	"context"

	"cdss/internal/errors"
	"cdss/internal/logging"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations.
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations.
type MigrationRunner struct {
	version string
	log     *logging.Logger
}

// NewRunner creates a new migration runner.
func NewRunner(log *logging.Logger) *MigrationRunner {
	if log == nil {
		log = logging.Default
	}
	return &MigrationRunner{version: "1.0.0", log: log}
}

func (r *MigrationRunner) Version() string {
	return r.version
}

// Run executes all schema migrations in dependency order.
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.createPatientsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create patients table")
	}
	if err := r.createLoincTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create loinc table")
	}
	if err := r.createMeasurementsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create measurements table")
	}
	if err := r.createAbstractedMeasurementsTable(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create abstracted_measurements table")
	}
	if err := r.createIndexes(ctx, db); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}
	r.log.Info("migrations complete (version %s)", r.version)
	return nil
}

func (r *MigrationRunner) createPatientsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS patients (
			patient_id TEXT PRIMARY KEY,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			sex TEXT NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createLoincTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS loinc (
			loinc_num TEXT PRIMARY KEY,
			component TEXT NOT NULL,
			property TEXT,
			time_aspect TEXT,
			system TEXT,
			scale_type TEXT,
			method_type TEXT,
			allowed_values TEXT
		)
	`)
	return err
}

func (r *MigrationRunner) createMeasurementsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS measurements (
			measurement_id BIGSERIAL PRIMARY KEY,
			patient_id TEXT NOT NULL REFERENCES patients(patient_id),
			loinc_num TEXT NOT NULL REFERENCES loinc(loinc_num),
			value TEXT NOT NULL,
			unit TEXT,
			valid_start_time TIMESTAMP NOT NULL,
			transaction_insertion_time TIMESTAMP NOT NULL,
			transaction_deletion_time TIMESTAMP
		)
	`)
	return err
}

func (r *MigrationRunner) createAbstractedMeasurementsTable(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS abstracted_measurements (
			patient_id TEXT NOT NULL REFERENCES patients(patient_id),
			loinc_code TEXT NOT NULL,
			concept_name TEXT NOT NULL,
			value TEXT NOT NULL,
			start_date_time TIMESTAMP NOT NULL,
			end_date_time TIMESTAMP NOT NULL
		)
	`)
	return err
}

func (r *MigrationRunner) createIndexes(ctx context.Context, db *sqlx.DB) error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_measurements_lineage ON measurements(patient_id, loinc_num, valid_start_time, transaction_insertion_time)",
		"CREATE INDEX IF NOT EXISTS idx_measurements_patient ON measurements(patient_id)",
		"CREATE INDEX IF NOT EXISTS idx_abstracted_patient ON abstracted_measurements(patient_id, loinc_code)",
	}
	for _, idxSQL := range indexes {
		if _, err := db.ExecContext(ctx, idxSQL); err != nil {
			return err
		}
	}
	return nil
}

// TableCounts is a row-count summary across the core tables, logged
// once after migration as ambient bootstrap diagnostics.
type TableCounts struct {
	Patients               int
	Loinc                  int
	Measurements           int
	AbstractedMeasurements int
}

// Summary reports row counts per table.
func (r *MigrationRunner) Summary(ctx context.Context, db *sqlx.DB) (TableCounts, error) {
	var c TableCounts
	if err := db.GetContext(ctx, &c.Patients, "SELECT COUNT(*) FROM patients"); err != nil {
		return c, errors.Wrap(err, "count patients failed")
	}
	if err := db.GetContext(ctx, &c.Loinc, "SELECT COUNT(*) FROM loinc"); err != nil {
		return c, errors.Wrap(err, "count loinc failed")
	}
	if err := db.GetContext(ctx, &c.Measurements, "SELECT COUNT(*) FROM measurements"); err != nil {
		return c, errors.Wrap(err, "count measurements failed")
	}
	if err := db.GetContext(ctx, &c.AbstractedMeasurements, "SELECT COUNT(*) FROM abstracted_measurements"); err != nil {
		return c, errors.Wrap(err, "count abstracted_measurements failed")
	}
	return c, nil
}
