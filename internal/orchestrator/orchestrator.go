// Package orchestrator implements the system's top-level entry
// points: rebuilding the AbstractedMeasurements table from every
// patient's raw history, then driving the Rule Processor over the
// freshly rebuilt abstractions to produce each patient's clinical
// state. Grounded on businesslogic.py's abstract_data/
// analyze_clinical_state, which call the mediator and rule processor
// in the same sequence.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"cdss/domain/clinical"
	"cdss/internal/errors"
	"cdss/internal/logging"
	"cdss/internal/mediator"
	"cdss/internal/ruleproc"
	"cdss/ports"
)

const (
	queryAllPatientIDs = `SELECT patient_id FROM patients ORDER BY patient_id`

	queryTruncateAbstracted = `DELETE FROM abstracted_measurements`

	queryInsertAbstracted = `INSERT INTO abstracted_measurements
		(patient_id, loinc_code, concept_name, value, start_date_time, end_date_time)
		VALUES ($1, $2, $3, $4, $5, $6)`

	queryVisibleAbstracted = `SELECT patient_id, loinc_code, concept_name, value, start_date_time, end_date_time
		FROM abstracted_measurements
		WHERE patient_id = $1 AND start_date_time <= $2 AND end_date_time >= $2
		ORDER BY loinc_code, start_date_time`
)

// abstractedRow mirrors the abstracted_measurements table shape for
// sqlx scanning.
type abstractedRow struct {
	PatientID     string    `db:"patient_id"`
	LoincCode     string    `db:"loinc_code"`
	ConceptName   string    `db:"concept_name"`
	Value         string    `db:"value"`
	StartDateTime time.Time `db:"start_date_time"`
	EndDateTime   time.Time `db:"end_date_time"`
}

func (r abstractedRow) toDomain() clinical.AbstractedMeasurement {
	return clinical.AbstractedMeasurement{
		PatientID:     r.PatientID,
		LoincCode:     r.LoincCode,
		ConceptName:   r.ConceptName,
		Value:         r.Value,
		StartDateTime: r.StartDateTime,
		EndDateTime:   r.EndDateTime,
	}
}

// RuleRepository discovers the two-tier structured rule set. Satisfied
// by *rules.Repository.
type RuleRepository interface {
	Validate(dir string) []string
	Discover(dir string) ([]clinical.StructuredRule, []clinical.StructuredRule, error)
}

// PatientReader fetches a patient's table row, shared by the Mediator
// and the Rule Processor.
type PatientReader interface {
	GetPatient(ctx context.Context, patientID string) (clinical.Patient, error)
}

// Orchestrator composes the Mediator and Rule Processor over a shared
// Store, driving the two top-level operations.
type Orchestrator struct {
	store    ports.Store
	mediator *mediator.Mediator
	patients PatientReader
	rulesDir string
	ruleRepo RuleRepository
	log      *logging.Logger

	relevance time.Duration
}

// New builds an Orchestrator. relevance is the window extension that
// every AbstractData run passes to the Mediator; a non-positive value
// falls back to 24h.
func New(store ports.Store, med *mediator.Mediator, patients PatientReader, ruleRepo RuleRepository, rulesDir string, relevance time.Duration, log *logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.Default
	}
	if relevance <= 0 {
		relevance = 24 * time.Hour
	}
	return &Orchestrator{
		store:     store,
		mediator:  med,
		patients:  patients,
		rulesDir:  rulesDir,
		ruleRepo:  ruleRepo,
		relevance: relevance,
		log:       log,
	}
}

// AbstractDataResult summarizes one AbstractData run.
type AbstractDataResult struct {
	RunID           string
	Snapshot        time.Time
	PatientsScanned int
	RowsWritten     int
}

// AbstractData rebuilds the AbstractedMeasurements table for every
// registered patient as of snapshot: the entire truncate-then-rebuild
// runs inside a single transaction, so no reader ever observes a
// partially rebuilt table (correcting the per-patient-transaction
// framing considered and rejected earlier; this is a
// distinct operation from the Record Service's update atomicity).
func (o *Orchestrator) AbstractData(ctx context.Context, snapshot time.Time) (*AbstractDataResult, error) {
	runID := uuid.NewString()

	var patientIDs []string
	if err := o.store.Fetch(ctx, &patientIDs, queryAllPatientIDs); err != nil {
		return nil, errors.Wrap(err, "list patients failed")
	}
	if len(patientIDs) == 0 {
		return nil, errors.New(errors.KindPatientNotFound, "no patients registered; nothing to abstract")
	}

	type patientRows struct {
		patientID string
		records   []clinical.UnifiedRecord
	}
	perPatient := make([]patientRows, 0, len(patientIDs))
	for _, pid := range patientIDs {
		recs, err := o.mediator.Run(ctx, pid, snapshot, o.relevance)
		if err != nil {
			return nil, errors.Wrapf(err, "abstract patient %s failed", pid)
		}
		perPatient = append(perPatient, patientRows{patientID: pid, records: recs})
	}

	tx, err := o.store.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin abstraction transaction failed")
	}

	if _, err := tx.Execute(ctx, queryTruncateAbstracted); err != nil {
		_ = tx.Rollback()
		return nil, errors.Wrap(err, "truncate abstracted measurements failed")
	}

	rowsWritten := 0
	for _, pr := range perPatient {
		for _, rec := range pr.records {
			am := rec.AsAbstractedMeasurement()
			if _, err := tx.Execute(ctx, queryInsertAbstracted,
				am.PatientID, am.LoincCode, am.ConceptName, am.Value, am.StartDateTime, am.EndDateTime,
			); err != nil {
				_ = tx.Rollback()
				return nil, errors.Wrapf(err, "insert abstracted row for patient %s failed", am.PatientID)
			}
			rowsWritten++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit abstraction transaction failed")
	}

	o.log.Info("abstracted data run=%s patients=%d rows=%d", runID, len(patientIDs), rowsWritten)
	return &AbstractDataResult{
		RunID:           runID,
		Snapshot:        snapshot,
		PatientsScanned: len(patientIDs),
		RowsWritten:     rowsWritten,
	}, nil
}

// ClinicalStateResult is one AnalyzeClinicalState run's output.
type ClinicalStateResult struct {
	RunID    string
	Snapshot time.Time
	States   map[string]map[string]string
}

// AnalyzeClinicalState runs AbstractData to guarantee the abstraction
// table reflects snapshot (always rerun for
// determinism rather than trust a possibly-stale prior run), then
// evaluates the Rule Processor per patient over their most recent
// abstracted interval for each LOINC code.
func (o *Orchestrator) AnalyzeClinicalState(ctx context.Context, snapshot time.Time) (*ClinicalStateResult, error) {
	abstraction, err := o.AbstractData(ctx, snapshot)
	if err != nil {
		return nil, err
	}

	var patientIDs []string
	if err := o.store.Fetch(ctx, &patientIDs, queryAllPatientIDs); err != nil {
		return nil, errors.Wrap(err, "list patients failed")
	}

	declarative, procedural, err := o.ruleRepo.Discover(o.rulesDir)
	if err != nil {
		return nil, errors.Wrap(err, "discover rules failed")
	}
	processor := ruleproc.New(declarative, procedural, o.patients, o.log)

	states := make(map[string]map[string]string, len(patientIDs))
	for _, pid := range patientIDs {
		var rows []abstractedRow
		if err := o.store.Fetch(ctx, &rows, queryVisibleAbstracted, pid, snapshot); err != nil {
			return nil, errors.Wrapf(err, "fetch abstracted rows for patient %s failed", pid)
		}
		df := latestPerConcept(rows)

		state, err := processor.Run(ctx, pid, df)
		if err != nil {
			return nil, errors.Wrapf(err, "run rule processor for patient %s failed", pid)
		}
		states[pid] = state
	}

	return &ClinicalStateResult{
		RunID:    abstraction.RunID,
		Snapshot: snapshot,
		States:   states,
	}, nil
}

// latestPerConcept reduces the abstracted rows to the most recent
// interval (by StartDateTime) per LoincCode, per the
// "latest state per concept" rule, since a patient may carry several
// merged intervals of the same concept across distinct time windows.
func latestPerConcept(rows []abstractedRow) []clinical.AbstractedMeasurement {
	byCode := make(map[string]abstractedRow, len(rows))
	for _, r := range rows {
		existing, ok := byCode[r.LoincCode]
		if !ok || r.StartDateTime.After(existing.StartDateTime) {
			byCode[r.LoincCode] = r
		}
	}
	out := make([]clinical.AbstractedMeasurement, 0, len(byCode))
	for _, r := range byCode {
		out = append(out, r.toDomain())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LoincCode < out[j].LoincCode })
	return out
}

// TraceClinicalState runs the supplemented rule-flow debug trace for a
// single patient, grounded on rule_processor.py:debug_patient_rule_flow.
func (o *Orchestrator) TraceClinicalState(ctx context.Context, patientID string, snapshot time.Time) (*ruleproc.TraceResult, error) {
	var rows []abstractedRow
	if err := o.store.Fetch(ctx, &rows, queryVisibleAbstracted, patientID, snapshot); err != nil {
		return nil, errors.Wrapf(err, "fetch abstracted rows for patient %s failed", patientID)
	}
	df := latestPerConcept(rows)

	declarative, procedural, err := o.ruleRepo.Discover(o.rulesDir)
	if err != nil {
		return nil, errors.Wrap(err, "discover rules failed")
	}
	processor := ruleproc.New(declarative, procedural, o.patients, o.log)

	trace, err := processor.Trace(ctx, patientID, df)
	if err != nil {
		return nil, errors.Wrapf(err, "trace rule flow for patient %s failed", patientID)
	}
	return trace, nil
}

// Summary formats a one-line human-readable digest of an AbstractData
// run, used by the composition root's startup log.
func (r *AbstractDataResult) Summary() string {
	return fmt.Sprintf("run=%s snapshot=%s patients=%d rows=%d",
		r.RunID, r.Snapshot.Format(clinical.DateTimeLayout), r.PatientsScanned, r.RowsWritten)
}
