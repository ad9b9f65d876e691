// Package records implements the Record Service: CRUD
// over measurements under bi-temporal semantics, grounded on
// businesslogic.py's register_patient/insert_measurement/
// update_measurement, with the atomicity and delete-implementation
// corrections recorded in DESIGN.md.
package records

import (
	"context"
	"strings"
	"time"

	"cdss/domain/clinical"
	"cdss/internal/concept"
	"cdss/internal/errors"
	"cdss/internal/logging"
	"cdss/internal/validate"
	"cdss/ports"
)

// Service is the Record Service.
type Service struct {
	store    ports.Store
	resolver *concept.Resolver
	log      *logging.Logger
}

// New builds a Service over store, using resolver for concept
// resolution. A nil logger falls back to logging.Default.
func New(store ports.Store, resolver *concept.Resolver, log *logging.Logger) *Service {
	if log == nil {
		log = logging.Default
	}
	return &Service{store: store, resolver: resolver, log: log}
}

// RegisterPatient inserts a new patient after validating all fields.
func (s *Service) RegisterPatient(ctx context.Context, patientID, firstName, lastName, sex string) error {
	patientID = strings.TrimSpace(patientID)
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)

	if err := validate.PatientID(patientID); err != nil {
		return err
	}
	if err := validate.Name(firstName, "First Name"); err != nil {
		return err
	}
	if err := validate.Name(lastName, "Last Name"); err != nil {
		return err
	}
	if err := validate.Sex(sex); err != nil {
		return err
	}

	exists, err := s.store.Exists(ctx, queryPatientExists, patientID)
	if err != nil {
		return errors.Wrap(err, "check existing patient failed")
	}
	if exists {
		return errors.AlreadyExists("patient %s is already registered", patientID)
	}

	if _, err := s.store.Execute(ctx, queryInsertPatient, patientID, firstName, lastName, sex); err != nil {
		return errors.Wrap(err, "insert patient failed")
	}
	s.log.Info("registered patient %s", patientID)
	return nil
}

// FindPatientsByName looks patients up by exact first/last name match,
// a supplemented feature grounded on
// businesslogic.py:PatientRecord.get_patient_by_name.
func (s *Service) FindPatientsByName(ctx context.Context, firstName, lastName string) ([]clinical.Patient, error) {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)

	var rows []patientRow
	if err := s.store.Fetch(ctx, &rows, queryPatientsByName, firstName, lastName); err != nil {
		return nil, errors.Wrap(err, "find patients by name failed")
	}
	if len(rows) == 0 {
		return nil, errors.PatientNotFound(firstName + " " + lastName)
	}
	out := make([]clinical.Patient, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// GetPatient fetches a single patient row by id. Used by the Mediator
// (patient attributes for TAK applicability) and the Rule Processor
// (parameter-resolution tier 1).
func (s *Service) GetPatient(ctx context.Context, patientID string) (clinical.Patient, error) {
	var rows []patientRow
	if err := s.store.Fetch(ctx, &rows, queryPatientByID, patientID); err != nil {
		return clinical.Patient{}, errors.Wrap(err, "get patient failed")
	}
	if len(rows) == 0 {
		return clinical.Patient{}, errors.PatientNotFound(patientID)
	}
	return rows[0].toDomain(), nil
}

// InsertMeasurementInput collects InsertMeasurement's parameters.
type InsertMeasurementInput struct {
	PatientID       string
	ValidStartTime  string
	Value           string
	Unit            string
	Component       string
	LoincNum        string
	TransactionTime string // optional; defaults to now
}

// InsertMeasurement appends a new, currently-visible row for a
// (patient, concept, valid-start) that has no existing visible row at
// the resolved transaction time.
func (s *Service) InsertMeasurement(ctx context.Context, in InsertMeasurementInput) error {
	patientID := strings.TrimSpace(in.PatientID)

	if err := s.requirePatient(ctx, patientID); err != nil {
		return err
	}

	loincNum, err := s.resolver.ForInsert(ctx, strings.TrimSpace(in.LoincNum), strings.TrimSpace(in.Component))
	if err != nil {
		return err
	}

	validStart, err := validate.Start(in.ValidStartTime)
	if err != nil {
		return err
	}

	txTime := time.Now()
	if strings.TrimSpace(in.TransactionTime) != "" {
		txTime, err = validate.Start(in.TransactionTime)
		if err != nil {
			return err
		}
	}
	if err := validate.DatesOrder(validStart, txTime, "Valid Start Time", "Transaction Insertion Time"); err != nil {
		return err
	}

	entry, err := s.resolver.Entry(ctx, loincNum)
	if err != nil {
		return err
	}
	value := strings.TrimSpace(in.Value)
	if !entry.Accepts(value) {
		return errors.InvalidInput("value %q is not allowed for LOINC code %s", value, loincNum)
	}

	validStartStr := validStart.Format(clinical.DateTimeLayout)
	txTimeStr := txTime.Format(clinical.DateTimeLayout)

	dup, err := s.store.Exists(ctx, queryVisibleRecordExists, patientID, loincNum, validStartStr, txTimeStr)
	if err != nil {
		return errors.Wrap(err, "duplicate check failed")
	}
	if dup {
		return errors.DuplicateInsert("a record already exists for patient %s, LOINC %s, valid-start %s; use update instead", patientID, loincNum, validStartStr)
	}

	if _, err := s.store.Execute(ctx, queryInsertMeasurement, patientID, loincNum, value, strings.TrimSpace(in.Unit), validStartStr, txTimeStr); err != nil {
		return errors.Wrap(err, "insert measurement failed")
	}
	s.log.Info("inserted measurement patient=%s loinc=%s valid_start=%s", patientID, loincNum, validStartStr)
	return nil
}

// UpdateMeasurementInput collects UpdateMeasurement's parameters.
type UpdateMeasurementInput struct {
	PatientID       string
	ValidStartTime  string
	NewValue        string
	Component       string
	LoincNum        string
	TransactionTime string // optional; defaults to now
}

// UpdateMeasurement performs the logical update:
// stamping the prior visible row's deletion time and inserting a new
// row with the inherited unit, both inside a single transaction per
// DESIGN.md's atomicity decision.
func (s *Service) UpdateMeasurement(ctx context.Context, in UpdateMeasurementInput) error {
	patientID := strings.TrimSpace(in.PatientID)

	if err := s.requirePatient(ctx, patientID); err != nil {
		return err
	}

	validStart, err := validate.Start(in.ValidStartTime)
	if err != nil {
		return err
	}

	txTime := time.Now()
	if strings.TrimSpace(in.TransactionTime) != "" {
		txTime, err = validate.Start(in.TransactionTime)
		if err != nil {
			return err
		}
	}
	if err := validate.DatesOrder(validStart, txTime, "Valid Start Time", "Transaction Insertion Time"); err != nil {
		return err
	}

	loincNum, err := s.resolver.ForUpdate(ctx, patientID, strings.TrimSpace(in.LoincNum), strings.TrimSpace(in.Component), txTime)
	if err != nil {
		return err
	}

	validStartStr := validStart.Format(clinical.DateTimeLayout)
	txTimeStr := txTime.Format(clinical.DateTimeLayout)

	var rows []measurementRow
	if err := s.store.Fetch(ctx, &rows, queryVisibleLineageRow, patientID, loincNum, validStartStr, txTimeStr); err != nil {
		return errors.Wrap(err, "fetch visible lineage row failed")
	}
	if len(rows) == 0 {
		return errors.RecordNotFound("no visible record for patient %s, LOINC %s, valid-start %s at snapshot %s", patientID, loincNum, validStartStr, txTimeStr)
	}

	futureExists, err := s.store.Exists(ctx, queryFutureLineageExists, patientID, loincNum, validStartStr, txTimeStr)
	if err != nil {
		return errors.Wrap(err, "future lineage check failed")
	}
	if futureExists {
		return errors.StaleUpdate("you cannot update an older version when a newer one exists for patient %s, LOINC %s, valid-start %s", patientID, loincNum, validStartStr)
	}

	unit := rows[0].Unit
	newValue := strings.TrimSpace(in.NewValue)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction failed")
	}
	if err := s.doUpdate(ctx, tx, patientID, loincNum, validStartStr, txTimeStr, newValue, unit); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "commit update failed")
	}
	s.log.Info("updated measurement patient=%s loinc=%s valid_start=%s", patientID, loincNum, validStartStr)
	return nil
}

func (s *Service) doUpdate(ctx context.Context, tx ports.Tx, patientID, loincNum, validStartStr, txTimeStr, newValue, unit string) error {
	if _, err := tx.Execute(ctx, queryStampDeletion, patientID, loincNum, validStartStr, txTimeStr, txTimeStr); err != nil {
		return errors.Wrap(err, "stamp deletion time failed")
	}
	if _, err := tx.Execute(ctx, queryInsertMeasurement, patientID, loincNum, newValue, unit, validStartStr, txTimeStr); err != nil {
		return errors.Wrap(err, "insert updated measurement failed")
	}
	return nil
}

// DeleteMeasurementInput collects DeleteMeasurement's parameters.
// ValidStartTime may be date-only, in which case it is resolved to the
// latest ValidStartTime on that date for the (patient, concept) pair.
type DeleteMeasurementInput struct {
	PatientID      string
	ValidStartTime string
	Component      string
	LoincNum       string
	DeletionTime   string // optional; defaults to now
}

// DeleteMeasurement logically deletes a measurement by stamping its
// TransactionDeletionTime.
func (s *Service) DeleteMeasurement(ctx context.Context, in DeleteMeasurementInput) error {
	patientID := strings.TrimSpace(in.PatientID)

	if err := s.requirePatient(ctx, patientID); err != nil {
		return err
	}

	deletionTime := time.Now()
	var err error
	if strings.TrimSpace(in.DeletionTime) != "" {
		deletionTime, err = validate.End(in.DeletionTime)
		if err != nil {
			return err
		}
	}

	loincNum, err := s.resolver.ForUpdate(ctx, patientID, strings.TrimSpace(in.LoincNum), strings.TrimSpace(in.Component), deletionTime)
	if err != nil {
		return err
	}

	validStart, dateOnly, err := validate.DateTime(in.ValidStartTime)
	if err != nil {
		return err
	}
	if dateOnly {
		resolved, err := s.resolveDateOnlyTarget(ctx, patientID, loincNum, validStart, deletionTime)
		if err != nil {
			return err
		}
		validStart = resolved
	}

	validStartStr := validStart.Format(clinical.DateTimeLayout)
	deletionTimeStr := deletionTime.Format(clinical.DateTimeLayout)

	var rows []measurementRow
	if err := s.store.Fetch(ctx, &rows, queryVisibleLineageRow, patientID, loincNum, validStartStr, deletionTimeStr); err != nil {
		return errors.Wrap(err, "fetch visible lineage row failed")
	}
	if len(rows) == 0 {
		return errors.RecordNotFound("no visible record for patient %s, LOINC %s, valid-start %s at snapshot %s", patientID, loincNum, validStartStr, deletionTimeStr)
	}

	futureExists, err := s.store.Exists(ctx, queryFutureLineageExists, patientID, loincNum, validStartStr, deletionTimeStr)
	if err != nil {
		return errors.Wrap(err, "future lineage check failed")
	}
	if futureExists {
		return errors.StaleUpdate("you cannot delete an older version when a newer one exists for patient %s, LOINC %s, valid-start %s", patientID, loincNum, validStartStr)
	}

	if _, err := s.store.Execute(ctx, queryStampDeletion, patientID, loincNum, validStartStr, deletionTimeStr, deletionTimeStr); err != nil {
		return errors.Wrap(err, "stamp deletion time failed")
	}
	s.log.Info("deleted measurement patient=%s loinc=%s valid_start=%s", patientID, loincNum, validStartStr)
	return nil
}

func (s *Service) resolveDateOnlyTarget(ctx context.Context, patientID, loincNum string, day, snapshot time.Time) (time.Time, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	var latest []time.Time
	if err := s.store.Fetch(ctx, &latest, queryLatestValidStartOnDate,
		patientID, loincNum,
		dayStart.Format(clinical.DateTimeLayout), dayEnd.Format(clinical.DateTimeLayout),
		snapshot.Format(clinical.DateTimeLayout),
	); err != nil {
		return time.Time{}, errors.Wrap(err, "resolve date-only delete target failed")
	}
	if len(latest) == 0 {
		return time.Time{}, errors.RecordNotFound("no visible record for patient %s, LOINC %s on %s", patientID, loincNum, dayStart.Format("2006-01-02"))
	}
	return latest[0], nil
}

func (s *Service) requirePatient(ctx context.Context, patientID string) error {
	exists, err := s.store.Exists(ctx, queryPatientExists, patientID)
	if err != nil {
		return errors.Wrap(err, "check patient failed")
	}
	if !exists {
		return errors.PatientNotFound(patientID)
	}
	return nil
}

// patientRow mirrors the patients table shape for sqlx scanning.
type patientRow struct {
	PatientID string `db:"patient_id"`
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
	Sex       string `db:"sex"`
}

func (r patientRow) toDomain() clinical.Patient {
	return clinical.Patient{PatientID: r.PatientID, FirstName: r.FirstName, LastName: r.LastName, Sex: r.Sex}
}

// measurementRow mirrors the measurements table shape for sqlx scanning.
type measurementRow struct {
	MeasurementID            int64      `db:"measurement_id"`
	PatientID                string     `db:"patient_id"`
	LoincNum                 string     `db:"loinc_num"`
	Value                    string     `db:"value"`
	Unit                     string     `db:"unit"`
	ValidStartTime           time.Time  `db:"valid_start_time"`
	TransactionInsertionTime time.Time  `db:"transaction_insertion_time"`
	TransactionDeletionTime  *time.Time `db:"transaction_deletion_time"`
}

func (r measurementRow) toDomain() clinical.Measurement {
	return clinical.Measurement{
		MeasurementID:            r.MeasurementID,
		PatientID:                r.PatientID,
		LoincNum:                 r.LoincNum,
		Value:                    r.Value,
		Unit:                     r.Unit,
		ValidStartTime:           r.ValidStartTime,
		TransactionInsertionTime: r.TransactionInsertionTime,
		TransactionDeletionTime:  r.TransactionDeletionTime,
	}
}
