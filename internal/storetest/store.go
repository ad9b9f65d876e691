// Package storetest provides an in-memory ports.Store fake for unit
// tests, dispatching on recognizable SQL substrings rather than
// running a real database, grounded on a testify/mock.Mock-style
// fixture style adapted to this module's Store port.
package storetest

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"cdss/ports"
)

// Patient is one in-memory patients table row.
type Patient struct {
	PatientID string
	FirstName string
	LastName  string
	Sex       string
}

// Loinc is one in-memory loinc dictionary row.
type Loinc struct {
	LoincNum      string
	Component     string
	Property      string
	TimeAspect    string
	System        string
	ScaleType     string
	MethodType    string
	AllowedValues *string
}

// Measurement is one in-memory measurements table row.
type Measurement struct {
	MeasurementID            int64
	PatientID                string
	LoincNum                 string
	Value                    string
	Unit                     string
	ValidStartTime           time.Time
	TransactionInsertionTime time.Time
	TransactionDeletionTime  *time.Time
}

// Abstracted is one in-memory abstracted_measurements table row.
type Abstracted struct {
	PatientID     string
	LoincCode     string
	ConceptName   string
	Value         string
	StartDateTime time.Time
	EndDateTime   time.Time
}

// Store is the in-memory ports.Store fake. Zero value is ready to use.
type Store struct {
	mu sync.Mutex

	Patients     []Patient
	Loinc        []Loinc
	Measurements []Measurement
	Abstracted   []Abstracted

	nextMeasurementID int64
}

// New builds an empty Store.
func New() *Store {
	return &Store{nextMeasurementID: 1}
}

func has(query string, fragment string) bool {
	return strings.Contains(query, fragment)
}

// Exists implements ports.Store.
func (s *Store) Exists(ctx context.Context, query string, args ...interface{}) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case has(query, "FROM patients WHERE patient_id"):
		id := args[0].(string)
		for _, p := range s.Patients {
			if p.PatientID == id {
				return true, nil
			}
		}
		return false, nil

	case has(query, "FROM loinc WHERE loinc_num"):
		num := args[0].(string)
		for _, l := range s.Loinc {
			if l.LoincNum == num {
				return true, nil
			}
		}
		return false, nil

	case has(query, "FROM measurements") && has(query, "valid_start_time = $3") && !has(query, "transaction_insertion_time > $4"):
		return s.visibleRecordExists(args), nil

	case has(query, "AND transaction_insertion_time > $4"):
		return s.futureLineageExists(args), nil

	default:
		return false, fmt.Errorf("storetest: Exists: unrecognized query: %s", query)
	}
}

func (s *Store) visibleRecordExists(args []interface{}) bool {
	patientID, loincNum, validStart, snap := args[0].(string), args[1].(string), args[2].(string), args[3].(string)
	for _, m := range s.Measurements {
		if m.PatientID != patientID || m.LoincNum != loincNum {
			continue
		}
		if fmtTime(m.ValidStartTime) != validStart {
			continue
		}
		if !visibleAt(m, snap) {
			continue
		}
		return true
	}
	return false
}

func (s *Store) futureLineageExists(args []interface{}) bool {
	patientID, loincNum, validStart, snap := args[0].(string), args[1].(string), args[2].(string), args[3].(string)
	for _, m := range s.Measurements {
		if m.PatientID != patientID || m.LoincNum != loincNum {
			continue
		}
		if fmtTime(m.ValidStartTime) != validStart {
			continue
		}
		if fmtTime(m.TransactionInsertionTime) > snap {
			return true
		}
	}
	return false
}

func visibleAt(m Measurement, snap string) bool {
	if fmtTime(m.TransactionInsertionTime) > snap {
		return false
	}
	if m.TransactionDeletionTime != nil && fmtTime(*m.TransactionDeletionTime) <= snap {
		return false
	}
	return true
}

const layout = "2006-01-02 15:04:05"

func fmtTime(t time.Time) string {
	return t.Format(layout)
}

func parseTime(v interface{}) time.Time {
	s := v.(string)
	t, err := time.Parse(layout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

// Fetch implements ports.Store.
func (s *Store) Fetch(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case has(query, "SELECT patient_id FROM patients ORDER BY patient_id"):
		ids := make([]string, 0, len(s.Patients))
		for _, p := range s.Patients {
			ids = append(ids, p.PatientID)
		}
		return setStrings(dest, ids)

	case has(query, "patient_id, first_name, last_name, sex") && has(query, "first_name = $1 AND last_name = $2"):
		firstName, lastName := args[0].(string), args[1].(string)
		var rows []Patient
		for _, p := range s.Patients {
			if p.FirstName == firstName && p.LastName == lastName {
				rows = append(rows, p)
			}
		}
		return setPatientRows(dest, rows)

	case has(query, "patient_id, first_name, last_name, sex") && has(query, "patient_id = $1"):
		id := args[0].(string)
		var rows []Patient
		for _, p := range s.Patients {
			if p.PatientID == id {
				rows = append(rows, p)
			}
		}
		return setPatientRows(dest, rows)

	case has(query, "SELECT loinc_num FROM loinc WHERE LOWER(component)"):
		component := strings.ToLower(args[0].(string))
		var rows []string
		for _, l := range s.Loinc {
			if strings.ToLower(l.Component) == component {
				rows = append(rows, l.LoincNum)
			}
		}
		return setStrings(dest, rows)

	case has(query, "loinc_num, component, property, time_aspect, system"):
		num := args[0].(string)
		var rows []Loinc
		for _, l := range s.Loinc {
			if l.LoincNum == num {
				rows = append(rows, l)
			}
		}
		return setLoincRows(dest, rows)

	case has(query, "SELECT DISTINCT m.loinc_num"):
		patientID, component, snap := args[0].(string), strings.ToLower(args[1].(string)), args[2].(string)
		seen := map[string]bool{}
		var rows []string
		for _, m := range s.Measurements {
			if m.PatientID != patientID || !visibleAt(m, snap) {
				continue
			}
			comp := s.componentOf(m.LoincNum)
			if strings.ToLower(comp) != component {
				continue
			}
			if !seen[m.LoincNum] {
				seen[m.LoincNum] = true
				rows = append(rows, m.LoincNum)
			}
		}
		return setStrings(dest, rows)

	case has(query, "measurement_id, patient_id, loinc_num, value, unit"):
		patientID, loincNum, validStart, snap := args[0].(string), args[1].(string), args[2].(string), args[3].(string)
		var rows []Measurement
		for _, m := range s.Measurements {
			if m.PatientID == patientID && m.LoincNum == loincNum && fmtTime(m.ValidStartTime) == validStart && visibleAt(m, snap) {
				rows = append(rows, m)
			}
		}
		return setMeasurementRows(dest, rows)

	case has(query, "SELECT valid_start_time FROM measurements"):
		patientID, loincNum, dayStart, dayEnd, snap := args[0].(string), args[1].(string), args[2].(string), args[3].(string), args[4].(string)
		var latest *time.Time
		for _, m := range s.Measurements {
			if m.PatientID != patientID || m.LoincNum != loincNum || !visibleAt(m, snap) {
				continue
			}
			vs := fmtTime(m.ValidStartTime)
			if vs < dayStart || vs >= dayEnd {
				continue
			}
			if latest == nil || m.ValidStartTime.After(*latest) {
				t := m.ValidStartTime
				latest = &t
			}
		}
		if latest == nil {
			return setTimes(dest, nil)
		}
		return setTimes(dest, []time.Time{*latest})

	case has(query, "FROM measurements m") && has(query, "JOIN loinc l"):
		return s.fetchHistory(dest, query, args)

	case has(query, "patient_id, loinc_code, concept_name, value, start_date_time, end_date_time"):
		patientID, snap := args[0].(string), args[1].(time.Time)
		var rows []Abstracted
		for _, a := range s.Abstracted {
			if a.PatientID == patientID && !a.StartDateTime.After(snap) && !a.EndDateTime.Before(snap) {
				rows = append(rows, a)
			}
		}
		return setAbstractedRows(dest, rows)

	default:
		return fmt.Errorf("storetest: Fetch: unrecognized query: %s", query)
	}
}

// fetchHistory reimplements the History Query's composed-WHERE
// evaluation against the positional args it was given, matching the
// fragment order internal/history/service.go always emits.
func (s *Store) fetchHistory(dest interface{}, query string, args []interface{}) error {
	idx := 0
	next := func() interface{} {
		v := args[idx]
		idx++
		return v
	}

	patientID := next().(string)

	var loincNum, component string
	var start, end *time.Time
	var snapshot *string

	if has(query, "m.loinc_num = $") {
		loincNum = next().(string)
	}
	if has(query, "LOWER(l.component) LIKE") {
		component = strings.ToLower(next().(string))
	}
	if has(query, "m.valid_start_time >= $") {
		t := parseTime(next())
		start = &t
	}
	if has(query, "m.valid_start_time <= $") {
		t := parseTime(next())
		end = &t
	}
	if has(query, "m.transaction_insertion_time <= $") {
		v := next().(string)
		snapshot = &v
		idx++ // deletion-time placeholder reuses the same value
	}

	type histRow struct {
		LoincNum                 string
		Component                string
		Value                    string
		Unit                     string
		ValidStartTime           time.Time
		TransactionInsertionTime time.Time
	}
	var rows []histRow

	for _, m := range s.Measurements {
		if m.PatientID != patientID {
			continue
		}
		if loincNum != "" && m.LoincNum != loincNum {
			continue
		}
		comp := s.componentOf(m.LoincNum)
		if component != "" && !strings.Contains(strings.ToLower(comp), component) {
			continue
		}
		if start != nil && m.ValidStartTime.Before(*start) {
			continue
		}
		if end != nil && m.ValidStartTime.After(*end) {
			continue
		}
		if snapshot != nil {
			if !visibleAt(m, *snapshot) {
				continue
			}
		} else if m.TransactionDeletionTime != nil {
			continue
		}
		rows = append(rows, histRow{
			LoincNum:                 m.LoincNum,
			Component:                comp,
			Value:                    m.Value,
			Unit:                     m.Unit,
			ValidStartTime:           m.ValidStartTime,
			TransactionInsertionTime: m.TransactionInsertionTime,
		})
	}

	destVal := reflect.ValueOf(dest).Elem()
	out := reflect.MakeSlice(destVal.Type(), 0, len(rows))
	for _, r := range rows {
		elem := reflect.New(destVal.Type().Elem()).Elem()
		setFieldByName(elem, "LoincNum", r.LoincNum)
		setFieldByName(elem, "Component", r.Component)
		setFieldByName(elem, "Value", r.Value)
		setFieldByName(elem, "Unit", r.Unit)
		setFieldByName(elem, "ValidStartTime", r.ValidStartTime)
		setFieldByName(elem, "TransactionInsertionTime", r.TransactionInsertionTime)
		out = reflect.Append(out, elem)
	}
	destVal.Set(out)
	return nil
}

func (s *Store) componentOf(loincNum string) string {
	for _, l := range s.Loinc {
		if l.LoincNum == loincNum {
			return l.Component
		}
	}
	return ""
}

// Scalar implements ports.Store. No code in this module calls Scalar,
// on Store or on Tx, so this always reports no row.
func (s *Store) Scalar(ctx context.Context, dest interface{}, query string, args ...interface{}) (bool, error) {
	return false, nil
}

// Execute implements ports.Store.
func (s *Store) Execute(ctx context.Context, query string, args ...interface{}) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execute(query, args)
}

func (s *Store) execute(query string, args []interface{}) (int64, error) {
	switch {
	case has(query, "INSERT INTO patients"):
		s.Patients = append(s.Patients, Patient{
			PatientID: args[0].(string), FirstName: args[1].(string), LastName: args[2].(string), Sex: args[3].(string),
		})
		return 1, nil

	case has(query, "INSERT INTO measurements"):
		s.Measurements = append(s.Measurements, Measurement{
			MeasurementID:            s.nextMeasurementID,
			PatientID:                args[0].(string),
			LoincNum:                 args[1].(string),
			Value:                    args[2].(string),
			Unit:                     args[3].(string),
			ValidStartTime:           parseTime(args[4]),
			TransactionInsertionTime: parseTime(args[5]),
		})
		s.nextMeasurementID++
		return 1, nil

	case has(query, "UPDATE measurements") && has(query, "transaction_deletion_time = $5"):
		patientID, loincNum, validStart, snap, delTime := args[0].(string), args[1].(string), args[2].(string), args[3].(string), args[4].(string)
		var affected int64
		for i, m := range s.Measurements {
			if m.PatientID != patientID || m.LoincNum != loincNum {
				continue
			}
			if fmtTime(m.ValidStartTime) != validStart {
				continue
			}
			if !visibleAt(m, snap) {
				continue
			}
			t := parseTime(delTime)
			s.Measurements[i].TransactionDeletionTime = &t
			affected++
		}
		return affected, nil

	case has(query, "DELETE FROM abstracted_measurements"):
		n := int64(len(s.Abstracted))
		s.Abstracted = nil
		return n, nil

	case has(query, "INSERT INTO abstracted_measurements"):
		s.Abstracted = append(s.Abstracted, Abstracted{
			PatientID:     args[0].(string),
			LoincCode:     args[1].(string),
			ConceptName:   args[2].(string),
			Value:         args[3].(string),
			StartDateTime: args[4].(time.Time),
			EndDateTime:   args[5].(time.Time),
		})
		return 1, nil

	default:
		return 0, fmt.Errorf("storetest: Execute: unrecognized query: %s", query)
	}
}

// Begin implements ports.Store, returning a transaction scope that
// mutates the same in-memory tables directly (no isolation; tests
// only need Commit/Rollback bookkeeping, not real atomicity).
func (s *Store) Begin(ctx context.Context) (ports.Tx, error) {
	return &tx{store: s}, nil
}

type tx struct {
	store *Store
}

func (t *tx) Execute(ctx context.Context, query string, args ...interface{}) (int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.execute(query, args)
}

func (t *tx) Fetch(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return t.store.Fetch(ctx, dest, query, args...)
}

func (t *tx) Scalar(ctx context.Context, dest interface{}, query string, args ...interface{}) (bool, error) {
	return t.store.Scalar(ctx, dest, query, args...)
}

func (t *tx) Commit() error   { return nil }
func (t *tx) Rollback() error { return nil }

func setStrings(dest interface{}, values []string) error {
	destVal := reflect.ValueOf(dest).Elem()
	out := reflect.MakeSlice(destVal.Type(), 0, len(values))
	for _, v := range values {
		out = reflect.Append(out, reflect.ValueOf(v))
	}
	destVal.Set(out)
	return nil
}

func setTimes(dest interface{}, values []time.Time) error {
	destVal := reflect.ValueOf(dest).Elem()
	out := reflect.MakeSlice(destVal.Type(), 0, len(values))
	for _, v := range values {
		out = reflect.Append(out, reflect.ValueOf(v))
	}
	destVal.Set(out)
	return nil
}

func setFieldByName(elem reflect.Value, name string, value interface{}) {
	f := elem.FieldByName(name)
	if !f.IsValid() || !f.CanSet() {
		return
	}
	f.Set(reflect.ValueOf(value))
}

func setPatientRows(dest interface{}, rows []Patient) error {
	destVal := reflect.ValueOf(dest).Elem()
	out := reflect.MakeSlice(destVal.Type(), 0, len(rows))
	for _, r := range rows {
		elem := reflect.New(destVal.Type().Elem()).Elem()
		setFieldByName(elem, "PatientID", r.PatientID)
		setFieldByName(elem, "FirstName", r.FirstName)
		setFieldByName(elem, "LastName", r.LastName)
		setFieldByName(elem, "Sex", r.Sex)
		out = reflect.Append(out, elem)
	}
	destVal.Set(out)
	return nil
}

func setLoincRows(dest interface{}, rows []Loinc) error {
	destVal := reflect.ValueOf(dest).Elem()
	out := reflect.MakeSlice(destVal.Type(), 0, len(rows))
	for _, r := range rows {
		elem := reflect.New(destVal.Type().Elem()).Elem()
		setFieldByName(elem, "LoincNum", r.LoincNum)
		setFieldByName(elem, "Component", r.Component)
		setFieldByName(elem, "Property", r.Property)
		setFieldByName(elem, "TimeAspect", r.TimeAspect)
		setFieldByName(elem, "System", r.System)
		setFieldByName(elem, "ScaleType", r.ScaleType)
		setFieldByName(elem, "MethodType", r.MethodType)
		setFieldByName(elem, "AllowedValues", r.AllowedValues)
		out = reflect.Append(out, elem)
	}
	destVal.Set(out)
	return nil
}

func setMeasurementRows(dest interface{}, rows []Measurement) error {
	destVal := reflect.ValueOf(dest).Elem()
	out := reflect.MakeSlice(destVal.Type(), 0, len(rows))
	for _, r := range rows {
		elem := reflect.New(destVal.Type().Elem()).Elem()
		setFieldByName(elem, "MeasurementID", r.MeasurementID)
		setFieldByName(elem, "PatientID", r.PatientID)
		setFieldByName(elem, "LoincNum", r.LoincNum)
		setFieldByName(elem, "Value", r.Value)
		setFieldByName(elem, "Unit", r.Unit)
		setFieldByName(elem, "ValidStartTime", r.ValidStartTime)
		setFieldByName(elem, "TransactionInsertionTime", r.TransactionInsertionTime)
		setFieldByName(elem, "TransactionDeletionTime", r.TransactionDeletionTime)
		out = reflect.Append(out, elem)
	}
	destVal.Set(out)
	return nil
}

func setAbstractedRows(dest interface{}, rows []Abstracted) error {
	destVal := reflect.ValueOf(dest).Elem()
	out := reflect.MakeSlice(destVal.Type(), 0, len(rows))
	for _, r := range rows {
		elem := reflect.New(destVal.Type().Elem()).Elem()
		setFieldByName(elem, "PatientID", r.PatientID)
		setFieldByName(elem, "LoincCode", r.LoincCode)
		setFieldByName(elem, "ConceptName", r.ConceptName)
		setFieldByName(elem, "Value", r.Value)
		setFieldByName(elem, "StartDateTime", r.StartDateTime)
		setFieldByName(elem, "EndDateTime", r.EndDateTime)
		out = reflect.Append(out, elem)
	}
	destVal.Set(out)
	return nil
}
