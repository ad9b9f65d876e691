// Package history implements the History Query: a
// snapshot-consistent SELECT over measurements with optional filters,
// composed from a fixed enum of WHERE fragments rather than by
// concatenating filter values into query text (never build SQL from dynamic
// string-based SQL composition). Grounded on
// businesslogic.py:search_history.
package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cdss/domain/clinical"
	"cdss/internal/errors"
	"cdss/ports"
)

// Entry is one row of a history query result, joined with the LOINC
// dictionary for display.
type Entry struct {
	LoincNum                 string
	Component                string
	Value                    string
	Unit                     string
	ValidStartTime           time.Time
	TransactionInsertionTime time.Time
}

// Filter selects which measurement rows a Query call returns. PatientID
// is mandatory; every other field is optional (its zero value means
// "not applied"). A nil Snapshot defaults to the current time.
type Filter struct {
	PatientID string
	Snapshot  *time.Time
	LoincNum  string
	Component string
	Start     *time.Time
	End       *time.Time
}

const baseSelect = `
	SELECT m.loinc_num, l.component, m.value, m.unit,
	       m.valid_start_time, m.transaction_insertion_time
	FROM measurements m
	JOIN loinc l ON l.loinc_num = m.loinc_num
	WHERE `

const orderBy = ` ORDER BY m.valid_start_time`

const queryPatientExists = `SELECT EXISTS(SELECT 1 FROM patients WHERE patient_id = $1)`

// Service implements the History Query component.
type Service struct {
	store ports.Store
}

// New builds a Service over store.
func New(store ports.Store) *Service {
	return &Service{store: store}
}

// row mirrors the joined select shape for sqlx scanning.
type row struct {
	LoincNum                 string    `db:"loinc_num"`
	Component                string    `db:"component"`
	Value                    string    `db:"value"`
	Unit                     string    `db:"unit"`
	ValidStartTime           time.Time `db:"valid_start_time"`
	TransactionInsertionTime time.Time `db:"transaction_insertion_time"`
}

// Query runs the composed history query and returns every visible row
// matching f, ordered by ValidStartTime ascending.
func (s *Service) Query(ctx context.Context, f Filter) ([]Entry, error) {
	if strings.TrimSpace(f.PatientID) == "" {
		return nil, errors.InvalidInput("patient id is required")
	}
	if f.Snapshot == nil {
		now := time.Now()
		f.Snapshot = &now
	}

	exists, err := s.store.Exists(ctx, queryPatientExists, f.PatientID)
	if err != nil {
		return nil, errors.Wrap(err, "check patient failed")
	}
	if !exists {
		return nil, errors.PatientNotFound(f.PatientID)
	}

	query, args := s.build(f)

	var rows []row
	if err := s.store.Fetch(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "history query failed")
	}

	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		out = append(out, Entry{
			LoincNum:                 r.LoincNum,
			Component:                r.Component,
			Value:                    r.Value,
			Unit:                     r.Unit,
			ValidStartTime:           r.ValidStartTime,
			TransactionInsertionTime: r.TransactionInsertionTime,
		})
	}
	return out, nil
}

// build composes the WHERE clause from the closed enum of filter
// fragments, renumbering positional placeholders as fragments are
// added — never concatenating a filter's value into the query text.
func (s *Service) build(f Filter) (string, []interface{}) {
	var fragments []string
	var args []interface{}
	n := 0
	next := func() string {
		n++
		return fmt.Sprintf("$%d", n)
	}

	fragments = append(fragments, fmt.Sprintf("m.patient_id = %s", next()))
	args = append(args, f.PatientID)

	if f.LoincNum != "" {
		fragments = append(fragments, fmt.Sprintf("m.loinc_num = %s", next()))
		args = append(args, f.LoincNum)
	}

	if f.Component != "" {
		fragments = append(fragments, fmt.Sprintf("LOWER(l.component) LIKE '%%' || LOWER(%s) || '%%'", next()))
		args = append(args, f.Component)
	}

	if f.Start != nil {
		fragments = append(fragments, fmt.Sprintf("m.valid_start_time >= %s", next()))
		args = append(args, f.Start.Format(clinical.DateTimeLayout))
	}

	if f.End != nil {
		fragments = append(fragments, fmt.Sprintf("m.valid_start_time <= %s", next()))
		args = append(args, f.End.Format(clinical.DateTimeLayout))
	}

	snap := f.Snapshot.Format(clinical.DateTimeLayout)
	fragments = append(fragments, fmt.Sprintf("m.transaction_insertion_time <= %s", next()))
	args = append(args, snap)
	fragments = append(fragments, fmt.Sprintf("(m.transaction_deletion_time IS NULL OR m.transaction_deletion_time > %s)", next()))
	args = append(args, snap)

	return baseSelect + strings.Join(fragments, " AND ") + orderBy, args
}
