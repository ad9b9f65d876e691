// Package concept resolves a caller's (LOINC code, component name) pair
// down to a canonical LoincNum. Insert resolves
// component names against the LOINC dictionary; update/delete resolve
// them against the patient's own visible measurement history, because
// by the time a record exists only a subset of the dictionary's
// components are actually in play for that patient.
package concept

import (
	"context"
	"strings"
	"time"

	"cdss/domain/clinical"
	"cdss/internal/errors"
	"cdss/ports"
)

const (
	queryLoincByComponent = `
		SELECT loinc_num FROM loinc WHERE LOWER(component) = LOWER($1)`

	queryLoincExists = `
		SELECT EXISTS(SELECT 1 FROM loinc WHERE loinc_num = $1)`

	queryLoincEntry = `
		SELECT loinc_num, component, property, time_aspect, system,
		       scale_type, method_type, allowed_values
		FROM loinc WHERE loinc_num = $1`

	// queryComponentInHistory resolves a component name against the
	// LoincNums actually present in a patient's visible measurement
	// history at snapshot, the update/delete resolution branch.
	queryComponentInHistory = `
		SELECT DISTINCT m.loinc_num
		FROM measurements m
		JOIN loinc l ON l.loinc_num = m.loinc_num
		WHERE m.patient_id = $1
		  AND LOWER(l.component) = LOWER($2)
		  AND m.transaction_insertion_time <= $3
		  AND (m.transaction_deletion_time IS NULL OR m.transaction_deletion_time > $3)`
)

// Resolver implements the Concept Resolver component.
type Resolver struct {
	store ports.Store
}

// New builds a Resolver over store.
func New(store ports.Store) *Resolver {
	return &Resolver{store: store}
}

// ForInsert resolves (loinc, component) against the LOINC dictionary,
// the insert-branch scope.
func (r *Resolver) ForInsert(ctx context.Context, loinc, component string) (string, error) {
	return r.resolve(ctx, loinc, component, func(c string) ([]string, error) {
		return r.componentInDictionary(ctx, c)
	}, func(l string) (bool, error) {
		return r.loincExists(ctx, l)
	})
}

// ForUpdate resolves (loinc, component) against the patient's own
// measurement history visible at snapshot, the update/delete-branch
// scope.
func (r *Resolver) ForUpdate(ctx context.Context, patientID, loinc, component string, snapshot time.Time) (string, error) {
	return r.resolve(ctx, loinc, component, func(c string) ([]string, error) {
		return r.componentInHistory(ctx, patientID, c, snapshot)
	}, func(l string) (bool, error) {
		return r.loincExists(ctx, l)
	})
}

// resolve implements the shared 3-case logic over a
// scope-specific component lookup and LOINC-existence check.
func (r *Resolver) resolve(ctx context.Context, loinc, component string, lookupComponent func(string) ([]string, error), existsLoinc func(string) (bool, error)) (string, error) {
	loinc = strings.TrimSpace(loinc)
	component = strings.TrimSpace(component)

	switch {
	case loinc != "" && component != "":
		matches, err := lookupComponent(component)
		if err != nil {
			return "", err
		}
		if !contains(matches, loinc) {
			return "", errors.LoincMismatch(loinc, component)
		}
		return loinc, nil

	case component != "":
		matches, err := lookupComponent(component)
		if err != nil {
			return "", err
		}
		switch len(matches) {
		case 0:
			return "", errors.UnknownComponent(component)
		case 1:
			return matches[0], nil
		default:
			return "", errors.AmbiguousComponent(component)
		}

	case loinc != "":
		ok, err := existsLoinc(loinc)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", errors.LoincCodeNotFound(loinc)
		}
		return loinc, nil

	default:
		return "", errors.InvalidInput("you must provide at least a LOINC code or a component name")
	}
}

func (r *Resolver) componentInDictionary(ctx context.Context, component string) ([]string, error) {
	var rows []string
	if err := r.store.Fetch(ctx, &rows, queryLoincByComponent, component); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Resolver) componentInHistory(ctx context.Context, patientID, component string, snapshot time.Time) ([]string, error) {
	var rows []string
	ts := snapshot.Format(clinical.DateTimeLayout)
	if err := r.store.Fetch(ctx, &rows, queryComponentInHistory, patientID, component, ts); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Resolver) loincExists(ctx context.Context, loincNum string) (bool, error) {
	return r.store.Exists(ctx, queryLoincExists, loincNum)
}

// loincRow mirrors the loinc table shape for sqlx scanning.
type loincRow struct {
	LoincNum      string  `db:"loinc_num"`
	Component     string  `db:"component"`
	Property      string  `db:"property"`
	TimeAspect    string  `db:"time_aspect"`
	System        string  `db:"system"`
	ScaleType     string  `db:"scale_type"`
	MethodType    string  `db:"method_type"`
	AllowedValues *string `db:"allowed_values"`
}

// Entry fetches the full LOINC dictionary row for loincNum.
func (r *Resolver) Entry(ctx context.Context, loincNum string) (clinical.LoincEntry, error) {
	var rows []loincRow
	if err := r.store.Fetch(ctx, &rows, queryLoincEntry, loincNum); err != nil {
		return clinical.LoincEntry{}, err
	}
	if len(rows) == 0 {
		return clinical.LoincEntry{}, errors.LoincCodeNotFound(loincNum)
	}
	row := rows[0]
	return clinical.LoincEntry{
		LoincNum:      row.LoincNum,
		Component:     row.Component,
		Property:      row.Property,
		TimeAspect:    row.TimeAspect,
		System:        row.System,
		ScaleType:     row.ScaleType,
		MethodType:    row.MethodType,
		AllowedValues: row.AllowedValues,
	}, nil
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
