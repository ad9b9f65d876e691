// Package mediator implements the Temporal Abstraction Mediator of
// applying loaded TAK rules to a patient's raw visible
// measurements, merging the resulting intervals, and emitting a
// unified record set alongside untouched raw rows. Grounded on
// mediator.py's TAKRule.applies_to/apply and
// Mediator._merge_abstracted_intervals/run, translated line-for-line
// in algorithm shape.
package mediator

import (
	"context"
	"sort"
	"strconv"
	"time"

	"cdss/domain/clinical"
	"cdss/internal/history"
	"cdss/internal/logging"
)

// PatientReader fetches a patient's attributes for TAK applicability
// checks. Satisfied by *records.Service.
type PatientReader interface {
	GetPatient(ctx context.Context, patientID string) (clinical.Patient, error)
}

// HistoryReader fetches a patient's visible measurement history.
// Satisfied by *history.Service.
type HistoryReader interface {
	Query(ctx context.Context, f history.Filter) ([]history.Entry, error)
}

// Mediator runs the TAK engine over a fixed, once-loaded rule set.
type Mediator struct {
	rules    []clinical.TAKRule
	history  HistoryReader
	patients PatientReader
	log      *logging.Logger
}

// New builds a Mediator over an already-loaded TAK rule set.
func New(rules []clinical.TAKRule, historyReader HistoryReader, patients PatientReader, log *logging.Logger) *Mediator {
	if log == nil {
		log = logging.Default
	}
	return &Mediator{rules: rules, history: historyReader, patients: patients, log: log}
}

// Run executes the full per-patient abstraction pass:
// load raw rows and patient attributes, classify applicable rules,
// merge abstracted intervals, emit untouched raw rows, and return the
// combined, Start-ordered record set.
func (m *Mediator) Run(ctx context.Context, patientID string, snapshot time.Time, relevance time.Duration) ([]clinical.UnifiedRecord, error) {
	patient, err := m.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	attrs := patient.Attributes()

	rows, err := m.history.Query(ctx, history.Filter{PatientID: patientID, Snapshot: &snapshot})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	consumed := make([]bool, len(rows))
	var abstracted []clinical.UnifiedRecord

	for _, rule := range m.rules {
		if !rule.AppliesTo(attrs) {
			continue
		}
		for i, row := range rows {
			if row.LoincNum != rule.LoincCode {
				continue
			}
			val, perr := strconv.ParseFloat(row.Value, 64)
			if perr != nil {
				continue
			}
			threshold, ok := rule.Classify(val)
			if !ok {
				continue
			}
			abstracted = append(abstracted, clinical.UnifiedRecord{
				PatientID:     patientID,
				LoincCode:     rule.LoincCode,
				ConceptName:   rule.AbstractionName,
				Value:         threshold.Label,
				StartDateTime: row.ValidStartTime.Add(-rule.GoodBefore),
				EndDateTime:   row.ValidStartTime.Add(rule.GoodAfter),
				Source:        clinical.SourceAbstracted,
			})
			consumed[i] = true
		}
	}

	merged := mergeIntervals(abstracted, relevance)

	var untouched []clinical.UnifiedRecord
	for i, row := range rows {
		if consumed[i] {
			continue
		}
		untouched = append(untouched, clinical.UnifiedRecord{
			PatientID:     patientID,
			LoincCode:     row.LoincNum,
			ConceptName:   row.Component,
			Value:         row.Value,
			StartDateTime: row.ValidStartTime,
			EndDateTime:   row.ValidStartTime.Add(relevance),
			Source:        clinical.SourceRaw,
		})
	}

	out := append(merged, untouched...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartDateTime.Before(out[j].StartDateTime)
	})
	return out, nil
}

// mergeIntervals implements the interval merge step:
// sort by (LoincCode, Start, Value), extend each end by relevance,
// union touching/overlapping same-(LoincCode,Value) intervals, and
// truncate the earlier interval's end when a later, differently
// labeled interval of the same LoincCode would otherwise overlap it.
func mergeIntervals(records []clinical.UnifiedRecord, relevance time.Duration) []clinical.UnifiedRecord {
	if len(records) == 0 {
		return nil
	}

	sorted := make([]clinical.UnifiedRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].LoincCode != sorted[j].LoincCode {
			return sorted[i].LoincCode < sorted[j].LoincCode
		}
		if !sorted[i].StartDateTime.Equal(sorted[j].StartDateTime) {
			return sorted[i].StartDateTime.Before(sorted[j].StartDateTime)
		}
		return sorted[i].Value < sorted[j].Value
	})

	var out []clinical.UnifiedRecord
	var current clinical.UnifiedRecord
	hasCurrent := false

	for _, row := range sorted {
		row.EndDateTime = row.EndDateTime.Add(relevance)

		if !hasCurrent {
			current = row
			hasCurrent = true
			continue
		}

		sameCode := row.LoincCode == current.LoincCode
		sameValue := row.Value == current.Value
		overlapOrTouching := !row.StartDateTime.After(current.EndDateTime)

		if sameCode && sameValue && overlapOrTouching {
			if row.EndDateTime.After(current.EndDateTime) {
				current.EndDateTime = row.EndDateTime
			}
			continue
		}

		if sameCode && row.StartDateTime.Before(current.EndDateTime) {
			current.EndDateTime = row.StartDateTime
		}
		out = append(out, current)
		current = row
	}
	out = append(out, current)
	return out
}
