// Package ruleproc implements the Rule Processor: a
// two-tier cascade of declarative then procedural structured rules,
// each resolved against a three-tier parameter lookup and an
// in-memory per-run state cache. Grounded on rule_processor.py's
// _search_param/_apply_AND_rule/_apply_OR_rule/run.
package ruleproc

import (
	"context"
	"strings"

	"cdss/domain/clinical"
	"cdss/internal/logging"
)

// PatientReader fetches a patient's table row for parameter-resolution
// tier 1. Satisfied by *records.Service.
type PatientReader interface {
	GetPatient(ctx context.Context, patientID string) (clinical.Patient, error)
}

// Processor evaluates the two rule tiers over a patient's abstracted
// DataFrame.
type Processor struct {
	declarative []clinical.StructuredRule
	procedural  []clinical.StructuredRule
	patients    PatientReader
	log         *logging.Logger
}

// New builds a Processor over an already-discovered, already-sorted
// two-tier rule set (see ports.RuleRepository.Discover).
func New(declarative, procedural []clinical.StructuredRule, patients PatientReader, log *logging.Logger) *Processor {
	if log == nil {
		log = logging.Default
	}
	return &Processor{declarative: declarative, procedural: procedural, patients: patients, log: log}
}

// StateCache is the in-memory map of already-evaluated rule name to
// computed value, shared across rules within a single patient
// analysis run (case-insensitive lookup).
type StateCache map[string]string

func (c StateCache) lookup(name string) (string, bool) {
	lower := strings.ToLower(name)
	for k, v := range c {
		if strings.ToLower(k) == lower && v != "" {
			return v, true
		}
	}
	return "", false
}

// Run iterates the declarative tier then the procedural tier, each
// sorted by ExecutionOrder ascending, resolving parameters and
// evaluating every rule against patientID's abstracted DataFrame df.
// It returns the full state map including "PatientId".
func (p *Processor) Run(ctx context.Context, patientID string, df []clinical.AbstractedMeasurement) (map[string]string, error) {
	patient, err := p.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	attrs := patient.Attributes()

	results := StateCache{"PatientId": patientID}

	for _, rule := range append(append([]clinical.StructuredRule{}, p.declarative...), p.procedural...) {
		inputValues := p.searchParams(rule.InputParameters, df, attrs, results)
		classification := p.applyRule(rule, inputValues)
		results[rule.RuleName] = strings.Join(classification, ";")
	}

	out := make(map[string]string, len(results))
	for k, v := range results {
		out[k] = v
	}
	return out, nil
}

// searchParams resolves each input parameter name through the
// three-tier lookup: the Patients-table row, then the
// state cache, then the latest abstracted row matching ConceptName.
func (p *Processor) searchParams(paramList []string, df []clinical.AbstractedMeasurement, attrs map[string]string, state StateCache) map[string]string {
	values := make(map[string]string, len(paramList))
	for _, original := range paramList {
		lower := strings.ToLower(original)

		if v, ok := attrs[lower]; ok {
			values[original] = v
			continue
		}

		if v, ok := state.lookup(original); ok {
			values[original] = v
			continue
		}

		if v, ok := latestByConceptName(df, lower); ok {
			values[original] = v
			continue
		}

		values[original] = ""
	}
	return values
}

// latestByConceptName finds the most recent (highest StartDateTime)
// row whose ConceptName matches name case-insensitively.
func latestByConceptName(df []clinical.AbstractedMeasurement, lowerName string) (string, bool) {
	var latest *clinical.AbstractedMeasurement
	for i := range df {
		row := &df[i]
		if strings.ToLower(row.ConceptName) != lowerName {
			continue
		}
		if latest == nil || row.StartDateTime.After(latest.StartDateTime) {
			latest = row
		}
	}
	if latest == nil {
		return "", false
	}
	return latest.Value, true
}

// applyRule dispatches to AND or OR evaluation per the rule's
// LogicType.
func (p *Processor) applyRule(rule clinical.StructuredRule, inputValues map[string]string) []string {
	if rule.LogicType == clinical.LogicOR {
		return applyOR(rule, inputValues)
	}
	return applyAND(rule, inputValues)
}

// applyAND walks ConditionIds in insertion order; a condition matches
// iff every (param -> allowed-values) pair has a non-empty input value
// that is a member of the allowed list. First match wins.
func applyAND(rule clinical.StructuredRule, inputValues map[string]string) []string {
	for _, condID := range rule.ConditionOrder {
		condition := rule.Rules[condID]
		if conditionMatchesAll(condition, inputValues) {
			if v, ok := rule.Values[condID]; ok {
				return v
			}
			return rule.FallbackValue
		}
	}
	return rule.FallbackValue
}

func conditionMatchesAll(condition clinical.Condition, inputValues map[string]string) bool {
	for param, allowed := range condition {
		actual, ok := inputValues[param]
		if !ok || actual == "" || !member(allowed, actual) {
			return false
		}
	}
	return true
}

// applyOR tracks the latest (highest-index) condition for which any
// parameter's input value is a member of its allowed list — "maximal
// severity" when conditions are ordered by severity.
func applyOR(rule clinical.StructuredRule, inputValues map[string]string) []string {
	maxIdx := -1
	matchedCondID := ""

	for idx, condID := range rule.ConditionOrder {
		condition := rule.Rules[condID]
		if conditionMatchesAny(condition, inputValues) && idx > maxIdx {
			maxIdx = idx
			matchedCondID = condID
		}
	}

	if matchedCondID == "" {
		return rule.FallbackValue
	}
	if v, ok := rule.Values[matchedCondID]; ok {
		return v
	}
	return rule.FallbackValue
}

func conditionMatchesAny(condition clinical.Condition, inputValues map[string]string) bool {
	for param, allowed := range condition {
		actual, ok := inputValues[param]
		if ok && actual != "" && member(allowed, actual) {
			return true
		}
	}
	return false
}

func member(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

// TraceStep is one rule's recorded inputs and classification, the
// supplemented rule-flow debug trace.
type TraceStep struct {
	RuleName       string
	HierarchyLevel clinical.HierarchyLevel
	InputValues    map[string]string
	Classification string
}

// TraceResult is the ordered per-rule trace of a single patient's run,
// grounded on rule_processor.py:debug_patient_rule_flow.
type TraceResult struct {
	PatientID string
	Steps     []TraceStep
	State     map[string]string
}

// Trace runs the same cascade as Run but records each rule's resolved
// inputs and classification for diagnostic use, logged at Debug level
// rather than printed.
func (p *Processor) Trace(ctx context.Context, patientID string, df []clinical.AbstractedMeasurement) (*TraceResult, error) {
	patient, err := p.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	attrs := patient.Attributes()

	results := StateCache{"PatientId": patientID}
	trace := &TraceResult{PatientID: patientID}

	all := append(append([]clinical.StructuredRule{}, p.declarative...), p.procedural...)
	for _, rule := range all {
		inputValues := p.searchParams(rule.InputParameters, df, attrs, results)
		classification := p.applyRule(rule, inputValues)
		joined := strings.Join(classification, ";")
		results[rule.RuleName] = joined

		trace.Steps = append(trace.Steps, TraceStep{
			RuleName:       rule.RuleName,
			HierarchyLevel: rule.HierarchyLevel,
			InputValues:    inputValues,
			Classification: joined,
		})
		p.log.Debug("rule %s input=%v classification=%s", rule.RuleName, inputValues, joined)
	}

	out := make(map[string]string, len(results))
	for k, v := range results {
		out[k] = v
	}
	trace.State = out
	return trace, nil
}
