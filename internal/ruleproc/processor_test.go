package ruleproc

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdss/domain/clinical"
)

type fakePatients struct {
	patient clinical.Patient
}

func (f fakePatients) GetPatient(ctx context.Context, patientID string) (clinical.Patient, error) {
	return f.patient, nil
}

func hematologicalStateRule() clinical.StructuredRule {
	return clinical.StructuredRule{
		RuleName:        "hematological_state",
		HierarchyLevel:  clinical.HierarchyDeclarative,
		ExecutionOrder:  1,
		InputParameters: []string{"hemoglobin", "wbc"},
		LogicType:       clinical.LogicAND,
		ConditionOrder:  []string{"c1"},
		Rules: map[string]clinical.Condition{
			"c1": {"hemoglobin": {"Low"}, "wbc": {"Normal"}},
		},
		Values:        map[string][]string{"c1": {"Anemia"}},
		FallbackValue: []string{"Unknown"},
	}
}

func treatmentRule() clinical.StructuredRule {
	return clinical.StructuredRule{
		RuleName:        "treatment",
		HierarchyLevel:  clinical.HierarchyProcedural,
		ExecutionOrder:  10,
		InputParameters: []string{"hematological_state", "systemic_toxicity"},
		LogicType:       clinical.LogicAND,
		ConditionOrder:  []string{"c1"},
		Rules: map[string]clinical.Condition{
			"c1": {"hematological_state": {"Anemia"}, "systemic_toxicity": {"Low"}},
		},
		Values:        map[string][]string{"c1": {"Transfuse", "Monitor"}},
		FallbackValue: []string{"NoAction"},
	}
}

// TestRunCascadeScenario6 covers spec end-to-end scenario 6: the
// declarative rule classifies hematological state from abstracted
// concepts, then the procedural rule reads that classification back
// out of the state cache. A missing systemic_toxicity input falls
// back.
func TestRunCascadeScenario6(t *testing.T) {
	df := []clinical.AbstractedMeasurement{
		{ConceptName: "hemoglobin", Value: "Low", StartDateTime: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
		{ConceptName: "wbc", Value: "Normal", StartDateTime: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
	}
	proc := New([]clinical.StructuredRule{hematologicalStateRule()}, []clinical.StructuredRule{treatmentRule()}, fakePatients{}, nil)

	state, err := proc.Run(context.Background(), "100000001", df)
	require.NoError(t, err)
	assert.Equal(t, "Anemia", state["hematological_state"])
	assert.Equal(t, "NoAction", state["treatment"]) // systemic_toxicity missing -> fallback
}

func TestRunCascadeWithSystemicToxicity(t *testing.T) {
	df := []clinical.AbstractedMeasurement{
		{ConceptName: "hemoglobin", Value: "Low", StartDateTime: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
		{ConceptName: "wbc", Value: "Normal", StartDateTime: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
		{ConceptName: "systemic_toxicity", Value: "Low", StartDateTime: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
	}
	proc := New([]clinical.StructuredRule{hematologicalStateRule()}, []clinical.StructuredRule{treatmentRule()}, fakePatients{}, nil)

	state, err := proc.Run(context.Background(), "100000001", df)
	require.NoError(t, err)
	assert.Equal(t, "Transfuse;Monitor", state["treatment"])
}

// TestApplyORReturnsHighestSeverity exercises the invariant that OR
// evaluation returns the highest-index matched condition regardless of
// which parameter happened to match it.
func TestApplyORReturnsHighestSeverity(t *testing.T) {
	rule := clinical.StructuredRule{
		RuleName:        "severity",
		LogicType:       clinical.LogicOR,
		InputParameters: []string{"a", "b"},
		ConditionOrder:  []string{"mild", "moderate", "severe"},
		Rules: map[string]clinical.Condition{
			"mild":     {"a": {"x"}},
			"moderate": {"a": {"x"}},
			"severe":   {"b": {"y"}},
		},
		Values:        map[string][]string{"mild": {"Mild"}, "moderate": {"Moderate"}, "severe": {"Severe"}},
		FallbackValue: []string{"None"},
	}

	out := applyOR(rule, map[string]string{"a": "x", "b": "y"})
	assert.Equal(t, []string{"Severe"}, out)
}

func TestApplyANDFallsBackOnNullParam(t *testing.T) {
	rule := hematologicalStateRule()
	out := applyAND(rule, map[string]string{"hemoglobin": "Low", "wbc": ""})
	assert.Equal(t, []string{"Unknown"}, out)
}

func TestTraceRecordsPerRuleSteps(t *testing.T) {
	df := []clinical.AbstractedMeasurement{
		{ConceptName: "hemoglobin", Value: "Low", StartDateTime: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
		{ConceptName: "wbc", Value: "Normal", StartDateTime: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
	}
	proc := New([]clinical.StructuredRule{hematologicalStateRule()}, []clinical.StructuredRule{treatmentRule()}, fakePatients{}, nil)

	trace, err := proc.Trace(context.Background(), "100000001", df)
	require.NoError(t, err)
	require.Len(t, trace.Steps, 2)

	assert.Equal(t, "hematological_state", trace.Steps[0].RuleName)
	assert.Equal(t, "Anemia", trace.Steps[0].Classification)
	assert.Equal(t, "treatment", trace.Steps[1].RuleName)
	assert.Equal(t, "Anemia", trace.Steps[1].InputValues["hematological_state"])
	assert.Equal(t, "NoAction", trace.Steps[1].Classification)
	assert.Equal(t, trace.State["treatment"], trace.Steps[1].Classification)
}

func TestSearchParamsPatientTableTakesPriority(t *testing.T) {
	proc := New(nil, nil, fakePatients{patient: clinical.Patient{Sex: "Male"}}, nil)
	state := StateCache{"sex": "Female"}
	values := proc.searchParams([]string{"sex"}, nil, map[string]string{"sex": "Male"}, state)
	assert.Equal(t, "Male", values["sex"])
}
