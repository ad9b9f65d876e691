package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdss/domain/clinical"
)

const declarativeDoc = `{
  "rule_name": "hematological_state",
  "execution_order": 1,
  "synthetic_loinc": "9001-1",
  "input_parameters": ["hemoglobin state", "wbc state"],
  "logic_type": "AND",
  "rules": {
    "c1": {"hemoglobin state": ["Low"], "wbc state": ["Normal"]}
  },
  "values": {
    "c1": "Anemia"
  },
  "fallback_value": "Unknown"
}`

const proceduralDoc = `{
  "rule_name": "treatment",
  "execution_order": 10,
  "synthetic_loinc": "9002-1",
  "input_parameters": ["hematological_state"],
  "logic_type": "OR",
  "rules": {
    "c1": {"hematological_state": ["Anemia"]}
  },
  "values": {
    "c1": ["Transfuse", "Monitor"]
  },
  "fallback_value": ["NoAction"]
}`

func writeRepo(t *testing.T, declDocs, procDocs map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	declDir := filepath.Join(dir, dirDeclarative)
	procDir := filepath.Join(dir, dirProcedural)
	require.NoError(t, os.MkdirAll(declDir, 0o755))
	require.NoError(t, os.MkdirAll(procDir, 0o755))
	for name, content := range declDocs {
		require.NoError(t, os.WriteFile(filepath.Join(declDir, name), []byte(content), 0o644))
	}
	for name, content := range procDocs {
		require.NoError(t, os.WriteFile(filepath.Join(procDir, name), []byte(content), 0o644))
	}
	return dir
}

func TestValidateAcceptsWellFormedRepository(t *testing.T) {
	dir := writeRepo(t,
		map[string]string{"hematological_state.json": declarativeDoc},
		map[string]string{"treatment.json": proceduralDoc},
	)
	r := New()
	assert.Empty(t, r.Validate(dir))
}

func TestValidateRejectsUnexpectedSubdirectory(t *testing.T) {
	dir := writeRepo(t,
		map[string]string{"hematological_state.json": declarativeDoc},
		map[string]string{"treatment.json": proceduralDoc},
	)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "extra_knowledge"), 0o755))

	r := New()
	errs := r.Validate(dir)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "unexpected subdirectory")
}

func TestValidateRejectsExecutionOrderHierarchyViolation(t *testing.T) {
	badProcedural := `{
		"rule_name": "treatment",
		"execution_order": 1,
		"synthetic_loinc": "9002-1",
		"input_parameters": ["hematological_state"],
		"logic_type": "OR",
		"rules": {"c1": {"hematological_state": ["Anemia"]}},
		"values": {"c1": ["Transfuse"]},
		"fallback_value": ["NoAction"]
	}`
	dir := writeRepo(t,
		map[string]string{"hematological_state.json": declarativeDoc},
		map[string]string{"treatment.json": badProcedural},
	)

	r := New()
	errs := r.Validate(dir)
	require.NotEmpty(t, errs)
	found := false
	for _, e := range errs {
		if strings.Contains(e, "execution order constraint violated") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDiscoverLoadsBothTiers(t *testing.T) {
	dir := writeRepo(t,
		map[string]string{"hematological_state.json": declarativeDoc},
		map[string]string{"treatment.json": proceduralDoc},
	)

	r := New()
	declarative, procedural, err := r.Discover(dir)
	require.NoError(t, err)
	require.Len(t, declarative, 1)
	require.Len(t, procedural, 1)

	assert.Equal(t, "hematological_state", declarative[0].RuleName)
	assert.Equal(t, []string{"Anemia"}, declarative[0].Values["c1"])
	assert.Equal(t, clinical.HierarchyDeclarative, declarative[0].HierarchyLevel)

	assert.Equal(t, "treatment", procedural[0].RuleName)
	assert.Equal(t, []string{"Transfuse", "Monitor"}, procedural[0].Values["c1"])
}
