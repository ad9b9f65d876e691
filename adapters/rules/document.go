// Package rules loads and validates the two-tier structured rule
// document repository, grounded on
// rule_processor.py:_validate_rules/_discover_rule_paths/_load_rule.
package rules

import (
	"bytes"
	"encoding/json"
	"fmt"

	"cdss/domain/clinical"
)

// rawDoc is the untyped shape of a structured rule JSON document,
// decoded once to check required-key presence before typed parsing.
type rawDoc struct {
	RuleName        *string          `json:"rule_name"`
	ExecutionOrder  *json.RawMessage `json:"execution_order"`
	SyntheticLoinc  *string          `json:"synthetic_loinc"`
	InputParameters *json.RawMessage `json:"input_parameters"`
	LogicType       *string          `json:"logic_type"`
	Rules           *json.RawMessage `json:"rules"`
	Values          *json.RawMessage `json:"values"`
	FallbackValue   *json.RawMessage `json:"fallback_value"`
}

func (d rawDoc) missingKeys() []string {
	var missing []string
	if d.RuleName == nil {
		missing = append(missing, "rule_name")
	}
	if d.ExecutionOrder == nil {
		missing = append(missing, "execution_order")
	}
	if d.SyntheticLoinc == nil {
		missing = append(missing, "synthetic_loinc")
	}
	if d.InputParameters == nil {
		missing = append(missing, "input_parameters")
	}
	if d.LogicType == nil {
		missing = append(missing, "logic_type")
	}
	if d.Rules == nil {
		missing = append(missing, "rules")
	}
	if d.Values == nil {
		missing = append(missing, "values")
	}
	if d.FallbackValue == nil {
		missing = append(missing, "fallback_value")
	}
	return missing
}

// parsed is a fully decoded structured rule document, not yet attached
// to a HierarchyLevel (that is determined by the caller from which
// subdirectory it came from).
type parsed struct {
	RuleName        string
	ExecutionOrder  int
	SyntheticLoinc  string
	InputParameters []string
	LogicType       string
	ConditionOrder  []string
	DuplicateIDs    []string
	Rules           map[string]clinical.Condition
	ValueKeys       []string
	RawValues       map[string]json.RawMessage
	RawFallback     json.RawMessage
}

// parseDocument decodes raw bytes into a rawDoc (for required-key
// checking) and, if complete, a parsed document.
func parseDocument(data []byte) (rawDoc, *parsed, error) {
	var raw rawDoc
	if err := json.Unmarshal(data, &raw); err != nil {
		return raw, nil, fmt.Errorf("invalid json: %w", err)
	}
	if missing := raw.missingKeys(); len(missing) > 0 {
		return raw, nil, nil
	}

	var execOrder int
	if err := json.Unmarshal(*raw.ExecutionOrder, &execOrder); err != nil {
		return raw, nil, fmt.Errorf("execution_order must be an integer: %w", err)
	}

	var params []string
	if err := json.Unmarshal(*raw.InputParameters, &params); err != nil {
		return raw, nil, fmt.Errorf("input_parameters must be a list of strings: %w", err)
	}

	condIDs, dupes, err := orderedObjectKeys(*raw.Rules)
	if err != nil {
		return raw, nil, fmt.Errorf("rules: %w", err)
	}

	conditions := make(map[string]clinical.Condition, len(condIDs))
	var condRaw map[string]map[string][]string
	if err := json.Unmarshal(*raw.Rules, &condRaw); err != nil {
		return raw, nil, fmt.Errorf("rules must map condition id to {param: [allowed values]}: %w", err)
	}
	for id, cond := range condRaw {
		conditions[id] = clinical.Condition(cond)
	}

	valueKeys, _, err := orderedObjectKeys(*raw.Values)
	if err != nil {
		return raw, nil, fmt.Errorf("values: %w", err)
	}
	var rawValues map[string]json.RawMessage
	if err := json.Unmarshal(*raw.Values, &rawValues); err != nil {
		return raw, nil, fmt.Errorf("values must be an object: %w", err)
	}

	p := &parsed{
		RuleName:        *raw.RuleName,
		ExecutionOrder:  execOrder,
		SyntheticLoinc:  *raw.SyntheticLoinc,
		InputParameters: params,
		LogicType:       *raw.LogicType,
		ConditionOrder:  condIDs,
		DuplicateIDs:    dupes,
		Rules:           conditions,
		ValueKeys:       valueKeys,
		RawValues:       rawValues,
		RawFallback:     *raw.FallbackValue,
	}
	return raw, p, nil
}

// orderedObjectKeys walks a JSON object's tokens to recover its key
// order (and any duplicate keys), which map[string]T decoding discards.
func orderedObjectKeys(raw json.RawMessage) (keys []string, duplicates []string, err error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, nil, fmt.Errorf("expected a json object")
	}

	seen := make(map[string]bool)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, nil, fmt.Errorf("expected string key")
		}
		if seen[key] {
			duplicates = append(duplicates, key)
		}
		seen[key] = true
		keys = append(keys, key)

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, nil, err
		}
	}
	return keys, duplicates, nil
}

// declarativeValues interprets RawValues/RawFallback as scalar strings,
// the declarative tier's representation, collapsed to single-element
// slices for a uniform evaluation path.
func (p *parsed) declarativeValues() (map[string][]string, []string, error) {
	values := make(map[string][]string, len(p.RawValues))
	for id, raw := range p.RawValues {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, nil, fmt.Errorf("values[%s] must be a string: %w", id, err)
		}
		values[id] = []string{s}
	}
	var fallback string
	if err := json.Unmarshal(p.RawFallback, &fallback); err != nil {
		return nil, nil, fmt.Errorf("fallback_value must be a string: %w", err)
	}
	return values, []string{fallback}, nil
}

// proceduralValues interprets RawValues/RawFallback as lists, the
// procedural tier's representation.
func (p *parsed) proceduralValues() (map[string][]string, []string, error) {
	values := make(map[string][]string, len(p.RawValues))
	for id, raw := range p.RawValues {
		var list []string
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, nil, fmt.Errorf("values[%s] must be a list: %w", id, err)
		}
		values[id] = list
	}
	var fallback []string
	if err := json.Unmarshal(p.RawFallback, &fallback); err != nil {
		return nil, nil, fmt.Errorf("fallback_value must be a list: %w", err)
	}
	return values, fallback, nil
}
