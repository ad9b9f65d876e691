package clinical

import (
	"strconv"
	"strings"
)

// AllowedValuesNumeric is the sentinel AllowedValues string meaning
// "any real number is accepted".
const AllowedValuesNumeric = "NUM"

// LoincEntry is one row of the LOINC dictionary, loaded once from an
// external vocabulary by the bootstrap collaborator.
type LoincEntry struct {
	LoincNum      string
	Component     string
	Property      string
	TimeAspect    string
	System        string
	ScaleType     string
	MethodType    string
	AllowedValues *string
}

// AllowedValueKind classifies how AllowedValues constrains a value.
type AllowedValueKind int

const (
	AllowedValuesAny AllowedValueKind = iota
	AllowedValuesNumericKind
	AllowedValuesEnumerated
)

// Kind reports which of the three AllowedValues regimes this entry uses.
func (l LoincEntry) Kind() AllowedValueKind {
	if l.AllowedValues == nil || *l.AllowedValues == "" {
		return AllowedValuesAny
	}
	if *l.AllowedValues == AllowedValuesNumeric {
		return AllowedValuesNumericKind
	}
	return AllowedValuesEnumerated
}

// EnumeratedValues parses the serialized list form of AllowedValues,
// a comma-separated list of allowed tokens.
func (l LoincEntry) EnumeratedValues() []string {
	if l.AllowedValues == nil {
		return nil
	}
	parts := strings.Split(*l.AllowedValues, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Accepts reports whether value satisfies this entry's AllowedValues
// constraint.
func (l LoincEntry) Accepts(value string) bool {
	switch l.Kind() {
	case AllowedValuesAny:
		return true
	case AllowedValuesNumericKind:
		_, err := strconv.ParseFloat(value, 64)
		return err == nil
	default:
		for _, v := range l.EnumeratedValues() {
			if v == value {
				return true
			}
		}
		return false
	}
}
