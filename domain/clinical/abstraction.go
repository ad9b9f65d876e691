package clinical

import "time"

// AbstractedMeasurement is a derived labeled interval. The
// AbstractedMeasurements table is truncated and fully rebuilt on each
// orchestrator abstraction run; it carries no bi-temporal semantics of
// its own.
type AbstractedMeasurement struct {
	PatientID     string
	LoincCode     string
	ConceptName   string
	Value         string
	StartDateTime time.Time
	EndDateTime   time.Time
}

// Source distinguishes a Mediator output record that came from TAK
// classification versus one that passed through unclassified.
type Source string

const (
	SourceAbstracted Source = "abstracted"
	SourceRaw        Source = "raw"
)

// UnifiedRecord is one row of the Mediator's run output: an abstracted
// interval or an untouched raw measurement, both extended by the
// relevance window. This is transient output, not a persisted shape —
// the Orchestrator projects it down to AbstractedMeasurement rows.
type UnifiedRecord struct {
	PatientID     string
	LoincCode     string
	ConceptName   string
	Value         string
	StartDateTime time.Time
	EndDateTime   time.Time
	Source        Source
}

// AsAbstractedMeasurement projects a UnifiedRecord down to the
// persisted shape.
func (u UnifiedRecord) AsAbstractedMeasurement() AbstractedMeasurement {
	return AbstractedMeasurement{
		PatientID:     u.PatientID,
		LoincCode:     u.LoincCode,
		ConceptName:   u.ConceptName,
		Value:         u.Value,
		StartDateTime: u.StartDateTime,
		EndDateTime:   u.EndDateTime,
	}
}
