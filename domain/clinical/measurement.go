package clinical

import "time"

// DateTimeLayout is the persisted and wire format for every datetime
// column in the store: naive, local, second precision.
const DateTimeLayout = "2006-01-02 15:04:05"

// Measurement is one bi-temporal observation row.
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

// VisibleAt reports whether m is visible at transaction-time snapshot,
// per the bi-temporal visibility predicate: TransactionInsertionTime
// <= snapshot AND (TransactionDeletionTime is null OR > snapshot).
func (m Measurement) VisibleAt(snapshot time.Time) bool {
	if m.TransactionInsertionTime.After(snapshot) {
		return false
	}
	if m.TransactionDeletionTime != nil && !m.TransactionDeletionTime.After(snapshot) {
		return false
	}
	return true
}

// SameLineage reports whether m and other share the valid-time key
// (PatientId, LoincNum, ValidStartTime) that identifies a lineage.
func (m Measurement) SameLineage(other Measurement) bool {
	return m.PatientID == other.PatientID &&
		m.LoincNum == other.LoincNum &&
		m.ValidStartTime.Equal(other.ValidStartTime)
}
