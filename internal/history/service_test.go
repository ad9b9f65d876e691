package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdss/internal/errors"
	"cdss/internal/storetest"
)

func newFixtureStore() *storetest.Store {
	s := storetest.New()
	s.Patients = []storetest.Patient{{PatientID: "100000001", FirstName: "Jane", LastName: "Doe", Sex: "Female"}}
	s.Loinc = []storetest.Loinc{{LoincNum: "718-7", Component: "Glucose"}}
	return s
}

// TestQueryBiTemporalUpdate is end-to-end scenario 1: after an insert
// and a later update, History at a snapshot before the update sees the
// old value, and at a snapshot after it sees the new one.
func TestQueryBiTemporalUpdate(t *testing.T) {
	s := newFixtureStore()
	insertedAt := time.Date(2024, 4, 1, 8, 1, 0, 0, time.UTC)
	updatedAt := time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)
	validStart := time.Date(2024, 4, 1, 8, 0, 0, 0, time.UTC)
	deletionStamp := updatedAt

	s.Measurements = []storetest.Measurement{
		{PatientID: "100000001", LoincNum: "718-7", Value: "14.2", Unit: "mmol/L",
			ValidStartTime: validStart, TransactionInsertionTime: insertedAt, TransactionDeletionTime: &deletionStamp},
		{PatientID: "100000001", LoincNum: "718-7", Value: "14.5", Unit: "mmol/L",
			ValidStartTime: validStart, TransactionInsertionTime: updatedAt},
	}

	svc := New(s)

	before := time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)
	rows, err := svc.Query(context.Background(), Filter{PatientID: "100000001", Snapshot: &before})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "14.2", rows[0].Value)

	after := time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)
	rows, err = svc.Query(context.Background(), Filter{PatientID: "100000001", Snapshot: &after})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "14.5", rows[0].Value)
}

func TestQueryUnknownPatient(t *testing.T) {
	s := newFixtureStore()
	svc := New(s)

	_, err := svc.Query(context.Background(), Filter{PatientID: "999999999"})
	require.Error(t, err)
	assert.Equal(t, errors.KindPatientNotFound, errors.KindOf(err))
}

func TestQueryComponentFilterIsCaseInsensitiveSubstring(t *testing.T) {
	s := newFixtureStore()
	s.Measurements = []storetest.Measurement{
		{PatientID: "100000001", LoincNum: "718-7", Value: "95", Unit: "mg/dL",
			ValidStartTime: time.Now().Add(-2 * time.Hour), TransactionInsertionTime: time.Now().Add(-time.Hour)},
	}
	svc := New(s)

	rows, err := svc.Query(context.Background(), Filter{PatientID: "100000001", Component: "gluc"})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = svc.Query(context.Background(), Filter{PatientID: "100000001", Component: "sodium"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}
