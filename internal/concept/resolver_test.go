package concept

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
	s.Loinc = []storetest.Loinc{
		{LoincNum: "8480-6", Component: "Systolic Blood Pressure"},
		{LoincNum: "8462-4", Component: "Diastolic Blood Pressure"},
		{LoincNum: "2345-7", Component: "Glucose"},
	}
	return s
}

func TestForInsertByLoincOnly(t *testing.T) {
	s := newFixtureStore()
	r := New(s)

	got, err := r.ForInsert(context.Background(), "8480-6", "")
	require.NoError(t, err)
	assert.Equal(t, "8480-6", got)
}

func TestForInsertUnknownLoinc(t *testing.T) {
	s := newFixtureStore()
	r := New(s)

	_, err := r.ForInsert(context.Background(), "9999-9", "")
	require.Error(t, err)
	assert.Equal(t, errors.KindLoincCodeNotFound, errors.KindOf(err))
}

func TestForInsertByComponentOnly(t *testing.T) {
	s := newFixtureStore()
	r := New(s)

	got, err := r.ForInsert(context.Background(), "", "Glucose")
	require.NoError(t, err)
	assert.Equal(t, "2345-7", got)
}

func TestForInsertAmbiguousComponent(t *testing.T) {
	s := newFixtureStore()
	s.Loinc = append(s.Loinc, storetest.Loinc{LoincNum: "8480-7", Component: "Glucose"})
	r := New(s)

	_, err := r.ForInsert(context.Background(), "", "Glucose")
	require.Error(t, err)
	assert.Equal(t, errors.KindAmbiguousComponent, errors.KindOf(err))
}

func TestForInsertUnknownComponent(t *testing.T) {
	s := newFixtureStore()
	r := New(s)

	_, err := r.ForInsert(context.Background(), "", "Cholesterol")
	require.Error(t, err)
	assert.Equal(t, errors.KindUnknownComponent, errors.KindOf(err))
}

func TestForInsertMismatch(t *testing.T) {
	s := newFixtureStore()
	r := New(s)

	_, err := r.ForInsert(context.Background(), "8480-6", "Glucose")
	require.Error(t, err)
	assert.Equal(t, errors.KindLoincMismatch, errors.KindOf(err))
}

func TestForInsertNeitherProvided(t *testing.T) {
	s := newFixtureStore()
	r := New(s)

	_, err := r.ForInsert(context.Background(), "", "")
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
}

func TestForUpdateScopedToPatientHistory(t *testing.T) {
	s := newFixtureStore()
	now := time.Now()
	s.Measurements = []storetest.Measurement{
		{PatientID: "000000001", LoincNum: "2345-7", ValidStartTime: now, TransactionInsertionTime: now.Add(-time.Hour)},
	}
	r := New(s)

	got, err := r.ForUpdate(context.Background(), "000000001", "", "Glucose", now)
	require.NoError(t, err)
	assert.Equal(t, "2345-7", got)

	_, err = r.ForUpdate(context.Background(), "000000001", "", "Systolic Blood Pressure", now)
	require.Error(t, err)
	assert.Equal(t, errors.KindUnknownComponent, errors.KindOf(err))
}

func TestEntry(t *testing.T) {
	s := newFixtureStore()
	r := New(s)

	entry, err := r.Entry(context.Background(), "8480-6")
	require.NoError(t, err)
	assert.Equal(t, "Systolic Blood Pressure", entry.Component)

	_, err = r.Entry(context.Background(), "0000-0")
	require.Error(t, err)
	assert.Equal(t, errors.KindLoincCodeNotFound, errors.KindOf(err))
}
