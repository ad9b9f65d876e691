package records

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdss/internal/concept"
	"cdss/internal/errors"
	"cdss/internal/storetest"
)

func newService() (*storetest.Store, *Service) {
	s := storetest.New()
	s.Loinc = []storetest.Loinc{
		{LoincNum: "2345-7", Component: "Glucose"},
	}
	r := concept.New(s)
	return s, New(s, r, nil)
}

func TestRegisterPatient(t *testing.T) {
	s, svc := newService()

	err := svc.RegisterPatient(context.Background(), "123456789", "Jane", "Doe", "Female")
	require.NoError(t, err)
	require.Len(t, s.Patients, 1)
	assert.Equal(t, "123456789", s.Patients[0].PatientID)

	err = svc.RegisterPatient(context.Background(), "123456789", "Jane", "Doe", "Female")
	require.Error(t, err)
	assert.Equal(t, errors.KindAlreadyExists, errors.KindOf(err))
}

func TestRegisterPatientInvalidID(t *testing.T) {
	_, svc := newService()

	err := svc.RegisterPatient(context.Background(), "abc", "Jane", "Doe", "Female")
	require.Error(t, err)
	assert.Equal(t, errors.KindInvalidInput, errors.KindOf(err))
}

func TestInsertMeasurementAndDuplicate(t *testing.T) {
	s, svc := newService()
	s.Patients = []storetest.Patient{{PatientID: "123456789", FirstName: "Jane", LastName: "Doe", Sex: "Female"}}

	err := svc.InsertMeasurement(context.Background(), InsertMeasurementInput{
		PatientID:      "123456789",
		ValidStartTime: "2024-01-01 08:00:00",
		Value:          "95",
		Unit:           "mg/dL",
		LoincNum:       "2345-7",
	})
	require.NoError(t, err)
	require.Len(t, s.Measurements, 1)

	err = svc.InsertMeasurement(context.Background(), InsertMeasurementInput{
		PatientID:      "123456789",
		ValidStartTime: "2024-01-01 08:00:00",
		Value:          "99",
		Unit:           "mg/dL",
		LoincNum:       "2345-7",
	})
	require.Error(t, err)
	assert.Equal(t, errors.KindDuplicateInsert, errors.KindOf(err))
}

func TestInsertMeasurementUnknownPatient(t *testing.T) {
	_, svc := newService()

	err := svc.InsertMeasurement(context.Background(), InsertMeasurementInput{
		PatientID:      "999999999",
		ValidStartTime: "2024-01-01 08:00:00",
		Value:          "95",
		LoincNum:       "2345-7",
	})
	require.Error(t, err)
	assert.Equal(t, errors.KindPatientNotFound, errors.KindOf(err))
}

func TestUpdateMeasurement(t *testing.T) {
	s, svc := newService()
	s.Patients = []storetest.Patient{{PatientID: "123456789", FirstName: "Jane", LastName: "Doe", Sex: "Female"}}

	require.NoError(t, svc.InsertMeasurement(context.Background(), InsertMeasurementInput{
		PatientID:       "123456789",
		ValidStartTime:  "2024-01-01 08:00:00",
		Value:           "95",
		Unit:            "mg/dL",
		LoincNum:        "2345-7",
		TransactionTime: "2024-01-01 08:05:00",
	}))

	err := svc.UpdateMeasurement(context.Background(), UpdateMeasurementInput{
		PatientID:       "123456789",
		ValidStartTime:  "2024-01-01 08:00:00",
		NewValue:        "110",
		LoincNum:        "2345-7",
		TransactionTime: "2024-01-02 09:00:00",
	})
	require.NoError(t, err)

	require.Len(t, s.Measurements, 2)
	var visible *storetest.Measurement
	for i := range s.Measurements {
		if s.Measurements[i].TransactionDeletionTime == nil {
			visible = &s.Measurements[i]
		}
	}
	require.NotNil(t, visible)
	assert.Equal(t, "110", visible.Value)
	assert.Equal(t, "mg/dL", visible.Unit)
}

func TestUpdateMeasurementStale(t *testing.T) {
	s, svc := newService()
	s.Patients = []storetest.Patient{{PatientID: "123456789", FirstName: "Jane", LastName: "Doe", Sex: "Female"}}

	require.NoError(t, svc.InsertMeasurement(context.Background(), InsertMeasurementInput{
		PatientID:       "123456789",
		ValidStartTime:  "2024-01-01 08:00:00",
		Value:           "95",
		Unit:            "mg/dL",
		LoincNum:        "2345-7",
		TransactionTime: "2024-01-01 08:05:00",
	}))
	require.NoError(t, svc.UpdateMeasurement(context.Background(), UpdateMeasurementInput{
		PatientID:       "123456789",
		ValidStartTime:  "2024-01-01 08:00:00",
		NewValue:        "105",
		LoincNum:        "2345-7",
		TransactionTime: "2024-01-02 09:00:00",
	}))

	// The original row is still visible at 08:30, but a newer version
	// was recorded at 2024-01-02 09:00, so this update is stale.
	err := svc.UpdateMeasurement(context.Background(), UpdateMeasurementInput{
		PatientID:       "123456789",
		ValidStartTime:  "2024-01-01 08:00:00",
		NewValue:        "110",
		LoincNum:        "2345-7",
		TransactionTime: "2024-01-01 08:30:00",
	})
	require.Error(t, err)
	assert.Equal(t, errors.KindStaleUpdate, errors.KindOf(err))
}

func TestDeleteMeasurement(t *testing.T) {
	s, svc := newService()
	s.Patients = []storetest.Patient{{PatientID: "123456789", FirstName: "Jane", LastName: "Doe", Sex: "Female"}}

	require.NoError(t, svc.InsertMeasurement(context.Background(), InsertMeasurementInput{
		PatientID:       "123456789",
		ValidStartTime:  "2024-01-01 08:00:00",
		Value:           "95",
		Unit:            "mg/dL",
		LoincNum:        "2345-7",
		TransactionTime: "2024-01-01 08:05:00",
	}))

	err := svc.DeleteMeasurement(context.Background(), DeleteMeasurementInput{
		PatientID:      "123456789",
		ValidStartTime: "2024-01-01 08:00:00",
		LoincNum:       "2345-7",
		DeletionTime:   "2024-01-02 10:00:00",
	})
	require.NoError(t, err)
	require.Len(t, s.Measurements, 1)
	assert.NotNil(t, s.Measurements[0].TransactionDeletionTime)
}

// TestDeleteMeasurementDateOnlyTargetsLatest covers the date-only
// delete resolution: two rows on the same day, the delete lands on the
// later ValidStartTime only.
func TestDeleteMeasurementDateOnlyTargetsLatest(t *testing.T) {
	s, svc := newService()
	s.Patients = []storetest.Patient{{PatientID: "123456789", FirstName: "Jane", LastName: "Doe", Sex: "Female"}}

	require.NoError(t, svc.InsertMeasurement(context.Background(), InsertMeasurementInput{
		PatientID:       "123456789",
		ValidStartTime:  "2024-04-01 08:00:00",
		Value:           "95",
		Unit:            "mg/dL",
		LoincNum:        "2345-7",
		TransactionTime: "2024-04-01 08:05:00",
	}))
	require.NoError(t, svc.InsertMeasurement(context.Background(), InsertMeasurementInput{
		PatientID:       "123456789",
		ValidStartTime:  "2024-04-01 20:00:00",
		Value:           "110",
		Unit:            "mg/dL",
		LoincNum:        "2345-7",
		TransactionTime: "2024-04-01 20:05:00",
	}))

	err := svc.DeleteMeasurement(context.Background(), DeleteMeasurementInput{
		PatientID:      "123456789",
		ValidStartTime: "2024-04-01",
		LoincNum:       "2345-7",
		DeletionTime:   "2024-04-02 00:00:00",
	})
	require.NoError(t, err)

	require.Len(t, s.Measurements, 2)
	for _, m := range s.Measurements {
		if m.ValidStartTime.Hour() == 20 {
			assert.NotNil(t, m.TransactionDeletionTime)
		} else {
			assert.Nil(t, m.TransactionDeletionTime)
		}
	}
}

// TestUpdateResolvesComponentFromPatientHistory covers component
// disambiguation: a component ambiguous in the LOINC dictionary still
// resolves on update when the patient's own visible history narrows it
// to a single code.
func TestUpdateResolvesComponentFromPatientHistory(t *testing.T) {
	s, svc := newService()
	s.Patients = []storetest.Patient{{PatientID: "123456789", FirstName: "Jane", LastName: "Doe", Sex: "Female"}}
	s.Loinc = append(s.Loinc, storetest.Loinc{LoincNum: "2339-0", Component: "Glucose"})

	require.NoError(t, svc.InsertMeasurement(context.Background(), InsertMeasurementInput{
		PatientID:       "123456789",
		ValidStartTime:  "2024-01-01 08:00:00",
		Value:           "95",
		Unit:            "mg/dL",
		LoincNum:        "2345-7",
		TransactionTime: "2024-01-01 08:05:00",
	}))

	err := svc.InsertMeasurement(context.Background(), InsertMeasurementInput{
		PatientID:       "123456789",
		ValidStartTime:  "2024-01-01 09:00:00",
		Value:           "99",
		Unit:            "mg/dL",
		Component:       "Glucose",
		TransactionTime: "2024-01-01 09:05:00",
	})
	require.Error(t, err)
	assert.Equal(t, errors.KindAmbiguousComponent, errors.KindOf(err))

	err = svc.UpdateMeasurement(context.Background(), UpdateMeasurementInput{
		PatientID:       "123456789",
		ValidStartTime:  "2024-01-01 08:00:00",
		NewValue:        "102",
		Component:       "Glucose",
		TransactionTime: "2024-01-02 09:00:00",
	})
	require.NoError(t, err)

	var visible *storetest.Measurement
	for i := range s.Measurements {
		if s.Measurements[i].TransactionDeletionTime == nil {
			visible = &s.Measurements[i]
		}
	}
	require.NotNil(t, visible)
	assert.Equal(t, "2345-7", visible.LoincNum)
	assert.Equal(t, "102", visible.Value)
}

func TestFindPatientsByName(t *testing.T) {
	s, svc := newService()
	s.Patients = []storetest.Patient{{PatientID: "123456789", FirstName: "Jane", LastName: "Doe", Sex: "Female"}}

	got, err := svc.FindPatientsByName(context.Background(), "Jane", "Doe")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "123456789", got[0].PatientID)

	_, err = svc.FindPatientsByName(context.Background(), "Nobody", "Here")
	require.Error(t, err)
	assert.Equal(t, errors.KindPatientNotFound, errors.KindOf(err))
}
