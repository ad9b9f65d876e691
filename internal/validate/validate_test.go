package validate

import (
	"testing"
	"time"

	"cdss/internal/errors"
)

func TestPatientID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		hasError bool
	}{
		{"nine digits", "123456789", false},
		{"too short", "12345", true},
		{"too long", "1234567890", true},
		{"letters", "12345678a", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := PatientID(tt.input)
			if tt.hasError && err == nil {
				t.Errorf("expected error for %q, got nil", tt.input)
			}
			if !tt.hasError && err != nil {
				t.Errorf("unexpected error for %q: %v", tt.input, err)
			}
			if err != nil && errors.KindOf(err) != errors.KindInvalidInput {
				t.Errorf("expected KindInvalidInput, got %v", errors.KindOf(err))
			}
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		hasError bool
	}{
		{"simple", "Smith", false},
		{"hyphenated", "Smith-Jones", false},
		{"apostrophe", "O'Brien", false},
		{"digits", "Smith1", true},
		{"space", "Smith Jones", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Name(tt.input, "Last Name")
			if tt.hasError && err == nil {
				t.Errorf("expected error for %q, got nil", tt.input)
			}
			if !tt.hasError && err != nil {
				t.Errorf("unexpected error for %q: %v", tt.input, err)
			}
		})
	}
}

func TestSex(t *testing.T) {
	if err := Sex("Male"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Sex("Female"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := Sex("male"); err == nil {
		t.Error("expected error for lowercase 'male'")
	}
	if err := Sex("Other"); err == nil {
		t.Error("expected error for 'Other'")
	}
}

func TestDateTimeISO(t *testing.T) {
	got, dateOnly, err := DateTime("2024-03-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !dateOnly {
		t.Error("expected dateOnly true for date-only ISO input")
	}
	want := time.Date(2024, 3, 15, 0, 0, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDateTimeDayfirst(t *testing.T) {
	got, dateOnly, err := DateTime("15/03/2024 14:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dateOnly {
		t.Error("expected dateOnly false when a time component is present")
	}
	want := time.Date(2024, 3, 15, 14, 30, 0, 0, time.Local)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDateTimeInvalid(t *testing.T) {
	if _, _, err := DateTime("not-a-date"); err == nil {
		t.Error("expected error for unparseable input")
	}
	if _, _, err := DateTime(""); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestEndWidensDateOnly(t *testing.T) {
	got, err := End("2024-03-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Hour() != 23 || got.Minute() != 59 || got.Second() != 59 {
		t.Errorf("expected end-of-day time, got %v", got)
	}
}

func TestStartKeepsMidnight(t *testing.T) {
	got, err := Start("2024-03-15")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Hour() != 0 || got.Minute() != 0 {
		t.Errorf("expected midnight, got %v", got)
	}
}

func TestDatesOrder(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	if err := DatesOrder(early, later, "Valid Start", "Transaction Time"); err != nil {
		t.Errorf("unexpected error for correctly ordered dates: %v", err)
	}
	if err := DatesOrder(later, early, "Valid Start", "Transaction Time"); err == nil {
		t.Error("expected error when later precedes early")
	}
	if errors.KindOf(DatesOrder(later, early, "a", "b")) != errors.KindDateOrderViolation {
		t.Error("expected KindDateOrderViolation")
	}
	if err := DatesOrder(time.Time{}, later, "a", "b"); err != nil {
		t.Errorf("expected nil when early is zero value, got %v", err)
	}
}
