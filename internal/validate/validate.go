// Package validate holds the pure validation functions:
// identifier syntax, dual-format date parsing, and date ordering. The
// allowed-value check lives on clinical.LoincEntry.Accepts. None of
// these take a Store — they are grounded
// directly on businesslogic.py's validate_patient_id/validate_name/
// validate_datetime/validate_dates_relation, translated from
// exception-raising functions into error-returning ones.
package validate

import (
	"regexp"
	"strings"
	"time"

	"cdss/internal/errors"
)

var (
	patientIDPattern = regexp.MustCompile(`^[0-9]{9}$`)
	namePattern      = regexp.MustCompile(`^[A-Za-z'-]+$`)
)

// PatientID requires exactly 9 ASCII digits.
func PatientID(id string) error {
	if !patientIDPattern.MatchString(id) {
		return errors.InvalidInput("patient id %q must be exactly 9 digits", id)
	}
	return nil
}

// Name requires letters, hyphens, or apostrophes only.
func Name(name, fieldName string) error {
	if !namePattern.MatchString(name) {
		return errors.InvalidInput("%s must contain only letters, hyphens (-), or apostrophes (')", fieldName)
	}
	return nil
}

// Sex requires one of the two recognized values.
func Sex(sex string) error {
	if sex != "Male" && sex != "Female" {
		return errors.InvalidInput("sex must be %q or %q, got %q", "Male", "Female", sex)
	}
	return nil
}

// isoLayouts and dayfirstLayouts are tried in order. ISO forms are
// tried first; dayfirst forms (DD/MM/YYYY) are the fallback, mirroring
// pandas.to_datetime(dayfirst=True) semantics for anything that is not
// already unambiguous ISO.
var isoLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

var dayfirstLayouts = []string{
	"02/01/2006 15:04:05",
	"02/01/2006 15:04",
	"02/01/2006",
}

var dateOnlyLayouts = map[string]bool{
	"2006-01-02": true,
	"02/01/2006": true,
}

// DateTime parses a datetime string in ISO (YYYY-MM-DD[ HH:MM[:SS]]) or
// dayfirst (DD/MM/YYYY HH:MM) form. It reports whether the input carried
// no time-of-day component (dateOnly), in which case the returned time
// has 00:00:00 filled in — the literal valid-start convention.
func DateTime(s string) (t time.Time, dateOnly bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, errors.InvalidInput("date input is empty")
	}
	for _, layout := range isoLayouts {
		if parsed, perr := time.ParseInLocation(layout, s, time.Local); perr == nil {
			return parsed, dateOnlyLayouts[layout], nil
		}
	}
	for _, layout := range dayfirstLayouts {
		if parsed, perr := time.ParseInLocation(layout, s, time.Local); perr == nil {
			return parsed, dateOnlyLayouts[layout], nil
		}
	}
	return time.Time{}, false, errors.InvalidInput("invalid date input: %q could not be parsed as a date or datetime", s)
}

// Start parses s for use as a lower bound / valid-start value: a
// date-only input keeps its literal 00:00:00.
func Start(s string) (time.Time, error) {
	t, _, err := DateTime(s)
	return t, err
}

// End parses s for use as an upper bound or snapshot instant: a
// date-only input is widened to 23:59:59 of that day.
func End(s string) (time.Time, error) {
	t, dateOnly, err := DateTime(s)
	if err != nil {
		return time.Time{}, err
	}
	if dateOnly {
		t = time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
	}
	return t, nil
}

// DatesOrder requires later >= early. Either may be the zero value,
// meaning "not provided" (no check performed), matching the source's
// "if early_date and later_date" guard.
func DatesOrder(early, later time.Time, earlyField, laterField string) error {
	if early.IsZero() || later.IsZero() {
		return nil
	}
	if later.Before(early) {
		return errors.DateOrderViolation("%s cannot be earlier than %s", laterField, earlyField)
	}
	return nil
}
