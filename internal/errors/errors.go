// Package errors provides a discriminated application error type so
// callers can branch on error kind rather than matching message text.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind identifies the category of an AppError. Callers switch on Kind,
// never on Error() text.
type Kind string

const (
	KindInvalidInput       Kind = "INVALID_INPUT"
	KindDateOrderViolation Kind = "DATE_ORDER_VIOLATION"
	KindPatientNotFound    Kind = "PATIENT_NOT_FOUND"
	KindLoincCodeNotFound  Kind = "LOINC_CODE_NOT_FOUND"
	KindUnknownComponent   Kind = "UNKNOWN_COMPONENT"
	KindAmbiguousComponent Kind = "AMBIGUOUS_COMPONENT"
	KindLoincMismatch      Kind = "LOINC_MISMATCH"
	KindRecordNotFound     Kind = "RECORD_NOT_FOUND"
	KindDuplicateInsert    Kind = "DUPLICATE_INSERT"
	KindStaleUpdate        Kind = "STALE_UPDATE"
	KindAlreadyExists      Kind = "ALREADY_EXISTS"
	KindRulesValidation    Kind = "RULES_VALIDATION"
	KindInternal           Kind = "INTERNAL"
)

// AppError is a structured application error.
type AppError struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError of the given kind.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Wrap attaches additional context to err, preserving its Kind if it is
// already an AppError.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{Kind: appErr.Kind, Message: message, Cause: appErr}
	}
	return &AppError{Kind: KindInternal, Message: message, Cause: err}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// KindOf returns the Kind of err if it is an AppError, otherwise
// KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err is an AppError of the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Constructors, one per discriminated kind in the error handling design.

func InvalidInput(format string, args ...interface{}) *AppError {
	return New(KindInvalidInput, fmt.Sprintf(format, args...))
}

func DateOrderViolation(format string, args ...interface{}) *AppError {
	return New(KindDateOrderViolation, fmt.Sprintf(format, args...))
}

func PatientNotFound(patientID string) *AppError {
	return New(KindPatientNotFound, fmt.Sprintf("patient %s not found", patientID))
}

func LoincCodeNotFound(loincNum string) *AppError {
	return New(KindLoincCodeNotFound, fmt.Sprintf("LOINC code %s not found", loincNum))
}

func UnknownComponent(component string) *AppError {
	return New(KindUnknownComponent, fmt.Sprintf("component %q is not a known LOINC component", component))
}

func AmbiguousComponent(component string) *AppError {
	return New(KindAmbiguousComponent, fmt.Sprintf("component %q maps to more than one LOINC code", component))
}

func LoincMismatch(loincNum, component string) *AppError {
	return New(KindLoincMismatch, fmt.Sprintf("LOINC code %s does not correspond to component %q", loincNum, component))
}

func RecordNotFound(format string, args ...interface{}) *AppError {
	return New(KindRecordNotFound, fmt.Sprintf(format, args...))
}

func DuplicateInsert(format string, args ...interface{}) *AppError {
	return New(KindDuplicateInsert, fmt.Sprintf(format, args...))
}

func StaleUpdate(format string, args ...interface{}) *AppError {
	return New(KindStaleUpdate, fmt.Sprintf(format, args...))
}

func AlreadyExists(format string, args ...interface{}) *AppError {
	return New(KindAlreadyExists, fmt.Sprintf(format, args...))
}

func RulesValidation(messages []string) *AppError {
	msg := "rule repository validation failed"
	err := New(KindRulesValidation, msg)
	if len(messages) > 0 {
		err.Cause = fmt.Errorf("%s", joinLines(messages))
	}
	return err
}

func Internal(message string) *AppError {
	return New(KindInternal, message)
}

func joinLines(lines []string) string {
	out := lines[0]
	for _, l := range lines[1:] {
		out += "\n" + l
	}
	return out
}
