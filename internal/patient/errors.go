package patient

import (
	"errors"
	"fmt"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrInvalidState        = errors.New("invalid patient state")
	ErrValidation          = errors.New("validation error")
	ErrDuplicateNationalID = errors.New("patient with this national id already exists")
	ErrNoFieldsToUpdate    = errors.New("no fields to update")
)

// InvalidState variants. Each wraps ErrInvalidState.
var (
	ErrSelfMerge        = invalidState("cannot merge patient with themselves")
	ErrInactivePatients = invalidState("both patients must be active to merge")
	ErrNotActive        = invalidState("patient is not active")
	// ErrPartialWrite means a merge write matched no row after the
	// preconditions passed. The transaction is rolled back.
	ErrPartialWrite = invalidState("patient changed during merge transaction")
)

// NotFound variants used by merge so the caller knows which side is missing.
var (
	ErrTargetNotFound = notFound("target patient not found")
	ErrSourceNotFound = notFound("source patient not found")
)

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func invalidState(msg string) error { return &kindError{msg: msg, kind: ErrInvalidState} }
func notFound(msg string) error     { return &kindError{msg: msg, kind: ErrPatientNotFound} }

func invalid(format string, args ...interface{}) error {
	return &kindError{msg: fmt.Sprintf(format, args...), kind: ErrValidation}
}
