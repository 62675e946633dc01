package engine

import (
	"errors"
	"fmt"

	"jobline/internal/repo"
)

// Sentinels for errors.Is against the typed errors below.
var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation failed")
	ErrConflict   = errors.New("conflict")
	ErrStore      = errors.New("store failure")
)

// NotFoundError reports an entity that is absent or belongs to another owner.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ValidationError reports a missing field, a dangling reference or a value
// outside its allowed range.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError reports a lost race. Callers may retry.
type ConflictError struct {
	Message string
	Err     error
}

func (e *ConflictError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }
func (e *ConflictError) Unwrap() error        { return e.Err }

// StoreError wraps an unexpected storage failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Is(target error) bool { return target == ErrStore }
func (e *StoreError) Unwrap() error        { return e.Err }

func notFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// storeErr translates a repo or driver error into one of the four kinds.
// Errors that already carry a kind pass through.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsTyped(err) {
		return err
	}
	switch err = repo.Classify(err); {
	case errors.Is(err, repo.ErrNotFound):
		return &NotFoundError{Kind: "record", ID: op}
	case errors.Is(err, repo.ErrDuplicate):
		return &ValidationError{Field: "id", Message: "already exists"}
	case errors.Is(err, repo.ErrConflict):
		return &ConflictError{Message: op, Err: err}
	case errors.Is(err, repo.ErrConstraint):
		return &ValidationError{Field: "", Message: fmt.Sprintf("%s: %v", op, err)}
	}
	return &StoreError{Op: op, Err: err}
}

// IsTyped reports whether err already is one of the engine's error kinds.
func IsTyped(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrConflict) || errors.Is(err, ErrStore)
}
