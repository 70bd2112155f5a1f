package service

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel kinds, matchable with errors.Is on any of the typed errors below.
var (
	ErrValidation   = errors.New("validation failed")
	ErrPrecondition = errors.New("precondition failed")
	ErrNotFound     = errors.New("not found")
)

// MissingItem names a (group, heat, track) result that still has to be recorded.
// Ties is set instead when the group waits on a tie-break heat.
type MissingItem struct {
	GroupNo int         `json:"group"`
	HeatNo  int         `json:"heat"`
	TrackNo int         `json:"track"`
	Ties    []uuid.UUID `json:"ties,omitempty"`
}

func (m MissingItem) String() string {
	if len(m.Ties) > 0 {
		return fmt.Sprintf("group %d: tie-break between %d entrants", m.GroupNo, len(m.Ties))
	}
	return fmt.Sprintf("group %d heat %d track %d", m.GroupNo, m.HeatNo, m.TrackNo)
}

// ValidationError rejects malformed input: wrong entrant set, unknown heat key, bad names.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// PreconditionError rejects an operation the tournament is not in a state to accept.
type PreconditionError struct {
	Message string
	Missing []MissingItem
	Ties    [][]uuid.UUID
}

func (e *PreconditionError) Error() string {
	switch {
	case len(e.Missing) > 0:
		return fmt.Sprintf("%s: %d results missing, first %s", e.Message, len(e.Missing), e.Missing[0])
	case len(e.Ties) > 0:
		return fmt.Sprintf("%s: %d unresolved ties", e.Message, len(e.Ties))
	}
	return e.Message
}

func (e *PreconditionError) Is(target error) bool { return target == ErrPrecondition }

type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

func validationf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

func preconditionf(format string, args ...any) error {
	return &PreconditionError{Message: fmt.Sprintf(format, args...)}
}

// notFound translates sql.ErrNoRows from the store; other errors are wrapped with the resource name.
func notFound(err error, resource string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return &NotFoundError{Resource: resource, ID: fmt.Sprint(id)}
	}
	return fmt.Errorf("failed to get %s: %w", resource, err)
}
