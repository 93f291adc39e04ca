package service

import (
	"fmt"

	"github.com/Kerhoff/rollcall/internal/models"
	"github.com/Kerhoff/rollcall/internal/repository"
)

// Domain errors. Each wraps one of the repository error kinds so callers can
// match either the specific error or its kind with errors.Is.
var (
	ErrGroupNotFound     = fmt.Errorf("group not found: %w", repository.ErrNotFound)
	ErrMemberNotInRoster = fmt.Errorf("member not found in roster: %w", repository.ErrNotFound)
	ErrPassNotFound      = fmt.Errorf("hall pass not found: %w", repository.ErrNotFound)

	ErrPassNotActive = fmt.Errorf("hall pass is not active: %w", repository.ErrConflict)

	ErrInvalidDuration = fmt.Errorf("duration must be a positive number of minutes: %w", repository.ErrInvalid)
	ErrEmptyMemberID   = fmt.Errorf("member id is required: %w", repository.ErrInvalid)
	ErrInvalidDay      = fmt.Errorf("invalid day: %w", repository.ErrInvalid)
	ErrRosterMalformed = fmt.Errorf("roster columns cannot be resolved: %w", repository.ErrInvalid)
	ErrInvalidSecret   = fmt.Errorf("invalid group secret: %w", repository.ErrInvalid)

	ErrRosterUnavailable = fmt.Errorf("roster unavailable: %w", repository.ErrUnavailable)
)

// PassAlreadyActiveError is returned by Checkout when the member already
// holds an open pass. Pass is the conflicting pass.
type PassAlreadyActiveError struct {
	Pass *models.HallPass
}

func (e *PassAlreadyActiveError) Error() string {
	if e.Pass == nil {
		return "member already has an active hall pass"
	}
	return fmt.Sprintf("member %s already has an active hall pass (id=%d)", e.Pass.MemberID, e.Pass.ID)
}

func (e *PassAlreadyActiveError) Unwrap() error {
	return repository.ErrConflict
}

// PersistenceError reports a storage failure. Nothing from the failed
// operation was made durable.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{repository.ErrUnavailable, e.Err}
}
