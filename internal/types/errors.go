package types

import (
	"errors"
	"fmt"
)

// ErrAlreadyApplied marks a transaction whose effects are already in the
// state store. Re-delivery is expected and harmless; callers treat this as a
// successful no-op.
var ErrAlreadyApplied = errors.New("transaction already applied")

// OrphanEventError marks an event referencing an entity that does not exist
// locally yet. The event may simply have arrived ahead of its prerequisite,
// so it is deferred and retried rather than dropped.
type OrphanEventError struct {
	Kind     EventKind
	JobID    uint64
	EscrowID uint64
}

func (e *OrphanEventError) Error() string {
	if e.EscrowID != 0 {
		return fmt.Sprintf("%s references unknown escrow %d", e.Kind, e.EscrowID)
	}
	return fmt.Sprintf("%s references unknown job %d", e.Kind, e.JobID)
}

// InvalidTransitionError marks an event that would move an entity along an
// edge its state machine does not allow. Like an orphan, it may resolve once
// an earlier event lands, so it is deferred before being escalated.
type InvalidTransitionError struct {
	Entity string
	ID     uint64
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid %s %d transition from %s to %s", e.Entity, e.ID, e.From, e.To)
}

// ValidationError marks an event that is structurally sound but violates a
// business rule. It will never become valid, so it is recorded and skipped
// rather than retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// PermanentError marks an event that can never be applied: a transition out
// of a terminal state, or an orphan that exhausted its deferral budget. It is
// recorded as failed and surfaced for operator attention.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permanent failure: %s: %v", e.Reason, e.Err)
	}
	return "permanent failure: " + e.Reason
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// IsOrphan reports whether err is an OrphanEventError.
func IsOrphan(err error) bool {
	var orphan *OrphanEventError
	return errors.As(err, &orphan)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var invalid *InvalidTransitionError
	return errors.As(err, &invalid)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var validation *ValidationError
	return errors.As(err, &validation)
}

// IsPermanent reports whether err is a PermanentError.
func IsPermanent(err error) bool {
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// IsDeferrable reports whether the error should park the event for a later
// poll cycle instead of failing it outright.
func IsDeferrable(err error) bool {
	return IsOrphan(err) || IsInvalidTransition(err)
}
