package domain

import "errors"

var (
	// ErrValidation marks input that fails domain validation.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a missing batch or arrival record.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a state transition rejected by the forward-only
	// status machine.
	ErrConflict = errors.New("conflict")

	// ErrUnknownMember marks an arrival for a member key outside the
	// batch's frozen expected set.
	ErrUnknownMember = errors.New("unknown batch member")

	// ErrTriggerFailed marks a transform job launch that did not reach the
	// job service. The batch stays TRIGGERED and Start is safe to retry.
	ErrTriggerFailed = errors.New("transform trigger failed")
)
