package intervention

import "errors"

var (
	// ErrInsufficientData marks a profile that cannot be scored. Triggers are
	// suppressed; it is never surfaced to users.
	ErrInsufficientData = errors.New("insufficient activity data")

	// ErrConstraintViolation indicates a candidate could not be placed within the
	// scheduling bounds after the maximum number of shift attempts.
	ErrConstraintViolation = errors.New("scheduling constraint violation")

	// ErrExternalDependency wraps failures of the activity store, persistence,
	// generation or delivery. These are retried with backoff.
	ErrExternalDependency = errors.New("external dependency failure")

	// ErrConfiguration marks a malformed trigger definition. Only that trigger is
	// skipped.
	ErrConfiguration = errors.New("invalid trigger configuration")

	// ErrNotFound indicates an unknown intervention id.
	ErrNotFound = errors.New("intervention not found")

	// ErrInvalidTransition indicates a status change not allowed by the lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")
)
