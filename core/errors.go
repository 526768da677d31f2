package core

import "errors"

// Error taxonomy for the progression engine. Callers classify on these
// sentinels with errors.Is; StorageUnavailable and ConcurrentUpdateExceeded
// are transient, the rest are terminal for the event that caused them.
var (
	// ErrInvalidEvent marks an unknown or malformed event kind. Rejected
	// before any state is loaded or mutated.
	ErrInvalidEvent = errors.New("invalid progression event")

	// ErrOutOfOrderEvent marks an activity date earlier than the last
	// recorded one. State is left unchanged.
	ErrOutOfOrderEvent = errors.New("activity date precedes last recorded date")

	// ErrNotFound means no progression record exists for the user. Records
	// are created at registration, so this is a lifecycle violation and is
	// never silently repaired.
	ErrNotFound = errors.New("progression state not found")

	// ErrVersionConflict is returned by stores when the expected version no
	// longer matches. The engine retries on it; it never escapes Apply.
	ErrVersionConflict = errors.New("version conflict")

	// ErrConcurrentUpdateExceeded means the bounded retry budget ran out
	// under contention. The whole Apply call may be retried.
	ErrConcurrentUpdateExceeded = errors.New("concurrent update retries exceeded")

	// ErrStorageUnavailable wraps transient store infrastructure failures.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrAlreadyExists is returned when creating a progression record that
	// is already present.
	ErrAlreadyExists = errors.New("progression state already exists")
)

// IsTransient reports whether the caller may usefully retry the operation.
func IsTransient(err error) bool {
	return errors.Is(err, ErrConcurrentUpdateExceeded) || errors.Is(err, ErrStorageUnavailable)
}
