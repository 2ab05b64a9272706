package scoring

import "errors"

// Errors surfaced to callers of Award. Validation and rate-limit failures
// are rejected synchronously with no side effects; store errors are
// transient and retryable.
var (
	// ErrUnknownActivityType is returned for activity types with no score
	// type configuration.
	ErrUnknownActivityType = errors.New("unknown activity type")

	// ErrInvalidMultiplier is returned for non-positive or non-finite
	// multipliers.
	ErrInvalidMultiplier = errors.New("invalid multiplier")

	// ErrDailyLimitExceeded is returned when the day's cap for a
	// rate-limited activity type is already reached.
	ErrDailyLimitExceeded = errors.New("daily limit exceeded")

	// ErrStoreUnavailable marks transient store failures. The award left no
	// partial state and the caller may retry.
	ErrStoreUnavailable = errors.New("store unavailable")
)
