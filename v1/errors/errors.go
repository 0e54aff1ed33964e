package errors

import "errors"

var (
	// ErrInvalidTTL is returned when a lock TTL below the store minimum (10s)
	// is requested. It is raised before any remote call is made.
	ErrInvalidTTL = errors.New("sessionlock: ttl is less than the minimum (10s)")
	// ErrAcquireFailed is returned when the conditional acquire write lost the
	// race or the key is already held by another session. Safe to retry.
	ErrAcquireFailed = errors.New("sessionlock: lock acquisition failed")
	// ErrNotHeld is returned by operations that require a held lock.
	ErrNotHeld = errors.New("sessionlock: lock not held")
	// ErrNoBus is returned by blocking acquisition when no notification bus
	// was configured.
	ErrNoBus = errors.New("sessionlock: no notification bus configured")
)
