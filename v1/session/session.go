package session

import (
	"context"
	"time"
)

// Behavior is the session-expiry disposition for keys held by a session.
type Behavior string

const (
	// BehaviorRelease unlocks held keys on expiry but keeps their values.
	BehaviorRelease Behavior = "release"
	// BehaviorDelete removes held keys entirely on expiry.
	BehaviorDelete Behavior = "delete"
)

// Store is the session/KV collaborator consumed by the lock package. A ttl of
// zero creates a session with no server-side expiry.
type Store interface {
	// CreateSession registers a new session and returns its opaque ID.
	CreateSession(ctx context.Context, behavior Behavior, ttl time.Duration) (string, error)
	// RenewSession extends the session's expiry by its original TTL. It
	// returns false, without error, when the session is gone or expired.
	RenewSession(ctx context.Context, id string) (bool, error)
	// DestroySession removes the session and applies its behavior to every
	// key it holds. It returns whether the session existed.
	DestroySession(ctx context.Context, id string) (bool, error)
	// AcquireKey conditionally writes value at path bound to the session.
	// It succeeds only if the key is unheld or already held by this same
	// session (compare-and-set semantics).
	AcquireKey(ctx context.Context, path string, value []byte, sessionID string) (bool, error)
	// ReleaseKey clears the holder of path if this session holds it,
	// writing value (which may be nil) alongside.
	ReleaseKey(ctx context.Context, path string, value []byte, sessionID string) (bool, error)
	// DeleteKey removes path unconditionally.
	DeleteKey(ctx context.Context, path string) (bool, error)
}
