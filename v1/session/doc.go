// Package session defines the contract for the session-aware key-value store
// that locks are built on, plus in-memory and Redis implementations. A session
// is a server-tracked lease; holding a session is a prerequisite for holding a
// lock key, and the session's behavior decides what happens to held keys when
// it expires.
package session
