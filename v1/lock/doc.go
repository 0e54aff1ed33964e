// Package lock provides a distributed mutual-exclusion handle built on a
// session-aware key-value store. Acquiring a lock creates a session, performs
// a conditional write binding the key to it and, for TTL-based sessions,
// keeps the session alive with a background renewal task until release. The
// store is the single source of truth for ownership; handles never talk to
// each other directly.
package lock
