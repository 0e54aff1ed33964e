// Package notify provides the pub/sub bus used to propagate lock and unlock
// events across nodes. Waiters subscribe to "unlock:<key>" so blocking
// acquisition can sleep on a channel instead of polling the store. Delivery
// is best-effort: the store stays the single source of truth for ownership
// and a missed event only delays a retry.
package notify
