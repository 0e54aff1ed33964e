package session

import (
	"context"
	"sync"
	"time"

	uuid "github.com/hashicorp/go-uuid"
)

type memSession struct {
	behavior Behavior
	ttl      time.Duration
	timer    *time.Timer
	held     map[string]struct{}
}

type memKey struct {
	holder string
	value  []byte
}

// InMemory implements Store using local memory. It is the single-process
// backend, used directly in tests and as a stand-in for a remote store.
type InMemory struct {
	mu       sync.Mutex
	sessions map[string]*memSession
	keys     map[string]*memKey
}

// NewInMemory returns an empty in-memory session store.
func NewInMemory() *InMemory {
	return &InMemory{
		sessions: make(map[string]*memSession),
		keys:     make(map[string]*memKey),
	}
}

// CreateSession implements Store.CreateSession.
func (s *InMemory) CreateSession(ctx context.Context, behavior Behavior, ttl time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", err
	}
	if behavior == "" {
		behavior = BehaviorRelease
	}
	sess := &memSession{behavior: behavior, ttl: ttl, held: make(map[string]struct{})}
	if ttl > 0 {
		sess.timer = time.AfterFunc(ttl, func() { s.expire(id) })
	}
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	return id, nil
}

// RenewSession implements Store.RenewSession.
func (s *InMemory) RenewSession(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false, nil
	}
	if sess.timer != nil {
		sess.timer.Reset(sess.ttl)
	}
	return true, nil
}

// DestroySession implements Store.DestroySession.
func (s *InMemory) DestroySession(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false, nil
	}
	if sess.timer != nil {
		sess.timer.Stop()
	}
	s.dropLocked(id, sess)
	return true, nil
}

// expire is the timer callback for TTL-based sessions.
func (s *InMemory) expire(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	s.dropLocked(id, sess)
}

// dropLocked applies the session's behavior to its held keys and removes it.
// Callers must hold s.mu.
func (s *InMemory) dropLocked(id string, sess *memSession) {
	for path := range sess.held {
		k, ok := s.keys[path]
		if !ok || k.holder != id {
			continue
		}
		if sess.behavior == BehaviorDelete {
			delete(s.keys, path)
		} else {
			k.holder = ""
		}
	}
	delete(s.sessions, id)
}

// AcquireKey implements Store.AcquireKey.
func (s *InMemory) AcquireKey(ctx context.Context, path string, value []byte, sessionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return false, nil
	}
	k, ok := s.keys[path]
	if !ok {
		k = &memKey{}
		s.keys[path] = k
	}
	if k.holder != "" && k.holder != sessionID {
		return false, nil
	}
	k.holder = sessionID
	k.value = value
	sess.held[path] = struct{}{}
	return true, nil
}

// ReleaseKey implements Store.ReleaseKey.
func (s *InMemory) ReleaseKey(ctx context.Context, path string, value []byte, sessionID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[path]
	if !ok || k.holder != sessionID {
		return false, nil
	}
	k.holder = ""
	if value != nil {
		k.value = value
	}
	if sess, ok := s.sessions[sessionID]; ok {
		delete(sess.held, path)
	}
	return true, nil
}

// DeleteKey implements Store.DeleteKey.
func (s *InMemory) DeleteKey(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[path]
	if !ok {
		return false, nil
	}
	if k.holder != "" {
		if sess, ok := s.sessions[k.holder]; ok {
			delete(sess.held, path)
		}
	}
	delete(s.keys, path)
	return true, nil
}

// Value returns the stored payload for path, if any.
func (s *InMemory) Value(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[path]
	if !ok {
		return nil, false
	}
	return k.value, true
}
