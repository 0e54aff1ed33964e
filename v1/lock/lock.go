package lock

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/aleroyer/go-sessionlock/v1/errors"
	"github.com/aleroyer/go-sessionlock/v1/metrics"
	"github.com/aleroyer/go-sessionlock/v1/notify"
	"github.com/aleroyer/go-sessionlock/v1/session"
)

var tracer = otel.Tracer("github.com/aleroyer/go-sessionlock/v1/lock")

const (
	// DefaultPrefix namespaces lock keys in the store.
	DefaultPrefix = "sessionlock/locks"
	// MinTTL is the smallest lease duration the store accepts.
	MinTTL = 10 * time.Second
	// DefaultRenewBefore is the safety margin subtracted from the TTL to
	// compute the renewal cadence.
	DefaultRenewBefore = 5 * time.Second
)

// Lock is a reusable handle for one logical lock identity. A handle supports
// one outstanding acquisition at a time; each acquire produces a fresh session
// and a fresh key identity, and each release tears both down.
type Lock struct {
	store     session.Store
	bus       notify.Bus
	newToken  func() string
	onFailure func(error)

	mu        sync.Mutex
	prefix    string
	key       string
	sessionID string
	renewer   *renewer
}

// Option configures a Lock.
type Option func(*Lock)

// WithBus attaches a notification bus. Lock and unlock events are published
// on it, and AcquireWait uses it to block instead of poll.
func WithBus(bus notify.Bus) Option {
	return func(l *Lock) { l.bus = bus }
}

// WithPrefix overrides the default key prefix. An empty prefix disables
// namespacing.
func WithPrefix(prefix string) Option {
	return func(l *Lock) { l.prefix = prefix }
}

// WithTokenFunc overrides the generator used for anonymous lock keys. Useful
// for deterministic tests.
func WithTokenFunc(fn func() string) Option {
	return func(l *Lock) { l.newToken = fn }
}

// WithOnRenewalFailure registers a callback invoked when a background renewal
// fails and the lease is at risk of expiring out from under the holder.
func WithOnRenewalFailure(fn func(error)) Option {
	return func(l *Lock) { l.onFailure = fn }
}

// New returns a Lock handle backed by store.
func New(store session.Store, opts ...Option) *Lock {
	l := &Lock{
		store:    store,
		prefix:   DefaultPrefix,
		newToken: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type acquireOptions struct {
	key         string
	value       []byte
	behavior    session.Behavior
	ttl         time.Duration
	renewBefore time.Duration
}

// AcquireOption configures a single acquisition.
type AcquireOption func(*acquireOptions)

// WithKey sets the lock key. When omitted, a fresh unique token is used.
func WithKey(key string) AcquireOption {
	return func(o *acquireOptions) { o.key = key }
}

// WithValue sets the payload stored alongside the lock marker.
func WithValue(value []byte) AcquireOption {
	return func(o *acquireOptions) { o.value = value }
}

// WithBehavior sets the session-expiry disposition. The default is
// session.BehaviorRelease.
func WithBehavior(b session.Behavior) AcquireOption {
	return func(o *acquireOptions) { o.behavior = b }
}

// WithTTL sets the lease duration. It must be at least MinTTL. Zero means the
// session never expires on its own.
func WithTTL(ttl time.Duration) AcquireOption {
	return func(o *acquireOptions) { o.ttl = ttl }
}

// WithRenewBefore sets the safety margin subtracted from the TTL to compute
// the renewal cadence.
func WithRenewBefore(d time.Duration) AcquireOption {
	return func(o *acquireOptions) { o.renewBefore = d }
}

func newAcquireOptions(opts []AcquireOption) acquireOptions {
	o := acquireOptions{
		behavior:    session.BehaviorRelease,
		renewBefore: DefaultRenewBefore,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// identity computes the effective key path for a given key under the current
// prefix.
func (l *Lock) identity(key string) string {
	l.mu.Lock()
	prefix := l.prefix
	l.mu.Unlock()
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// Acquire obtains the lock or fails without blocking on other holders. On
// failure no session or key is left behind.
func (l *Lock) Acquire(ctx context.Context, opts ...AcquireOption) error {
	o := newAcquireOptions(opts)
	if o.ttl != 0 && o.ttl < MinTTL {
		return errors.ErrInvalidTTL
	}

	ctx, span := tracer.Start(ctx, "Lock.Acquire",
		trace.WithAttributes(attribute.String("sessionlock.key", o.key)))
	defer span.End()

	id, err := l.store.CreateSession(ctx, o.behavior, o.ttl)
	if err != nil {
		metrics.AcquireFailureCounter.Inc()
		return fmt.Errorf("sessionlock: create session: %w", err)
	}

	key := o.key
	if key == "" {
		key = l.newToken()
	}
	identity := l.identity(key)
	span.SetAttributes(attribute.String("sessionlock.identity", identity))

	ok, err := l.store.AcquireKey(ctx, identity, o.value, id)
	if err != nil || !ok {
		// Do not leak the session on a failed acquisition.
		if _, derr := l.store.DestroySession(ctx, id); derr != nil {
			slog.Warn("sessionlock: destroy session after failed acquire",
				"key", identity, "session", id, "error", derr)
		}
		metrics.AcquireFailureCounter.Inc()
		if err != nil {
			return fmt.Errorf("sessionlock: acquire %s: %w", identity, err)
		}
		return errors.ErrAcquireFailed
	}

	l.mu.Lock()
	l.key = identity
	l.sessionID = id
	if o.ttl > 0 {
		if interval := o.ttl - o.renewBefore; interval > 0 {
			l.renewer = newRenewer(l.store, id, identity, interval, l.onFailure)
		}
	}
	l.mu.Unlock()

	metrics.AcquireCounter.Inc()
	metrics.HeldGauge.Inc()
	slog.Debug("sessionlock: acquired", "key", identity, "session", id)
	if l.bus != nil {
		_ = l.bus.Publish(ctx, "lock:"+identity)
	}
	return nil
}

// AcquireWait obtains the lock, blocking until the current holder releases it
// or ctx is cancelled. It requires a bus and an explicit key: anonymous keys
// are unique per attempt and can never contend.
func (l *Lock) AcquireWait(ctx context.Context, opts ...AcquireOption) error {
	if l.bus == nil {
		return errors.ErrNoBus
	}
	o := newAcquireOptions(opts)
	if o.key == "" {
		return fmt.Errorf("sessionlock: blocking acquire requires an explicit key")
	}
	identity := l.identity(o.key)
	for {
		err := l.Acquire(ctx, opts...)
		if err == nil {
			return nil
		}
		if !stderrors.Is(err, errors.ErrAcquireFailed) {
			return err
		}
		ch, err := l.bus.Subscribe(ctx, "unlock:"+identity)
		if err != nil {
			return err
		}
		select {
		case <-ch:
		case <-ctx.Done():
			_ = l.bus.Unsubscribe(context.Background(), "unlock:"+identity, ch)
			return ctx.Err()
		}
		_ = l.bus.Unsubscribe(context.Background(), "unlock:"+identity, ch)
	}
}

// Release frees the held lock: it stops the renewal task, issues the release
// write, deletes the key and destroys the session. Every step is attempted
// even if an earlier one fails; failures are aggregated. Releasing an unheld
// handle is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	l.mu.Lock()
	identity, id, r := l.key, l.sessionID, l.renewer
	l.key, l.sessionID, l.renewer = "", "", nil
	l.mu.Unlock()
	if id == "" {
		return nil
	}

	ctx, span := tracer.Start(ctx, "Lock.Release",
		trace.WithAttributes(
			attribute.String("sessionlock.identity", identity),
			attribute.String("sessionlock.session", id)))
	defer span.End()

	// Signal the renewal task before touching the session. A lagging renew on
	// a destroyed session fails harmlessly, so no join is needed.
	if r != nil {
		r.stop()
	}

	var errs []error
	if _, err := l.store.ReleaseKey(ctx, identity, nil, id); err != nil {
		errs = append(errs, fmt.Errorf("sessionlock: release %s: %w", identity, err))
	}
	if _, err := l.store.DeleteKey(ctx, identity); err != nil {
		errs = append(errs, fmt.Errorf("sessionlock: delete %s: %w", identity, err))
	}
	if _, err := l.store.DestroySession(ctx, id); err != nil {
		errs = append(errs, fmt.Errorf("sessionlock: destroy session %s: %w", id, err))
	}

	metrics.ReleaseCounter.Inc()
	metrics.HeldGauge.Dec()
	slog.Debug("sessionlock: released", "key", identity, "session", id)
	if l.bus != nil {
		_ = l.bus.Publish(ctx, "unlock:"+identity)
	}
	return stderrors.Join(errs...)
}

// Do runs fn while holding the lock. Release is guaranteed on every exit
// path, including a panic inside fn; release errors are joined with fn's.
func (l *Lock) Do(ctx context.Context, fn func(ctx context.Context) error, opts ...AcquireOption) (err error) {
	if err := l.Acquire(ctx, opts...); err != nil {
		return err
	}
	defer func() {
		rerr := l.Release(context.Background())
		err = stderrors.Join(err, rerr)
	}()
	return fn(ctx)
}

// SetPrefix overrides the key prefix. It takes effect on the next acquire
// only; an in-progress lock keeps its identity. nil-like empty values disable
// namespacing.
func (l *Lock) SetPrefix(prefix string) {
	l.mu.Lock()
	l.prefix = prefix
	l.mu.Unlock()
}

// Key returns the currently held key identity, or "" when unheld.
func (l *Lock) Key() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.key
}

// Held reports whether the handle currently holds a lock.
func (l *Lock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID != ""
}

// Degraded reports whether a background renewal failed while the lock is
// held, meaning the lease may expire out from under the caller.
func (l *Lock) Degraded() bool {
	l.mu.Lock()
	r := l.renewer
	l.mu.Unlock()
	return r != nil && r.degraded.Load()
}
