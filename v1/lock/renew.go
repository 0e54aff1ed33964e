package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aleroyer/go-sessionlock/v1/metrics"
	"github.com/aleroyer/go-sessionlock/v1/session"
)

// renewer keeps one session alive for the lifetime of one acquisition. It is
// a single goroutine whose sleep is interruptible by the stop channel, so
// shutdown latency is bounded by at most one in-flight renew call.
type renewer struct {
	store     session.Store
	sessionID string
	key       string
	interval  time.Duration
	onFailure func(error)

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
	degraded atomic.Bool
}

func newRenewer(store session.Store, sessionID, key string, interval time.Duration, onFailure func(error)) *renewer {
	r := &renewer{
		store:     store,
		sessionID: sessionID,
		key:       key,
		interval:  interval,
		onFailure: onFailure,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *renewer) run() {
	defer close(r.done)
	for {
		select {
		case <-r.stopCh:
			return
		default:
		}
		ok, err := r.store.RenewSession(context.Background(), r.sessionID)
		if err != nil || !ok {
			// Terminal for this task: the session may now expire externally.
			// That is degraded behavior, not a process fault.
			if err == nil {
				err = fmt.Errorf("sessionlock: session %s expired or unknown", r.sessionID)
			}
			r.degraded.Store(true)
			metrics.RenewalFailureCounter.Inc()
			slog.Warn("sessionlock: renewal failed, lease at risk",
				"key", r.key, "session", r.sessionID, "error", err)
			if r.onFailure != nil {
				r.onFailure(err)
			}
			return
		}
		metrics.RenewalCounter.Inc()
		slog.Debug("sessionlock: renewed session",
			"key", r.key, "session", r.sessionID, "interval", r.interval)
		select {
		case <-r.stopCh:
			return
		case <-time.After(r.interval):
		}
	}
}

// stop signals the loop to exit. It is idempotent and does not wait for the
// current iteration.
func (r *renewer) stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}
