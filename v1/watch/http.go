// Package watch exposes HTTP handlers that stream lock activity to
// operational clients over Server-Sent Events or WebSocket.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aleroyer/go-sessionlock/v1/notify"
)

// Event is the payload streamed to watchers of a lock key.
type Event struct {
	Key       string    `json:"key"`
	State     string    `json:"state"` // "locked" or "unlocked"
	Timestamp time.Time `json:"ts"`
}

// subscribe attaches to the lock and unlock channels for key. The returned
// cleanup must be called once the watcher is done.
func subscribe(ctx context.Context, bus notify.Bus, key string) (lockCh, unlockCh chan struct{}, cleanup func(), err error) {
	lockCh, err = bus.Subscribe(ctx, "lock:"+key)
	if err != nil {
		return nil, nil, nil, err
	}
	unlockCh, err = bus.Subscribe(ctx, "unlock:"+key)
	if err != nil {
		_ = bus.Unsubscribe(context.Background(), "lock:"+key, lockCh)
		return nil, nil, nil, err
	}
	cleanup = func() {
		_ = bus.Unsubscribe(context.Background(), "lock:"+key, lockCh)
		_ = bus.Unsubscribe(context.Background(), "unlock:"+key, unlockCh)
	}
	return lockCh, unlockCh, cleanup, nil
}

func marshal(key, state string) []byte {
	data, _ := json.Marshal(Event{Key: key, State: state, Timestamp: time.Now().UTC()})
	return data
}

// SSEHandler streams lock events over Server-Sent Events. The watched key is
// taken from the "key" query parameter.
func SSEHandler(bus notify.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		if key == "" {
			http.Error(w, "missing key", http.StatusBadRequest)
			return
		}
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		lockCh, unlockCh, cleanup, err := subscribe(ctx, bus, key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer cleanup()
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "stream unsupported", http.StatusInternalServerError)
			return
		}
		for {
			var payload []byte
			select {
			case _, ok := <-lockCh:
				if !ok {
					return
				}
				payload = marshal(key, "locked")
			case _, ok := <-unlockCh:
				if !ok {
					return
				}
				payload = marshal(key, "unlocked")
			case <-ctx.Done():
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

var upgrader = websocket.Upgrader{}

// WebSocketHandler streams lock events over WebSocket. The watched key is
// taken from the "key" query parameter.
func WebSocketHandler(bus notify.Bus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("key")
		if key == "" {
			http.Error(w, "missing key", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		lockCh, unlockCh, cleanup, err := subscribe(ctx, bus, key)
		if err != nil {
			return
		}
		defer cleanup()
		for {
			var payload []byte
			select {
			case _, ok := <-lockCh:
				if !ok {
					return
				}
				payload = marshal(key, "locked")
			case _, ok := <-unlockCh:
				if !ok {
					return
				}
				payload = marshal(key, "unlocked")
			case <-ctx.Done():
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
