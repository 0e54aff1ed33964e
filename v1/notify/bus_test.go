package notify

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryBusPublishSubscribe(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()
	ch, err := bus.Subscribe(ctx, "unlock:k")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := bus.Publish(ctx, "unlock:k"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	m := bus.Metrics()
	if m.Published != 1 || m.Delivered != 1 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestInMemoryBusUnsubscribe(t *testing.T) {
	bus := NewInMemoryBus()
	ctx := context.Background()
	ch, _ := bus.Subscribe(ctx, "k")
	if err := bus.Unsubscribe(ctx, "k", ch); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed")
	}
	bus.mu.Lock()
	if _, ok := bus.subs["k"]; ok {
		bus.mu.Unlock()
		t.Fatal("expected subscription removed")
	}
	bus.mu.Unlock()
}

func TestInMemoryBusContextCancelUnsubscribes(t *testing.T) {
	bus := NewInMemoryBus()
	ctx, cancel := context.WithCancel(context.Background())
	_, err := bus.Subscribe(ctx, "k")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		bus.mu.Lock()
		n := len(bus.subs["k"])
		bus.mu.Unlock()
		if n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("subscription not removed on context cancel")
}
