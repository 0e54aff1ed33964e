package session

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryConditionalAcquire(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a, err := s.CreateSession(ctx, BehaviorRelease, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	b, err := s.CreateSession(ctx, BehaviorRelease, 0)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if ok, err := s.AcquireKey(ctx, "k", []byte("v"), a); err != nil || !ok {
		t.Fatalf("acquire: ok %v err %v", ok, err)
	}
	if ok, _ := s.AcquireKey(ctx, "k", nil, b); ok {
		t.Fatal("expected acquire held by other session to fail")
	}
	// Re-acquire by the same session succeeds.
	if ok, _ := s.AcquireKey(ctx, "k", []byte("v2"), a); !ok {
		t.Fatal("expected same-session re-acquire to succeed")
	}
	if v, ok := s.Value("k"); !ok || string(v) != "v2" {
		t.Fatalf("value %q ok %v", v, ok)
	}
}

func TestInMemoryAcquireUnknownSession(t *testing.T) {
	s := NewInMemory()
	if ok, err := s.AcquireKey(context.Background(), "k", nil, "missing"); err != nil || ok {
		t.Fatalf("expected false for unknown session, ok %v err %v", ok, err)
	}
}

func TestInMemoryReleaseKey(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a, _ := s.CreateSession(ctx, BehaviorRelease, 0)
	b, _ := s.CreateSession(ctx, BehaviorRelease, 0)
	_, _ = s.AcquireKey(ctx, "k", []byte("v"), a)

	if ok, _ := s.ReleaseKey(ctx, "k", nil, b); ok {
		t.Fatal("expected release by non-holder to fail")
	}
	if ok, _ := s.ReleaseKey(ctx, "k", nil, a); !ok {
		t.Fatal("expected release by holder to succeed")
	}
	// Value survives the release.
	if v, ok := s.Value("k"); !ok || string(v) != "v" {
		t.Fatalf("value %q ok %v", v, ok)
	}
	if ok, _ := s.AcquireKey(ctx, "k", nil, b); !ok {
		t.Fatal("expected acquire after release to succeed")
	}
}

func TestInMemoryDeleteKey(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	a, _ := s.CreateSession(ctx, BehaviorRelease, 0)
	_, _ = s.AcquireKey(ctx, "k", []byte("v"), a)
	if ok, _ := s.DeleteKey(ctx, "k"); !ok {
		t.Fatal("expected delete to report existing key")
	}
	if _, ok := s.Value("k"); ok {
		t.Fatal("expected key removed")
	}
	if ok, _ := s.DeleteKey(ctx, "k"); ok {
		t.Fatal("expected delete of missing key to report false")
	}
}

func TestInMemoryDestroyAppliesBehavior(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()

	rel, _ := s.CreateSession(ctx, BehaviorRelease, 0)
	_, _ = s.AcquireKey(ctx, "keep", []byte("v"), rel)
	if ok, _ := s.DestroySession(ctx, rel); !ok {
		t.Fatal("expected destroy to report existing session")
	}
	if _, ok := s.Value("keep"); !ok {
		t.Fatal("release behavior should keep the key")
	}
	if ok, _ := s.DestroySession(ctx, rel); ok {
		t.Fatal("expected second destroy to report false")
	}

	del, _ := s.CreateSession(ctx, BehaviorDelete, 0)
	_, _ = s.AcquireKey(ctx, "drop", []byte("v"), del)
	_, _ = s.DestroySession(ctx, del)
	if _, ok := s.Value("drop"); ok {
		t.Fatal("delete behavior should remove the key")
	}
}

func TestInMemoryExpiryReleasesKey(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	id, _ := s.CreateSession(ctx, BehaviorRelease, 20*time.Millisecond)
	_, _ = s.AcquireKey(ctx, "k", []byte("v"), id)

	time.Sleep(60 * time.Millisecond)
	if ok, _ := s.RenewSession(ctx, id); ok {
		t.Fatal("expected renew of expired session to fail")
	}
	other, _ := s.CreateSession(ctx, BehaviorRelease, 0)
	if ok, _ := s.AcquireKey(ctx, "k", nil, other); !ok {
		t.Fatal("expected key released after session expiry")
	}
}

func TestInMemoryRenewExtendsSession(t *testing.T) {
	s := NewInMemory()
	ctx := context.Background()
	id, _ := s.CreateSession(ctx, BehaviorRelease, 100*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	if ok, _ := s.RenewSession(ctx, id); !ok {
		t.Fatal("expected renew to succeed")
	}
	// Without the renew the session would have expired by now.
	time.Sleep(80 * time.Millisecond)
	if ok, _ := s.RenewSession(ctx, id); !ok {
		t.Fatal("expected renewed session to still be alive")
	}
	time.Sleep(200 * time.Millisecond)
	if ok, _ := s.RenewSession(ctx, id); ok {
		t.Fatal("expected session to expire without renewal")
	}
}
