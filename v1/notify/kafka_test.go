package notify

import (
	"context"
	"os"
	"testing"
	"time"

	sarama "github.com/IBM/sarama"
	"github.com/google/uuid"
)

func newKafkaBus(t *testing.T) (*KafkaBus, context.Context) {
	t.Helper()
	addr := os.Getenv("SESSIONLOCK_TEST_KAFKA_ADDR")
	if addr == "" {
		t.Skip("SESSIONLOCK_TEST_KAFKA_ADDR not set, skipping Kafka integration tests")
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest

	bus, err := NewKafkaBus([]string{addr}, cfg)
	if err != nil {
		t.Fatalf("NewKafkaBus: %v", err)
	}
	t.Cleanup(func() { _ = bus.Close() })
	return bus, context.Background()
}

func TestKafkaBusPublishSubscribe(t *testing.T) {
	bus, ctx := newKafkaBus(t)
	topic := "sessionlock-test-" + uuid.NewString()

	ch, err := bus.Subscribe(ctx, topic)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	// Consumer attachment is asynchronous; give the partition consumer a
	// moment before the first publish.
	time.Sleep(time.Second)
	if err := bus.Publish(ctx, topic); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case <-ch:
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}
