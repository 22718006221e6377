//go:build integration

package containers

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/amaralBruno27866/member-platform-test-sub015/internal/platform/config"
	"github.com/amaralBruno27866/member-platform-test-sub015/internal/platform/kafka"
)

// RedpandaContainer is a single-node Kafka-compatible broker for the event
// sink and outbox relay suites.
type RedpandaContainer struct {
	Container testcontainers.Container
	Broker    string
}

func NewRedpandaContainer(t *testing.T) *RedpandaContainer {
	t.Helper()

	ctx := context.Background()
	container, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.2.4")
	if err != nil {
		t.Fatalf("failed to start redpanda container: %v", err)
	}
	broker, err := container.KafkaSeedBroker(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get redpanda seed broker: %v", err)
	}
	return &RedpandaContainer{Container: container, Broker: broker}
}

// Topic returns the Kafka settings for a fresh single-partition topic, so
// suites sharing the broker never read each other's records.
func (c *RedpandaContainer) Topic() config.Kafka {
	return config.Kafka{
		Brokers:           []string{c.Broker},
		Topic:             "registration-events-" + uuid.NewString()[:8],
		Partitions:        1,
		ReplicationFactor: 1,
	}
}

// Producer builds the production client for cfg and creates its topic. The
// client is closed when the test ends.
func (c *RedpandaContainer) Producer(t *testing.T, cfg config.Kafka) *kgo.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := kafka.NewProducer(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create kafka producer: %v", err)
	}
	t.Cleanup(client.Close)
	if err := kafka.EnsureTopic(ctx, client, cfg); err != nil {
		t.Fatalf("failed to create topic: %v", err)
	}
	return client
}

// ReadRecords consumes topic from the beginning until n records arrive or
// timeout passes, and returns what it got.
func (c *RedpandaContainer) ReadRecords(t *testing.T, topic string, n int, timeout time.Duration) []*kgo.Record {
	t.Helper()

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(c.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		t.Fatalf("failed to create kafka consumer: %v", err)
	}
	defer consumer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var records []*kgo.Record
	for len(records) < n {
		fetches := consumer.PollFetches(ctx)
		if ctx.Err() != nil {
			break
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			t.Logf("fetch %s/%d: %v", topic, partition, err)
		})
		fetches.EachRecord(func(r *kgo.Record) {
			records = append(records, r)
		})
	}
	return records
}
