//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcredpanda "github.com/testcontainers/testcontainers-go/modules/redpanda"
)

// RedpandaContainer wraps a running Redpanda broker, for consumer tests
// that need a real Kafka-protocol endpoint rather than a faked one.
type RedpandaContainer struct {
	Container   testcontainers.Container
	SeedBrokers string
}

// NewRedpandaContainer starts a single-broker Redpanda instance and returns
// its seed broker address.
func NewRedpandaContainer(t *testing.T) *RedpandaContainer {
	t.Helper()
	ctx := context.Background()

	container, err := tcredpanda.Run(ctx, "redpandadata/redpanda:v24.2.7")
	if err != nil {
		t.Fatalf("starting redpanda container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.KafkaSeedBroker(ctx)
	if err != nil {
		t.Fatalf("getting redpanda seed broker: %v", err)
	}

	return &RedpandaContainer{Container: container, SeedBrokers: brokers}
}
