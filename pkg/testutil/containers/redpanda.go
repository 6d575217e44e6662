//go:build integration

package containers

import (
	"context"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
)

// RedpandaContainer is a Kafka-compatible broker for relay and consumer suites.
type RedpandaContainer struct {
	Container testcontainers.Container
	Brokers   []string
}

func newRedpandaContainer(ctx context.Context) (*RedpandaContainer, error) {
	container, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.2.4",
		redpanda.WithAutoCreateTopics(),
	)
	if err != nil {
		return nil, err
	}
	seed, err := container.KafkaSeedBroker(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, err
	}
	return &RedpandaContainer{Container: container, Brokers: []string{seed}}, nil
}
