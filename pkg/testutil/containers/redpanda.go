//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redpanda"
)

// RedpandaContainer is a single-node Kafka-compatible broker.
type RedpandaContainer struct {
	Broker string
}

// NewRedpandaContainer starts Redpanda for the duration of t.
func NewRedpandaContainer(t *testing.T) *RedpandaContainer {
	t.Helper()
	ctx := context.Background()

	ctr, err := redpanda.Run(ctx, "docker.redpanda.com/redpandadata/redpanda:v24.2.4")
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err, "start redpanda")

	broker, err := ctr.KafkaSeedBroker(ctx)
	require.NoError(t, err, "redpanda seed broker")
	return &RedpandaContainer{Broker: broker}
}
