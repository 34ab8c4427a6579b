package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"celebrate/internal/platform/config"
)

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.Tracing{Enabled: true}, "celebrate", "test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupNoopWhenDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.Tracing{Endpoint: "http://localhost:4318"}, "celebrate", "test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupInstallsProvider(t *testing.T) {
	// Non-routable endpoint: nothing is exported, shutdown still returns.
	shutdown, err := Setup(context.Background(), config.Tracing{
		Enabled:     true,
		Endpoint:    "http://192.0.2.1:4318",
		SampleRatio: 1,
	}, "celebrate", "test")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
