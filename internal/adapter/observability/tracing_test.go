package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-vuln-analyzer/internal/config"
)

func TestSetupTracing_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(config.Config{OTLPEndpoint: ""})
	require.NoError(t, err)
	assert.Nil(t, shutdown)
}

func TestSetupTracing_EnabledWithEndpoint(t *testing.T) {
	// The OTLP gRPC exporter connects lazily, so setup succeeds without a
	// collector listening.
	shutdown, err := SetupTracing(config.Config{
		OTLPEndpoint:    "localhost:4317",
		OTELServiceName: "ai-vuln-analyzer-test",
		AppEnv:          "test",
	})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
}
