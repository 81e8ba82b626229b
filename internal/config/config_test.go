package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Load_Defaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-key")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Port)
	require.Equal(t, "gpt-4", cfg.OpenAIModel)
	require.InDelta(t, 0.3, cfg.OpenAITemperature, 1e-9)
	require.Equal(t, 500, cfg.OpenAIMaxTokens)
	require.Equal(t, "amqp://localhost:5672", cfg.RabbitMQURL)
	require.Equal(t, "ai_vulnerability_analysis", cfg.QueueName)
	require.Equal(t, "mongodb://localhost:27017/dependency-manager", cfg.MongoURI)
	require.Equal(t, "dependency-manager", cfg.MongoDatabase)
	require.Equal(t, 3, cfg.MaxRetries)
	require.Equal(t, "2s", cfg.RetryDelay.String())
	require.Equal(t, "5s", cfg.ReconnectDelay.String())
	require.Equal(t, "json", cfg.LogFormat)
	if !cfg.IsDev() {
		t.Fatalf("expected IsDev true by default")
	}
	if cfg.IsProd() {
		t.Fatalf("expected IsProd false by default")
	}
}

func Test_Load_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func Test_Load_InvalidBounds(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-key")
	t.Setenv("MAX_RETRIES", "0")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "MAX_RETRIES")

	t.Setenv("MAX_RETRIES", "3")
	t.Setenv("PORT", "70000")
	_, err = Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "PORT")
}

func Test_CredentialConfigured(t *testing.T) {
	tests := []struct {
		name string
		key  string
		want bool
	}{
		{"real key", "sk-live-abc123", true},
		{"placeholder", PlaceholderAPIKey, false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{OpenAIAPIKey: tt.key}
			require.Equal(t, tt.want, cfg.CredentialConfigured())
		})
	}
}

func Test_Load_EnvOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test-key")
	t.Setenv("OPENAI_MODEL", "gpt-4o")
	t.Setenv("AI_QUEUE_NAME", "custom_queue")
	t.Setenv("RETRY_DELAY", "50ms")
	t.Setenv("APP_ENV", "prod")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "gpt-4o", cfg.OpenAIModel)
	require.Equal(t, "custom_queue", cfg.QueueName)
	require.Equal(t, "50ms", cfg.RetryDelay.String())
	require.True(t, cfg.IsProd())
}
