// Package config defines configuration parsing and helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// PlaceholderAPIKey is the value shipped in the example .env file. The
// process is allowed to boot with it (the status surface reports the
// credential as not configured), but real calls will be rejected upstream.
const PlaceholderAPIKey = "sk-your-openai-api-key-here"

// Config holds all application configuration parsed from environment variables.
type Config struct {
	AppEnv    string `env:"APP_ENV" envDefault:"dev"`
	Port      int    `env:"PORT" envDefault:"8000"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Remote analysis service (OpenAI-compatible chat completions).
	OpenAIAPIKey      string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL     string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIModel       string        `env:"OPENAI_MODEL" envDefault:"gpt-4"`
	OpenAITemperature float64       `env:"OPENAI_TEMPERATURE" envDefault:"0.3"`
	OpenAIMaxTokens   int           `env:"OPENAI_MAX_TOKENS" envDefault:"500"`
	ProcessingTimeout time.Duration `env:"PROCESSING_TIMEOUT" envDefault:"30s"`
	MaxRetries        int           `env:"MAX_RETRIES" envDefault:"3"`
	RetryDelay        time.Duration `env:"RETRY_DELAY" envDefault:"2s"`

	// Broker.
	RabbitMQURL       string        `env:"RABBITMQ_URL" envDefault:"amqp://localhost:5672"`
	QueueName         string        `env:"AI_QUEUE_NAME" envDefault:"ai_vulnerability_analysis"`
	RabbitMQHeartbeat time.Duration `env:"RABBITMQ_HEARTBEAT" envDefault:"600s"`
	RabbitMQDialTime  time.Duration `env:"RABBITMQ_DIAL_TIMEOUT" envDefault:"30s"`
	ReconnectDelay    time.Duration `env:"RECONNECT_DELAY" envDefault:"5s"`

	// Document store.
	MongoURI      string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017/dependency-manager"`
	MongoDatabase string `env:"MONGODB_DATABASE" envDefault:"dependency-manager"`

	// HTTP surface.
	CORSAllowOrigins      string        `env:"CORS_ALLOW_ORIGINS" envDefault:"*"`
	AnalyzeRatePerMin     int           `env:"ANALYZE_RATE_PER_MIN" envDefault:"10"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	HTTPReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	HTTPWriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	HTTPIdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`

	// Observability.
	OTLPEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTELServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"ai-vuln-analyzer"`

	// Optional YAML file overriding the built-in system prompts.
	PromptsFile string `env:"PROMPTS_FILE" envDefault:""`
}

// Load parses environment variables into a Config and rejects configurations
// the service cannot start with. A missing API key must fail here, before
// the consumer ever starts, so the process exits non-zero instead of running
// a worker that can never analyze anything.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("op=config.Load: %w", err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("MAX_RETRIES must be at least 1, got %d", c.MaxRetries)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be in [1,65535], got %d", c.Port)
	}
	return nil
}

// CredentialConfigured reports whether a usable API key is present, i.e. the
// key is non-empty and not the documented placeholder.
func (c Config) CredentialConfigured() bool {
	return c.OpenAIAPIKey != "" && c.OpenAIAPIKey != PlaceholderAPIKey
}

// IsDev reports whether the app is running in development mode.
func (c Config) IsDev() bool { return strings.ToLower(c.AppEnv) == "dev" }

// IsProd reports whether the app is running in production mode.
func (c Config) IsProd() bool { return strings.ToLower(c.AppEnv) == "prod" }

// IsTest reports whether the app is running in test mode.
func (c Config) IsTest() bool { return strings.ToLower(c.AppEnv) == "test" }
