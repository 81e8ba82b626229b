// Command server starts the AI vulnerability analysis service: a RabbitMQ
// consumer that analyzes vulnerability jobs with an OpenAI-compatible model
// and records results in MongoDB, plus an HTTP status surface.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fairyhunter13/ai-vuln-analyzer/internal/adapter/ai/openai"
	httpserver "github.com/fairyhunter13/ai-vuln-analyzer/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-vuln-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-vuln-analyzer/internal/adapter/queue/rabbitmq"
	"github.com/fairyhunter13/ai-vuln-analyzer/internal/adapter/repo/mongodb"
	"github.com/fairyhunter13/ai-vuln-analyzer/internal/app"
	"github.com/fairyhunter13/ai-vuln-analyzer/internal/config"
	"github.com/fairyhunter13/ai-vuln-analyzer/internal/usecase"
)

func main() {
	// A local .env fills in missing variables; it never overrides the real
	// environment.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so /metrics exposes
	// HTTP, AI, queue and sink instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting ai vulnerability analysis service",
		slog.String("env", cfg.AppEnv),
		slog.String("version", httpserver.Version))

	// Document store. Unreachable storage is fatal at startup; afterwards the
	// consumer rides out store faults by requeueing.
	ctx := context.Background()
	client, err := mongodb.Connect(ctx, cfg.MongoURI)
	if err != nil {
		slog.Error("mongodb connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	sink := mongodb.NewSink(client, cfg.MongoDatabase)

	prompts, err := config.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		slog.Error("prompts load failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Analysis pipeline
	completer := openai.New(cfg)
	analyzer := usecase.NewAnalyzer(cfg, prompts, completer)

	// Queue consumer on its own goroutine; it owns the broker handles.
	consumer := rabbitmq.NewConsumer(cfg, analyzer, sink)
	go consumer.Run(ctx)

	// HTTP status surface
	srv := httpserver.NewServer(cfg, analyzer, consumer, app.BuildStoreCheck(sink))
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	// Shutdown order: stop consuming first so no new deliveries arrive, then
	// drain HTTP, then release the store client.
	consumer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)

	select {
	case <-consumer.Done():
	case <-shutdownCtx.Done():
		slog.Warn("consumer did not exit before deadline")
	}

	if err := sink.Close(shutdownCtx); err != nil {
		slog.Error("mongodb close failed", slog.Any("error", err))
	}
	slog.Info("service stopped")
}
