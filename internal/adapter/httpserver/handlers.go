package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fairyhunter13/ai-vuln-analyzer/internal/config"
	"github.com/fairyhunter13/ai-vuln-analyzer/internal/domain"
)

// Version is reported by the root, health and status endpoints.
const Version = "1.0.0"

const serviceName = "ai-vulnerability-analysis"

// storeProbeTimeout bounds the health endpoint's store ping so a hung
// database cannot hang the readiness report.
const storeProbeTimeout = 2 * time.Second

// WorkerStatus is the slice of the queue consumer the status surface reads.
type WorkerStatus interface {
	IsRunning() bool
	IsConnected() bool
	Alive() bool
	QueueStats(ctx context.Context) (domain.QueueStats, error)
}

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Analyzer   domain.Analyzer
	Worker     WorkerStatus
	StoreCheck func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, analyzer domain.Analyzer, worker WorkerStatus, storeCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Analyzer: analyzer, Worker: worker, StoreCheck: storeCheck}
}

// RootHandler serves the service banner.
func (s *Server) RootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"service": "AI Vulnerability Analysis Service",
			"version": Version,
			"status":  "running",
		})
	}
}

// HealthzHandler reports process liveness. It always succeeds; orchestrators
// use it to decide whether to restart the process, not whether to route to it.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// Health severity ranks. A worse finding never gets overwritten by a later,
// milder one.
const (
	healthOK = iota
	healthDegraded
	healthUnhealthy
)

var healthLabels = [...]string{"healthy", "degraded", "unhealthy"}

// HealthHandler reports readiness of the three collaborators: broker
// connection, document store, and generation-service credential. A broker
// outage or missing credential degrades the service (it still serves status
// queries); a failing store probe marks it unhealthy. 200 only when healthy.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), storeProbeTimeout)
		defer cancel()

		report := map[string]any{
			"service": serviceName,
			"version": Version,
		}
		rank := healthOK
		worsen := func(to int) {
			if to > rank {
				rank = to
			}
		}

		if s.Worker != nil && s.Worker.IsConnected() {
			report["rabbitmq"] = "connected"
		} else {
			report["rabbitmq"] = "disconnected"
			worsen(healthDegraded)
		}

		if s.StoreCheck != nil {
			if err := s.StoreCheck(ctx); err != nil {
				report["mongodb"] = "error: " + err.Error()
				worsen(healthUnhealthy)
			} else {
				report["mongodb"] = "connected"
			}
		}

		if s.Cfg.CredentialConfigured() {
			report["openai"] = "configured"
		} else {
			report["openai"] = "not configured"
			worsen(healthDegraded)
		}

		report["status"] = healthLabels[rank]
		status := http.StatusOK
		if rank != healthOK {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, report)
	}
}

// StatusHandler reports worker state, effective configuration, and live
// queue statistics.
func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := map[string]any{
			"service":        serviceName,
			"version":        Version,
			"worker_running": s.Worker != nil && s.Worker.IsRunning(),
			"worker_alive":   s.Worker != nil && s.Worker.Alive(),
			"configuration": map[string]any{
				"queue_name":         s.Cfg.QueueName,
				"openai_model":       s.Cfg.OpenAIModel,
				"openai_temperature": s.Cfg.OpenAITemperature,
				"max_retries":        s.Cfg.MaxRetries,
				"mongodb_database":   s.Cfg.MongoDatabase,
			},
		}

		if s.Worker == nil || !s.Worker.IsConnected() {
			info["queue_stats"] = "unavailable (not connected)"
		} else if stats, err := s.Worker.QueueStats(r.Context()); err != nil {
			info["queue_stats"] = "error: " + err.Error()
		} else {
			info["queue_stats"] = stats
		}

		writeJSON(w, http.StatusOK, info)
	}
}

// AnalyzeHandler runs one analysis synchronously, bypassing the queue and the
// sink. It exists for manual testing; the result is returned, never persisted.
func (s *Server) AnalyzeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Cap body size to prevent abuse
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB
		var job domain.Job
		if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		result := s.Analyzer.AnalyzeVulnerability(r.Context(), job)
		writeJSON(w, http.StatusOK, result)
	}
}
