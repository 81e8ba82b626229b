// Package usecase contains application business logic services.
package usecase

import (
	"encoding/json"
	"strings"
	"time"

	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/ai-vuln-analyzer/internal/adapter/ai"
	"github.com/fairyhunter13/ai-vuln-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-vuln-analyzer/internal/config"
	"github.com/fairyhunter13/ai-vuln-analyzer/internal/domain"
	obsctx "github.com/fairyhunter13/ai-vuln-analyzer/internal/observability"
)

// severityTemperature pins the severity call; lower than the configured
// default so ratings stay consistent across runs.
const severityTemperature = 0.2

var (
	validate = validator.New()
	cleaner  = ai.NewResponseCleaner()
)

// AnalyzerService implements domain.Analyzer on top of a ChatCompleter.
// Failures of either analysis stage degrade to absent fields; nothing here
// returns an error to the consumer.
type AnalyzerService struct {
	Cfg       config.Config
	Prompts   config.Prompts
	Completer domain.ChatCompleter
}

// NewAnalyzer constructs an AnalyzerService with its dependencies.
func NewAnalyzer(cfg config.Config, prompts config.Prompts, completer domain.ChatCompleter) AnalyzerService {
	return AnalyzerService{Cfg: cfg, Prompts: prompts, Completer: completer}
}

// GenerateDescription produces a user-friendly explanation of the
// vulnerability, or nil when the call fails or comes back empty.
func (s AnalyzerService) GenerateDescription(ctx domain.Context, job domain.Job) *string {
	log := obsctx.LoggerFromContext(ctx)

	start := time.Now()
	raw, err := s.Completer.Complete(ctx, s.Prompts.DescriptionSystem, FormatDescriptionPrompt(job), s.Cfg.OpenAITemperature)
	observability.ObserveAIRequest("description", err, time.Since(start))
	if err != nil {
		log.Error("description generation failed", slog.Any("error", err))
		return nil
	}

	description := strings.TrimSpace(raw)
	if description == "" {
		log.Error("description generation returned empty text")
		return nil
	}

	log.Info("description generated", slog.Int("chars", len(description)))
	return &description
}

// AnalyzeSeverity asks the model for a structured severity assessment, or
// nil when the call fails, the reply is not valid JSON, or a required field
// is missing.
func (s AnalyzerService) AnalyzeSeverity(ctx domain.Context, job domain.Job) *domain.SeverityAssessment {
	log := obsctx.LoggerFromContext(ctx)

	start := time.Now()
	raw, err := s.Completer.Complete(ctx, s.Prompts.SeveritySystem, FormatSeverityPrompt(job), severityTemperature)
	observability.ObserveAIRequest("severity", err, time.Since(start))
	if err != nil {
		log.Error("severity analysis failed", slog.Any("error", err))
		return nil
	}

	cleaned := cleaner.CleanJSONResponse(raw)

	var assessment domain.SeverityAssessment
	if err := json.Unmarshal([]byte(cleaned), &assessment); err != nil {
		log.Error("severity response is not valid JSON", slog.Any("error", err))
		log.Debug("raw severity response", slog.String("response", raw))
		return nil
	}
	if err := validate.Struct(assessment); err != nil {
		log.Error("severity response missing required fields", slog.Any("error", err))
		return nil
	}

	observability.ObserveSeverity(*assessment.Severity)
	log.Info("severity analyzed",
		slog.String("severity", *assessment.Severity),
		slog.Int("confidence", *assessment.Confidence))
	return &assessment
}

// AnalyzeVulnerability runs both analysis stages independently and folds
// their outcomes into one result. The job succeeds when at least one stage
// produced data; the sink stamps the timestamp.
func (s AnalyzerService) AnalyzeVulnerability(ctx domain.Context, job domain.Job) domain.AnalysisResult {
	log := obsctx.LoggerFromContext(ctx)
	log.Info("starting vulnerability analysis")

	result := domain.AnalysisResult{
		VulnerabilityID: job.VulnerabilityID,
		PackageName:     job.PackageName,
	}

	result.Description = s.GenerateDescription(ctx, job)

	assessment := s.AnalyzeSeverity(ctx, job)
	if assessment != nil {
		result.Severity = assessment.Severity
		result.Confidence = assessment.Confidence
		result.Factors = assessment.Factors
	}

	if result.Description != nil || assessment != nil {
		result.Success = true
		log.Info("vulnerability analysis completed",
			slog.Bool("has_description", result.Description != nil),
			slog.Bool("has_severity", assessment != nil))
		return result
	}

	msg := "Failed to generate both description and severity analysis"
	result.Error = &msg
	log.Error("vulnerability analysis failed completely")
	return result
}
