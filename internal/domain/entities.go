package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrNotFound            = errors.New("not found")
	ErrMalformedMessage    = errors.New("malformed message")
	ErrRateLimited         = errors.New("rate limited")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamTimeout     = errors.New("upstream timeout")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrEmptyCompletion     = errors.New("empty completion")
	ErrSchemaInvalid       = errors.New("schema invalid")
	ErrInternal            = errors.New("internal error")
)

// Severity levels the analyzer is asked to choose from. Assessments are
// persisted verbatim even when the model strays outside this set; the
// constants exist for producers and for bounding metric label values.
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// ValidSeverity reports whether s is one of the known severity levels.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return true
	}
	return false
}

// Job is one unit of analysis work delivered via the queue. The correlation
// fields are lifted from the decoded body; the full payload is retained for
// prompt construction and is never validated here (missing fields flow
// through to the analyzer as-is).
type Job struct {
	ScanID          string
	PackageName     string
	VulnerabilityID string
	Payload         map[string]any
}

// UnmarshalJSON decodes the raw message body once, keeping both the
// correlation fields and the full payload view.
func (j *Job) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	j.Payload = raw
	j.ScanID, _ = raw["scanId"].(string)
	j.PackageName, _ = raw["packageName"].(string)
	j.VulnerabilityID, _ = raw["vulnerabilityId"].(string)
	return nil
}

// MarshalJSON round-trips the payload the job was decoded from.
func (j Job) MarshalJSON() ([]byte, error) {
	if j.Payload == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(j.Payload)
}

// JobRef is the composite correlation key addressing one vulnerability
// inside one scanned package.
type JobRef struct {
	ScanID          string
	PackageName     string
	VulnerabilityID string
}

// Ref returns the correlation key for the job.
func (j Job) Ref() JobRef {
	return JobRef{ScanID: j.ScanID, PackageName: j.PackageName, VulnerabilityID: j.VulnerabilityID}
}

// AnalysisResult is the analyzer's output. Field names are wire-compatible
// with the scan documents the sink updates.
// Invariant: Success is true iff at least one of Description/Severity is
// populated; Error is populated only when an analysis stage failed.
type AnalysisResult struct {
	Success         bool           `json:"success"`
	VulnerabilityID string         `json:"vulnerabilityId"`
	PackageName     string         `json:"packageName"`
	Description     *string        `json:"aiGeneratedDescription"`
	Severity        *string        `json:"aiDeterminedSeverity"`
	Confidence      *int           `json:"aiSeverityConfidence"`
	Factors         map[string]any `json:"aiSeverityFactors"`
	Error           *string        `json:"aiAnalysisError"`
	Timestamp       *time.Time     `json:"aiAnalysisTimestamp"`
}

// SeverityAssessment is the structured reply of the severity call. All three
// fields must be present and non-null for the assessment to be usable.
type SeverityAssessment struct {
	Severity   *string        `json:"severity" validate:"required"`
	Confidence *int           `json:"confidence" validate:"required"`
	Factors    map[string]any `json:"factors" validate:"required"`
}

// QueueStats is a point-in-time snapshot of the consumed queue.
type QueueStats struct {
	Messages  int `json:"message_count"`
	Consumers int `json:"consumer_count"`
}

// ChatCompleter (port): one prompt/response round trip against the remote
// text-generation service. Implementations own retry and error
// classification; callers convert errors to absent results.
type ChatCompleter interface {
	Complete(ctx Context, systemPrompt, userPrompt string, temperature float64) (string, error)
}

// Analyzer (port): turns a job payload into an AnalysisResult, isolating all
// remote-call flakiness. AnalyzeVulnerability never fails across the
// boundary; failures are carried in the result.
type Analyzer interface {
	GenerateDescription(ctx Context, job Job) *string
	AnalyzeSeverity(ctx Context, job Job) *SeverityAssessment
	AnalyzeVulnerability(ctx Context, job Job) AnalysisResult
}

// ResultSink (port): durably attaches an AnalysisResult to the job's
// persisted record. Record reports whether a matching record was found and
// the write completed; storage faults are logged inside the sink and
// reported as false, never raised across the boundary.
type ResultSink interface {
	Record(ctx Context, ref JobRef, res AnalysisResult) bool
	Ping(ctx Context) error
}

// Context is an alias to allow decoupling from std context in domain
// Adapters and usecases should pass context.Context through
type Context = context.Context
