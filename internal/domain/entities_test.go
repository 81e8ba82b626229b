package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSeverityConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant string
		expected string
	}{
		{"SeverityCritical", SeverityCritical, "critical"},
		{"SeverityHigh", SeverityHigh, "high"},
		{"SeverityMedium", SeverityMedium, "medium"},
		{"SeverityLow", SeverityLow, "low"},
		{"SeverityInfo", SeverityInfo, "info"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.constant != tt.expected {
				t.Errorf("Expected %s to be %q, got %q", tt.name, tt.expected, tt.constant)
			}
		})
	}
}

func TestValidSeverity(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		valid bool
	}{
		{"critical", "critical", true},
		{"high", "high", true},
		{"medium", "medium", true},
		{"low", "low", true},
		{"info", "info", true},
		{"uppercase is not normalized", "HIGH", false},
		{"unknown level", "catastrophic", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidSeverity(tt.in); got != tt.valid {
				t.Errorf("ValidSeverity(%q) = %v, want %v", tt.in, got, tt.valid)
			}
		})
	}
}

func TestJobUnmarshalJSON(t *testing.T) {
	body := []byte(`{
		"scanId": "scan-123",
		"packageName": "left-pad",
		"vulnerabilityId": "CVE-9999",
		"osvData": {"description": "buffer overflow", "severity": []}
	}`)

	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ScanID != "scan-123" {
		t.Errorf("Expected ScanID to be 'scan-123', got %q", job.ScanID)
	}
	if job.PackageName != "left-pad" {
		t.Errorf("Expected PackageName to be 'left-pad', got %q", job.PackageName)
	}
	if job.VulnerabilityID != "CVE-9999" {
		t.Errorf("Expected VulnerabilityID to be 'CVE-9999', got %q", job.VulnerabilityID)
	}
	if job.Payload == nil {
		t.Fatal("Expected Payload to retain the decoded body")
	}
	if _, ok := job.Payload["osvData"]; !ok {
		t.Error("Expected Payload to keep nested fields")
	}
}

func TestJobUnmarshalJSONMissingFields(t *testing.T) {
	var job Job
	if err := json.Unmarshal([]byte(`{"somethingElse": true}`), &job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.ScanID != "" || job.PackageName != "" || job.VulnerabilityID != "" {
		t.Errorf("Expected missing correlation fields to stay empty, got %+v", job)
	}
}

func TestJobUnmarshalJSONRejectsNonObjects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"truncated object", `{"scanId": "s1"`},
		{"array", `[1, 2, 3]`},
		{"bare string", `"not a job"`},
		{"not json at all", `this is not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var job Job
			if err := json.Unmarshal([]byte(tt.body), &job); err == nil {
				t.Errorf("Expected decode error for %q", tt.body)
			}
		})
	}
}

func TestJobUnmarshalJSONClassifiesShapeErrors(t *testing.T) {
	// Valid JSON of the wrong shape reaches UnmarshalJSON and is classified;
	// outright syntax errors are rejected by encoding/json before that.
	var job Job
	err := json.Unmarshal([]byte(`[1, 2, 3]`), &job)
	if !errors.Is(err, ErrMalformedMessage) {
		t.Errorf("Expected error to wrap ErrMalformedMessage, got %v", err)
	}
}

func TestJobRef(t *testing.T) {
	job := Job{ScanID: "s1", PackageName: "lodash", VulnerabilityID: "GHSA-1"}
	ref := job.Ref()
	if ref.ScanID != "s1" || ref.PackageName != "lodash" || ref.VulnerabilityID != "GHSA-1" {
		t.Errorf("Ref() = %+v, want the job's correlation fields", ref)
	}
}

func TestAnalysisResultJSONShape(t *testing.T) {
	res := AnalysisResult{
		Success:         false,
		VulnerabilityID: "CVE-1",
		PackageName:     "express",
	}
	data, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, key := range []string{
		"success", "vulnerabilityId", "packageName",
		"aiGeneratedDescription", "aiDeterminedSeverity", "aiSeverityConfidence",
		"aiSeverityFactors", "aiAnalysisError", "aiAnalysisTimestamp",
	} {
		if _, ok := m[key]; !ok {
			t.Errorf("Expected marshaled result to carry %q", key)
		}
	}
	if m["aiGeneratedDescription"] != nil {
		t.Error("Expected absent description to marshal as null")
	}
}
