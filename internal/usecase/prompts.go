package usecase

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fairyhunter13/ai-vuln-analyzer/internal/domain"
)

// Prompt templates sent as the user message of each analysis call. Payload
// fields are read leniently: a missing field renders its fallback text, it
// never fails the job.

const descriptionPromptTemplate = `You are a security expert explaining vulnerabilities to software developers.

Generate a clear, user-friendly description of this security vulnerability:

Vulnerability ID: %s
Package: %s
Current Version: %s
Severity: %s
%s

Technical Description:
%s

References:
%s

Generate a 2-3 sentence explanation that:
1. Explains WHAT the vulnerability is in simple terms
2. Describes the IMPACT or potential risks
3. Mentions if a fix is available

Keep it concise, avoid technical jargon, and make it actionable for developers.
Do NOT include the vulnerability ID or package name in your response - just the description.

Response:`

const severityPromptTemplate = `You are a security analyst performing vulnerability severity assessment.

Analyze this vulnerability and determine its real-world severity:

Vulnerability Details:
- ID: %s
- Package: %s (%s)
- Current Version: %s
- Latest Version: %s
- Dependency Type: %s
- OSV Severity: %s
%s
%s

Description:
%s

Analyze considering these factors:
1. CVSS Score (30%% weight) - Base severity score
2. Exploitability (25%% weight) - How easy to exploit in real-world scenarios
3. Package Context (20%% weight) - Production vs dev dependency, package popularity
4. Patch Availability (15%% weight) - Is a fix available? How recent?
5. Vulnerability Age (10%% weight) - How long has this been known?

Provide your analysis in this EXACT JSON format:
{
  "severity": "critical|high|medium|low|info",
  "confidence": 85,
  "factors": {
    "cvssScore": %s,
    "exploitability": "easy|moderate|difficult",
    "packageCriticality": "high|medium|low",
    "patchAvailable": true,
    "reasoning": "Brief explanation of severity determination"
  }
}

Respond ONLY with valid JSON, no additional text.

Response:`

// FormatDescriptionPrompt renders the user prompt for the description call.
func FormatDescriptionPrompt(job domain.Job) string {
	osv := mapField(job.Payload, "osvData")
	pkgCtx := mapField(job.Payload, "packageContext")

	fixLine := "Fix: Not yet available"
	if fixedIn := stringField(osv, "fixedIn", ""); fixedIn != "" {
		fixLine = "Fixed In: " + fixedIn
	}

	refsBlock := "None available"
	if refs, ok := osv["references"].([]any); ok && len(refs) > 0 {
		if len(refs) > 3 {
			refs = refs[:3]
		}
		lines := make([]string, 0, len(refs))
		for _, ref := range refs {
			lines = append(lines, "- "+stringify(ref))
		}
		refsBlock = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(descriptionPromptTemplate,
		stringField(job.Payload, "vulnerabilityId", "Unknown"),
		stringField(job.Payload, "packageName", "Unknown"),
		stringField(pkgCtx, "currentVersion", "Unknown"),
		stringField(osv, "severity", "unknown"),
		fixLine,
		stringField(osv, "description", "No description available"),
		refsBlock,
	)
}

// FormatSeverityPrompt renders the user prompt for the severity call,
// including the JSON skeleton the model must fill in.
func FormatSeverityPrompt(job domain.Job) string {
	osv := mapField(job.Payload, "osvData")
	pkgCtx := mapField(job.Payload, "packageContext")

	osvSeverity := any(map[string]any{})
	if v, ok := osv["severity"]; ok && v != nil {
		osvSeverity = v
	}

	cvssScore, hasCVSS := extractCVSSScore(osvSeverity)
	cvssLine := ""
	if hasCVSS {
		cvssLine = "- CVSS Score: " + cvssScore
	}

	fixLine := "- Fix: Not yet available"
	if fixedIn := stringField(osv, "fixedIn", ""); fixedIn != "" {
		fixLine = "- Fixed In: " + fixedIn
	}

	skeletonScore := "0"
	if hasCVSS {
		skeletonScore = cvssScore
	}

	return fmt.Sprintf(severityPromptTemplate,
		stringField(job.Payload, "vulnerabilityId", "Unknown"),
		stringField(job.Payload, "packageName", "Unknown"),
		stringField(pkgCtx, "ecosystem", "npm"),
		stringField(pkgCtx, "currentVersion", "Unknown"),
		stringField(pkgCtx, "latestVersion", "Unknown"),
		stringField(pkgCtx, "dependencyType", "dependencies"),
		stringify(osvSeverity),
		cvssLine,
		fixLine,
		stringField(osv, "description", "No description available"),
		skeletonScore,
	)
}

// extractCVSSScore pulls the score of the first osvData.severity entry that
// carries one. OSV publishes severity as a list of typed score objects.
func extractCVSSScore(osvSeverity any) (string, bool) {
	list, ok := osvSeverity.([]any)
	if !ok {
		return "", false
	}
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		score, ok := entry["score"]
		if !ok {
			continue
		}
		s := stringify(score)
		if s == "" || s == "0" {
			return "", false
		}
		return s, true
	}
	return "", false
}

func mapField(m map[string]any, key string) map[string]any {
	if m == nil {
		return nil
	}
	sub, _ := m[key].(map[string]any)
	return sub
}

func stringField(m map[string]any, key, fallback string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return fallback
	}
	if s := stringify(v); s != "" {
		return s
	}
	return fallback
}

// stringify renders a payload value for prompt text. Strings pass through;
// structured values render as compact JSON so the model sees them intact.
func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
