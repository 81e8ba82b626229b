// Package ai provides shared helpers for handling raw model output.
package ai

import (
	"encoding/json"
	"strings"
)

// ResponseCleaner normalizes chat-completion output before JSON decoding.
// Models frequently wrap JSON replies in markdown code fences or surround
// them with prose; the cleaner strips both. It never attempts to repair the
// JSON itself, so a structurally broken reply still fails the decode.
type ResponseCleaner struct{}

// NewResponseCleaner creates a new response cleaner.
func NewResponseCleaner() *ResponseCleaner {
	return &ResponseCleaner{}
}

// CleanJSONResponse strips markdown code fences and extracts the outermost
// JSON object from mixed content. The result is not guaranteed to be valid
// JSON; callers decode strictly and treat failure as an absent result.
func (rc *ResponseCleaner) CleanJSONResponse(response string) string {
	response = rc.removeMarkdownFences(response)
	return rc.extractJSONObject(response)
}

func (rc *ResponseCleaner) removeMarkdownFences(response string) string {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	return strings.TrimSpace(response)
}

// extractJSONObject returns the substring spanning the first balanced
// top-level object. Anything before or after the braces is prose and is
// dropped; with no opening brace the input passes through unchanged.
func (rc *ResponseCleaner) extractJSONObject(response string) string {
	start := strings.Index(response, "{")
	if start == -1 {
		return response
	}
	depth := 0
	for i := start; i < len(response); i++ {
		switch response[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return response[start : i+1]
			}
		}
	}
	return response
}

// IsValidJSON reports whether s parses as JSON.
func (rc *ResponseCleaner) IsValidJSON(s string) bool {
	var v any
	return json.Unmarshal([]byte(s), &v) == nil
}
