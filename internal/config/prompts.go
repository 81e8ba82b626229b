package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default system prompts for the two analysis calls.
const (
	DefaultDescriptionSystemPrompt = "You are a cybersecurity expert who excels at explaining technical vulnerabilities in clear, accessible language for software developers. Your explanations are concise, accurate, and actionable."

	DefaultSeveritySystemPrompt = "You are a senior security analyst with expertise in vulnerability assessment and risk analysis. You provide objective, data-driven severity ratings based on real-world exploitability and impact."
)

// Prompts carries the system prompts used by the analyzer.
type Prompts struct {
	DescriptionSystem string `yaml:"description_system"`
	SeveritySystem    string `yaml:"severity_system"`
}

// DefaultPrompts returns the built-in system prompts.
func DefaultPrompts() Prompts {
	return Prompts{
		DescriptionSystem: DefaultDescriptionSystemPrompt,
		SeveritySystem:    DefaultSeveritySystemPrompt,
	}
}

// LoadPrompts returns the default prompts, overridden by any non-empty keys
// in the YAML file at path. An empty path keeps the defaults; a missing or
// unreadable file is an error so a misconfigured override never degrades
// silently to defaults.
func LoadPrompts(path string) (Prompts, error) {
	prompts := DefaultPrompts()
	if path == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Prompts{}, fmt.Errorf("op=config.LoadPrompts: read %s: %w", path, err)
	}

	var overrides Prompts
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return Prompts{}, fmt.Errorf("op=config.LoadPrompts: parse %s: %w", path, err)
	}

	if overrides.DescriptionSystem != "" {
		prompts.DescriptionSystem = overrides.DescriptionSystem
	}
	if overrides.SeveritySystem != "" {
		prompts.SeveritySystem = overrides.SeveritySystem
	}
	return prompts, nil
}
