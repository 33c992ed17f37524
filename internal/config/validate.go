package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a
// *ValidationError listing every problem found.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLLM(cfg, ve)
	validateAgent(cfg, ve)
	validateLog(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// APITypes lists the supported values of api_type. Empty means openai.
var APITypes = []string{"openai", "azure", "ollama"}

func validateLLM(cfg *Config, ve *ValidationError) {
	if _, ok := cfg.LLM[DefaultProfile]; !ok {
		ve.Add("llm: %q profile is required", DefaultProfile)
	}
	for _, name := range cfg.ProfileNames() {
		if err := ValidateLLM(cfg.LLM[name]); err != nil {
			ve.Add("llm.%s: %v", name, err)
		}
	}
}

// ValidateLLM checks a single profile.
func ValidateLLM(c LLMConfig) error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("model is required")
	}
	if c.APIType != "" && !slices.Contains(APITypes, c.APIType) {
		return fmt.Errorf("unknown api_type %q (want one of %s)", c.APIType, strings.Join(APITypes, ", "))
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("base_url %q is not an absolute URL", c.BaseURL)
		}
	}
	if c.APIType == "azure" && (c.BaseURL == "" || c.APIVersion == "") {
		return fmt.Errorf("azure requires base_url and api_version")
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be >= 0")
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must be >= 0")
	}
	return nil
}

func validateAgent(cfg *Config, ve *ValidationError) {
	if cfg.Agent.MaxSteps <= 0 {
		ve.Add("agent.max_steps must be > 0")
	}
	if cfg.Agent.DuplicateThreshold < 0 {
		ve.Add("agent.duplicate_threshold must be >= 0")
	}
	if c := cfg.Agent.Compaction; c.TurnThreshold < 0 || c.KeepRecent < 0 {
		ve.Add("agent.compaction values must be >= 0")
	} else if c.TurnThreshold > 0 && c.KeepRecent >= c.TurnThreshold {
		ve.Add("agent.compaction.keep_recent must be < turn_threshold")
	}
	if cfg.Tools.Shell.Timeout < 0 {
		ve.Add("tools.shell.timeout must be >= 0")
	}
}

func validateLog(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Log.Format) {
	case "", "json", "text":
	default:
		ve.Add("log.format %q must be json or text", cfg.Log.Format)
	}
}
