package config

import (
	"fmt"
	"net"
	"net/url"
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

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
// Credentials are not required here; a missing GitHub token is a runtime
// condition reported to the user, not a config error.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateAgent(cfg, ve)
	validateLLM(cfg, ve)
	validateGitHub(cfg, ve)
	validateStore(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateGateway(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateAgent(cfg *Config, ve *ValidationError) {
	if cfg.Agent.TurnTimeout < 0 {
		ve.Add("agent.turn_timeout must be >= 0")
	}
	if cfg.Agent.MaxCorpusBytes < 0 {
		ve.Add("agent.max_corpus_bytes must be >= 0")
	}
}

func validateLLM(cfg *Config, ve *ValidationError) {
	if cfg.LLM.Provider != "gemini" {
		ve.Add("llm.provider %q is not supported (want \"gemini\")", cfg.LLM.Provider)
	}
	if cfg.LLM.Model == "" {
		ve.Add("llm.model must not be empty")
	}
	if cfg.LLM.BaseURL != "" {
		if _, err := url.ParseRequestURI(cfg.LLM.BaseURL); err != nil {
			ve.Add("llm.base_url %q is not a valid URL", cfg.LLM.BaseURL)
		}
	}
	if cb := cfg.LLM.CircuitBreaker; cb.Enabled {
		if cb.MaxFailures == 0 {
			ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if cb.Timeout <= 0 {
			ve.Add("llm.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
}

func validateGitHub(cfg *Config, ve *ValidationError) {
	gh := cfg.GitHub
	if gh.RequestsPerSecond <= 0 {
		ve.Add("github.requests_per_second must be > 0")
	}
	if gh.Burst <= 0 {
		ve.Add("github.burst must be > 0")
	}
	if gh.PerPage <= 0 || gh.PerPage > 100 {
		ve.Add("github.per_page must be between 1 and 100")
	}
	if gh.ListCacheTTL < 0 {
		ve.Add("github.list_cache_ttl must be >= 0")
	}
	if gh.BaseURL != "" && !strings.HasSuffix(gh.BaseURL, "/") {
		ve.Add("github.base_url %q must end with a slash", gh.BaseURL)
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	switch cfg.Store.Driver {
	case "memory":
	case "sqlite":
		if cfg.Store.Path == "" {
			ve.Add("store.path is required for the sqlite driver")
		}
	default:
		ve.Add("store.driver %q is not supported (want \"sqlite\" or \"memory\")", cfg.Store.Driver)
	}
}

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want \"text\" or \"json\")", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is invalid (want \"noop\" or \"stdout\")", cfg.Tracer.Exporter)
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	if cfg.Gateway.Addr == "" {
		ve.Add("gateway.addr is required when gateway is enabled")
	} else if _, _, err := net.SplitHostPort(cfg.Gateway.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", cfg.Gateway.Addr)
	}
	if len(cfg.Gateway.Auth.Tokens) == 0 {
		ve.Add("gateway.auth.tokens must not be empty when gateway is enabled")
	}
	seen := make(map[string]bool)
	for i, tok := range cfg.Gateway.Auth.Tokens {
		if tok.Token == "" {
			ve.Add("gateway.auth.tokens[%d].token must not be empty", i)
		}
		if tok.UserID == "" {
			ve.Add("gateway.auth.tokens[%d].user_id must not be empty", i)
		}
		if seen[tok.Token] && tok.Token != "" {
			ve.Add("gateway.auth.tokens[%d] duplicates an earlier token", i)
		}
		seen[tok.Token] = true
	}
	if cfg.Gateway.RateLimit.RequestsPerSecond <= 0 {
		ve.Add("gateway.rate_limit.requests_per_second must be > 0")
	}
	if cfg.Gateway.RateLimit.Burst <= 0 {
		ve.Add("gateway.rate_limit.burst must be > 0")
	}
}
