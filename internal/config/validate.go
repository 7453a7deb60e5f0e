package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	if err := validateServerLimits(cfg.Server); err != nil {
		return err
	}

	if err := validateModelConfig(cfg.Model); err != nil {
		return err
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.TextPreview)) {
	case "", "none", "redacted", "full":
	default:
		return fmt.Errorf("logging.text_preview must be none, redacted or full, got %q", cfg.Logging.TextPreview)
	}

	if cfg.UI.CacheEntries < 0 {
		return errors.New("ui.cache_entries must not be negative")
	}

	if err := validateTelemetryConfig(cfg.Telemetry); err != nil {
		return err
	}

	return nil
}

func validateServerLimits(s ServerConfig) error {
	if s.MaxRequestBodyBytes < 0 {
		return errors.New("server.max_request_body_bytes must not be negative")
	}
	if s.MaxTextBytes < 0 {
		return errors.New("server.max_text_bytes must not be negative")
	}
	if s.MaxInFlightRequests < 0 {
		return errors.New("server.max_in_flight_requests must not be negative")
	}
	if s.RateLimitRPS < 0 {
		return errors.New("server.rate_limit_rps must not be negative")
	}
	if s.RateLimitRPS > 0 && s.RateLimitBurst <= 0 {
		return errors.New("server.rate_limit_burst must be positive when rate limiting is enabled")
	}
	return nil
}

func validateModelConfig(m ModelConfig) error {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		return errors.New("model.name must be set")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("model.name %q must be a bare name, not a path", m.Name)
	}
	if m.SeqLen < 8 {
		return fmt.Errorf("model.seq_len must be at least 8, got %d", m.SeqLen)
	}
	if m.PoolSize < 1 {
		return fmt.Errorf("model.pool_size must be at least 1, got %d", m.PoolSize)
	}
	if m.MinScore < 0 || m.MinScore > 1 {
		return fmt.Errorf("model.min_score must be within [0,1], got %v", m.MinScore)
	}
	if m.RequireML && m.AllowRuleFallback {
		return errors.New("model.require_ml and model.allow_rule_fallback are mutually exclusive")
	}
	return nil
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New("telemetry enabled but endpoint is empty")
	}
	if t.Protocol != "" {
		switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
		case "grpc", "http":
		default:
			return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", t.Protocol)
		}
	}
	return nil
}
