package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
)

// KnownFeatures are the engine features the daemon accepts.
var KnownFeatures = []string{"stackwalk", "threads", "leaf", "js", "memory"}

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MultiValidationError represents multiple validation errors.
type MultiValidationError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *MultiValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}

	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "validation failed with %d errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&builder, "  %d. %s\n", i+1, err.Error())
	}
	return builder.String()
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Profiler.BufferEntries <= 0 {
		add("profiler.buffer_entries", "must be positive, got %d", c.Profiler.BufferEntries)
	}
	if c.Profiler.SamplingIntervalMs <= 0 {
		add("profiler.sampling_interval_ms", "must be positive, got %g", c.Profiler.SamplingIntervalMs)
	}
	for _, f := range c.Profiler.Features {
		if !slices.Contains(KnownFeatures, f) {
			add("profiler.features", "unknown feature %q", f)
		}
	}

	if c.Session.AutoCaptureDelay < 0 {
		add("session.auto_capture_delay", "must not be negative")
	}
	if c.Session.RestartDelay < 0 {
		add("session.restart_delay", "must not be negative")
	}

	if err := validateHTTPURL(c.Viewer.ReportURL); err != nil {
		add("viewer.report_url", "%v", err)
	}
	if _, _, err := net.SplitHostPort(c.Viewer.ListenAddr); err != nil {
		add("viewer.listen_addr", "invalid address %q: %v", c.Viewer.ListenAddr, err)
	}
	if c.Viewer.OpenTimeout < 0 {
		add("viewer.open_timeout", "must not be negative")
	}

	if c.Symbols.ServerURL != "" {
		if err := validateHTTPURL(c.Symbols.ServerURL); err != nil {
			add("symbols.server_url", "%v", err)
		}
	}
	if c.Symbols.CacheEntries == 0 {
		add("symbols.cache_entries", "must be positive")
	}
	if c.Symbols.PrimeConcurrency <= 0 {
		add("symbols.prime_concurrency", "must be positive, got %d", c.Symbols.PrimeConcurrency)
	}
	if c.Symbols.FetchRetries <= 0 {
		add("symbols.fetch_retries", "must be positive, got %d", c.Symbols.FetchRetries)
	}

	if c.History.Enabled && c.History.DatabasePath == "" {
		add("history.database_path", "required when history is enabled")
	}

	if len(errs) > 0 {
		return &MultiValidationError{Errors: errs}
	}
	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}
	return nil
}
