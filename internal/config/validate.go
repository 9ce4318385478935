package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	if c.AllowedSchema == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "allowed_schema",
			Message: "allowed_schema is required",
			Hint:    "set the database schema to surface, e.g. public",
		})
	}
	if c.DatabaseType != "postgres" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database_type",
			Message: fmt.Sprintf("unsupported database type %q", c.DatabaseType),
			Hint:    "only postgres is supported",
		})
	}

	c.Database.validate(result)
	c.Cache.validate(result)
	c.GraphQL.validate(result)
	c.Server.validate(result)
	c.Observability.validate(result)

	if c.Security.RoleValidation && len(c.Security.AllowedRoles) == 0 {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "security.allowed_roles",
			Message: "role validation is enabled but the allowlist is empty",
			Hint:    "every role-carrying request will be rejected",
		})
	}

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if d.URL != "" {
		return
	}
	if d.Port < 1 || d.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port),
		})
	}
	validSSLModes := map[string]bool{"": true, "disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSLModes[d.SSLMode] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.ssl_mode",
			Message: fmt.Sprintf("invalid SSL mode %q", d.SSLMode),
			Hint:    "valid values are: disable, require, verify-ca, verify-full",
		})
	}
	if d.MaxIdleConns > d.MaxOpenConns {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.max_idle_conns",
			Message: "max_idle_conns exceeds max_open_conns",
			Hint:    "the pool caps idle connections at max_open_conns",
		})
	}
}

func (c *CacheConfig) validate(result *ValidationResult) {
	if c.SchemaTTLMinutes < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "cache.schema_ttl_minutes",
			Message: fmt.Sprintf("TTL %d must not be negative", c.SchemaTTLMinutes),
			Hint:    "use 0 to cache without expiry",
		})
	}
}

func (g *GraphQLConfig) validate(result *ValidationResult) {
	if g.Security.MaxQueryDepth < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "graphql.security.max_query_depth",
			Message: "max_query_depth must not be negative",
		})
	}
	if g.Security.MaxQueryComplexity < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "graphql.security.max_query_complexity",
			Message: "max_query_complexity must not be negative",
		})
	}
	if g.DefaultListLimit < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "graphql.default_list_limit",
			Message: fmt.Sprintf("default_list_limit %d must be at least 1", g.DefaultListLimit),
		})
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port),
		})
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("sample ratio %v must be between 0 and 1", o.TraceSampleRatio),
		})
	}
	validLevels := map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[o.Logging.Level] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("invalid log level %q", o.Logging.Level),
			Hint:    "valid values are: debug, info, warn, error",
		})
	}
	validFormats := map[string]bool{"": true, "json": true, "text": true}
	if !validFormats[o.Logging.Format] {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("invalid log format %q", o.Logging.Format),
			Hint:    "valid values are: json, text",
		})
	}
	if o.TracingEnabled && o.OTLPEndpoint == "" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "observability.otlp_endpoint",
			Message: "tracing is enabled but no OTLP endpoint is configured",
			Hint:    "spans will not be exported",
		})
	}
}
