// Package schemacache compiles and caches executable GraphQL schemas. The
// golden model is reflected once through a privileged connection; per-role
// schemas are derived from it by intersecting with the role's privileges.
// Compiled schemas are cached per role with single-flight semantics so a
// burst of first requests compiles once.
package schemacache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"pg-graphql/internal/cache"
	"pg-graphql/internal/convert"
	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/introspection"
	"pg-graphql/internal/planner"
	"pg-graphql/internal/privileges"
	"pg-graphql/internal/resolver"
	"pg-graphql/internal/schemafilter"
	"pg-graphql/internal/subscription"
)

// goldenKey is the cache key for the unrestricted schema.
const goldenKey = ""

// Compiled bundles an executable schema with the model and capabilities it
// was generated from.
type Compiled struct {
	Schema       graphql.Schema
	Model        *introspection.Model
	Capabilities schemafilter.Capabilities
}

// Config wires the service to its data sources.
type Config struct {
	// Privileged is the reflection connection; it must see the full schema
	// and other roles' grants.
	Privileged introspection.Queryer
	// Executor runs the generated resolvers, typically role-scoped.
	Executor   dbexec.QueryExecutor
	SchemaName string
	// RoleBasedSchema derives a restricted schema per role. When false every
	// role is served the golden schema.
	RoleBasedSchema bool
	Changes         subscription.Source
	Limits          *planner.PlanLimits
	DefaultLimit    int
	TTL             time.Duration
	Logger          *slog.Logger
}

// Service produces executable schemas on demand.
type Service struct {
	cfg        Config
	reflector  *introspection.Reflector
	privileges *privileges.Service
	compiled   *cache.Cache[string, *Compiled]
	logger     *slog.Logger
}

// New creates a schema cache service. The model, privilege, and compiled
// schema caches all share the configured TTL.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:        cfg,
		reflector:  introspection.NewReflector(cfg.TTL),
		privileges: privileges.NewService(cfg.Privileged, cfg.SchemaName, cfg.TTL),
		compiled:   cache.New[string, *Compiled](cfg.TTL),
		logger:     logger,
	}
}

// Golden returns the unrestricted schema compiled from the full model.
func (s *Service) Golden(ctx context.Context) (*Compiled, error) {
	return s.compiled.GetOrCompute(goldenKey, func() (*Compiled, error) {
		return s.compile(ctx, goldenKey)
	})
}

// ForRole returns the schema visible to role. With role-based schemas
// disabled, or no role at all, every caller shares the golden schema.
func (s *Service) ForRole(ctx context.Context, role string) (*Compiled, error) {
	if !s.cfg.RoleBasedSchema || role == "" {
		return s.Golden(ctx)
	}
	return s.compiled.GetOrCompute(role, func() (*Compiled, error) {
		return s.compile(ctx, role)
	})
}

// Model returns the cached golden model, reflecting it if needed.
func (s *Service) Model(ctx context.Context) (*introspection.Model, error) {
	return s.reflector.Reflect(ctx, s.cfg.Privileged, s.cfg.SchemaName)
}

// Invalidate drops every cached model, privilege set, and compiled schema.
// The next request re-reflects and recompiles.
func (s *Service) Invalidate() {
	s.reflector.Clear()
	s.privileges.Clear()
	s.compiled.Clear()
}

// InvalidateRole drops the cached privileges and schema for one role.
func (s *Service) InvalidateRole(role string) {
	s.privileges.Invalidate(role)
	s.compiled.Remove(role)
}

// Stats reports compiled schema cache activity.
func (s *Service) Stats() cache.Stats {
	return s.compiled.Stats()
}

func (s *Service) compile(ctx context.Context, role string) (*Compiled, error) {
	tracer := otel.Tracer("pg-graphql/schemacache")
	ctx, span := tracer.Start(ctx, "schemacache.compile")
	span.SetAttributes(attribute.String("db.role", role))
	defer span.End()

	start := time.Now()

	model, err := s.reflector.Reflect(ctx, s.cfg.Privileged, s.cfg.SchemaName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to reflect schema: %w", err)
	}

	var caps schemafilter.Capabilities
	if role != goldenKey {
		privs, err := s.privileges.ForRole(ctx, role)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to read privileges: %w", err)
		}
		model, caps = schemafilter.Filter(model, privs)
	}

	// Each compile gets its own resolver so graphql type instances are never
	// shared across schemas.
	r := resolver.New(resolver.Config{
		Executor:     s.cfg.Executor,
		Model:        model,
		Capabilities: caps,
		Converter:    convert.New(model),
		Changes:      s.cfg.Changes,
		Limits:       s.cfg.Limits,
		DefaultLimit: s.cfg.DefaultLimit,
		Logger:       s.logger,
	})
	schema, err := r.BuildSchema()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to build schema: %w", err)
	}

	s.logger.Info("compiled graphql schema",
		"role", role,
		"tables", len(model.Tables),
		"duration", time.Since(start))

	return &Compiled{Schema: schema, Model: model, Capabilities: caps}, nil
}
