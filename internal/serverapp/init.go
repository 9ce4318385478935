package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"pg-graphql/internal/schemacache"
)

// Init initializes all runtime resources. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	tracerProvider, err := initTracing(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	metrics := initMetrics(a.cfg, a.logger)

	a.logger.Info("connecting to PostgreSQL",
		slog.String("host", a.cfg.Database.Host),
		slog.Int("port", a.cfg.Database.Port),
		slog.String("database", a.cfg.Database.Database),
		slog.String("schema", a.cfg.AllowedSchema),
	)

	db, err := connectDB(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	cleanup.push("database", func(context.Context) error {
		return db.Close()
	})

	executor := buildQueryExecutor(a.cfg, db)

	changes, stopChanges := startChangeFeed(a.cfg, a.logger)
	cleanup.push("change feed", stopChanges)

	schemas := schemacache.New(schemacache.Config{
		Privileged:      db,
		Executor:        executor,
		SchemaName:      a.cfg.AllowedSchema,
		RoleBasedSchema: a.cfg.Security.RoleBasedSchema,
		Changes:         changes,
		Limits:          buildPlanLimits(a.cfg),
		DefaultLimit:    a.cfg.GraphQL.DefaultListLimit,
		TTL:             a.cfg.Cache.SchemaTTL(),
		Logger:          a.logger.Logger,
	})

	// Compile the golden schema up front so a broken catalog fails the boot
	// instead of the first request.
	if _, err := schemas.Golden(ctx); err != nil {
		return fmt.Errorf("failed to compile initial schema: %w", err)
	}

	graphqlHandler := buildGraphQLHandler(a.cfg, a.logger, schemas, metrics)
	mux := buildRouter(a.cfg, a.logger, db, schemas, graphqlHandler, metrics)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := buildServer(a.cfg, mux, serverAddr)
	cleanup.push("HTTP server", func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})

	a.stateMu.Lock()
	a.tracerProvider = tracerProvider
	a.metrics = metrics
	a.db = db
	a.executor = executor
	a.changes = changes
	a.schemas = schemas
	a.graphqlHandler = graphqlHandler
	a.mux = mux
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
