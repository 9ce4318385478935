package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
	_ "github.com/jackc/pgx/v5/stdlib"

	"pg-graphql/internal/config"
	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/logging"
	"pg-graphql/internal/middleware"
	"pg-graphql/internal/observability"
	"pg-graphql/internal/planner"
	"pg-graphql/internal/schemacache"
	"pg-graphql/internal/subscription"
)

const (
	dbPingTimeout      = 10 * time.Second
	healthCheckTimeout = 5 * time.Second
)

func initTracing(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}
	provider, err := observability.InitTracerProvider(ctx, observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPEndpoint:     cfg.Observability.OTLPEndpoint,
		OTLPInsecure:     cfg.Observability.OTLPInsecure,
		OTLPTimeout:      cfg.Observability.OTLPTimeout,
	})
	if err != nil {
		return nil, err
	}
	if provider != nil {
		logger.Info("tracing enabled", slog.String("endpoint", cfg.Observability.OTLPEndpoint))
	}
	return provider, nil
}

func initMetrics(cfg *config.Config, logger *logging.Logger) *observability.Metrics {
	if !cfg.Observability.MetricsEnabled {
		return nil
	}
	logger.Info("metrics enabled", slog.String("path", "/metrics"))
	return observability.NewMetrics()
}

func connectDB(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		slog.Int("max_open_conns", cfg.Database.MaxOpenConns),
		slog.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)
	return db, nil
}

// buildQueryExecutor wires resolver execution through SET ROLE so the
// database enforces the request role's privileges and row-level security.
func buildQueryExecutor(cfg *config.Config, db *sql.DB) dbexec.QueryExecutor {
	return dbexec.NewRoleExecutor(dbexec.RoleExecutorConfig{
		DB:           db,
		SchemaName:   cfg.AllowedSchema,
		RoleFromCtx:  middleware.RoleFromContext,
		AllowedRoles: cfg.Security.AllowedRoles,
		ValidateRole: cfg.Security.RoleValidation,
	})
}

// startChangeFeed starts the LISTEN/NOTIFY dispatcher on its own connection.
// The returned stop function cancels the listener and waits for it to drain.
func startChangeFeed(cfg *config.Config, logger *logging.Logger) (*subscription.ListenSource, func(context.Context) error) {
	source := subscription.NewListenSource(cfg.Database.DSN(), logger.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = source.Run(ctx)
	}()

	stop := func(shutdownCtx context.Context) error {
		cancel()
		select {
		case <-done:
			return nil
		case <-shutdownCtx.Done():
			return shutdownCtx.Err()
		}
	}
	return source, stop
}

func buildPlanLimits(cfg *config.Config) *planner.PlanLimits {
	return &planner.PlanLimits{
		MaxDepth:      cfg.GraphQL.Security.MaxQueryDepth,
		MaxComplexity: cfg.GraphQL.Security.MaxQueryComplexity,
	}
}

// buildGraphQLHandler serves /graphql. Websocket upgrades go to the
// subscription handler; everything else resolves the role's compiled schema
// and executes through graphql-go's HTTP handler.
func buildGraphQLHandler(cfg *config.Config, logger *logging.Logger, schemas *schemacache.Service, metrics *observability.Metrics) http.Handler {
	limits := buildPlanLimits(cfg)

	wsHandler := subscription.NewWSHandler(func(ctx context.Context) (graphql.Schema, error) {
		role, _ := middleware.RoleFromContext(ctx)
		compiled, err := schemas.ForRole(ctx, role)
		if err != nil {
			return graphql.Schema{}, err
		}
		return compiled.Schema, nil
	}, limits, logger.Logger)

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		role, _ := middleware.RoleFromContext(r.Context())
		if !roleAllowed(cfg, role) {
			logger.Warn("rejected request for disallowed role", slog.String("role", role))
			http.Error(w, "role not allowed", http.StatusForbidden)
			return
		}

		if subscription.IsWebSocketUpgrade(r) {
			wsHandler.ServeHTTP(w, r)
			return
		}

		compiled, err := schemas.ForRole(r.Context(), role)
		if err != nil {
			logger.Error("failed to resolve schema",
				slog.String("role", role),
				slog.String("error", err.Error()))
			http.Error(w, "schema unavailable", http.StatusServiceUnavailable)
			return
		}

		h := handler.New(&handler.Config{
			Schema:   &compiled.Schema,
			GraphiQL: cfg.GraphQL.GraphiQLEnabled,
		})
		h.ContextHandler(r.Context(), w, r)
	})

	// QueryBudget must wrap outside Metrics so the recorded operation type
	// comes from the budget analysis in the request context.
	return middleware.Chain(inner,
		middleware.Logging(logger.Logger),
		middleware.Role(cfg.Security.RoleHeader),
		middleware.QueryBudget(limits, metrics, logger.Logger),
		middleware.Metrics(metrics),
		middleware.BatchLoader(),
	)
}

func roleAllowed(cfg *config.Config, role string) bool {
	if role == "" || !cfg.Security.RoleValidation {
		return true
	}
	for _, allowed := range cfg.Security.AllowedRoles {
		if allowed == role {
			return true
		}
	}
	return false
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, schemas *schemacache.Service, graphqlHandler http.Handler, metrics *observability.Metrics) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/graphql", graphqlHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/graphql", http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})

	mux.HandleFunc("/health", healthHandler(db))
	mux.HandleFunc("/admin/reload-schema", schemaReloadHandler(schemas, logger))

	if metrics != nil {
		mux.Handle("/metrics", metrics.Handler())
	}

	return mux
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server, serverAddr string) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("address", serverAddr),
			slog.String("graphql_endpoint", "/graphql"),
			slog.String("health_endpoint", "/health"),
			slog.Bool("role_based_schema", cfg.Security.RoleBasedSchema),
			slog.String("log_level", cfg.Observability.Logging.Level),
		)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

// healthHandler checks database connectivity with a short timeout.
func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			logging.FromContext(r.Context()).Error("health check failed",
				slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","database":"failed"}`)
			return
		}

		_, _ = fmt.Fprint(w, `{"status":"healthy","database":"ok"}`)
	}
}

// schemaReloadHandler drops every cached model, privilege set, and compiled
// schema. The next request re-reflects the catalog.
func schemaReloadHandler(schemas *schemacache.Service, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		schemas.Invalidate()
		logger.Info("schema cache invalidated", slog.String("trigger", "admin"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"status":"reloaded"}`)
	}
}
