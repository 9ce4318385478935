// Package serverapp assembles the HTTP server from its parts: database
// connection, schema cache, change feed, handlers, and middleware. It owns
// their lifecycle from Init through Shutdown.
package serverapp

import (
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"pg-graphql/internal/config"
	"pg-graphql/internal/dbexec"
	"pg-graphql/internal/logging"
	"pg-graphql/internal/observability"
	"pg-graphql/internal/schemacache"
	"pg-graphql/internal/subscription"
)

// App owns runtime resources for the pg-graphql server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	tracerProvider *observability.TracerProvider
	metrics        *observability.Metrics

	db       *sql.DB
	executor dbexec.QueryExecutor
	changes  *subscription.ListenSource
	schemas  *schemacache.Service

	graphqlHandler http.Handler
	mux            *http.ServeMux

	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &App{cfg: cfg, logger: logger}, nil
}

// Schemas exposes the schema cache service, for admin handlers and tests.
func (a *App) Schemas() *schemacache.Service {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.schemas
}
