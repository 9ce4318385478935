package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"pg-graphql/internal/batch"
	"pg-graphql/internal/gqlrequest"
	"pg-graphql/internal/observability"
	"pg-graphql/internal/planner"
)

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Logging logs one line per request with method, path, role, status, and
// duration.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(recorder, r)

			role, _ := RoleFromContext(r.Context())
			logger.Info("http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("role", role),
				slog.Int("status", recorder.status),
				slog.Duration("duration", time.Since(start)))
		})
	}
}

// BatchLoader gives every request its own relationship batch cache.
func BatchLoader() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(batch.NewLoaderContext(r.Context())))
		})
	}
}

// QueryBudget analyzes the GraphQL payload, rejects requests exceeding the
// depth/complexity budget before execution, and stores the analysis in the
// context for downstream handlers. Websocket upgrades pass through; the
// subscription handler enforces the budget per operation.
func QueryBudget(limits *planner.PlanLimits, metrics *observability.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Upgrade") != "" {
				next.ServeHTTP(w, r)
				return
			}

			analysis := gqlrequest.AnalyzeRequest(r)
			if metrics != nil {
				metrics.RecordQueryBudget(analysis.SelectionDepth, analysis.Complexity)
			}

			if err := analysis.Validate(limits); err != nil {
				logger.Warn("rejected graphql request",
					slog.String("operation", analysis.OperationName),
					slog.Int("depth", analysis.SelectionDepth),
					slog.Int("complexity", analysis.Complexity),
					slog.String("error", err.Error()))
				writeGraphQLError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(gqlrequest.WithAnalysis(r.Context(), analysis)))
		})
	}
}

// Metrics records request counts, durations, and in-flight gauge per request.
func Metrics(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			metrics.IncActiveRequests()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(recorder, r.WithContext(observability.ContextWithMetrics(r.Context(), metrics)))

			metrics.DecActiveRequests()
			operationType := "unknown"
			if analysis := gqlrequest.AnalysisFromContext(r.Context()); analysis != nil && analysis.OperationType != "" {
				operationType = analysis.OperationType
			}
			metrics.RecordRequest(time.Since(start), recorder.status >= http.StatusBadRequest, operationType)
		})
	}
}

// Chain applies middlewares outermost first.
func Chain(handler http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return handler
}

// writeGraphQLError writes a budget rejection in the GraphQL error envelope
// with 200, matching how execution errors surface.
func writeGraphQLError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"errors": []map[string]interface{}{
			{"message": err.Error()},
		},
	})
}
