package api

import (
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// SetupRouter creates and configures the HTTP router
func SetupRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/api/health", h.HealthCheck).Methods("GET")
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler()).Methods("GET")
	}

	// Dashboards (one ingestion orchestrator each)
	dashboardRouter := r.PathPrefix("/api/dashboards/{dashboardId}").Subrouter()
	dashboardRouter.HandleFunc("", h.GetDashboard).Methods("GET")
	dashboardRouter.HandleFunc("", h.DeleteDashboard).Methods("DELETE")
	dashboardRouter.HandleFunc("/ingest", h.IngestFile).Methods("POST")
	dashboardRouter.HandleFunc("/dismiss", h.DismissDashboard).Methods("POST")

	// Emission mix calculator
	emissionsRouter := r.PathPrefix("/api/emissions").Subrouter()
	emissionsRouter.HandleFunc("/compute", h.ComputeMix).Methods("POST")
	emissionsRouter.HandleFunc("/stream", h.ComputeMixStream).Methods("POST")
	emissionsRouter.HandleFunc("/factors", h.GetFactors).Methods("GET")
	emissionsRouter.HandleFunc("/chart", h.GetBreakdownChart).Methods("GET")
	emissionsRouter.HandleFunc("/presets", h.GetPresets).Methods("GET")
	emissionsRouter.HandleFunc("/presets", h.UpdatePresets).Methods("PUT")

	// Config Management
	r.HandleFunc("/api/config", h.GetConfig).Methods("GET")
	r.HandleFunc("/api/config/emissions", h.UpdateEmissionConfig).Methods("PUT")
	r.HandleFunc("/api/config/retention", h.UpdateRetention).Methods("PUT")

	// Stored ingestion runs
	r.HandleFunc("/api/runs", h.ListRuns).Methods("GET")
	r.HandleFunc("/api/runs/{runId}", h.GetRun).Methods("GET")
	r.HandleFunc("/api/runs/{runId}/chart", h.GetRunChart).Methods("GET")
	r.HandleFunc("/api/runs/{runId}/export", h.ExportRun).Methods("GET")

	// Data management endpoints
	r.HandleFunc("/api/mart/refresh", h.RefreshMart).Methods("POST")
	r.HandleFunc("/api/cleanup", h.CleanupRuns).Methods("POST")

	// Turbines and alerts
	r.HandleFunc("/api/turbines/stats", h.GetTurbineAlertStats).Methods("GET")
	r.HandleFunc("/api/turbines/sample", h.GetSampleRegression).Methods("GET")
	r.HandleFunc("/api/turbines/sample/chart", h.GetSampleRiskChart).Methods("GET")
	r.HandleFunc("/api/turbines/sample/csv", h.GenerateSampleCSV).Methods("GET")
	r.HandleFunc("/api/alerts/notify", h.NotifyAlert).Methods("POST")
	r.HandleFunc("/api/alerts/notifications", h.ListNotifications).Methods("GET")

	return r
}

// CORSMiddleware adds CORS headers
func CORSMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return handlers.CORS(
			handlers.AllowedOrigins([]string{"*"}),
			handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		)(next)
	}
}

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			log.Info().
				Str("method", r.Method).
				Str("uri", r.RequestURI).
				Int("status", wrapped.statusCode).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush implements http.Flusher
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
