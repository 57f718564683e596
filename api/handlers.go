package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"turbinelens/charting"
	"turbinelens/config"
	"turbinelens/database"
	"turbinelens/emissions"
	"turbinelens/etl"
	"turbinelens/jobs"
	"turbinelens/mart"
	"turbinelens/metrics"
	"turbinelens/notify"
)

// Dependencies wires a Handler
type Dependencies struct {
	DB         *database.DB
	Repo       *database.Repository
	Config     *config.Config
	Mart       *mart.Builder
	Dashboards *etl.Registry
	Notifier   *notify.Service
	Metrics    *metrics.Registry
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	db          *database.DB
	repo        *database.Repository
	cfg         *config.Config
	martBuilder *mart.Builder
	dashboards  *etl.Registry
	notifier    *notify.Service
	metrics     *metrics.Registry
	charts      *charting.Generator
	now         func() time.Time
}

// NewHandler creates a new handler instance
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		db:          deps.DB,
		repo:        deps.Repo,
		cfg:         deps.Config,
		martBuilder: deps.Mart,
		dashboards:  deps.Dashboards,
		notifier:    deps.Notifier,
		metrics:     deps.Metrics,
		charts:      charting.NewGenerator(),
		now:         time.Now,
	}
}

// HealthCheck returns API health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]int64)

	// Check Analytics DB (DuckDB)
	if err := h.db.Analytics.Ping(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "analytics database health check failed")
		return
	}

	// Check App DB (SQLite)
	if err := h.db.App.Ping(); err != nil {
		respondError(w, http.StatusServiceUnavailable, "app database health check failed")
		return
	}

	// Get table counts
	tables := []struct {
		name string
		db   *sql.DB
	}{
		{"turbine_records", h.db.Analytics},
		{"alerts", h.db.Analytics},
		{"turbine_alert_stats", h.db.Analytics},
		{"ingestion_runs", h.db.App},
		{"analysis_cache", h.db.App},
		{"notifications", h.db.App},
	}

	for _, t := range tables {
		var count int64
		if err := t.db.QueryRow("SELECT COUNT(*) FROM " + t.name).Scan(&count); err != nil {
			// Table might not exist yet
			count = 0
		}
		stats[t.name] = count
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"stats":      stats,
		"dashboards": h.dashboards.IDs(),
	})
}

// GetConfig returns the current configuration
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"emissions":     h.cfg.Emissions,
		"provider":      h.cfg.Provider,
		"ingestion":     h.cfg.Ingestion,
		"notifications": h.cfg.Notifications,
		"scheduler":     h.cfg.Scheduler,
		"retention":     h.cfg.Retention,
	})
}

// EmissionConfigRequest represents the body for emission default updates
type EmissionConfigRequest struct {
	Mix                  emissions.Mix `json:"mix"`
	AnnualConsumptionMWh float64       `json:"annual_consumption_mwh"`
	CarbonPrice          float64       `json:"carbon_price"`
}

// UpdateEmissionConfig updates the calculator defaults
func (h *Handler) UpdateEmissionConfig(w http.ResponseWriter, r *http.Request) {
	var req EmissionConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Mix.Total() == 0 {
		respondError(w, http.StatusBadRequest, "mix is required")
		return
	}
	if req.AnnualConsumptionMWh < 0 || req.CarbonPrice < 0 {
		respondError(w, http.StatusBadRequest, "annual_consumption_mwh and carbon_price must not be negative")
		return
	}

	if err := h.cfg.UpdateEmissionDefaults(req.Mix, req.AnnualConsumptionMWh, req.CarbonPrice); err != nil {
		log.Error().Err(err).Msg("failed to save emission defaults")
		respondError(w, http.StatusInternalServerError, "failed to save emission defaults")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"emissions": h.cfg.Emissions,
	})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode response")
		status = http.StatusInternalServerError
		body = []byte(`{"error":"failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// statusFor maps ingestion errors to HTTP status codes
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	if errors.Is(err, jobs.ErrQueueFull) {
		return http.StatusServiceUnavailable
	}
	switch etl.Kind(err) {
	case "unsupported_format":
		return http.StatusUnsupportedMediaType
	case "validation":
		return http.StatusUnprocessableEntity
	case "io":
		return http.StatusBadRequest
	case "busy", "closed":
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondIngestError sends an error response carrying the error kind
func respondIngestError(w http.ResponseWriter, err error) {
	respondJSON(w, statusFor(err), map[string]string{
		"error": err.Error(),
		"kind":  etl.Kind(err),
	})
}
