package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"

	"turbinelens/analysis"
	"turbinelens/etl"
	"turbinelens/notify"
)

// GetSampleRegression returns the bundled regression run shown before any upload
func (h *Handler) GetSampleRegression(w http.ResponseWriter, r *http.Request) {
	reg := analysis.SampleRegression(h.now().UTC())
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"regression":      reg,
		"records_display": humanize.Comma(int64(reg.Records)),
	})
}

// GetSampleRiskChart plots the sample regression as a PNG scatter
func (h *Handler) GetSampleRiskChart(w http.ResponseWriter, r *http.Request) {
	reg := analysis.SampleRegression(h.now().UTC())
	img, err := h.charts.GenerateRiskScatter(reg.Turbines)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writePNG(w, img)
}

// GenerateSampleCSV streams a synthetic turbine telemetry file
func (h *Handler) GenerateSampleCSV(w http.ResponseWriter, r *http.Request) {
	cfg := h.cfg.SampleData
	if n := queryInt(r, "turbines", 0); n > 0 {
		cfg.Turbines = n
	}
	if n := queryInt(r, "rows", 0); n > 0 {
		cfg.RowsPerTurbine = n
	}
	seed := int64(queryInt(r, "seed", int(h.now().UnixNano()%1_000_000)))

	gen := etl.NewSampleGenerator(cfg, seed)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"turbine_sample_%d.csv\"", seed))
	rows, err := gen.WriteCSV(w, h.now().UTC().Truncate(24*time.Hour))
	if err != nil {
		log.Warn().Err(err).Int("rows", rows).Msg("sample csv write failed")
	}
}

// GetTurbineAlertStats returns the turbines with the most alerts
func (h *Handler) GetTurbineAlertStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.martBuilder.TopTurbines(queryInt(r, "limit", 20))
	if err != nil {
		log.Error().Err(err).Msg("failed to query turbine stats")
		respondError(w, http.StatusInternalServerError, "failed to query turbine stats")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"turbines": stats,
		"count":    len(stats),
	})
}

// RefreshMart rebuilds the turbine alert mart
func (h *Handler) RefreshMart(w http.ResponseWriter, r *http.Request) {
	stats, err := h.martBuilder.Refresh()
	if err != nil {
		log.Error().Err(err).Msg("mart refresh failed")
		respondError(w, http.StatusInternalServerError, "mart refresh failed: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"stats":  stats,
	})
}

// CleanupRequest represents the body for a retention pass
type CleanupRequest struct {
	Days int `json:"days"`
}

// CleanupRuns deletes runs older than the given or configured retention
func (h *Handler) CleanupRuns(w http.ResponseWriter, r *http.Request) {
	req := CleanupRequest{Days: h.cfg.Retention.IngestionDays}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	if req.Days <= 0 {
		respondError(w, http.StatusBadRequest, "days must be positive")
		return
	}

	result, err := h.repo.CleanupOldRuns(req.Days, h.now())
	if err != nil {
		log.Error().Err(err).Msg("cleanup failed")
		respondError(w, http.StatusInternalServerError, "cleanup failed: "+err.Error())
		return
	}
	if result.Runs > 0 {
		if _, err := h.martBuilder.Refresh(); err != nil {
			log.Warn().Err(err).Msg("mart refresh after cleanup failed")
		}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "success",
		"days":    req.Days,
		"deleted": result,
	})
}

// UpdateRetention changes the retention window used by the scheduler
func (h *Handler) UpdateRetention(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Days < 0 {
		respondError(w, http.StatusBadRequest, "days must not be negative")
		return
	}
	if err := h.cfg.UpdateRetention(req.Days); err != nil {
		log.Error().Err(err).Msg("failed to save retention")
		respondError(w, http.StatusInternalServerError, "failed to save retention")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "success",
		"retention": h.cfg.Retention,
	})
}

// NotifyAlert sends one maintenance alert to a worker
func (h *Handler) NotifyAlert(w http.ResponseWriter, r *http.Request) {
	var req notify.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Alert.Severity == "" {
		req.Alert.Severity = analysis.ClassifySeverity(req.Alert.Probability)
	}

	receipt, err := h.notifier.Send(r.Context(), req)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, receipt)
	case errors.Is(err, notify.ErrRateLimited):
		respondError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, notify.ErrMissingRecipient), errors.Is(err, notify.ErrInvalidRecipient):
		respondError(w, http.StatusBadRequest, err.Error())
	case req.Alert.TurbineID == "":
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusBadGateway, err.Error())
	}
}

// ListNotifications returns the most recent notification attempts
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	logs, err := h.repo.GetRecentNotifications(queryInt(r, "limit", 50))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load notifications")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": logs,
		"count":         len(logs),
	})
}
