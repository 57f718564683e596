package api

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"turbinelens/analysis"
	"turbinelens/charting"
	"turbinelens/database"
)

// ListRuns returns stored ingestion runs, newest first
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	dashboardID := r.URL.Query().Get("dashboard_id")
	limit := queryInt(r, "limit", 50)

	runs, err := h.repo.ListRuns(dashboardID, limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to list runs")
		respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// loadRun fetches a run and its alerts, writing the error response itself
func (h *Handler) loadRun(w http.ResponseWriter, r *http.Request) (*database.IngestionRun, []database.AlertRow, bool) {
	runID := mux.Vars(r)["runId"]

	run, err := h.repo.GetRun(runID)
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "run not found")
		return nil, nil, false
	}
	if err != nil {
		log.Error().Err(err).Str("run", runID).Msg("failed to load run")
		respondError(w, http.StatusInternalServerError, "failed to load run")
		return nil, nil, false
	}

	alerts, err := h.repo.GetRunAlerts(runID)
	if err != nil {
		log.Error().Err(err).Str("run", runID).Msg("failed to load run alerts")
		respondError(w, http.StatusInternalServerError, "failed to load run alerts")
		return nil, nil, false
	}
	return run, alerts, true
}

// GetRun returns one run with its alerts
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, alerts, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	resp := map[string]interface{}{
		"run":    run,
		"alerts": alerts,
	}
	if n := queryInt(r, "records", 0); n > 0 {
		records, err := h.repo.GetRunRecords(run.RunID, n)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load run records")
			return
		}
		resp["records"] = records
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetRunChart renders the alerts of a run as a PNG
func (h *Handler) GetRunChart(w http.ResponseWriter, r *http.Request) {
	_, rows, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	img, err := h.charts.GenerateAlertChart(toAlerts(rows))
	if errors.Is(err, charting.ErrNoData) {
		respondError(w, http.StatusNotFound, "run has no alerts to chart")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writePNG(w, img)
}

// ExportRun zips the run summary, its alerts and the alert chart
func (h *Handler) ExportRun(w http.ResponseWriter, r *http.Request) {
	run, rows, ok := h.loadRun(w, r)
	if !ok {
		return
	}

	zipBuf := new(bytes.Buffer)
	zipWriter := zip.NewWriter(zipBuf)

	addFile := func(name string, data []byte) {
		f, err := zipWriter.Create(name)
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("zip create failed")
			return
		}
		f.Write(data)
	}

	if data, err := json.MarshalIndent(run, "", "  "); err == nil {
		addFile("run.json", data)
	}
	if data, err := json.MarshalIndent(rows, "", "  "); err == nil {
		addFile("alerts.json", data)
	}
	if img, err := h.charts.GenerateAlertChart(toAlerts(rows)); err == nil {
		addFile("alerts.png", img)
	}

	if err := zipWriter.Close(); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to build archive")
		return
	}

	filename := fmt.Sprintf("run_%s_%s.zip", run.RunID, h.now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	w.Header().Set("Content-Length", strconv.Itoa(zipBuf.Len()))
	w.Write(zipBuf.Bytes())
}

func toAlerts(rows []database.AlertRow) []analysis.Alert {
	alerts := make([]analysis.Alert, len(rows))
	for i, a := range rows {
		alerts[i] = analysis.Alert{
			TurbineID:   a.TurbineID,
			Probability: a.Probability,
			Model:       a.Model,
			Timestamp:   a.DetectedAt,
			Severity:    analysis.Severity(a.Severity),
		}
	}
	return alerts
}

func queryInt(r *http.Request, key string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(key)); err == nil {
		return v
	}
	return def
}
