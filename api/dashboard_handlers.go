package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"turbinelens/etl"
)

// DashboardView is the JSON form of an orchestrator snapshot
type DashboardView struct {
	DashboardID string      `json:"dashboard_id"`
	State       string      `json:"state"`
	Processing  bool        `json:"processing"`
	Generation  uint64      `json:"generation"`
	FileName    string      `json:"file_name,omitempty"`
	Error       string      `json:"error,omitempty"`
	ErrorKind   string      `json:"error_kind,omitempty"`
	Bundle      *etl.Bundle `json:"bundle,omitempty"`
}

func newDashboardView(id string, snap etl.Snapshot) DashboardView {
	v := DashboardView{
		DashboardID: id,
		State:       snap.State.String(),
		Processing:  snap.Processing(),
		Generation:  snap.Generation,
		FileName:    snap.FileName,
		Bundle:      snap.Bundle,
	}
	if snap.Err != nil {
		v.Error = snap.Err.Error()
		v.ErrorKind = etl.Kind(snap.Err)
	}
	return v
}

// IngestFile accepts a multipart CSV upload and starts an ingestion
func (h *Handler) IngestFile(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["dashboardId"]

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Ingestion.MaxUploadBytes())
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondIngestError(w, err)
			return
		}
		respondError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	o := h.dashboards.Get(id)
	gen, err := o.Submit(header.Filename, file)
	if err != nil {
		log.Info().Str("dashboard", id).Str("file", header.Filename).Err(err).Msg("ingestion rejected")
		respondIngestError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, newDashboardView(id, o.Snapshot()).withGeneration(gen))
}

func (v DashboardView) withGeneration(gen uint64) DashboardView {
	v.Generation = gen
	return v
}

// GetDashboard returns the current state of a dashboard
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["dashboardId"]

	o, ok := h.dashboards.Lookup(id)
	if !ok {
		respondJSON(w, http.StatusOK, DashboardView{DashboardID: id, State: etl.Idle.String()})
		return
	}
	respondJSON(w, http.StatusOK, newDashboardView(id, o.Snapshot()))
}

// DismissDashboard clears a finished result or failure
func (h *Handler) DismissDashboard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["dashboardId"]

	o, ok := h.dashboards.Lookup(id)
	if !ok {
		respondError(w, http.StatusNotFound, "dashboard not found")
		return
	}
	o.Dismiss()
	respondJSON(w, http.StatusOK, newDashboardView(id, o.Snapshot()))
}

// DeleteDashboard tears a dashboard down; a pending result is dropped
func (h *Handler) DeleteDashboard(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["dashboardId"]

	if !h.dashboards.Remove(id) {
		respondError(w, http.StatusNotFound, "dashboard not found")
		return
	}
	log.Info().Str("dashboard", id).Msg("dashboard torn down")
	w.WriteHeader(http.StatusNoContent)
}
