package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"turbinelens/charting"
	"turbinelens/emissions"
)

// MixRequest is the body of a mix computation. Omitted values fall back to
// the configured defaults.
type MixRequest struct {
	Mix                  *emissions.Mix `json:"mix"`
	AnnualConsumptionMWh *float64       `json:"annual_consumption_mwh"`
	CarbonPrice          *float64       `json:"carbon_price"`
}

// MixResponse is a computed mix with its display strings
type MixResponse struct {
	emissions.Metrics
	Mix                  emissions.Mix `json:"mix"`
	AnnualConsumptionMWh float64       `json:"annual_consumption_mwh"`
	CarbonPrice          float64       `json:"carbon_price"`
	Total                float64       `json:"total_percentage"`
	Warning              string        `json:"warning,omitempty"`
	Display              MixDisplay    `json:"display"`
}

// MixDisplay holds the formatted figures shown on the calculator
type MixDisplay struct {
	Intensity      string `json:"intensity"`
	ZoneLabel      string `json:"zone_label"`
	ZoneColor      string `json:"zone_color"`
	TotalEmissions string `json:"total_emissions"`
	CarbonCost     string `json:"carbon_cost"`
}

func (h *Handler) resolveMix(req MixRequest) (emissions.Mix, float64, float64) {
	mix := h.cfg.Emissions.Mix()
	if req.Mix != nil {
		mix = *req.Mix
	}
	consumption := h.cfg.Emissions.AnnualConsumptionMWh
	if req.AnnualConsumptionMWh != nil {
		consumption = *req.AnnualConsumptionMWh
	}
	price := h.cfg.Emissions.CarbonPrice
	if req.CarbonPrice != nil {
		price = *req.CarbonPrice
	}
	return mix, consumption, price
}

func (h *Handler) computeMix(mix emissions.Mix, consumption, price float64) MixResponse {
	m := emissions.Compute(mix, consumption, price)
	if h.metrics != nil {
		h.metrics.MixComputed(m.Zone)
	}
	return MixResponse{
		Metrics:              m,
		Mix:                  mix,
		AnnualConsumptionMWh: consumption,
		CarbonPrice:          price,
		Total:                mix.Total(),
		Warning:              mix.SumWarning(),
		Display: MixDisplay{
			Intensity:      emissions.FormatIntensity(m.Intensity),
			ZoneLabel:      m.Zone.Label(),
			ZoneColor:      m.Zone.Color(),
			TotalEmissions: emissions.FormatTonnes(m.TotalEmissions),
			CarbonCost:     emissions.FormatCost(m.CarbonCost),
		},
	}
}

// ComputeMix projects a mix into intensity, zone, breakdown and annual totals
func (h *Handler) ComputeMix(w http.ResponseWriter, r *http.Request) {
	var req MixRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	mix, consumption, price := h.resolveMix(req)
	respondJSON(w, http.StatusOK, h.computeMix(mix, consumption, price))
}

// GetFactors returns the fixed emission factor table
func (h *Handler) GetFactors(w http.ResponseWriter, r *http.Request) {
	type factor struct {
		Source string  `json:"source"`
		Factor float64 `json:"factor"`
		Zone   string  `json:"zone"`
	}
	out := make([]factor, 0, len(emissions.Sources()))
	for _, s := range emissions.Sources() {
		out = append(out, factor{Source: s.String(), Factor: s.Factor(), Zone: emissions.Classify(s.Factor()).String()})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"unit":       "gCO2/kWh",
		"factors":    out,
		"thresholds": map[string]float64{"green_max": emissions.GreenMax, "orange_max": emissions.OrangeMax},
	})
}

// mixFromQuery reads a mix from query parameters like ?coal=40&wind=60.
// Without any source parameter the named preset, or the configured default, is used.
func (h *Handler) mixFromQuery(r *http.Request) (emissions.Mix, error) {
	q := r.URL.Query()
	if name := q.Get("preset"); name != "" {
		mix, ok := h.cfg.Presets.Get(name)
		if !ok {
			return emissions.Mix{}, errors.New("unknown preset " + strconv.Quote(name))
		}
		return mix, nil
	}

	var mix emissions.Mix
	found := false
	for _, s := range emissions.Sources() {
		raw := q.Get(s.String())
		if raw == "" {
			continue
		}
		pct, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return emissions.Mix{}, errors.New("invalid share for " + s.String())
		}
		mix.Set(s, pct)
		found = true
	}
	if !found {
		return h.cfg.Emissions.Mix(), nil
	}
	return mix, nil
}

// GetBreakdownChart renders the breakdown of a mix as a PNG
func (h *Handler) GetBreakdownChart(w http.ResponseWriter, r *http.Request) {
	mix, err := h.mixFromQuery(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	img, err := h.charts.GenerateBreakdown(emissions.Breakdown(mix))
	if errors.Is(err, charting.ErrNoData) {
		respondError(w, http.StatusUnprocessableEntity, "mix has no emitting sources")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writePNG(w, img)
}

// GetPresets returns every saved mix preset
func (h *Handler) GetPresets(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.cfg.Presets.GetAll())
}

// UpdatePresets replaces the saved mix presets
func (h *Handler) UpdatePresets(w http.ResponseWriter, r *http.Request) {
	var presets map[string]emissions.Mix
	if err := json.NewDecoder(r.Body).Decode(&presets); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.cfg.Presets.Save(presets); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save presets")
		return
	}
	respondJSON(w, http.StatusOK, h.cfg.Presets.GetAll())
}

func writePNG(w http.ResponseWriter, img []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}
