package api

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
)

// Scenario is one named mix to evaluate in a batch
type Scenario struct {
	Name string `json:"name"`
	MixRequest

	unknownPreset bool
}

// ScenarioRequest is the body of a streamed scenario comparison
type ScenarioRequest struct {
	Scenarios []Scenario `json:"scenarios"`
	Presets   []string   `json:"presets"`
}

// StreamResult represents a single line in NDJSON stream
type StreamResult struct {
	Name   string       `json:"name"`
	Result *MixResponse `json:"result,omitempty"`
	Error  string       `json:"error,omitempty"`
}

// ComputeMixStream evaluates a batch of scenarios and streams each result as
// one NDJSON line as soon as it is ready.
func (h *Handler) ComputeMixStream(w http.ResponseWriter, r *http.Request) {
	var req ScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	scenarios := req.Scenarios
	for _, name := range req.Presets {
		s := Scenario{Name: name}
		if mix, ok := h.cfg.Presets.Get(name); ok {
			s.Mix = &mix
		} else {
			s.unknownPreset = true
		}
		scenarios = append(scenarios, s)
	}
	if len(scenarios) == 0 {
		respondError(w, http.StatusBadRequest, "scenarios or presets are required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	numWorkers := 4
	if len(scenarios) < numWorkers {
		numWorkers = len(scenarios)
	}

	jobs := make(chan Scenario, len(scenarios))
	results := make(chan StreamResult, len(scenarios))
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range jobs {
				if s.unknownPreset {
					results <- StreamResult{Name: s.Name, Error: "unknown preset"}
					continue
				}
				mix, consumption, price := h.resolveMix(s.MixRequest)
				res := h.computeMix(mix, consumption, price)
				results <- StreamResult{Name: s.Name, Result: &res}
			}
		}()
	}

	go func() {
		for _, s := range scenarios {
			jobs <- s
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	encoder := json.NewEncoder(w)
	for res := range results {
		if err := encoder.Encode(res); err != nil {
			log.Debug().Err(err).Msg("stream encode failed")
			return // results is buffered, workers never block

		}
		flusher.Flush()
	}
}
