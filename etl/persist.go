package etl

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"turbinelens/database"
)

// RunStore persists completed ingestions.
type RunStore interface {
	SaveRun(run database.IngestionRun, records []database.TurbineRecord, alerts []database.AlertRow) error
}

// Persister stores every published bundle and refreshes the alert mart.
type Persister struct {
	store RunStore
	mart  MartRefresher
}

// NewPersister creates a persister. mart may be nil.
func NewPersister(store RunStore, mart MartRefresher) *Persister {
	return &Persister{store: store, mart: mart}
}

// Save stores one bundle and returns the new run id.
func (p *Persister) Save(dashboardID string, b Bundle) (string, error) {
	result, err := json.Marshal(b.Result)
	if err != nil {
		return "", fmt.Errorf("failed to marshal analysis result: %w", err)
	}

	run := database.IngestionRun{
		RunID:       uuid.New().String(),
		DashboardID: dashboardID,
		FileName:    b.SourceFileName,
		Headers:     b.Headers,
		RecordCount: len(b.Records),
		Result:      result,
		CreatedAt:   b.CompletedAt,
	}

	records := make([]database.TurbineRecord, len(b.Records))
	for i, rec := range b.Records {
		records[i] = database.TurbineRecord{RowIndex: i, MaintenanceLabel: rec[RequiredColumn], Data: rec}
	}

	var alerts []database.AlertRow
	if b.Result != nil {
		run.AlertCount = len(b.Result.Alerts)
		run.HighSeverityCount = b.Result.HighSeverityCount()
		for _, a := range b.Result.Alerts {
			detected := a.Timestamp
			if detected.IsZero() {
				detected = b.CompletedAt
			}
			alerts = append(alerts, database.AlertRow{
				RunID:       run.RunID,
				TurbineID:   a.TurbineID,
				Probability: a.Probability,
				Model:       a.Model,
				Severity:    string(a.Severity),
				DetectedAt:  detected,
			})
		}
	}

	if err := p.store.SaveRun(run, records, alerts); err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}

	if p.mart != nil {
		if _, err := p.mart.Refresh(); err != nil {
			log.Warn().Err(err).Msg("mart refresh after ingestion failed")
		}
	}

	log.Info().Str("dashboard", dashboardID).Str("run", run.RunID).Int("records", run.RecordCount).Msg("ingestion run stored")
	return run.RunID, nil
}

// Hook returns an OnComplete callback bound to a dashboard.
func (p *Persister) Hook(dashboardID string) func(Bundle) {
	return func(b Bundle) {
		if _, err := p.Save(dashboardID, b); err != nil {
			log.Error().Err(err).Str("dashboard", dashboardID).Msg("failed to persist ingestion")
		}
	}
}
