package mart

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"turbinelens/database"
)

// Builder handles turbine_alert_stats mart creation and refresh
type Builder struct {
	db *database.DB
}

// Stats holds statistics about the refreshed mart
type Stats struct {
	Turbines       int64     `json:"turbines"`
	TotalAlerts    int64     `json:"total_alerts"`
	HighSeverity   int64     `json:"high_severity"`
	AvgProbability float64   `json:"avg_probability"`
	RefreshedAt    time.Time `json:"refreshed_at"`
}

// TurbineStats is one row of the mart
type TurbineStats struct {
	TurbineID         string    `json:"turbine_id"`
	AlertCount        int64     `json:"alert_count"`
	HighSeverityCount int64     `json:"high_severity_count"`
	MaxProbability    float64   `json:"max_probability"`
	AvgProbability    float64   `json:"avg_probability"`
	LastDetectedAt    time.Time `json:"last_detected_at"`
}

// NewBuilder creates a new mart builder
func NewBuilder(db *database.DB) *Builder {
	return &Builder{db: db}
}

// Refresh rebuilds turbine_alert_stats from every stored alert
func (b *Builder) Refresh() (stats Stats, err error) {
	start := time.Now()

	tx, err := b.db.Analytics.Begin()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		} else if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	query := `
		CREATE OR REPLACE TABLE turbine_alert_stats AS
		SELECT
			turbine_id,
			COUNT(*) AS alert_count,
			CAST(SUM(CASE WHEN severity = 'high' THEN 1 ELSE 0 END) AS BIGINT) AS high_severity_count,
			MAX(probability) AS max_probability,
			AVG(probability) AS avg_probability,
			MAX(detected_at) AS last_detected_at,
			CURRENT_TIMESTAMP AS created_at
		FROM alerts
		GROUP BY turbine_id
	`
	if _, err = tx.Exec(query); err != nil {
		return Stats{}, fmt.Errorf("failed to refresh turbine_alert_stats: %w", err)
	}

	var avg sql.NullFloat64
	err = tx.QueryRow(`
		SELECT COUNT(*), CAST(COALESCE(SUM(alert_count), 0) AS BIGINT), CAST(COALESCE(SUM(high_severity_count), 0) AS BIGINT),
			SUM(avg_probability * alert_count) / NULLIF(SUM(alert_count), 0)
		FROM turbine_alert_stats
	`).Scan(&stats.Turbines, &stats.TotalAlerts, &stats.HighSeverity, &avg)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read mart stats: %w", err)
	}
	stats.AvgProbability = avg.Float64
	stats.RefreshedAt = time.Now().UTC()

	log.Info().Dur("elapsed", time.Since(start)).Int64("turbines", stats.Turbines).Msg("mart refresh completed")
	return stats, nil
}

// TopTurbines returns the turbines with the most alerts, ties broken by the
// highest probability.
func (b *Builder) TopTurbines(limit int) ([]TurbineStats, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := b.db.Analytics.Query(`
		SELECT turbine_id, alert_count, high_severity_count, max_probability, avg_probability, last_detected_at
		FROM turbine_alert_stats
		ORDER BY alert_count DESC, max_probability DESC, turbine_id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turbine stats: %w", err)
	}
	defer rows.Close()

	out := []TurbineStats{}
	for rows.Next() {
		var s TurbineStats
		if err := rows.Scan(&s.TurbineID, &s.AlertCount, &s.HighSeverityCount, &s.MaxProbability, &s.AvgProbability, &s.LastDetectedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
