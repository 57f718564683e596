package database

import (
	"encoding/json"
	"time"
)

// IngestionRun is one completed ingestion of a dashboard
type IngestionRun struct {
	RunID             string          `json:"run_id"`
	DashboardID       string          `json:"dashboard_id"`
	FileName          string          `json:"file_name"`
	Headers           []string        `json:"headers"`
	RecordCount       int             `json:"record_count"`
	AlertCount        int             `json:"alert_count"`
	HighSeverityCount int             `json:"high_severity_count"`
	Result            json.RawMessage `json:"result,omitempty"` // provider result as delivered
	CreatedAt         time.Time       `json:"created_at"`
}

// AlertRow is a stored maintenance alert
type AlertRow struct {
	RunID       string    `json:"run_id"`
	TurbineID   string    `json:"turbine_id"`
	Probability float64   `json:"probability"`
	Model       string    `json:"model"`
	Severity    string    `json:"severity"`
	DetectedAt  time.Time `json:"detected_at"`
}

// NotificationLog records one alert notification attempt
type NotificationLog struct {
	NotificationID string    `json:"notification_id"`
	TurbineID      string    `json:"turbine_id"`
	Recipient      string    `json:"recipient"`
	Subject        string    `json:"subject"`
	Message        string    `json:"message"`
	Status         string    `json:"status"` // "sent" or "failed"
	ErrorMessage   string    `json:"error_message,omitempty"`
	SentAt         time.Time `json:"sent_at"`
}

// CleanupResult counts rows removed by a retention pass
type CleanupResult struct {
	Runs         int64 `json:"runs"`
	Records      int64 `json:"records"`
	Alerts       int64 `json:"alerts"`
	CacheEntries int64 `json:"cache_entries"`
}

// TurbineRecord is one uploaded CSV row
type TurbineRecord struct {
	RowIndex         int               `json:"row_index"`
	MaintenanceLabel string            `json:"maintenance_label"`
	Data             map[string]string `json:"data"`
}
