package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// CreateSchema creates necessary database tables
func (r *Repository) CreateSchema() error {
	if err := execScript(r.db.Analytics, "schema_duckdb.sql", duckdbSchema); err != nil {
		return fmt.Errorf("duckdb schema error: %w", err)
	}
	if err := execScript(r.db.App, "schema_sqlite.sql", sqliteSchema); err != nil {
		return fmt.Errorf("sqlite schema error: %w", err)
	}
	return nil
}

// SaveRun stores a completed ingestion: the records and alerts go to the
// analytics DB, the run summary to the app DB.
func (r *Repository) SaveRun(run IngestionRun, records []TurbineRecord, alerts []AlertRow) error {
	headersJSON, err := json.Marshal(run.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}
	result := run.Result
	if len(result) == 0 {
		result = json.RawMessage("null")
	}

	if err := r.insertAnalytics(run.RunID, records, alerts); err != nil {
		return err
	}

	_, err = r.db.App.Exec(`
		INSERT INTO ingestion_runs (
			run_id, dashboard_id, file_name, headers, record_count,
			alert_count, high_severity_count, result_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.DashboardID, run.FileName, string(headersJSON), run.RecordCount,
		run.AlertCount, run.HighSeverityCount, string(result), run.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

func (r *Repository) insertAnalytics(runID string, records []TurbineRecord, alerts []AlertRow) error {
	tx, err := r.db.Analytics.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	recordStmt, err := tx.Prepare(`INSERT INTO turbine_records (run_id, row_index, maintenance_label, data) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer recordStmt.Close()

	for _, rec := range records {
		data, err := json.Marshal(rec.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal row %d: %w", rec.RowIndex, err)
		}
		if _, err := recordStmt.Exec(runID, rec.RowIndex, rec.MaintenanceLabel, string(data)); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", rec.RowIndex, err)
		}
	}

	alertStmt, err := tx.Prepare(`INSERT INTO alerts (run_id, turbine_id, probability, model, severity, detected_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer alertStmt.Close()

	for _, a := range alerts {
		if _, err := alertStmt.Exec(runID, a.TurbineID, a.Probability, a.Model, a.Severity, a.DetectedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert alert for %s: %w", a.TurbineID, err)
		}
	}
	return tx.Commit()
}

const runColumns = `run_id, dashboard_id, file_name, headers, record_count, alert_count, high_severity_count, result_json, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s rowScanner) (*IngestionRun, error) {
	var run IngestionRun
	var headers, result string
	if err := s.Scan(&run.RunID, &run.DashboardID, &run.FileName, &headers, &run.RecordCount,
		&run.AlertCount, &run.HighSeverityCount, &result, &run.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(headers), &run.Headers); err != nil {
		return nil, fmt.Errorf("corrupt headers for run %s: %w", run.RunID, err)
	}
	run.Result = json.RawMessage(result)
	return &run, nil
}

// GetRun returns a run by id
func (r *Repository) GetRun(runID string) (*IngestionRun, error) {
	row := r.db.App.QueryRow("SELECT "+runColumns+" FROM ingestion_runs WHERE run_id = ?", runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return run, err
}

// ListRuns returns the most recent runs, newest first. An empty dashboardID
// lists every dashboard.
func (r *Repository) ListRuns(dashboardID string, limit int) ([]IngestionRun, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT " + runColumns + " FROM ingestion_runs"
	args := []interface{}{}
	if dashboardID != "" {
		query += " WHERE dashboard_id = ?"
		args = append(args, dashboardID)
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.App.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	runs := []IngestionRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		// summaries only
		run.Result = nil
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRunAlerts returns the alerts of a run, most probable first
func (r *Repository) GetRunAlerts(runID string) ([]AlertRow, error) {
	rows, err := r.db.Analytics.Query(`
		SELECT run_id, turbine_id, probability, model, severity, detected_at
		FROM alerts WHERE run_id = ?
		ORDER BY probability DESC, turbine_id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []AlertRow{}
	for rows.Next() {
		var a AlertRow
		if err := rows.Scan(&a.RunID, &a.TurbineID, &a.Probability, &a.Model, &a.Severity, &a.DetectedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// GetRunRecords returns up to limit uploaded rows of a run in file order
func (r *Repository) GetRunRecords(runID string, limit int) ([]TurbineRecord, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.Analytics.Query(`
		SELECT row_index, maintenance_label, data
		FROM turbine_records WHERE run_id = ?
		ORDER BY row_index LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	records := []TurbineRecord{}
	for rows.Next() {
		var rec TurbineRecord
		var label sql.NullString
		var data string
		if err := rows.Scan(&rec.RowIndex, &label, &data); err != nil {
			return nil, err
		}
		rec.MaintenanceLabel = label.String
		if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
			return nil, fmt.Errorf("corrupt row %d: %w", rec.RowIndex, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CleanupOldRuns deletes runs older than retentionDays together with their
// records and alerts, and purges expired cache entries.
func (r *Repository) CleanupOldRuns(retentionDays int, now time.Time) (CleanupResult, error) {
	var res CleanupResult
	cutoff := now.UTC().AddDate(0, 0, -retentionDays)

	rows, err := r.db.App.Query("SELECT run_id FROM ingestion_runs WHERE created_at < ?", cutoff)
	if err != nil {
		return res, fmt.Errorf("failed to query old runs: %w", err)
	}
	var runIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return res, err
		}
		runIDs = append(runIDs, id)
	}
	rows.Close()

	for _, id := range runIDs {
		steps := []struct {
			db      *sql.DB
			query   string
			counter *int64
		}{
			{r.db.Analytics, "DELETE FROM turbine_records WHERE run_id = ?", &res.Records},
			{r.db.Analytics, "DELETE FROM alerts WHERE run_id = ?", &res.Alerts},
			{r.db.App, "DELETE FROM ingestion_runs WHERE run_id = ?", &res.Runs},
		}
		for _, step := range steps {
			n, err := execCount(step.db, step.query, id)
			if err != nil {
				return res, fmt.Errorf("failed to clean up run %s: %w", id, err)
			}
			*step.counter += n
		}
	}

	n, err := execCount(r.db.App, "DELETE FROM analysis_cache WHERE expires_at < ?", now.UTC())
	if err != nil {
		log.Warn().Err(err).Msg("failed to purge analysis cache")
	}
	res.CacheEntries = n
	return res, nil
}

func execCount(db *sql.DB, query string, args ...interface{}) (int64, error) {
	result, err := db.Exec(query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SaveAnalysisCache stores a provider result until ttlHours have passed
func (r *Repository) SaveAnalysisCache(cacheKey string, requestParams interface{}, payload []byte, ttlHours int) error {
	paramsJSON, err := json.Marshal(requestParams)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}
	now := time.Now().UTC()
	expiresAt := now.Add(time.Duration(ttlHours) * time.Hour)
	_, err = r.db.App.Exec("INSERT OR REPLACE INTO analysis_cache (cache_key, request_params, payload, created_at, expires_at) VALUES (?, ?, ?, ?, ?)",
		cacheKey, string(paramsJSON), payload, now, expiresAt)
	return err
}

// GetAnalysisCache returns an unexpired cached payload
func (r *Repository) GetAnalysisCache(cacheKey string) ([]byte, error) {
	var payload []byte
	err := r.db.App.QueryRow("SELECT payload FROM analysis_cache WHERE cache_key = ? AND expires_at > ?", cacheKey, time.Now().UTC()).Scan(&payload)
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// LogNotification records a notification attempt
func (r *Repository) LogNotification(n NotificationLog) error {
	_, err := r.db.App.Exec(`
		INSERT INTO notifications (notification_id, turbine_id, recipient, subject, message, status, error_message, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.NotificationID, n.TurbineID, n.Recipient, n.Subject, n.Message, n.Status, n.ErrorMessage, n.SentAt.UTC())
	return err
}

// GetRecentNotifications returns the latest notification attempts
func (r *Repository) GetRecentNotifications(limit int) ([]NotificationLog, error) {
	rows, err := r.db.App.Query("SELECT notification_id, turbine_id, recipient, subject, message, status, error_message, sent_at FROM notifications ORDER BY sent_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	logs := []NotificationLog{}
	for rows.Next() {
		var l NotificationLog
		var errMsg sql.NullString
		if err := rows.Scan(&l.NotificationID, &l.TurbineID, &l.Recipient, &l.Subject, &l.Message, &l.Status, &errMsg, &l.SentAt); err != nil {
			return nil, err
		}
		l.ErrorMessage = errMsg.String
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
