package etl

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbinelens/analysis"
	"turbinelens/config"
	"turbinelens/database"
	"turbinelens/mart"
)

type fakeCleaner struct {
	days []int
	err  error
}

func (f *fakeCleaner) CleanupOldRuns(days int, _ time.Time) (database.CleanupResult, error) {
	f.days = append(f.days, days)
	return database.CleanupResult{Runs: 1}, f.err
}

type fakeRefresher struct {
	calls int
}

func (f *fakeRefresher) Refresh() (mart.Stats, error) {
	f.calls++
	return mart.Stats{}, nil
}

func TestSchedulerRunJob(t *testing.T) {
	cfg := &config.Config{Retention: config.RetentionConfig{IngestionDays: 14}}
	cleaner := &fakeCleaner{}
	refresher := &fakeRefresher{}

	s := NewScheduler(cfg, cleaner, refresher)
	s.RunJob()
	assert.Equal(t, []int{14}, cleaner.days)
	assert.Equal(t, 1, refresher.calls)

	// a failed cleanup still refreshes the mart
	cleaner.err = errors.New("locked")
	s.RunJob()
	assert.Equal(t, 2, refresher.calls)

	// zero retention keeps runs forever
	cfg.Retention.IngestionDays = 0
	s.RunJob()
	assert.Len(t, cleaner.days, 2)
}

func TestSchedulerDisabled(t *testing.T) {
	s := NewScheduler(&config.Config{}, &fakeCleaner{}, &fakeRefresher{})
	s.Start()
	assert.Nil(t, s.ticker)
	s.Stop()
}

func TestSchedulerStartStop(t *testing.T) {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{Enabled: true, IntervalMinutes: 60}}
	s := NewScheduler(cfg, &fakeCleaner{}, &fakeRefresher{})
	s.Start()
	require.NotNil(t, s.ticker)
	s.Stop()
	s.Stop()
}

func TestPersister(t *testing.T) {
	db, err := database.Initialize(database.MemoryPath, database.MemoryPath)
	require.NoError(t, err)
	defer db.Close()
	repo := database.NewRepository(db)
	require.NoError(t, repo.CreateSchema())
	builder := mart.NewBuilder(db)

	table, err := ParseCSV(sampleCSV)
	require.NoError(t, err)
	completed := time.Date(2026, 2, 2, 10, 0, 0, 0, time.UTC)
	bundle := Bundle{
		Records:        table.Rows,
		Headers:        table.Headers,
		Result:         sampleResult(),
		SourceFileName: "turbines.csv",
		CompletedAt:    completed,
	}

	runID, err := NewPersister(repo, builder).Save("north-ridge", bundle)
	require.NoError(t, err)

	run, err := repo.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, "north-ridge", run.DashboardID)
	assert.Equal(t, 2, run.RecordCount)
	assert.Equal(t, 1, run.AlertCount)
	assert.Equal(t, 1, run.HighSeverityCount)
	assert.True(t, strings.Contains(string(run.Result), `"WT-002"`))

	records, err := repo.GetRunRecords(runID, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "1", records[1].MaintenanceLabel)

	alerts, err := repo.GetRunAlerts(runID)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, string(analysis.SeverityHigh), alerts[0].Severity)
	assert.True(t, completed.Equal(alerts[0].DetectedAt))

	top, err := builder.TopTurbines(5)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "WT-002", top[0].TurbineID)
}
