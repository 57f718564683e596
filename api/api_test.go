package api

import (
	"archive/zip"
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbinelens/analysis"
	"turbinelens/config"
	"turbinelens/database"
	"turbinelens/emissions"
	"turbinelens/etl"
	"turbinelens/jobs"
	"turbinelens/mart"
	"turbinelens/metrics"
	"turbinelens/notify"
)

const turbineCSV = "Timestamp,Turbine_ID,Vibration,Maintenance_Label\n" +
	"2026-01-01 00:00,WT-001,0.21,0\n" +
	"2026-01-01 00:00,WT-002,0.93,1\n" +
	"2026-01-01 01:00,WT-001,0.24,0\n"

type testEnv struct {
	router  *mux.Router
	handler *Handler
	cfg     *config.Config
	repo    *database.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(dir)

	db, err := database.Initialize(database.MemoryPath, database.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := database.NewRepository(db)
	require.NoError(t, repo.CreateSchema())

	cfg := &config.Config{
		Emissions: config.EmissionsConfig{
			AnnualConsumptionMWh: 10000,
			CarbonPrice:          75,
			DefaultMix:           emissions.DefaultMix().ToMap(),
		},
		Provider:      config.ProviderConfig{Mode: "mock"},
		Ingestion:     config.IngestionConfig{MaxUploadMB: 1},
		Notifications: config.NotificationConfig{PerMinute: 1, Burst: 1},
		SampleData:    config.SampleDataConfig{Turbines: 3, RowsPerTurbine: 4, IntervalMinutes: 60},
		Retention:     config.RetentionConfig{IngestionDays: 30},
		Presets:       config.NewPresetManager(filepath.Join(dir, "presets.yaml")),
	}
	require.NoError(t, cfg.Presets.Load())

	pool := jobs.NewWorkerPool(2)
	t.Cleanup(pool.Stop)

	reg := metrics.NewRegistry()
	martBuilder := mart.NewBuilder(db)
	persister := etl.NewPersister(repo, martBuilder)
	provider := analysis.NewMockProvider(0, 42)

	dashboards := etl.NewRegistry(func(id string) *etl.Orchestrator {
		return etl.NewOrchestrator(etl.OrchestratorOptions{
			ID:         id,
			Provider:   provider,
			Pool:       pool,
			Timeout:    5 * time.Second,
			OnComplete: persister.Hook(id),
			Recorder:   reg,
		})
	})
	t.Cleanup(dashboards.Close)

	h := NewHandler(Dependencies{
		DB:         db,
		Repo:       repo,
		Config:     cfg,
		Mart:       martBuilder,
		Dashboards: dashboards,
		Notifier:   notify.NewService(notify.LogSender{}, repo, reg, cfg.Notifications.PerMinute, cfg.Notifications.Burst),
		Metrics:    reg,
	})
	return &testEnv{router: SetupRouter(h), handler: h, cfg: cfg, repo: repo}
}

func (e *testEnv) do(t *testing.T, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) upload(t *testing.T, dashboard, fileName, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest("POST", "/api/dashboards/"+dashboard+"/ingest", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body["stats"], "alerts")
}

func TestComputeMixDefaults(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/emissions/compute", "")
	require.Equal(t, http.StatusOK, rec.Code)

	want := emissions.Compute(emissions.DefaultMix(), 10000, 75)
	got := decode[MixResponse](t, rec)
	assert.InDelta(t, want.Intensity, got.Intensity, 1e-9)
	assert.InDelta(t, 100.0, got.Total, 1e-9)
	assert.Empty(t, got.Warning)
	assert.Len(t, got.Breakdown, 8)
	assert.Equal(t, want.Zone.Label(), got.Display.ZoneLabel)
}

func TestComputeMixCoalOnly(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/emissions/compute", `{"mix":{"coal":100},"annual_consumption_mwh":1000,"carbon_price":100}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[MixResponse](t, rec)
	assert.InDelta(t, 820.0, got.Intensity, 1e-9)
	assert.Equal(t, "coal", got.Breakdown[0].Name)
	assert.InDelta(t, 820.0, got.TotalEmissions, 1e-9)
	assert.InDelta(t, 82.0, got.CarbonCost, 1e-9)
	assert.Equal(t, emissions.Red.Label(), got.Display.ZoneLabel)
	assert.Empty(t, got.Warning)

	scrape := env.do(t, "GET", "/metrics", "")
	assert.Contains(t, scrape.Body.String(), `turbinelens_mix_computations_total{zone="red"} 1`)
}

func TestComputeMixUnbalanced(t *testing.T) {
	env := newTestEnv(t)

	// a mix that does not sum to 100 is flagged, not rejected
	rec := env.do(t, "POST", "/api/emissions/compute", `{"mix":{"wind":50,"gas":40}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode[MixResponse](t, rec)
	assert.InDelta(t, 90.0, got.Total, 1e-9)
	assert.Equal(t, "total is 90% (should equal 100%)", got.Warning)
	assert.InDelta(t, 202.0, got.Intensity, 1e-9)
	assert.Equal(t, emissions.Orange, got.Zone)
}

func TestComputeMixOverflowingShares(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/emissions/compute", `{"mix":{"coal":1.7e308,"gas":1.7e308}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotZero(t, rec.Body.Len())

	got := decode[MixResponse](t, rec)
	assert.Equal(t, 0.0, got.Total)
	assert.NotEmpty(t, got.Warning)
}

func TestRespondJSONUnencodable(t *testing.T) {
	rec := httptest.NewRecorder()
	respondJSON(rec, http.StatusOK, map[string]float64{"bad": math.Inf(1)})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to encode response")
}

func TestComputeMixBadBody(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/emissions/compute", `{"mix":{"uranium":100}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetFactors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/api/emissions/factors", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Factors []struct {
			Source string  `json:"source"`
			Factor float64 `json:"factor"`
		} `json:"factors"`
	}](t, rec)
	require.Len(t, body.Factors, 8)
	assert.Equal(t, "solar", body.Factors[0].Source)
	assert.Equal(t, 820.0, body.Factors[7].Factor)
}

func TestBreakdownChart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/api/emissions/chart?coal=50&wind=50", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = env.do(t, "GET", "/api/emissions/chart?coal=0", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = env.do(t, "GET", "/api/emissions/chart?coal=lots", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "GET", "/api/emissions/chart?preset=missing", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestComputeMixStream(t *testing.T) {
	env := newTestEnv(t)

	body := `{"scenarios":[{"name":"green","mix":{"wind":100}},{"name":"dirty","mix":{"coal":100}}],"presets":["default","missing"]}`
	rec := env.do(t, "POST", "/api/emissions/stream", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	results := map[string]StreamResult{}
	scanner := bufio.NewScanner(rec.Body)
	for scanner.Scan() {
		var r StreamResult
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		results[r.Name] = r
	}
	require.Len(t, results, 4)
	assert.Equal(t, emissions.Green, results["green"].Result.Zone)
	assert.Equal(t, emissions.Red, results["dirty"].Result.Zone)
	assert.Equal(t, emissions.DefaultMix(), results["default"].Result.Mix)
	assert.Equal(t, "unknown preset", results["missing"].Error)

	rec = env.do(t, "POST", "/api/emissions/stream", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPresets(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "PUT", "/api/emissions/presets", `{"clean":{"wind":50,"solar":50}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, "GET", "/api/emissions/presets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	presets := decode[map[string]emissions.Mix](t, rec)
	require.Contains(t, presets, "clean")
	assert.Equal(t, 50.0, presets["clean"].Get(emissions.Wind))
}

func TestUpdateEmissionConfig(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "PUT", "/api/config/emissions", `{"mix":{"hydro":100},"annual_consumption_mwh":500,"carbon_price":10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100.0, env.cfg.Emissions.Mix().Get(emissions.Hydro))
	assert.Equal(t, 500.0, env.cfg.Emissions.AnnualConsumptionMWh)

	rec = env.do(t, "PUT", "/api/config/emissions", `{"mix":{},"annual_consumption_mwh":500}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "PUT", "/api/config/emissions", `{"mix":{"hydro":100},"carbon_price":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func waitForDashboard(t *testing.T, env *testEnv, id, state string) DashboardView {
	t.Helper()
	var view DashboardView
	require.Eventually(t, func() bool {
		rec := env.do(t, "GET", "/api/dashboards/"+id, "")
		return json.Unmarshal(rec.Body.Bytes(), &view) == nil && view.State == state
	}, 5*time.Second, 10*time.Millisecond)
	return view
}

func TestIngestAndStoredRun(t *testing.T) {
	env := newTestEnv(t)

	rec := env.upload(t, "main", "turbines.csv", turbineCSV)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	accepted := decode[DashboardView](t, rec)
	assert.Equal(t, uint64(1), accepted.Generation)

	view := waitForDashboard(t, env, "main", "complete")
	require.NotNil(t, view.Bundle)
	assert.False(t, view.Processing)
	assert.Len(t, view.Bundle.Records, 3)
	assert.Equal(t, "turbines.csv", view.Bundle.SourceFileName)
	assert.NotEmpty(t, view.Bundle.Result.Alerts)

	// the persister hook runs right after publication
	var runs []database.IngestionRun
	require.Eventually(t, func() bool {
		var err error
		runs, err = env.repo.ListRuns("main", 10)
		return err == nil && len(runs) == 1
	}, 5*time.Second, 10*time.Millisecond)
	runID := runs[0].RunID

	rec = env.do(t, "GET", "/api/runs?dashboard_id=main", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]interface{}](t, rec)["count"])

	rec = env.do(t, "GET", "/api/runs/"+runID+"?records=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[struct {
		Run     database.IngestionRun    `json:"run"`
		Alerts  []database.AlertRow      `json:"alerts"`
		Records []database.TurbineRecord `json:"records"`
	}](t, rec)
	assert.Equal(t, 3, detail.Run.RecordCount)
	assert.Len(t, detail.Alerts, detail.Run.AlertCount)
	assert.Len(t, detail.Records, 2)

	rec = env.do(t, "GET", "/api/runs/"+runID+"/chart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = env.do(t, "GET", "/api/runs/"+runID+"/export", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"run.json", "alerts.json", "alerts.png"}, names)

	require.Eventually(t, func() bool {
		rec := env.do(t, "GET", "/api/turbines/stats", "")
		var body struct {
			Count int `json:"count"`
		}
		return json.Unmarshal(rec.Body.Bytes(), &body) == nil && body.Count > 0
	}, 5*time.Second, 10*time.Millisecond)

	rec = env.do(t, "GET", "/api/runs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, "GET", "/metrics", "")
	assert.Contains(t, rec.Body.String(), `turbinelens_ingestions_total{outcome="complete"} 1`)
}

func TestIngestRejections(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		fileName string
		content  string
		status   int
		kind     string
	}{
		{"wrong extension", "turbines.xlsx", turbineCSV, http.StatusUnsupportedMediaType, "unsupported_format"},
		{"missing label column", "turbines.csv", "Turbine_ID,Vibration\nWT-001,0.2\n", http.StatusUnprocessableEntity, "validation"},
		{"header only", "turbines.csv", "Turbine_ID,Maintenance_Label\n", http.StatusUnprocessableEntity, "validation"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := fmt.Sprintf("d%d", i)
			rec := env.upload(t, id, tt.fileName, tt.content)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.kind, decode[map[string]string](t, rec)["kind"])

			view := waitForDashboard(t, env, id, "failed")
			assert.Equal(t, tt.kind, view.ErrorKind)
			assert.Nil(t, view.Bundle)

			// a failure is cleared by dismissing it
			rec = env.do(t, "POST", "/api/dashboards/"+id+"/dismiss", "")
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "idle", decode[DashboardView](t, rec).State)
		})
	}
}

func TestIngestRequiresFileField(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/dashboards/main/ingest", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestTooLarge(t *testing.T) {
	env := newTestEnv(t)

	big := turbineCSV + strings.Repeat("2026-01-01 02:00,WT-003,0.50,0\n", 40000)
	rec := env.upload(t, "main", "big.csv", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestDashboardLifecycle(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/api/dashboards/fresh", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", decode[DashboardView](t, rec).State)

	rec = env.do(t, "POST", "/api/dashboards/fresh/dismiss", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.upload(t, "fresh", "turbines.csv", turbineCSV)
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForDashboard(t, env, "fresh", "complete")

	rec = env.do(t, "DELETE", "/api/dashboards/fresh", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, "DELETE", "/api/dashboards/fresh", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotifyAlert(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/alerts/notify", `{"recipient":"","alert":{"turbine_id":"T08","probability":0.89}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "POST", "/api/alerts/notify", `{"recipient":"not an address","alert":{"turbine_id":"T08","probability":0.89}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, "POST", "/api/alerts/notify", `{"recipient":"tech@example.com","alert":{"turbine_id":"T08","probability":0.89}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	receipt := decode[notify.Receipt](t, rec)
	assert.Equal(t, "tech@example.com", receipt.Recipient)
	assert.Contains(t, receipt.Subject, "HIGH priority")

	// burst of one per minute
	rec = env.do(t, "POST", "/api/alerts/notify", `{"recipient":"tech@example.com","alert":{"turbine_id":"T13","probability":0.76}}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = env.do(t, "GET", "/api/alerts/notifications", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]interface{}](t, rec)["count"])
}

func TestSampleEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/api/turbines/sample", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "35,040", body["records_display"])

	rec = env.do(t, "GET", "/api/turbines/sample/chart", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = env.do(t, "GET", "/api/turbines/sample/csv?seed=7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	table, err := etl.ParseCSV(rec.Body.String())
	require.NoError(t, err)
	assert.Len(t, table.Rows, 12)
}

func TestCleanupAndMart(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/api/cleanup", `{"days":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	old := time.Now().UTC().AddDate(0, 0, -90)
	run := database.IngestionRun{RunID: "old", DashboardID: "main", FileName: "old.csv", Headers: []string{"Maintenance_Label"}, CreatedAt: old}
	alerts := []database.AlertRow{{TurbineID: "WT-009", Probability: 0.9, Model: analysis.ModelGBDT, Severity: "high", DetectedAt: old}}
	require.NoError(t, env.repo.SaveRun(run, nil, alerts))

	rec = env.do(t, "POST", "/api/mart/refresh", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, "POST", "/api/cleanup", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Days    int                    `json:"days"`
		Deleted database.CleanupResult `json:"deleted"`
	}](t, rec)
	assert.Equal(t, 30, body.Days)
	assert.Equal(t, int64(1), body.Deleted.Runs)
	assert.Equal(t, int64(1), body.Deleted.Alerts)

	rec = env.do(t, "GET", "/api/turbines/stats", "")
	assert.EqualValues(t, 0, decode[map[string]interface{}](t, rec)["count"])

	rec = env.do(t, "PUT", "/api/config/retention", `{"days":7}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, env.cfg.Retention.IngestionDays)
}
