package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbinelens/emissions"
)

func useTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	viper.Reset()
	t.Cleanup(viper.Reset)
	return dir
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := useTempDir(t)
	t.Setenv("PRESETS_PATH", filepath.Join(dir, "presets.yaml"))

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.APIPort)
	assert.Equal(t, 10000.0, cfg.Emissions.AnnualConsumptionMWh)
	assert.Equal(t, 75.0, cfg.Emissions.CarbonPrice)
	assert.Equal(t, emissions.DefaultMix(), cfg.Emissions.Mix())
	assert.Equal(t, "mock", cfg.Provider.Mode)
	assert.Equal(t, int64(32<<20), cfg.Ingestion.MaxUploadBytes())
	assert.Equal(t, 30, cfg.Retention.IngestionDays)

	// the preset file is seeded on first load
	_, ok := cfg.Presets.Get("default")
	assert.True(t, ok)
	assert.FileExists(t, filepath.Join(dir, "presets.yaml"))
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := useTempDir(t)
	t.Setenv("PRESETS_PATH", filepath.Join(dir, "presets.yaml"))
	t.Setenv("API_PORT", "9090")

	yamlText := `
emissions:
  carbon_price: 90
  default_mix:
    wind: 60
    coal: 40
provider:
  mode: http
  url: http://models.local/analyze
  timeout_seconds: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yamlText), 0644))

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.APIPort)
	assert.Equal(t, 90.0, cfg.Emissions.CarbonPrice)
	assert.Equal(t, 10000.0, cfg.Emissions.AnnualConsumptionMWh)
	mix := cfg.Emissions.Mix()
	assert.Equal(t, 60.0, mix.Get(emissions.Wind))
	assert.Equal(t, 40.0, mix.Get(emissions.Coal))
	assert.Equal(t, "http", cfg.Provider.Mode)
	assert.Equal(t, "5s", cfg.Provider.Timeout().String())
}

func TestLoadConfigRejectsBadProvider(t *testing.T) {
	dir := useTempDir(t)
	t.Setenv("PRESETS_PATH", filepath.Join(dir, "presets.yaml"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("provider:\n  mode: http\n"), 0644))

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "provider.url")
}

func TestUpdateEmissionDefaultsWritesFile(t *testing.T) {
	dir := useTempDir(t)
	t.Setenv("PRESETS_PATH", filepath.Join(dir, "presets.yaml"))

	cfg, err := LoadConfig()
	require.NoError(t, err)

	var mix emissions.Mix
	mix.Set(emissions.Solar, 100)
	require.NoError(t, cfg.UpdateEmissionDefaults(mix, 500, 80))
	// a second save overwrites the file it just created
	require.NoError(t, cfg.UpdateRetention(7))

	assert.FileExists(t, filepath.Join(dir, "config.yaml"))

	viper.Reset()
	reloaded, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 500.0, reloaded.Emissions.AnnualConsumptionMWh)
	assert.Equal(t, 100.0, reloaded.Emissions.Mix().Get(emissions.Solar))
	assert.Equal(t, 7, reloaded.Retention.IngestionDays)
}

func TestPresetManager(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	m := NewPresetManager(path)
	require.NoError(t, m.Load())

	var green emissions.Mix
	green.Set(emissions.Hydro, 70)
	green.Set(emissions.Wind, 30)
	require.NoError(t, m.Put("green", green))
	assert.Equal(t, []string{"default", "green"}, m.Names())

	other := NewPresetManager(path)
	require.NoError(t, other.Load())
	got, ok := other.Get("green")
	require.True(t, ok)
	assert.Equal(t, green, got)

	all := other.GetAll()
	delete(all, "green")
	_, ok = other.Get("green")
	assert.True(t, ok, "GetAll must return a copy")

	require.NoError(t, other.Save(nil))
	assert.Empty(t, other.Names())
}
