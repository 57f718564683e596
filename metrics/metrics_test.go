package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turbinelens/emissions"
)

func TestRegistryCounters(t *testing.T) {
	r := NewRegistry()

	r.IngestionFinished("complete", 120)
	r.IngestionFinished("validation", 0)
	r.IngestionFinished("complete", 30)
	r.MixComputed(emissions.Green)
	r.NotificationSent("sent")
	r.ObserveProvider("mock", "success", 150*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Ingestions.WithLabelValues("complete")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Ingestions.WithLabelValues("validation")))
	assert.Equal(t, 150.0, testutil.ToFloat64(r.IngestedRecords))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.MixComputations.WithLabelValues("green")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Notifications.WithLabelValues("sent")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.ProviderDuration))
}

func TestRegistryHandler(t *testing.T) {
	r := NewRegistry()
	r.IngestionFinished("complete", 1)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `turbinelens_ingestions_total{outcome="complete"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
