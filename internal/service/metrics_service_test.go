package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/sirh-sync/internal/models"
)

func TestMetricsRecordRegistryCalls(t *testing.T) {
	m := NewMetricsService()

	m.ObserveRegistryCall("sessions", http.StatusOK, 20*time.Millisecond)
	m.ObserveRegistryCall("sessions", 0, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.registryCalls.WithLabelValues("sessions", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.registryCalls.WithLabelValues("sessions", "error")))
}

func TestMetricsRecordSyncRun(t *testing.T) {
	m := NewMetricsService()
	finished := time.Date(2026, 1, 1, 2, 0, 30, 0, time.UTC)

	m.RecordSyncRun(&models.RunReport{
		StartedAt:  finished.Add(-30 * time.Second),
		FinishedAt: finished,
		Instances: []models.InstanceSyncReport{
			{State: models.SyncStateNoChange},
			{State: models.SyncStateSkipped},
			{State: models.SyncStateUsersChanged, Reconcile: &models.ReconcileResult{Enrolled: 3, Removed: 1}},
		},
	})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncInstances.WithLabelValues(string(models.SyncStateSkipped))))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.reconcileOps.WithLabelValues("enrolled")))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(m.syncLastRun))
}

func TestMetricsHandlerExposesRegistry(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/sessions", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sirh_sync_last_run_timestamp_seconds")
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/api/v1/sessions",status="200"} 1`)
}

func TestMetricsNilSafe(t *testing.T) {
	var m *MetricsService
	assert.NotPanics(t, func() {
		m.ObserveRegistryCall("sessions", 200, time.Millisecond)
		m.RecordSyncRun(&models.RunReport{})
		m.RecordReconcile(models.ReconcileResult{})
		m.RecordCacheOperation(true, time.Millisecond)
	})
}
