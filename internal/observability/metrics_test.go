package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solana-sniper-bot/autotrader/internal/config"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics("test")

	m.SafetyEvaluation("computed", 10*time.Millisecond)
	m.SafetyEvaluation("cached", 0)
	m.Decision(EngineSniper, "accepted")
	m.DispatchStarted(EngineSniper)
	m.DispatchFinished(EngineSniper, "success", time.Second)
	m.Notification("telegram", errors.New("blocked"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SafetyEvaluations.WithLabelValues("cached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues(EngineSniper, "accepted")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.DispatchInFlight.WithLabelValues(EngineSniper)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Dispatches.WithLabelValues(EngineSniper, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("telegram", "error")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.SafetyEvaluation("failed", time.Second)
		m.ScanCompleted(EngineCopyTrade, time.Second, nil)
		m.Decision(EngineCopyTrade, "filtered")
		m.DispatchStarted(EngineCopyTrade)
		m.DispatchFinished(EngineCopyTrade, "failed", time.Second)
		m.Notification("log", nil)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics("test")
	m.ScanCompleted(EngineSniper, time.Second, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_engine_scan_ticks_total")
}

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), config.TracingConfig{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.NotNil(t, Tracer())
}
