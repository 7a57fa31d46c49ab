package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giselles-ai/giselle-sub007/internal/engine"
	"github.com/giselles-ai/giselle-sub007/internal/giselle"
)

func TestAttach_CountsTerminalEvents(t *testing.T) {
	m := New(prometheus.NewRegistry(), nil)
	bus := engine.NewEventBus()
	detach := m.Attach(bus)

	bus.Publish(engine.Event{Type: engine.EventGenerationStatus, GenerationStatus: giselle.GenerationRunning})
	bus.Publish(engine.Event{Type: engine.EventGenerationStatus, GenerationStatus: giselle.GenerationCompleted, Duration: 2 * time.Second})
	bus.Publish(engine.Event{Type: engine.EventGenerationStatus, GenerationStatus: giselle.GenerationFailed})
	bus.Publish(engine.Event{Type: engine.EventActStatus, ActStatus: giselle.ActInProgress})
	bus.Publish(engine.Event{Type: engine.EventActStatus, ActStatus: giselle.ActSuccess})
	bus.Publish(engine.Event{Type: engine.EventJobFinished})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.generationsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.generationsTotal.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.generationsTotal.WithLabelValues("running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsFinished))

	// only the completed generation carried a duration
	assert.Equal(t, 1, testutil.CollectAndCount(m.generationDuration))

	detach()
	bus.Publish(engine.Event{Type: engine.EventActStatus, ActStatus: giselle.ActSuccess})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actsTotal.WithLabelValues("success")))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	subscribers := 3
	m := New(prometheus.NewRegistry(), func() int { return subscribers })
	m.RecordHTTPRequest("GET", "/api/acts/{actID}", 200, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "giselle_live_subscribers 3")
	assert.Contains(t, string(body), `giselle_http_requests_total{method="GET",route="/api/acts/{actID}",status="200"} 1`)
}
