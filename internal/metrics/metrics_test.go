package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return New(reg, reg)
}

func TestMetrics_LikeMutation(t *testing.T) {
	m := newTestMetrics()

	m.LikeMutation("toggle", nil)
	m.LikeMutation("toggle", nil)
	m.LikeMutation("toggle", errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.likeToggles.WithLabelValues("toggle", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.likeToggles.WithLabelValues("toggle", "error")))
}

func TestMetrics_LiveViews(t *testing.T) {
	m := newTestMetrics()

	m.ViewOpened()
	m.ViewOpened()
	m.ViewClosed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.liveViews))
}

func TestMetrics_CacheSync(t *testing.T) {
	m := newTestMetrics()

	m.CacheSync(12, nil)
	m.CacheSync(0, errors.New("redis down"))

	assert.Equal(t, 12.0, testutil.ToFloat64(m.cacheSyncWorlds))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheSyncs.WithLabelValues("error")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.LikeMutation("toggle", nil)
		m.WorldLoad(time.Millisecond, nil)
		m.ViewOpened()
		m.HTTPRequest("GET", "/", 200, time.Millisecond)
		m.KafkaMessage("produce", nil)
		m.CacheSync(1, nil)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := newTestMetrics()
	m.WorldLoad(10*time.Millisecond, nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gallery_world_loads_total")
}
