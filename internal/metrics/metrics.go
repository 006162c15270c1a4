package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gallery's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	likeToggles     *prometheus.CounterVec
	worldLoads      *prometheus.CounterVec
	loadDuration    prometheus.Histogram
	liveViews       prometheus.Gauge
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	kafkaMessages   *prometheus.CounterVec
	cacheSyncs      *prometheus.CounterVec
	cacheSyncWorlds prometheus.Gauge
}

// New registers the collectors on reg
func New(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: gatherer,
		likeToggles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gallery_like_mutations_total",
			Help: "Like mutations by operation and result",
		}, []string{"operation", "result"}),
		worldLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gallery_world_loads_total",
			Help: "World list loads by status",
		}, []string{"status"}),
		loadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gallery_world_load_duration_seconds",
			Help:    "Latency of world list queries",
			Buckets: prometheus.DefBuckets,
		}),
		liveViews: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gallery_live_views",
			Help: "Connected live gallery views",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gallery_http_requests_total",
			Help: "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gallery_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		kafkaMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gallery_kafka_messages_total",
			Help: "Like events by direction and status",
		}, []string{"direction", "status"}),
		cacheSyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gallery_cache_syncs_total",
			Help: "Like-count cache reconciliation runs by status",
		}, []string{"status"}),
		cacheSyncWorlds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gallery_cache_sync_worlds",
			Help: "Worlds written by the last reconciliation run",
		}),
	}
}

// NewDefault registers on the default Prometheus registry
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// LikeMutation counts a toggle, like or unlike
func (m *Metrics) LikeMutation(operation string, err error) {
	if m == nil {
		return
	}
	m.likeToggles.WithLabelValues(operation, status(err)).Inc()
}

// WorldLoad records one world list query
func (m *Metrics) WorldLoad(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.worldLoads.WithLabelValues(status(err)).Inc()
	m.loadDuration.Observe(d.Seconds())
}

// ViewOpened increments the live view gauge
func (m *Metrics) ViewOpened() {
	if m == nil {
		return
	}
	m.liveViews.Inc()
}

// ViewClosed decrements the live view gauge
func (m *Metrics) ViewClosed() {
	if m == nil {
		return
	}
	m.liveViews.Dec()
}

// HTTPRequest records a served request
func (m *Metrics) HTTPRequest(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// KafkaMessage counts a produced or consumed like event
func (m *Metrics) KafkaMessage(direction string, err error) {
	if m == nil {
		return
	}
	m.kafkaMessages.WithLabelValues(direction, status(err)).Inc()
}

// CacheSync records one reconciliation run
func (m *Metrics) CacheSync(worlds int, err error) {
	if m == nil {
		return
	}
	m.cacheSyncs.WithLabelValues(status(err)).Inc()
	if err == nil {
		m.cacheSyncWorlds.Set(float64(worlds))
	}
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
