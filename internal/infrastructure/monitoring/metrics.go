package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	Registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Probe metrics
	ProbeRuns       *prometheus.CounterVec
	ProbeDuration   *prometheus.HistogramVec
	IsolatesActive  prometheus.Gauge
	BatchesTotal    prometheus.Counter
	BatchSize       prometheus.Histogram
	PluginsLoaded   prometheus.Gauge
	ManifestRejects *prometheus.CounterVec

	// Capability metrics
	CapabilityCalls    *prometheus.CounterVec
	CapabilityDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for the JSON API
type Snapshot struct {
	TotalRuns       int64            `json:"totalRuns"`
	FailedRuns      int64            `json:"failedRuns"`
	ActiveIsolates  int64            `json:"activeIsolates"`
	TotalBatches    int64            `json:"totalBatches"`
	Outcomes        map[string]int64 `json:"outcomes"`
	UptimeSeconds   float64          `json:"uptimeSeconds"`
	AvgRunSeconds   float64          `json:"avgRunSeconds"`
	totalRunSeconds float64
}

// NewMetrics creates a metrics collector on its own registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.NewRegistry())
}

// NewMetricsWithRegistry creates a metrics collector registered on reg.
func NewMetricsWithRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		Registry:  reg,
		startTime: time.Now(),
		snapshot:  Snapshot{Outcomes: make(map[string]int64)},

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probehost_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "probehost_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		ProbeRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probehost_probe_runs_total",
				Help: "Total number of probe runs by outcome",
			},
			[]string{"plugin", "outcome"},
		),
		ProbeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "probehost_probe_duration_seconds",
				Help:    "Probe run duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"plugin"},
		),
		IsolatesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "probehost_isolates_active",
				Help: "Number of live plugin isolates",
			},
		),
		BatchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "probehost_batches_total",
				Help: "Total number of probe batches started",
			},
		),
		BatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "probehost_batch_size",
				Help:    "Number of plugins per batch",
				Buckets: []float64{1, 2, 4, 8, 16, 32},
			},
		),
		PluginsLoaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "probehost_plugins_loaded",
				Help: "Number of plugins in the registry",
			},
		),
		ManifestRejects: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probehost_manifest_rejects_total",
				Help: "Plugin manifests skipped during discovery",
			},
			[]string{"reason"},
		),

		CapabilityCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probehost_capability_calls_total",
				Help: "Total number of host capability calls",
			},
			[]string{"capability", "op", "status"},
		),
		CapabilityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "probehost_capability_duration_seconds",
				Help:    "Host capability call duration in seconds",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 10},
			},
			[]string{"capability"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "probehost_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "probehost_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "probehost_uptime_seconds",
			Help: "Host uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)
	reg.MustRegister(collectors.NewGoCollector())

	return m
}

// Recording methods are no-ops on a nil *Metrics.

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordProbeRun records a finished probe run. outcome is "ok" or a failure kind.
func (m *Metrics) RecordProbeRun(plugin, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ProbeRuns.WithLabelValues(plugin, outcome).Inc()
	m.ProbeDuration.WithLabelValues(plugin).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRuns++
	if outcome != "ok" {
		m.snapshot.FailedRuns++
	}
	m.snapshot.Outcomes[outcome]++
	m.snapshot.totalRunSeconds += duration.Seconds()
	m.mu.Unlock()
}

// RecordCapabilityCall records one host capability invocation
func (m *Metrics) RecordCapabilityCall(capability, op string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.CapabilityCalls.WithLabelValues(capability, op, status).Inc()
	m.CapabilityDuration.WithLabelValues(capability).Observe(duration.Seconds())
}

// RecordBatch records a batch start
func (m *Metrics) RecordBatch(size int) {
	if m == nil {
		return
	}
	m.BatchesTotal.Inc()
	m.BatchSize.Observe(float64(size))
	m.mu.Lock()
	m.snapshot.TotalBatches++
	m.mu.Unlock()
}

// IsolateCreated increments the live isolate gauge
func (m *Metrics) IsolateCreated() {
	if m == nil {
		return
	}
	m.IsolatesActive.Inc()
	m.mu.Lock()
	m.snapshot.ActiveIsolates++
	m.mu.Unlock()
}

// IsolateDisposed decrements the live isolate gauge
func (m *Metrics) IsolateDisposed() {
	if m == nil {
		return
	}
	m.IsolatesActive.Dec()
	m.mu.Lock()
	m.snapshot.ActiveIsolates--
	m.mu.Unlock()
}

// SetPluginsLoaded sets the registry size
func (m *Metrics) SetPluginsLoaded(count int) {
	if m == nil {
		return
	}
	m.PluginsLoaded.Set(float64(count))
}

// RecordManifestReject records a skipped plugin directory
func (m *Metrics) RecordManifestReject(reason string) {
	if m == nil {
		return
	}
	m.ManifestRejects.WithLabelValues(reason).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// GetSnapshot returns a copy of the current values.
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{Outcomes: map[string]int64{}}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.snapshot
	snap.Outcomes = make(map[string]int64, len(m.snapshot.Outcomes))
	for k, v := range m.snapshot.Outcomes {
		snap.Outcomes[k] = v
	}
	snap.UptimeSeconds = time.Since(m.startTime).Seconds()
	if snap.TotalRuns > 0 {
		snap.AvgRunSeconds = snap.totalRunSeconds / float64(snap.TotalRuns)
	}
	return snap
}
