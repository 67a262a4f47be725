// Package metrics registers the engine's prometheus/client_golang
// instruments (spec §10.6). Metrics are a passive observer: nothing in this
// package feeds back into engine logic.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every instrument the engine updates. Registry is exposed
// so an embedder can mount /metrics; the engine never listens on HTTP
// itself.
type Metrics struct {
	Registry *prometheus.Registry

	CacheBytesUsed      prometheus.Gauge
	CacheEntries        prometheus.Gauge
	WorkspacesOpen      prometheus.Gauge
	RPCRequestsTotal    *prometheus.CounterVec
	RPCRateLimitedTotal *prometheus.CounterVec
	StorageErrorsTotal  prometheus.Counter
}

// New constructs and registers every instrument against a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		CacheBytesUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memoryd_cache_bytes_used",
			Help: "Bytes currently resident in the Core Cache.",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memoryd_cache_entries",
			Help: "Number of blocks currently resident in the Core Cache.",
		}),
		WorkspacesOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "memoryd_workspaces_open",
			Help: "Number of workspace contexts currently held open by the LRU.",
		}),
		RPCRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memoryd_rpc_requests_total",
			Help: "Total JSON-RPC requests handled, by method and outcome.",
		}, []string{"method", "outcome"}),
		RPCRateLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "memoryd_rpc_rate_limited_total",
			Help: "Total JSON-RPC requests rejected for exceeding their method's rate limit.",
		}, []string{"method"}),
		StorageErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "memoryd_storage_errors_total",
			Help: "Total storage backend I/O failures surfaced as StorageUnavailable.",
		}),
	}

	reg.MustRegister(
		m.CacheBytesUsed,
		m.CacheEntries,
		m.WorkspacesOpen,
		m.RPCRequestsTotal,
		m.RPCRateLimitedTotal,
		m.StorageErrorsTotal,
	)
	return m
}

// ObserveRequest records one completed RPC call's outcome.
func (m *Metrics) ObserveRequest(method, outcome string) {
	m.RPCRequestsTotal.WithLabelValues(method, outcome).Inc()
}

// ObserveRateLimited records one RPC call rejected by the token bucket.
func (m *Metrics) ObserveRateLimited(method string) {
	m.RPCRateLimitedTotal.WithLabelValues(method).Inc()
}

// ObserveStorageError records one storage I/O failure.
func (m *Metrics) ObserveStorageError() {
	m.StorageErrorsTotal.Inc()
}

// SampleCache updates the cache gauges from a snapshot; called by the
// background resource sampler every 30s (spec §4.8/§10.6).
func (m *Metrics) SampleCache(bytesUsed, entries int) {
	m.CacheBytesUsed.Set(float64(bytesUsed))
	m.CacheEntries.Set(float64(entries))
}

// SampleWorkspaces updates the open-workspace gauge.
func (m *Metrics) SampleWorkspaces(open int) {
	m.WorkspacesOpen.Set(float64(open))
}
