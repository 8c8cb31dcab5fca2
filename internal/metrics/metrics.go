// ABOUTME: Prometheus registry and collectors for documents, the bot queue and the relay
// ABOUTME: Implements botqueue.Recorder and relay.Metrics

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/hearth/internal/crdt"
)

const namespace = "hearth"

// Metrics holds the registry and every hearth collector.
type Metrics struct {
	registry *prometheus.Registry

	transactions     prometheus.Counter
	invocations      *prometheus.GaugeVec
	transitions      *prometheus.CounterVec
	relayPeers       *prometheus.GaugeVec
	updatesPersisted *prometheus.CounterVec
}

// New creates a registry with all collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Committed document frames, local and remote.",
		}),
		invocations: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "invocations",
			Help:      "Bot invocations currently held by the queue, by status.",
		}, []string{"status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocation_transitions_total",
			Help:      "Bot invocation status transitions.",
		}, []string{"status"}),
		relayPeers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_peers",
			Help:      "Peers connected to a document room.",
		}, []string{"document"}),
		updatesPersisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_persisted_total",
			Help:      "Document updates appended to the store.",
		}, []string{"document"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transactions,
		m.invocations,
		m.transitions,
		m.relayPeers,
		m.updatesPersisted,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveDocument counts every committed frame of doc. The returned function stops counting.
func (m *Metrics) ObserveDocument(doc *crdt.Doc) func() {
	return doc.OnUpdate(func(*crdt.Update, any) {
		m.transactions.Inc()
	})
}

// RecordTransition counts one invocation entering status.
func (m *Metrics) RecordTransition(status string) {
	m.transitions.WithLabelValues(status).Inc()
}

// SetStatusCounts replaces the per-status invocation gauges.
func (m *Metrics) SetStatusCounts(counts map[string]int) {
	for status, n := range counts {
		m.invocations.WithLabelValues(status).Set(float64(n))
	}
}

// SetPeers sets the peer gauge of document.
func (m *Metrics) SetPeers(document string, n int) {
	m.relayPeers.WithLabelValues(document).Set(float64(n))
}

// UpdatePersisted counts one stored update of document.
func (m *Metrics) UpdatePersisted(document string) {
	m.updatesPersisted.WithLabelValues(document).Inc()
}
