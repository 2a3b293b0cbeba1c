// Package metrics exposes prometheus counters for the orchestrator. All
// observers are nil-safe so services run without metrics wired.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type OrchestratorMetrics struct {
	actions         *prometheus.CounterVec
	verifications   *prometheus.CounterVec
	readFailures    *prometheus.CounterVec
	webhookDelivery *prometheus.CounterVec
	receiptWaitSecs prometheus.Histogram
}

// Scope selects which series a process exports. The API server settles
// invoices; walletctl dispatches actions and reads snapshots.
type Scope int

const (
	ScopeServer Scope = iota // payment verifications, webhook deliveries
	ScopeWallet              // actions, snapshot read failures, receipt waits
	ScopeAll
)

var (
	orchestratorOnce     sync.Once
	orchestratorRegistry *OrchestratorMetrics
)

// Orchestrator returns the API server's metrics, registering the server
// series with the default prometheus registry on first use.
func Orchestrator() *OrchestratorMetrics {
	orchestratorOnce.Do(func() {
		orchestratorRegistry = New(prometheus.DefaultRegisterer, ScopeServer)
	})
	return orchestratorRegistry
}

// New builds metrics and registers the series of scope with reg. Observers
// for series outside scope still work but are never exported.
func New(reg prometheus.Registerer, scope Scope) *OrchestratorMetrics {
	m := newOrchestratorMetrics()
	reg.MustRegister(m.collectors(scope)...)
	return m
}

// NewUnregistered builds metrics with every series registered with reg
// instead of the default registry.
func NewUnregistered(reg prometheus.Registerer) *OrchestratorMetrics {
	return New(reg, ScopeAll)
}

func (m *OrchestratorMetrics) collectors(scope Scope) []prometheus.Collector {
	server := []prometheus.Collector{m.verifications, m.webhookDelivery}
	wallet := []prometheus.Collector{m.actions, m.readFailures, m.receiptWaitSecs}
	switch scope {
	case ScopeServer:
		return server
	case ScopeWallet:
		return wallet
	default:
		return append(server, wallet...)
	}
}

func newOrchestratorMetrics() *OrchestratorMetrics {
	return &OrchestratorMetrics{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "w3o_actions_total",
			Help: "Dispatched actions by kind and final state.",
		}, []string{"kind", "state"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "w3o_payment_verifications_total",
			Help: "Invoice payment verifications by result.",
		}, []string{"result"}),
		readFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "w3o_snapshot_read_failures_total",
			Help: "Snapshot field reads that fell back to unavailable.",
		}, []string{"field"}),
		webhookDelivery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "w3o_webhook_deliveries_total",
			Help: "Webhook deliveries by event and outcome.",
		}, []string{"event", "status"}),
		receiptWaitSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "w3o_receipt_wait_seconds",
			Help:    "Time from submission to a settled receipt.",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
	}
}

func (m *OrchestratorMetrics) ObserveAction(kind, state string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.actions.WithLabelValues(kind, state).Inc()
}

func (m *OrchestratorMetrics) ObserveVerification(result string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(result).Inc()
}

func (m *OrchestratorMetrics) ObserveReadFailure(field string) {
	if m == nil {
		return
	}
	m.readFailures.WithLabelValues(field).Inc()
}

func (m *OrchestratorMetrics) ObserveWebhook(event, status string) {
	if m == nil {
		return
	}
	m.webhookDelivery.WithLabelValues(event, status).Inc()
}

func (m *OrchestratorMetrics) ObserveReceiptWait(seconds float64) {
	if m == nil {
		return
	}
	m.receiptWaitSecs.Observe(seconds)
}
