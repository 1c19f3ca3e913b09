package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "storefront"

// Metrics holds the process collectors. All methods are safe on a nil
// receiver so components can run without metrics in tests.
type Metrics struct {
	apiRequests       *prometheus.CounterVec
	apiLatency        *prometheus.HistogramVec
	reconcileRuns     *prometheus.CounterVec
	reconcileLatency  prometheus.Histogram
	lookupFailures    prometheus.Counter
	cartMutations     *prometheus.CounterVec
	saveFailures      prometheus.Counter
	checkoutBlocked   *prometheus.CounterVec
	ordersPlaced      prometheus.Counter
	eventPublishFails prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		// Labels: endpoint, status (HTTP status class or "error")
		apiRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Requests sent to the storefront API",
		}, []string{"endpoint", "status"}),
		apiLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Storefront API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		// Labels: outcome (applied, stale, canceled)
		reconcileRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "reconcile_total",
			Help:      "Inventory reconciliation passes by outcome",
		}, []string{"outcome"}),
		reconcileLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "reconcile_duration_seconds",
			Help:      "Duration of a reconciliation pass",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		lookupFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "lookup_failures_total",
			Help:      "Stock lookups that failed and degraded to unknown",
		}),
		cartMutations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "mutations_total",
			Help:      "Cart mutations by operation",
		}, []string{"op"}),
		saveFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "save_failures_total",
			Help:      "Cart writes the store rejected",
		}),
		checkoutBlocked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "blocked_total",
			Help:      "Checkout attempts refused by the gate",
		}, []string{"reason"}),
		ordersPlaced: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "orders_placed_total",
			Help:      "Orders accepted by the order service",
		}),
		eventPublishFails: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_failures_total",
			Help:      "Order events that could not be published",
		}),
	}
}

func (m *Metrics) ObserveAPIRequest(endpoint, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(endpoint, status).Inc()
	m.apiLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveReconcile(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.reconcileRuns.WithLabelValues(outcome).Inc()
	m.reconcileLatency.Observe(elapsed.Seconds())
}

func (m *Metrics) LookupFailed() {
	if m == nil {
		return
	}
	m.lookupFailures.Inc()
}

func (m *Metrics) CartMutation(op string) {
	if m == nil {
		return
	}
	m.cartMutations.WithLabelValues(op).Inc()
}

func (m *Metrics) SaveFailed() {
	if m == nil {
		return
	}
	m.saveFailures.Inc()
}

func (m *Metrics) CheckoutBlocked(reason string) {
	if m == nil {
		return
	}
	m.checkoutBlocked.WithLabelValues(reason).Inc()
}

func (m *Metrics) OrderPlaced() {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
}

func (m *Metrics) PublishFailed() {
	if m == nil {
		return
	}
	m.eventPublishFails.Inc()
}
