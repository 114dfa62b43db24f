// Package metrics holds the Prometheus collectors of the shop. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/example/ec-shop/internal/apperr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ecshop"

type Metrics struct {
	httpRequests    *prometheus.CounterVec
	cartOperations  *prometheus.CounterVec
	checkouts       *prometheus.CounterVec
	outboxPublished prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		cartOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_operations_total",
			Help:      "Cart mutations by operation and result.",
		}, []string{"op", "result"}),
		checkouts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by result.",
		}, []string{"result"}),
		outboxPublished: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox events published to Kafka.",
		}),
	}
}

// Result is the label value for the outcome err.
func Result(err error) string {
	switch apperr.Kind(err) {
	case nil:
		if err == nil {
			return "ok"
		}
		return "error"
	case apperr.ErrNotFound:
		return "not_found"
	case apperr.ErrInvalidArgument:
		return "invalid_argument"
	case apperr.ErrUnauthenticated:
		return "unauthenticated"
	case apperr.ErrForbidden:
		return "forbidden"
	case apperr.ErrConflict:
		return "conflict"
	default:
		return "error"
	}
}

func (m *Metrics) HTTPRequest(method string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func (m *Metrics) CartOperation(op string, err error) {
	if m == nil {
		return
	}
	m.cartOperations.WithLabelValues(op, Result(err)).Inc()
}

func (m *Metrics) Checkout(err error) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(Result(err)).Inc()
}

func (m *Metrics) OutboxPublished(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outboxPublished.Add(float64(n))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
