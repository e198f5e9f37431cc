package telemetry

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/victornm/quizinho/internal/domain"
	"github.com/victornm/quizinho/internal/event"
)

type Metrics struct {
	QuizzesCreated *prometheus.CounterVec
	PaymentEvents  *prometheus.CounterVec
	QuizzesSwept   prometheus.Counter
	HTTPRequests   *prometheus.CounterVec
}

// NewMetrics registers the service counters on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QuizzesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quizinho",
			Name:      "quizzes_created_total",
			Help:      "Quizzes stored, by plan.",
		}, []string{"plan"}),
		PaymentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quizinho",
			Name:      "payment_events_total",
			Help:      "Verified payment notifications, by kind.",
		}, []string{"kind", "duplicate"}),
		QuizzesSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "quizinho",
			Name:      "sweep_deleted_total",
			Help:      "Quizzes deleted by the retention sweep.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quizinho",
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(m.QuizzesCreated, m.PaymentEvents, m.QuizzesSwept, m.HTTPRequests)
	return m
}

// Subscribe counts domain events published on eb.
func (m *Metrics) Subscribe(eb *event.Bus) {
	eb.Subscribe(func(_ context.Context, e event.Event) error {
		switch e := e.(type) {
		case domain.EventQuizCreated:
			m.QuizzesCreated.WithLabelValues(string(e.Quiz.Plan)).Inc()
		case domain.EventPaymentReceived:
			m.PaymentEvents.WithLabelValues(e.Kind.String(), strconv.FormatBool(e.Duplicate)).Inc()
		case domain.EventQuizSwept:
			m.QuizzesSwept.Inc()
		}
		return nil
	}, domain.EventNameQuizCreated, domain.EventNamePaymentReceived, domain.EventNameQuizSwept)
}

// HTTPMiddleware counts requests by matched route. Unmatched paths are grouped under "unmatched".
func (m *Metrics) HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
