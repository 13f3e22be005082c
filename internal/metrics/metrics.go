// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "edumarket"

// Metrics holds the collectors exported on /metrics
type Metrics struct {
	registry *prometheus.Registry

	WSConnections  prometheus.Gauge
	WSMessagesSent *prometheus.CounterVec
	FeedEvents     *prometheus.CounterVec
	FeedErrors     prometheus.Counter
	Notifications  *prometheus.CounterVec
	Archived       prometheus.Counter
	HTTPPanics     prometheus.Counter
}

// New builds a Metrics on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Open websocket connections.",
		}),
		WSMessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "messages_sent_total",
			Help:      "Websocket messages queued to clients, by event type.",
		}, []string{"event"}),
		FeedEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_total",
			Help:      "Notification change events received from the database, by operation.",
		}, []string{"op"}),
		FeedErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "errors_total",
			Help:      "Change feed payloads that could not be delivered.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "created_total",
			Help:      "Notifications created through the admin API, by outcome.",
		}, []string{"outcome"}),
		Archived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notifications",
			Name:      "archived_total",
			Help:      "Notifications moved to the archive.",
		}),
		HTTPPanics: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "panics_total",
			Help:      "Handler panics recovered by the HTTP middleware.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.WSConnections,
		m.WSMessagesSent,
		m.FeedEvents,
		m.FeedErrors,
		m.Notifications,
		m.Archived,
		m.HTTPPanics,
	)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler(logger *zap.Logger) http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorLog:      zapPromLogger{logger},
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// zapPromLogger implements promhttp.Logger
type zapPromLogger struct {
	logger *zap.Logger
}

func (l zapPromLogger) Println(v ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Sugar().Error(v...)
}
