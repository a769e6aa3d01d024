package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors on a private registry
type Metrics struct {
	registry *prometheus.Registry

	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Uploads         prometheus.Counter
	UploadBytes     prometheus.Counter
	NotesAdded      prometheus.Counter
	Projects        prometheus.Gauge
	Subscribers     prometheus.GaugeFunc
}

// New registers all collectors. subscribers reports the live websocket count
// and may be nil.
func New(subscribers func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tapedeck",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tapedeck",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Uploads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tapedeck",
			Name:      "uploads_total",
			Help:      "Audio files stored.",
		}),
		UploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tapedeck",
			Name:      "upload_bytes_total",
			Help:      "Bytes of audio stored.",
		}),
		NotesAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tapedeck",
			Name:      "notes_added_total",
			Help:      "Notes appended to projects.",
		}),
		Projects: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tapedeck",
			Name:      "projects",
			Help:      "Projects seen by the last listing.",
		}),
	}

	if subscribers == nil {
		subscribers = func() int { return 0 }
	}
	m.Subscribers = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "tapedeck",
		Name:      "websocket_subscribers",
		Help:      "Connected websocket event subscribers.",
	}, func() float64 { return float64(subscribers()) })

	reg.MustRegister(m.Requests, m.RequestDuration, m.Uploads, m.UploadBytes, m.NotesAdded, m.Projects, m.Subscribers)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
