package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the talk2code collectors on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	Interactions  *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	UploadBytes   prometheus.Histogram
	HTTPRequests  *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		Interactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "talk2code_interactions_total",
			Help: "Finished interactions by input source and outcome",
		}, []string{"source", "outcome"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "talk2code_stage_duration_seconds",
			Help:    "Time spent per pipeline stage",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		UploadBytes: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "talk2code_upload_bytes",
			Help:    "Size of accepted audio uploads",
			Buckets: prometheus.ExponentialBuckets(16<<10, 4, 7),
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "talk2code_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Interaction(source, outcome string) {
	if m == nil {
		return
	}
	m.Interactions.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) Stage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) Upload(n int64) {
	if m == nil {
		return
	}
	m.UploadBytes.Observe(float64(n))
}

func (m *Metrics) HTTP(route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, httpCode(code)).Inc()
}

func httpCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
