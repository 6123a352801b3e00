package api

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"city_limits/pkg/stitch"
)

// Metrics holds the Prometheus collectors of the API.
type Metrics struct {
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	fragments    prometheus.Counter
	paths        prometheus.Counter
	stitchErrors *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "city_limits_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "city_limits_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "city_limits_stitched_fragments_total",
			Help: "Fragments consumed by stitch requests.",
		}),
		paths: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "city_limits_stitched_paths_total",
			Help: "Paths produced by stitch requests.",
		}),
		stitchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "city_limits_stitch_errors_total",
			Help: "Rejected stitch inputs by error kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.requests, m.latency, m.fragments, m.paths, m.stitchErrors)
	return m
}

func (m *Metrics) observeRequest(route string, code int, elapsed time.Duration) {
	m.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.latency.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) observeStitch(fragments, paths int) {
	m.fragments.Add(float64(fragments))
	m.paths.Add(float64(paths))
}

func (m *Metrics) observeStitchError(err error) {
	kind := "other"
	switch {
	case errors.Is(err, stitch.ErrInvalidFragment):
		kind = "invalid_fragment"
	case errors.Is(err, stitch.ErrUnresolvedPoint):
		kind = "unresolved_point"
	}
	m.stitchErrors.WithLabelValues(kind).Inc()
}
