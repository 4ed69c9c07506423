// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	VersionsCreated    prometheus.Counter
	AnnotationsCreated prometheus.Counter
	AnchorResolutions  *prometheus.CounterVec
	SharesGranted      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		VersionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "annotator",
			Name:      "versions_created_total",
			Help:      "Document versions created.",
		}),
		AnnotationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "annotator",
			Name:      "annotations_created_total",
			Help:      "Annotations created.",
		}),
		AnchorResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "annotator",
			Name:      "anchor_resolutions_total",
			Help:      "Annotation span resolutions by method (offsets, search, failed).",
		}, []string{"method"}),
		SharesGranted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "annotator",
			Name:      "shares_granted_total",
			Help:      "Share grants by stored role.",
		}, []string{"role"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "annotator",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.VersionsCreated,
		m.AnnotationsCreated,
		m.AnchorResolutions,
		m.SharesGranted,
		m.RequestDuration,
	)
	return m
}

// NewNop returns collectors registered with a private registry, for tests
// and tools that do not serve /metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
