package main

import (
	"net/http"

	"github.com/aquilax/treeboard/changefeed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry        *prometheus.Registry
	likesToggled    *prometheus.CounterVec
	commentsPosted  prometheus.Counter
	qrRendered      prometheus.Counter
	changeEvents    *prometheus.CounterVec
	openViews       prometheus.Gauge
	commentsBlocked prometheus.Counter
}

// NewMetrics registers the catalog collectors on a private registry so
// several servers can live in one process.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		likesToggled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treeboard",
			Name:      "likes_toggled_total",
			Help:      "Like toggles by resulting state.",
		}, []string{"liked"}),
		commentsPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "treeboard",
			Name:      "comments_posted_total",
			Help:      "Comments stored.",
		}),
		commentsBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "treeboard",
			Name:      "comments_throttled_total",
			Help:      "Comments rejected by the spam guard.",
		}),
		qrRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "treeboard",
			Name:      "qr_rendered_total",
			Help:      "QR code images rendered.",
		}),
		changeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treeboard",
			Name:      "change_events_total",
			Help:      "Change feed events published by table and operation.",
		}, []string{"table", "op"}),
		openViews: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "treeboard",
			Name:      "open_views",
			Help:      "Live tree views streaming updates.",
		}),
	}
	m.registry.MustRegister(
		m.likesToggled,
		m.commentsPosted,
		m.commentsBlocked,
		m.qrRendered,
		m.changeEvents,
		m.openViews,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) published(e changefeed.Event) {
	m.changeEvents.WithLabelValues(string(e.Table), string(e.Op)).Inc()
}

func (m *Metrics) liked(liked bool) {
	label := "false"
	if liked {
		label = "true"
	}
	m.likesToggled.WithLabelValues(label).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
