// Package metrics holds the prometheus collectors for the poller and the
// HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

type Metrics struct {
	pollCycles    prometheus.Counter
	cycleDuration prometheus.Histogram
	fetches       *prometheus.CounterVec
	storeErrors   prometheus.Counter
	notifications *prometheus.CounterVec
	rearms        prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers every collector on reg. Passing a fresh prometheus.NewRegistry
// keeps tests independent of the global registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		pollCycles: f.NewCounter(prometheus.CounterOpts{
			Name: "pricewatch_poll_cycles_total",
			Help: "Completed poll cycles",
		}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pricewatch_poll_cycle_duration_seconds",
			Help:    "Wall time of one poll cycle",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_fetch_total",
			Help: "Price lookups partitioned by result",
		}, []string{"result"}),
		storeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "pricewatch_store_errors_total",
			Help: "Failed row-store writes during polling",
		}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_notifications_total",
			Help: "Price-drop notifications partitioned by result",
		}, []string{"result"}),
		rearms: f.NewCounter(prometheus.CounterOpts{
			Name: "pricewatch_rearms_total",
			Help: "Watches re-armed after the price rose above target",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_http_requests_total",
			Help: "HTTP requests partitioned by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pricewatch_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

func (m *Metrics) CycleDone(d time.Duration) {
	m.pollCycles.Inc()
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) Fetch(ok bool) {
	m.fetches.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) StoreError() {
	m.storeErrors.Inc()
}

func (m *Metrics) Notification(ok bool) {
	m.notifications.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) Rearm() {
	m.rearms.Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func result(ok bool) string {
	if ok {
		return ResultOK
	}
	return ResultFailed
}
