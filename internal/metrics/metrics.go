// Package metrics exposes Prometheus instruments for check-ins and hall passes.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rollcall"

// Metrics holds the application's collectors.
type Metrics struct {
	checkIns       *prometheus.CounterVec
	passCheckouts  *prometheus.CounterVec
	passCheckins   *prometheus.CounterVec
	overdueFlipped *prometheus.CounterVec
	openPasses     *prometheus.GaugeVec
	storageErrors  *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		checkIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkins_total",
			Help:      "Attendance check-ins by group and outcome.",
		}, []string{"group", "status"}),
		passCheckouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hallpass_checkouts_total",
			Help:      "Hall passes issued.",
		}, []string{"group"}),
		passCheckins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hallpass_checkins_total",
			Help:      "Hall passes returned.",
		}, []string{"group"}),
		overdueFlipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hallpass_overdue_total",
			Help:      "Hall passes reclassified as overdue.",
		}, []string{"group"}),
		openPasses: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hallpass_open",
			Help:      "Hall passes currently out, by status.",
		}, []string{"group", "status"}),
		storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Failed persistence operations.",
		}, []string{"op"}),
	}
	reg.MustRegister(m.checkIns, m.passCheckouts, m.passCheckins, m.overdueFlipped, m.openPasses, m.storageErrors)
	return m
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func (m *Metrics) CheckIn(group, status string) {
	if m == nil {
		return
	}
	m.checkIns.WithLabelValues(group, status).Inc()
}

func (m *Metrics) PassCheckout(group string) {
	if m == nil {
		return
	}
	m.passCheckouts.WithLabelValues(group).Inc()
}

func (m *Metrics) PassCheckin(group string) {
	if m == nil {
		return
	}
	m.passCheckins.WithLabelValues(group).Inc()
}

func (m *Metrics) Overdue(group string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.overdueFlipped.WithLabelValues(group).Add(float64(n))
}

// SetOpenPasses records the open pass counts seen by the latest read.
func (m *Metrics) SetOpenPasses(group string, active, overdue int) {
	if m == nil {
		return
	}
	m.openPasses.WithLabelValues(group, "active").Set(float64(active))
	m.openPasses.WithLabelValues(group, "overdue").Set(float64(overdue))
}

func (m *Metrics) StorageError(op string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(op).Inc()
}
