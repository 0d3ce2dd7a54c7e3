// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registration results.
const (
	ResultRegistered = "registered"
	ResultFull       = "full"
	ResultDuplicate  = "duplicate"
	ResultRejected   = "rejected"
)

// Attendance events.
const (
	EventJoined   = "joined"
	EventLeft     = "left"
	EventRejected = "rejected"
)

// Metrics groups the HTTP and meeting collectors.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RegistrationsTotal  *prometheus.CounterVec
	AttendanceTotal     *prometheus.CounterVec
	EmailsTotal         *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RegistrationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "meeting_registrations_total",
				Help:      "Meeting registration attempts by result",
			},
			[]string{"result"},
		),
		AttendanceTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "meeting_attendance_events_total",
				Help:      "Join and leave events by outcome",
			},
			[]string{"event"},
		),
		EmailsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "emails_total",
				Help:      "Notification emails by type and status",
			},
			[]string{"type", "status"},
		),
	}
}

// ObserveRegistration counts one registration attempt. Safe on a nil receiver.
func (m *Metrics) ObserveRegistration(result string) {
	if m == nil {
		return
	}
	m.RegistrationsTotal.WithLabelValues(result).Inc()
}

// ObserveAttendance counts one attendance event. Safe on a nil receiver.
func (m *Metrics) ObserveAttendance(event string) {
	if m == nil {
		return
	}
	m.AttendanceTotal.WithLabelValues(event).Inc()
}

// ObserveEmail counts one email delivery attempt. Safe on a nil receiver.
func (m *Metrics) ObserveEmail(emailType, status string) {
	if m == nil {
		return
	}
	m.EmailsTotal.WithLabelValues(emailType, status).Inc()
}
