package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "zapis"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	appointmentsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_created_total",
			Help:      "Appointments committed by service.",
		},
		[]string{"service"},
	)

	appointmentsCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_cancelled_total",
			Help:      "Appointment cancellations by service.",
		},
		[]string{"service"},
	)

	bookingConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "Slot conflicts detected at selection or commit.",
		},
		[]string{"stage"},
	)

	reminders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_total",
			Help:      "Reminder deliveries by result.",
		},
		[]string{"result"},
	)

	callbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_requests_total",
			Help:      "Callback and consultation requests by kind.",
		},
		[]string{"kind"},
	)

	advanceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_advance_duration_seconds",
			Help:      "Time spent handling one booking dialogue input.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"input"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			appointmentsCreated,
			appointmentsCancelled,
			bookingConflicts,
			reminders,
			callbacks,
			advanceDuration,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncAppointmentCreated(serviceID string) {
	appointmentsCreated.WithLabelValues(serviceID).Inc()
}

func IncAppointmentCancelled(serviceID string) {
	appointmentsCancelled.WithLabelValues(serviceID).Inc()
}

// IncConflict counts a lost race for a slot; stage is "select" or "commit".
func IncConflict(stage string) {
	bookingConflicts.WithLabelValues(stage).Inc()
}

func IncReminder(result string) {
	reminders.WithLabelValues(result).Inc()
}

func IncCallback(kind string) {
	callbacks.WithLabelValues(kind).Inc()
}

func ObserveAdvance(input string, d time.Duration) {
	advanceDuration.WithLabelValues(input).Observe(d.Seconds())
}
