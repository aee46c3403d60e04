package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	slotsDiscovered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bigzbot",
			Name:      "slots_discovered_total",
			Help:      "Count of availability discoveries by outcome.",
		},
		[]string{"outcome"},
	)

	bookingSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bigzbot",
			Name:      "booking_submitted_total",
			Help:      "Count of booking submissions by outcome.",
		},
		[]string{"outcome"},
	)

	scheduleViewed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bigzbot",
			Name:      "schedule_viewed_total",
			Help:      "Count of schedule views.",
		},
	)

	storageErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bigzbot",
			Name:      "storage_errors_total",
			Help:      "Count of state store failures that aborted a dialog turn.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(slotsDiscovered, bookingSubmitted, scheduleViewed, storageErrors)
	})
}

func IncSlotsDiscovered(outcome string) {
	slotsDiscovered.WithLabelValues(outcome).Inc()
}

func IncBookingSubmitted(outcome string) {
	bookingSubmitted.WithLabelValues(outcome).Inc()
}

func IncScheduleViewed() {
	scheduleViewed.Inc()
}

func IncStorageError() {
	storageErrors.Inc()
}
