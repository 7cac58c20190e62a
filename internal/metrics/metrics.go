package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gardiens"

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

	quotes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Price quotes computed, by pricing formula.",
		},
		[]string{"formula"},
	)

	commits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_commits_total",
			Help:      "Booking commit attempts by result.",
		},
		[]string{"result"},
	)

	calendars = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_builds_total",
			Help:      "Month calendars built, by availability mode.",
		},
		[]string{"mode"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, quotes, commits, calendars)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncQuote counts a quote for a formula (hourly, daily, multi_day, duration, sessions, collective).
func IncQuote(formula string) {
	quotes.WithLabelValues(formula).Inc()
}

// IncCommit counts a commit attempt: created, slot_taken, invalid or error.
func IncCommit(result string) {
	commits.WithLabelValues(result).Inc()
}

func IncCalendar(mode string) {
	calendars.WithLabelValues(mode).Inc()
}
