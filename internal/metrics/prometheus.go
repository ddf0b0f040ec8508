package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestCount counts HTTP requests
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration measures HTTP request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	// CheckCount counts plagiarism checks by outcome
	CheckCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plagiarism_checks_total",
			Help: "Total number of plagiarism checks",
		},
		[]string{"status"},
	)

	// CheckDuration measures how long a submission check takes
	CheckDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name: "plagiarism_check_duration_seconds",
			Help: "Plagiarism check duration in seconds",
		},
	)

	// ProctoringEvents counts recorded proctoring events by kind
	ProctoringEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "proctoring_events_total",
			Help: "Total number of proctoring events recorded",
		},
		[]string{"kind"},
	)

	// ProctoringLocks counts sessions that reached the strike limit
	ProctoringLocks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proctoring_locks_total",
			Help: "Total number of locked assignment attempts",
		},
	)

	// ActiveSessions tracks live proctoring sessions
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "proctoring_active_sessions",
			Help: "Number of live proctoring sessions",
		},
	)
)

// InitPrometheus registers every collector with the default registry
func InitPrometheus() {
	prometheus.MustRegister(RequestCount)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(CheckCount)
	prometheus.MustRegister(CheckDuration)
	prometheus.MustRegister(ProctoringEvents)
	prometheus.MustRegister(ProctoringLocks)
	prometheus.MustRegister(ActiveSessions)
}

// GinMiddleware records request count and latency per route
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		RequestCount.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}
