// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file holds the Prometheus collectors: transport metrics recorded by
// the Metrics() middleware (request counts, latency, in-flight gauge,
// response sizes, labeled by method, registered route and status) and the
// interview business counters recorded by the session handlers. Labels stick
// to the registered route rather than the raw URL to keep cardinality
// bounded.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// httpReqs counts requests by method, route path, and status code.
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// httpLat records request duration in seconds by method and route path.
	// We intentionally omit status to keep latency histogram cardinality lower.
	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets, // suitable for general HTTP latency
		},
		[]string{"method", "path"},
	)

	// httpInflight gauges the number of in-flight (currently processing) requests.
	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// httpRespSize captures response sizes in bytes by method and route path.
	// Buckets are tuned for typical JSON API payload sizes.
	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_response_size_bytes",
			Help: "Size of HTTP responses in bytes.",
			Buckets: []float64{
				200, 500, 1 << 10, 2 << 10, 5 << 10, // 200B..5KiB
				10 << 10, 25 << 10, 50 << 10, // 10..50KiB
				100 << 10, 250 << 10, 500 << 10, // 100..500KiB
				1 << 20, 2 << 20, 5 << 20, // 1..5MiB
			},
		},
		[]string{"method", "path"},
	)
)

// Interview business metrics, recorded by the session handlers.
var (
	// sessionsStarted counts interviews that produced their first question.
	sessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "interview_sessions_started_total",
		Help: "Total number of interview sessions started.",
	})

	// sessionsCompleted counts interviews that reached their terminal state.
	sessionsCompleted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "interview_sessions_completed_total",
		Help: "Total number of interview sessions completed.",
	})

	// answersSubmitted counts accepted answer submissions.
	answersSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "interview_answers_submitted_total",
		Help: "Total number of candidate answers accepted.",
	})

	// interviewScores observes the final score distribution (0..100).
	interviewScores = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "interview_final_score",
		Help:    "Distribution of final interview scores.",
		Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize,
		sessionsStarted, sessionsCompleted, answersSubmitted, interviewScores)
}

// ObserveSessionStarted increments the started-sessions counter.
func ObserveSessionStarted() { sessionsStarted.Inc() }

// ObserveAnswerSubmitted increments the accepted-answers counter.
func ObserveAnswerSubmitted() { answersSubmitted.Inc() }

// ObserveSessionCompleted increments the completed-sessions counter and
// records the final score.
func ObserveSessionCompleted(score float64) {
	sessionsCompleted.Inc()
	interviewScores.Observe(score)
}

// Metrics returns a Gin middleware that records the transport collectors for
// each request. The path label comes from c.FullPath() so unmatched routes
// (404s) fall back to the raw URL path, and the response-size histogram skips
// writers that do not report a size.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		httpReqs.WithLabelValues(method, path, status).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}
