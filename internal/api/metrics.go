package api

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	attestryAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attestry_appends_total",
		Help: "Total record appends by kind and result.",
	}, []string{"kind", "result"})

	attestryVerifyRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attestry_verify_runs_total",
		Help: "Total chain verification runs by outcome.",
	}, []string{"outcome"})

	attestryRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attestry_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	attestryRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "attestry_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	attestryChainHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "attestry_chain_height",
		Help: "Height of the last appended block.",
	})
)

// PrometheusMiddleware returns a Gin middleware recording request count and
// latency per route. The route template is used as the path label so
// /records/:id stays a single series; requests that match no route are
// bucketed together to keep label cardinality bounded.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attestryRequestsTotal.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Inc()
		attestryRequestDuration.
			WithLabelValues(c.Request.Method, route).
			Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler serves the Prometheus scrape endpoint.
func MetricsHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// RecordAppend records an append attempt.
func RecordAppend(kind string, success bool) {
	if success {
		attestryAppendsTotal.WithLabelValues(kind, "ok").Inc()
	} else {
		attestryAppendsTotal.WithLabelValues(kind, "error").Inc()
	}
}

// RecordVerify records a verification run outcome.
func RecordVerify(valid bool) {
	if valid {
		attestryVerifyRunsTotal.WithLabelValues("valid").Inc()
	} else {
		attestryVerifyRunsTotal.WithLabelValues("invalid").Inc()
	}
}

// SetChainHeight updates the chain height gauge.
func SetChainHeight(height uint64) {
	attestryChainHeight.Set(float64(height))
}
