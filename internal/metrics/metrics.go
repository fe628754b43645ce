package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	authorsImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_authors_imported_total",
			Help: "Authors produced by import passes, by how they were assigned",
		},
		[]string{"assignment"},
	)

	webhooksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_payment_webhooks_total",
			Help: "Payment webhooks by outcome",
		},
		[]string{"result"},
	)

	ticketSyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_ticket_syncs_total",
			Help: "Ticket sync cycles by final state",
		},
		[]string{"state"},
	)

	ticketPushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracker_ticket_pushes_total",
			Help: "Ticket reassignment pushes by outcome",
		},
		[]string{"outcome"},
	)

	bookingsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tracker_bookings_created_total",
			Help: "Bookings created",
		},
	)
)

func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func RecordImport(preAssigned, newlyAssigned, trackerOnly int) {
	authorsImported.WithLabelValues("override").Add(float64(preAssigned))
	authorsImported.WithLabelValues("round_robin").Add(float64(newlyAssigned))
	authorsImported.WithLabelValues("tracker_only").Add(float64(trackerOnly))
}

func RecordWebhook(result string) {
	webhooksProcessed.WithLabelValues(result).Inc()
}

func RecordSync(state string) {
	ticketSyncs.WithLabelValues(state).Inc()
}

func RecordPush(pushed, failed int, rateLimited bool) {
	ticketPushes.WithLabelValues("pushed").Add(float64(pushed))
	ticketPushes.WithLabelValues("failed").Add(float64(failed))
	if rateLimited {
		ticketPushes.WithLabelValues("rate_limited").Inc()
	}
}

func RecordBooking() {
	bookingsCreated.Inc()
}
