package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "servezone",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "servezone",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "servezone",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Resolution metrics
	ResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "servezone",
		Subsystem: "resolution",
		Name:      "resolutions_total",
		Help:      "Total resolutions by source and outcome",
	}, []string{"source", "outcome"})

	ResolutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "servezone",
		Subsystem: "resolution",
		Name:      "duration_seconds",
		Help:      "End-to-end resolution latency",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
	}, []string{"source"})

	ResolutionsJoined = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "servezone",
		Subsystem: "resolution",
		Name:      "joined_total",
		Help:      "Callers that joined an in-flight resolution for the same key",
	})

	AcquisitionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "servezone",
		Subsystem: "acquisition",
		Name:      "tier_duration_seconds",
		Help:      "Duration of one accuracy tier",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"tier", "outcome"})

	GeocodeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "servezone",
		Subsystem: "geocoder",
		Name:      "requests_total",
		Help:      "Geocoder upstream requests by operation and status",
	}, []string{"operation", "status"})

	ZoneAuditIssues = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "servezone",
		Subsystem: "zones",
		Name:      "audit_issues",
		Help:      "Zones failing eligibility in the last audit",
	})

	ActiveDeviceBridges = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "servezone",
		Subsystem: "ws",
		Name:      "active_device_bridges",
		Help:      "Current number of connected device bridge sockets",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "servezone",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "servezone",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "servezone",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "servezone",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "servezone",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})

	DBPoolEmptyAcquires = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "servezone",
		Subsystem: "db",
		Name:      "pool_empty_acquires_total",
		Help:      "Total times a connection had to be established when acquiring from pool",
	})

	DBPoolCanceledAcquires = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "servezone",
		Subsystem: "db",
		Name:      "pool_canceled_acquires_total",
		Help:      "Total acquires cancelled by their context before a connection was free",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// PoolStat is the part of *pgxpool.Stat the pool collectors read.
type PoolStat interface {
	AcquiredConns() int32
	IdleConns() int32
	TotalConns() int32
	EmptyAcquireCount() int64
	CanceledAcquireCount() int64
}

var (
	poolMu           sync.Mutex
	lastEmptyAcquire int64
	lastCanceled     int64
)

// UpdateDBPoolMetrics copies a pool snapshot into the gauges. The pool's
// cumulative counts are turned into counter increments since the last call.
func UpdateDBPoolMetrics(stat PoolStat) {
	DBPoolConnsAcquired.Set(float64(stat.AcquiredConns()))
	DBPoolConnsIdle.Set(float64(stat.IdleConns()))
	DBPoolConnsOpen.Set(float64(stat.TotalConns()))

	poolMu.Lock()
	defer poolMu.Unlock()
	if d := stat.EmptyAcquireCount() - lastEmptyAcquire; d > 0 {
		DBPoolEmptyAcquires.Add(float64(d))
	}
	if d := stat.CanceledAcquireCount() - lastCanceled; d > 0 {
		DBPoolCanceledAcquires.Add(float64(d))
	}
	lastEmptyAcquire = stat.EmptyAcquireCount()
	lastCanceled = stat.CanceledAcquireCount()
}
