package services

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/ghostwriter-labs/gate_api/shared"
)

const (
	MONITORING_SVC          = "monitoring_svc"
	SERVICE_NAME            = "gate_api"
	DEFAULT_PROMETHEUS_PORT = 2112
)

// HTTP metrics
var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "method", "status"},
	)
)

// Gate metrics
var (
	gateVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_verdicts_total",
			Help: "Access gateway decisions by pool and outcome",
		},
		[]string{"pool", "outcome"},
	)

	gateRateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_rate_limited_total",
			Help: "Requests refused by the rate limiter",
		},
		[]string{"endpoint_type"},
	)

	gateBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_blocks_total",
			Help: "Identities blocked by source",
		},
		[]string{"source"},
	)

	gateQuotaConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_quota_consumed_total",
			Help: "Quota units consumed per pool",
		},
		[]string{"pool"},
	)

	schedulerRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Scheduler job runs by result",
		},
		[]string{"job", "result"},
	)

	schedulerRowsAffected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_job_rows_affected",
			Help: "Rows affected by the last run of each scheduler job",
		},
		[]string{"job"},
	)
)

type MonitoringService struct {
	context.DefaultService

	port     int
	register *prometheus.Registry
	server   *fiber.App
}

func (svc *MonitoringService) Id() string {
	return MONITORING_SVC
}

func (svc *MonitoringService) Start() error {
	portStr := os.Getenv("PROMETHEUS_PORT")
	port, err := strconv.Atoi(portStr)
	if err != nil {
		port = DEFAULT_PROMETHEUS_PORT
	}
	svc.port = port

	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reg.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		gateVerdictsTotal,
		gateRateLimitedTotal,
		gateBlocksTotal,
		gateQuotaConsumedTotal,
		schedulerRunsTotal,
		schedulerRowsAffected,
	)

	svc.register = reg

	svc.server = fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
		},
	})
	svc.server.Use(recover.New())

	svc.server.Get("/metrics", svc.metricsHandler)
	svc.server.Get("/health", svc.healthHandler)

	go func() {
		if err := svc.server.Listen(fmt.Sprintf(":%v", svc.port)); err != nil {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	log.Info().Int("port", svc.port).Msg("Prometheus metrics server started")
	return nil
}

func (svc *MonitoringService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Shutdown()
	}
}

func (svc *MonitoringService) metricsHandler(c *fiber.Ctx) error {
	handler := promhttp.HandlerFor(svc.register, promhttp.HandlerOpts{})
	return adaptor.HTTPHandler(handler)(c)
}

func (svc *MonitoringService) healthHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":    "healthy",
		"service":   SERVICE_NAME,
		"timestamp": time.Now().Unix(),
	})
}

// ==================== DOMAIN OBSERVATIONS ====================

// ObserveVerdict counts one gateway decision. The nil receiver guard lets
// components run without monitoring wired, e.g. under test.
func (svc *MonitoringService) ObserveVerdict(pool string, err error) {
	if svc == nil {
		return
	}

	outcome := "allowed"
	if err != nil {
		outcome = "denied"
		if appErr, ok := shared.GetAppError(err); ok {
			outcome = appErr.Kind
		}
	}

	gateVerdictsTotal.WithLabelValues(pool, outcome).Inc()
}

func (svc *MonitoringService) ObserveRateLimited(endpointType string) {
	if svc == nil {
		return
	}
	gateRateLimitedTotal.WithLabelValues(endpointType).Inc()
}

func (svc *MonitoringService) ObserveBlock(source string) {
	if svc == nil {
		return
	}
	gateBlocksTotal.WithLabelValues(source).Inc()
}

func (svc *MonitoringService) ObserveQuotaConsumed(pool string, amount int64) {
	if svc == nil {
		return
	}
	gateQuotaConsumedTotal.WithLabelValues(pool).Add(float64(amount))
}

func (svc *MonitoringService) ObserveSchedulerRun(job string, affected int64, err error) {
	if svc == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	schedulerRunsTotal.WithLabelValues(job, result).Inc()
	schedulerRowsAffected.WithLabelValues(job).Set(float64(affected))
}

// RecordRequest records HTTP request metrics
func (svc *MonitoringService) RecordRequest(method, endpoint, status string, duration time.Duration) {
	if svc == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
	httpRequestDurationSeconds.WithLabelValues(endpoint, method, status).Observe(duration.Seconds())
}

// MonitoringMiddleware creates a Fiber middleware for monitoring HTTP requests
func MonitoringMiddleware(monitoringSvc *MonitoringService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Path() == "/metrics" {
			return c.Next()
		}

		start := time.Now()
		method := c.Method()

		err := c.Next()

		endpoint := c.Route().Path // route pattern, not actual path
		duration := time.Since(start)
		status := strconv.Itoa(c.Response().StatusCode())

		monitoringSvc.RecordRequest(method, endpoint, status, duration)

		return err
	}
}
