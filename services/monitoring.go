package services

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	MONITORING_SVC          = "monitoring_svc"
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

// Gateway metrics
var (
	gateRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_quota_rejections_total",
			Help: "Quota gate rejections by reason",
		},
		[]string{"reason"},
	)

	rateLimitBreachesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_rate_limit_breaches_total",
			Help: "Rate limit breaches by window",
		},
		[]string{"window"},
	)

	identityBlocksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_identity_blocks_total",
			Help: "Identities escalated into the blocklist",
		},
	)

	proxiedBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_proxied_bytes_total",
			Help: "Bytes streamed through the delivery proxy",
		},
		[]string{"action"},
	)
)

// MonitoringService exposes prometheus metrics on a side port.
type MonitoringService struct {
	context.DefaultService

	port   int
	server *http.Server
}

func (svc MonitoringService) Id() string {
	return MONITORING_SVC
}

func (svc *MonitoringService) Configure(ctx *context.Context) error {
	svc.port = DEFAULT_PROMETHEUS_PORT
	if port := os.Getenv("PROMETHEUS_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *MonitoringService) Start() error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		httpRequestsTotal,
		httpRequestDurationSeconds,
		gateRejectionsTotal,
		rateLimitBreachesTotal,
		identityBlocksTotal,
		proxiedBytesTotal,
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	svc.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", svc.port),
		Handler: mux,
	}

	go func() {
		if err := svc.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("prometheus server stopped")
		}
	}()

	log.Printf("Prometheus metrics available on :%d/metrics", svc.port)
	return nil
}

func (svc *MonitoringService) Shutdown() {
	if svc.server != nil {
		_ = svc.server.Close()
	}
}

// Middleware tracks request counts and latency per route.
func (svc *MonitoringService) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		endpoint := c.Route().Path
		method := c.Method()
		status := strconv.Itoa(c.Response().StatusCode())

		httpRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(endpoint, method, status).Observe(time.Since(start).Seconds())

		return err
	}
}
