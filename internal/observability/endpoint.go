package observability

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dpscience/ddrs4pals/internal/conf"
	"github.com/dpscience/ddrs4pals/internal/logger"
	"github.com/dpscience/ddrs4pals/internal/ringbuffer"
)

// ShutdownTimeout bounds the graceful shutdown of the endpoint.
const ShutdownTimeout = 5 * time.Second

// BufferSource is what the endpoint needs from a ring buffer registry.
type BufferSource interface {
	Stats() []ringbuffer.Stats
	Switch() *ringbuffer.Switch
}

// BuffersResponse is the body of GET /api/v1/buffers.
type BuffersResponse struct {
	Nonblocking bool               `json:"nonblocking"`
	Buffers     []ringbuffer.Stats `json:"buffers"`
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Buffers int    `json:"buffers"`
	Uptime  string `json:"uptime"`
}

// Endpoint serves Prometheus metrics and a small JSON status API.
type Endpoint struct {
	echo          *echo.Echo
	listenAddress string
	metrics       *Metrics
	buffers       BufferSource
	started       time.Time
	log           logger.Logger
}

// NewEndpoint creates the telemetry endpoint. It returns an error if the
// Prometheus endpoint is disabled in settings.
//
// The function does not create metrics but serves the provided Metrics instance.
func NewEndpoint(settings *conf.Settings, metrics *Metrics, buffers BufferSource) (*Endpoint, error) {
	if !settings.Telemetry.Prometheus.Enabled {
		return nil, fmt.Errorf("telemetry not enabled in settings")
	}
	if metrics == nil {
		return nil, fmt.Errorf("metrics must not be nil")
	}

	e := &Endpoint{
		listenAddress: settings.Telemetry.Prometheus.Listen,
		metrics:       metrics,
		buffers:       buffers,
		started:       time.Now(),
		log:           GetLogger(),
	}
	e.echo = e.newRouter()
	return e, nil
}

func (e *Endpoint) newRouter() *echo.Echo {
	router := echo.New()
	router.HideBanner = true
	router.HidePort = true
	// Handler and http.Server errors go to the module logger, not stdout.
	adapter := logger.NewEchoLoggerAdapter(e.log)
	router.Logger = adapter
	router.StdLogger = stdlog.New(adapter.Output(), "", 0)
	router.Use(middleware.Recover())

	router.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(e.metrics.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
	})))

	api := router.Group("/api/v1")
	api.GET("/health", e.handleHealth)
	api.GET("/buffers", e.handleBuffers)
	return router
}

// Handler returns the HTTP handler of the endpoint, mainly for tests.
func (e *Endpoint) Handler() http.Handler {
	return e.echo
}

func (e *Endpoint) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status: "ok",
		Uptime: time.Since(e.started).Round(time.Second).String(),
	}
	if e.buffers != nil {
		resp.Buffers = len(e.buffers.Stats())
		if e.buffers.Switch().IsSet() {
			resp.Status = "stopping"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (e *Endpoint) handleBuffers(c echo.Context) error {
	if e.buffers == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no ring buffer registry attached")
	}
	return c.JSON(http.StatusOK, BuffersResponse{
		Nonblocking: e.buffers.Switch().IsSet(),
		Buffers:     e.buffers.Stats(),
	})
}

// Start runs the HTTP server in a goroutine tracked by wg and shuts it down
// gracefully once quitChan is closed.
func (e *Endpoint) Start(wg *sync.WaitGroup, quitChan <-chan struct{}) {
	wg.Go(func() {
		e.log.Info("telemetry endpoint starting", logger.String("address", e.listenAddress))
		if err := e.echo.Start(e.listenAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("telemetry HTTP server error", logger.Error(err))
		}
	})

	wg.Go(func() {
		e.gracefulShutdown(quitChan)
	})
}

// gracefulShutdown waits for the quit signal and shuts down the server gracefully.
func (e *Endpoint) gracefulShutdown(quitChan <-chan struct{}) {
	<-quitChan
	e.log.Info("stopping telemetry server")
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := e.echo.Shutdown(ctx); err != nil {
		e.log.Error("telemetry server shutdown error", logger.Error(err))
	}
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
