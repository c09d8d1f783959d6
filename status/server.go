// status/server.go
package status

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"netpoller/alerting"
	"netpoller/monitor"
	"netpoller/sink"
	"netpoller/telemetry"
)

// DeviceWindow is how recent a device's last sample must be to count as online
const DeviceWindow = 5 * time.Minute

// CollectorSource reports the scheduler state
type CollectorSource interface {
	Status() []monitor.CollectorStatus
}

// AlertSource lists active alerts
type AlertSource interface {
	Active() []alerting.Alert
}

// SinkReader is the read side of the metric sink used by the status API
type SinkReader interface {
	DeviceStatus(ctx context.Context, window time.Duration) ([]sink.DeviceStatus, error)
	AlertHistory(ctx context.Context, since time.Time, limit int) ([]telemetry.AlertRecord, error)
}

// Server exposes health, collector, alert and device state over HTTP
type Server struct {
	addr       string
	collectors CollectorSource
	alerts     AlertSource
	sink       SinkReader
	gatherer   prometheus.Gatherer
	logger     *zap.Logger
	server     *http.Server
	startTime  time.Time
}

// NewServer creates a status server listening on addr
func NewServer(addr string, collectors CollectorSource, alerts AlertSource, sink SinkReader, gatherer prometheus.Gatherer, logger *zap.Logger) *Server {
	return &Server{
		addr:       addr,
		collectors: collectors,
		alerts:     alerts,
		sink:       sink,
		gatherer:   gatherer,
		logger:     logger.Named("status"),
		startTime:  time.Now(),
	}
}

// Handler returns the gin engine with every route registered
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/health", s.handleHealth)
	r.GET("/api/collectors", s.handleCollectors)
	r.GET("/api/alerts", s.handleAlerts)
	r.GET("/api/alerts/history", s.handleAlertHistory)
	r.GET("/api/devices", s.handleDevices)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	return r
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
	s.startTime = time.Now()

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Status server stopped", zap.Error(err))
		}
	}()
	s.logger.Info("Status server listening", zap.String("addr", listener.Addr().String()))
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	running := 0
	statuses := s.collectors.Status()
	for _, st := range statuses {
		if st.Running {
			running++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":             "ok",
		"uptime":             time.Since(s.startTime).String(),
		"collectors":         len(statuses),
		"collectors_running": running,
		"active_alerts":      len(s.alerts.Active()),
	})
}

func (s *Server) handleCollectors(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"collectors": s.collectors.Status()})
}

func (s *Server) handleAlerts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alerts": s.alerts.Active()})
}

func (s *Server) handleAlertHistory(c *gin.Context) {
	since := 24 * time.Hour
	if v := c.Query("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since duration"})
			return
		}
		since = d
	}
	limit := 100
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	records, err := s.sink.AlertHistory(c.Request.Context(), time.Now().Add(-since), limit)
	if err != nil {
		s.logger.Warn("Reading alert history failed", zap.Error(err))
		records = []telemetry.AlertRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": records})
}

// Sink failures degrade to an empty list so the endpoint stays available
func (s *Server) handleDevices(c *gin.Context) {
	devices, err := s.sink.DeviceStatus(c.Request.Context(), DeviceWindow)
	if err != nil {
		s.logger.Warn("Reading device status failed", zap.Error(err))
		devices = []sink.DeviceStatus{}
	}
	if devices == nil {
		devices = []sink.DeviceStatus{}
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}
