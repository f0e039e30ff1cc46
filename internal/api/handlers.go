package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/egzakutacno/deeep-myria/internal/diagnosis"
	"github.com/egzakutacno/deeep-myria/internal/health"
	"github.com/egzakutacno/deeep-myria/internal/lifecycle"
	"github.com/egzakutacno/deeep-myria/internal/logging"
)

// HealthService is the read side the handlers expose.
// *health.Aggregator satisfies it.
type HealthService interface {
	Heartbeat(ctx context.Context) health.Snapshot
	DetailedStatus(ctx context.Context) health.DetailedStatus
	Readiness(ctx context.Context) health.Readiness
	Liveness(ctx context.Context) health.Liveness
	Metrics(ctx context.Context) health.MetricsReport
}

// LifecycleService drives the node. *lifecycle.Controller satisfies it.
type LifecycleService interface {
	InstallSecret(ctx context.Context, secrets map[string]string) lifecycle.Result
	Start(ctx context.Context) lifecycle.Result
	Stop(ctx context.Context) lifecycle.Result
	Snapshot() lifecycle.Snapshot
}

// Diagnoser summarizes recent metrics and logs. *diagnosis.Analyzer
// satisfies it.
type Diagnoser interface {
	Analyze() diagnosis.Report
}

// HeartbeatMonitor reports the debounced background heartbeat.
// *health.Monitor satisfies it.
type HeartbeatMonitor interface {
	Healthy() bool
	LastSnapshot() (health.Snapshot, bool)
}

// ServiceInfo is reported by GET /.
type ServiceInfo struct {
	Name        string
	Version     string
	Description string
	RPCPort     int
	P2PPort     int
	Network     string
}

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	health    HealthService
	lifecycle LifecycleService
	recorder  *logging.Recorder
	diagnoser Diagnoser
	monitor   HeartbeatMonitor
	info      ServiceInfo
	logger    logrus.FieldLogger
}

// NewHandler creates a new API handler. A nil lifecycle makes the
// lifecycle routes answer 501; a nil recorder or diagnoser does the same
// for logs and diagnosis. A nil monitor omits it from GET /.
func NewHandler(hs HealthService, ls LifecycleService, recorder *logging.Recorder, diagnoser Diagnoser, monitor HeartbeatMonitor, info ServiceInfo, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Handler{
		health:    hs,
		lifecycle: ls,
		recorder:  recorder,
		diagnoser: diagnoser,
		monitor:   monitor,
		info:      info,
		logger:    logger.WithField("component", "api"),
	}
}

/* ---------------- GET / ---------------- */

func (h *Handler) GetIndex(c *gin.Context) {
	body := gin.H{
		"service":     h.info.Name,
		"version":     h.info.Version,
		"description": h.info.Description,
		"status":      "running",
		"myriaNode": gin.H{
			"rpcPort": h.info.RPCPort,
			"p2pPort": h.info.P2PPort,
			"network": h.info.Network,
		},
		"endpoints": gin.H{
			"health":         "/health",
			"status":         "/status",
			"metrics":        "/metrics",
			"prometheus":     "/metrics/prometheus",
			"myriaHealth":    "/myria/health",
			"myriaStatus":    "/myria/status",
			"myriaMetrics":   "/myria/metrics",
			"myriaReady":     "/myria/ready",
			"myriaLive":      "/myria/live",
			"myriaStart":     "/myria/start",
			"myriaStop":      "/myria/stop",
			"myriaSecrets":   "/myria/secrets",
			"myriaLifecycle": "/myria/lifecycle",
			"myriaLogs":      "/myria/logs",
			"myriaDiagnosis": "/myria/diagnosis",
		},
		"timestamp": time.Now().UTC(),
	}
	if h.monitor != nil {
		body["monitor"] = h.monitorSummary()
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) monitorSummary() gin.H {
	state := "unhealthy"
	if h.monitor.Healthy() {
		state = "healthy"
	}
	summary := gin.H{"state": state}
	if last, ran := h.monitor.LastSnapshot(); ran {
		summary["lastHeartbeat"] = last.Timestamp
		summary["lastStatus"] = last.Status
	}
	return summary
}

/* ---------------- GET /health ---------------- */

func (h *Handler) GetHealth(c *gin.Context) {
	snap := h.health.Heartbeat(c.Request.Context())
	if snap.Status == health.StatusError {
		c.JSON(http.StatusInternalServerError, gin.H{
			"service":   snap.Service,
			"status":    health.StatusError,
			"error":     snap.Error,
			"timestamp": snap.Timestamp,
		})
		return
	}
	c.JSON(http.StatusOK, snap)
}

/* ---------------- GET /status ---------------- */

func (h *Handler) GetStatus(c *gin.Context) {
	st := h.health.DetailedStatus(c.Request.Context())
	if st.Status == "error" {
		c.JSON(http.StatusInternalServerError, gin.H{
			"service":   st.Service,
			"status":    "error",
			"error":     st.Error,
			"timestamp": st.Timestamp,
		})
		return
	}
	c.JSON(http.StatusOK, st)
}

/* ---------------- GET /metrics ---------------- */

func (h *Handler) GetMetrics(c *gin.Context) {
	m := h.health.Metrics(c.Request.Context())
	if m.Error != "" {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":     m.Error,
			"timestamp": m.Timestamp,
		})
		return
	}
	c.JSON(http.StatusOK, m)
}

/* ---------------- GET /myria/ready ---------------- */

func (h *Handler) GetReady(c *gin.Context) {
	rd := h.health.Readiness(c.Request.Context())
	code := http.StatusOK
	if !rd.Ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, rd)
}

/* ---------------- GET /myria/live ---------------- */

func (h *Handler) GetLive(c *gin.Context) {
	lv := h.health.Liveness(c.Request.Context())
	code := http.StatusOK
	if !lv.Alive {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, lv)
}

/* ---------------- POST /myria/start, /myria/stop ---------------- */

func (h *Handler) PostStart(c *gin.Context) {
	if !h.lifecycleSupported(c, "start") {
		return
	}
	h.writeResult(c, "start", h.lifecycle.Start(c.Request.Context()))
}

func (h *Handler) PostStop(c *gin.Context) {
	if !h.lifecycleSupported(c, "stop") {
		return
	}
	h.writeResult(c, "stop", h.lifecycle.Stop(c.Request.Context()))
}

/* ---------------- POST /myria/secrets ---------------- */

type secretsRequest struct {
	Secrets map[string]string `json:"secrets"`
}

func (h *Handler) PostSecrets(c *gin.Context) {
	if !h.lifecycleSupported(c, "installSecret") {
		return
	}
	var req secretsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid json body"})
		return
	}
	h.writeResult(c, "installSecret", h.lifecycle.InstallSecret(c.Request.Context(), req.Secrets))
}

/* ---------------- GET /myria/lifecycle ---------------- */

func (h *Handler) GetLifecycle(c *gin.Context) {
	if !h.lifecycleSupported(c, "lifecycle") {
		return
	}
	c.JSON(http.StatusOK, h.lifecycle.Snapshot())
}

/* ---------------- GET /myria/logs?limit=N ---------------- */

func (h *Handler) GetLogs(c *gin.Context) {
	if h.recorder == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "log buffer not configured"})
		return
	}
	limit := defaultLogLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxLogLimit)
	}
	entries := h.recorder.GetLast(limit)
	c.JSON(http.StatusOK, gin.H{"count": len(entries), "entries": entries})
}

/* ---------------- GET /myria/diagnosis ---------------- */

func (h *Handler) GetDiagnosis(c *gin.Context) {
	if h.diagnoser == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "diagnosis not configured"})
		return
	}
	c.JSON(http.StatusOK, h.diagnoser.Analyze())
}

func (h *Handler) lifecycleSupported(c *gin.Context, op string) bool {
	if h.lifecycle != nil {
		return true
	}
	c.JSON(http.StatusNotImplemented, gin.H{
		"success": false,
		"error":   op + " not supported",
	})
	return false
}

func (h *Handler) writeResult(c *gin.Context, op string, res lifecycle.Result) {
	if !res.Success {
		h.logger.WithFields(logrus.Fields{
			"operation":  op,
			"error":      res.Error,
			"request_id": c.GetString(requestIDKey),
		}).Warn("Lifecycle operation failed")
		c.JSON(http.StatusInternalServerError, res)
		return
	}
	c.JSON(http.StatusOK, res)
}
