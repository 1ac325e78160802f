// Package master implements the control plane slaves talk to: registration,
// heartbeats and config results over HTTP, config delivery over TCP, and the
// liveness monitor.
package master

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/mqttbench/internal/domain"
	"github.com/simp-lee/mqttbench/internal/middleware"
	"github.com/simp-lee/mqttbench/internal/pkg"
	"github.com/simp-lee/mqttbench/internal/protocol"
)

// ControlHandler serves the slave-facing control API.
type ControlHandler struct {
	svc domain.SlaveService
}

// NewControlHandler creates a ControlHandler.
func NewControlHandler(svc domain.SlaveService) *ControlHandler {
	return &ControlHandler{svc: svc}
}

// NewControlRouter builds the control API engine. Only POST is accepted on
// the control paths; other methods get 405.
func NewControlRouter(svc domain.SlaveService, logger *slog.Logger) *gin.Engine {
	h := NewControlHandler(svc)

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger.With(slog.String("component", "control"))),
	)

	r.POST(protocol.PathRegister, h.Register)
	r.POST(protocol.PathHeartbeat, h.Heartbeat)
	r.POST(protocol.PathConfigResult, h.ConfigResult)

	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, pkg.Response{Code: http.StatusMethodNotAllowed, Message: "method not allowed"})
	})
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, pkg.Response{Code: http.StatusNotFound, Message: "not found"})
	})
	return r
}

// Register handles POST /register.
func (h *ControlHandler) Register(c *gin.Context) {
	var req protocol.Registration
	if !bindJSON(c, &req) {
		return
	}

	slave, err := h.svc.Register(c.Request.Context(), int64(req.SlaveID), req.IP, req.Port)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, slave)
}

// Heartbeat handles POST /heartbeat. Unknown slaves get 404 and must
// register again.
func (h *ControlHandler) Heartbeat(c *gin.Context) {
	var req protocol.Heartbeat
	if !bindJSON(c, &req) {
		return
	}

	slave, err := h.svc.Heartbeat(c.Request.Context(), int64(req.SlaveID))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, gin.H{"status": slave.Status})
}

// ConfigResult handles POST /config-result.
func (h *ControlHandler) ConfigResult(c *gin.Context) {
	var req protocol.ConfigResult
	if !bindJSON(c, &req) {
		return
	}

	err := h.svc.ApplyConfigResult(c.Request.Context(), domain.ConfigResult{
		SlaveID:      int64(req.SlaveID),
		SuccessCount: req.SuccessCount,
		FailureCount: req.FailureCount,
		Connections:  req.Connections,
		Message:      req.Message,
		ReceivedAt:   time.Now(),
	})
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, nil)
}

func bindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		pkg.ValidationError(c, err)
		return false
	}
	return true
}
