package slave

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/mqttbench/internal/domain"
	"github.com/simp-lee/mqttbench/internal/middleware"
	"github.com/simp-lee/mqttbench/internal/pkg"
	"github.com/simp-lee/mqttbench/internal/view"
)

// slavesChanged is the client event that reloads the slave table.
const slavesChanged = "slavesChanged"

// SlavePageHandler renders the Slaves view and its htmx actions.
type SlavePageHandler struct {
	svc domain.SlaveService
}

// NewSlavePageHandler creates a new SlavePageHandler with the given service.
func NewSlavePageHandler(svc domain.SlaveService) *SlavePageHandler {
	return &SlavePageHandler{svc: svc}
}

// ListPage renders the slave manager.
// GET /slaves
func (h *SlavePageHandler) ListPage(c *gin.Context) {
	req := pkg.ParsePageRequest(c, listOptions.DefaultSort)

	result, err := h.svc.ListSlaves(c.Request.Context(), req)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "list slaves failed", slog.String("error", err.Error()))
		c.HTML(http.StatusInternalServerError, "errors/500.html", gin.H{})
		return
	}

	c.HTML(http.StatusOK, "slaves/list.html", gin.H{
		"Title":      "Slaves",
		"Active":     view.NameSlaves,
		"Slaves":     h.withResults(result.Items),
		"Pagination": result,
		"Filter":     req.Filter,
		"BaseURL":    view.Routes().Path(view.NameSlaves),
		"CSRFToken":  middleware.GetCSRFToken(c),
	})
}

// withResults pairs each slave with its latest config result.
func (h *SlavePageHandler) withResults(slaves []domain.Slave) []SlaveView {
	views := make([]SlaveView, 0, len(slaves))
	for _, s := range slaves {
		result, _ := h.svc.ConfigResult(s.ID)
		views = append(views, SlaveView{Slave: s, Result: result})
	}
	return views
}

// CreateHTMX handles the add-slave form.
// POST /slaves
func (h *SlavePageHandler) CreateHTMX(c *gin.Context) {
	var req CreateSlaveRequest
	if err := c.ShouldBind(&req); err != nil {
		slog.DebugContext(c.Request.Context(), "create slave: bind error", slog.String("error", err.Error()))
		h.formError(c, pkg.FieldErrors(err, &req), "Please check the highlighted fields")
		return
	}

	slave, err := h.svc.CreateSlave(c.Request.Context(), req.input())
	if err != nil {
		h.formError(c, nil, pkg.SafeMessage(err, "Could not add slave, please retry"))
		return
	}

	pkg.TriggerToast(c, fmt.Sprintf("Slave %q added", slave.Name), pkg.ToastSuccess)
	c.Header("HX-Redirect", view.Routes().Path(view.NameSlaves))
	c.Status(http.StatusOK)
}

// UpdateHTMX handles the edit-slave form.
// PUT /slaves/:id
func (h *SlavePageHandler) UpdateHTMX(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req UpdateSlaveRequest
	if err := c.ShouldBind(&req); err != nil {
		slog.DebugContext(c.Request.Context(), "update slave: bind error", slog.String("error", err.Error()), slog.Int64("id", id))
		h.formError(c, pkg.FieldErrors(err, &req), "Please check the highlighted fields")
		return
	}

	if _, err := h.svc.UpdateSlave(c.Request.Context(), id, req.input()); err != nil {
		h.formError(c, nil, pkg.SafeMessage(err, "Could not update slave, please retry"))
		return
	}

	pkg.TriggerToast(c, "Slave updated", pkg.ToastSuccess)
	c.Header("HX-Redirect", view.Routes().Path(view.NameSlaves))
	c.Status(http.StatusOK)
}

// DeleteHTMX removes a slave.
// DELETE /slaves/:id
func (h *SlavePageHandler) DeleteHTMX(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteSlave(c.Request.Context(), id); err != nil {
		h.actionError(c, pkg.SafeMessage(err, "Delete failed, please retry"))
		return
	}
	pkg.TriggerToast(c, "Slave deleted", pkg.ToastSuccess, slavesChanged)
	c.Status(http.StatusOK)
}

// DeployHTMX pushes stored settings to the selected slaves.
// POST /slaves/deploy
func (h *SlavePageHandler) DeployHTMX(c *gin.Context) {
	var req DeployRequest
	if err := c.ShouldBind(&req); err != nil {
		h.actionError(c, "Select at least one slave")
		return
	}

	outcomes := h.svc.DeployConfig(c.Request.Context(), req.IDs)
	failed := 0
	for _, o := range outcomes {
		if !o.OK {
			failed++
		}
	}

	if failed > 0 {
		pkg.TriggerToast(c, fmt.Sprintf("Config deployed to %d of %d slaves", len(outcomes)-failed, len(outcomes)), pkg.ToastError, slavesChanged)
	} else {
		pkg.TriggerToast(c, fmt.Sprintf("Config deployed to %d slaves", len(outcomes)), pkg.ToastSuccess, slavesChanged)
	}
	c.Header("HX-Reswap", "none")
	c.Status(http.StatusOK)
}

// StartHTMX starts a slave.
// POST /slaves/:id/start
func (h *SlavePageHandler) StartHTMX(c *gin.Context) {
	h.command(c, h.svc.StartSlave, "Slave started", "Start failed")
}

// StopHTMX stops a slave.
// POST /slaves/:id/stop
func (h *SlavePageHandler) StopHTMX(c *gin.Context) {
	h.command(c, h.svc.StopSlave, "Slave stopped", "Stop failed")
}

func (h *SlavePageHandler) command(c *gin.Context, run func(context.Context, int64) error, okMsg, failMsg string) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	if err := run(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		// The slave's state changed even when delivery failed.
		pkg.TriggerToast(c, pkg.SafeMessage(err, failMsg), pkg.ToastError, slavesChanged)
		c.Header("HX-Reswap", "none")
		c.Status(http.StatusOK)
		return
	}
	pkg.TriggerToast(c, okMsg, pkg.ToastSuccess, slavesChanged)
	c.Header("HX-Reswap", "none")
	c.Status(http.StatusOK)
}

// formError re-renders the slave form error block.
func (h *SlavePageHandler) formError(c *gin.Context, fields map[string]string, message string) {
	c.Header("HX-Retarget", "#slave-form-errors")
	c.HTML(http.StatusOK, "fragments/form_errors.html", gin.H{
		"Error":  message,
		"Fields": fields,
	})
}

// actionError reports a failed table action as a toast without swapping content.
func (h *SlavePageHandler) actionError(c *gin.Context, message string) {
	c.Header("HX-Reswap", "none")
	pkg.TriggerToast(c, message, pkg.ToastError)
	c.Status(http.StatusOK)
}

func (h *SlavePageHandler) parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		h.actionError(c, "Invalid slave ID")
		return 0, false
	}
	return id, true
}
