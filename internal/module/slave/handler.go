package slave

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/mqttbench/internal/domain"
	"github.com/simp-lee/mqttbench/internal/pkg"
)

// SlaveHandler handles REST API requests for the slave resource.
type SlaveHandler struct {
	svc domain.SlaveService
}

// NewSlaveHandler creates a new SlaveHandler with the given service.
func NewSlaveHandler(svc domain.SlaveService) *SlaveHandler {
	return &SlaveHandler{svc: svc}
}

// Create handles POST /api/v1/slaves.
func (h *SlaveHandler) Create(c *gin.Context) {
	var req CreateSlaveRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	slave, err := h.svc.CreateSlave(c.Request.Context(), req.input())
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Created(c, slave)
}

// Get handles GET /api/v1/slaves/:id.
func (h *SlaveHandler) Get(c *gin.Context) {
	id, ok := pkg.ParseID(c, "id")
	if !ok {
		return
	}

	slave, err := h.svc.GetSlave(c.Request.Context(), id)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	result, _ := h.svc.ConfigResult(id)
	pkg.Success(c, SlaveView{Slave: *slave, Result: result})
}

// List handles GET /api/v1/slaves.
func (h *SlaveHandler) List(c *gin.Context) {
	req := pkg.ParsePageRequest(c, listOptions.DefaultSort)

	result, err := h.svc.ListSlaves(c.Request.Context(), req)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.List(c, result)
}

// Update handles PUT /api/v1/slaves/:id.
func (h *SlaveHandler) Update(c *gin.Context) {
	id, ok := pkg.ParseID(c, "id")
	if !ok {
		return
	}

	var req UpdateSlaveRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	slave, err := h.svc.UpdateSlave(c.Request.Context(), id, req.input())
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, slave)
}

// Delete handles DELETE /api/v1/slaves/:id.
func (h *SlaveHandler) Delete(c *gin.Context) {
	id, ok := pkg.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteSlave(c.Request.Context(), id); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, nil)
}

// Deploy handles POST /api/v1/slaves/deploy. Per-slave outcomes are returned
// with 200 even when some deliveries failed.
func (h *SlaveHandler) Deploy(c *gin.Context) {
	var req DeployRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}
	pkg.Success(c, h.svc.DeployConfig(c.Request.Context(), req.IDs))
}

// Start handles POST /api/v1/slaves/:id/start.
func (h *SlaveHandler) Start(c *gin.Context) {
	id, ok := pkg.ParseID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.StartSlave(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, nil)
}

// Stop handles POST /api/v1/slaves/:id/stop.
func (h *SlaveHandler) Stop(c *gin.Context) {
	id, ok := pkg.ParseID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.StopSlave(c.Request.Context(), id); err != nil {
		_ = c.Error(err)
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, nil)
}

// ConfigResult handles GET /api/v1/slaves/:id/config-result.
func (h *SlaveHandler) ConfigResult(c *gin.Context) {
	id, ok := pkg.ParseID(c, "id")
	if !ok {
		return
	}
	result, found := h.svc.ConfigResult(id)
	if !found {
		pkg.Error(c, domain.NewAppError(domain.CodeNotFound, "no config result", nil))
		return
	}
	pkg.Success(c, result)
}

// ClearConfigResult handles DELETE /api/v1/slaves/:id/config-result.
func (h *SlaveHandler) ClearConfigResult(c *gin.Context) {
	id, ok := pkg.ParseID(c, "id")
	if !ok {
		return
	}
	h.svc.ClearConfigResult(id)
	pkg.Success(c, nil)
}

// ConfigResults handles GET /api/v1/config-results.
func (h *SlaveHandler) ConfigResults(c *gin.Context) {
	pkg.Success(c, h.svc.ConfigResults())
}
