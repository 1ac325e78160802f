package linktest

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/mqttbench/internal/domain"
	"github.com/simp-lee/mqttbench/internal/pkg"
)

// LinkTestHandler handles REST API requests for the link test resource.
type LinkTestHandler struct {
	svc domain.LinkTestService
}

// NewLinkTestHandler creates a new LinkTestHandler with the given service.
func NewLinkTestHandler(svc domain.LinkTestService) *LinkTestHandler {
	return &LinkTestHandler{svc: svc}
}

// Create handles POST /api/v1/linktests.
func (h *LinkTestHandler) Create(c *gin.Context) {
	var req CreateLinkTestRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	test, err := h.svc.CreateLinkTest(c.Request.Context(), req.input())
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Created(c, test)
}

// Get handles GET /api/v1/linktests/:id.
func (h *LinkTestHandler) Get(c *gin.Context) {
	id, ok := pkg.ParseID(c, "id")
	if !ok {
		return
	}

	test, err := h.svc.GetLinkTest(c.Request.Context(), uint(id))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, test)
}

// List handles GET /api/v1/linktests.
func (h *LinkTestHandler) List(c *gin.Context) {
	req := pkg.ParsePageRequest(c, listOptions.DefaultSort)

	result, err := h.svc.ListLinkTests(c.Request.Context(), req)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.List(c, result)
}

// Start handles POST /api/v1/linktests/:id/start.
func (h *LinkTestHandler) Start(c *gin.Context) {
	id, ok := pkg.ParseID(c, "id")
	if !ok {
		return
	}

	test, err := h.svc.StartLinkTest(c.Request.Context(), uint(id))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, test)
}

// Finish handles POST /api/v1/linktests/:id/finish.
func (h *LinkTestHandler) Finish(c *gin.Context) {
	id, ok := pkg.ParseID(c, "id")
	if !ok {
		return
	}

	var req FinishLinkTestRequest
	if c.Request.ContentLength > 0 && !pkg.BindAndValidate(c, &req) {
		return
	}

	test, err := h.svc.FinishLinkTest(c.Request.Context(), uint(id), req.Failed)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, test)
}

// Delete handles DELETE /api/v1/linktests/:id.
func (h *LinkTestHandler) Delete(c *gin.Context) {
	id, ok := pkg.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteLinkTest(c.Request.Context(), uint(id)); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, nil)
}
