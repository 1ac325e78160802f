package message

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/mqttbench/internal/domain"
	"github.com/simp-lee/mqttbench/internal/pkg"
)

// MessageTestHandler handles REST API requests for the message test resource.
type MessageTestHandler struct {
	svc domain.MessageTestService
}

// NewMessageTestHandler creates a new MessageTestHandler with the given service.
func NewMessageTestHandler(svc domain.MessageTestService) *MessageTestHandler {
	return &MessageTestHandler{svc: svc}
}

// Create handles POST /api/v1/messages.
func (h *MessageTestHandler) Create(c *gin.Context) {
	var req CreateMessageTestRequest
	if !pkg.BindAndValidate(c, &req) {
		return
	}

	test, err := h.svc.CreateMessageTest(c.Request.Context(), req.input())
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Created(c, test)
}

// Get handles GET /api/v1/messages/:id.
func (h *MessageTestHandler) Get(c *gin.Context) {
	id, ok := pkg.ParseID(c, "id")
	if !ok {
		return
	}

	test, err := h.svc.GetMessageTest(c.Request.Context(), uint(id))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, test)
}

// List handles GET /api/v1/messages.
func (h *MessageTestHandler) List(c *gin.Context) {
	req := pkg.ParsePageRequest(c, listOptions.DefaultSort)

	result, err := h.svc.ListMessageTests(c.Request.Context(), req)
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.List(c, result)
}

// Delete handles DELETE /api/v1/messages/:id.
func (h *MessageTestHandler) Delete(c *gin.Context) {
	id, ok := pkg.ParseID(c, "id")
	if !ok {
		return
	}

	if err := h.svc.DeleteMessageTest(c.Request.Context(), uint(id)); err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, nil)
}

// Run handles POST /api/v1/messages/:id/run. The run continues after the
// response; poll Get for the outcome.
func (h *MessageTestHandler) Run(c *gin.Context) {
	id, ok := pkg.ParseID(c, "id")
	if !ok {
		return
	}

	test, err := h.svc.RunMessageTest(c.Request.Context(), uint(id))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Accepted(c, test)
}

// Execute handles POST /api/v1/messages/:id/execute and responds once the
// run has ended.
func (h *MessageTestHandler) Execute(c *gin.Context) {
	id, ok := pkg.ParseID(c, "id")
	if !ok {
		return
	}

	test, err := h.svc.ExecuteMessageTest(c.Request.Context(), uint(id))
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, test)
}
