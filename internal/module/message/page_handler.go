package message

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/mqttbench/internal/domain"
	"github.com/simp-lee/mqttbench/internal/middleware"
	"github.com/simp-lee/mqttbench/internal/pkg"
	"github.com/simp-lee/mqttbench/internal/view"
)

const messagesChanged = "messagesChanged"

// MessagePageHandler renders the Message view and its htmx actions.
type MessagePageHandler struct {
	svc domain.MessageTestService
}

// NewMessagePageHandler creates a new MessagePageHandler with the given service.
func NewMessagePageHandler(svc domain.MessageTestService) *MessagePageHandler {
	return &MessagePageHandler{svc: svc}
}

// Page renders the message tests.
// GET /message
func (h *MessagePageHandler) Page(c *gin.Context) {
	req := pkg.ParsePageRequest(c, listOptions.DefaultSort)

	result, err := h.svc.ListMessageTests(c.Request.Context(), req)
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "list message tests failed", slog.String("error", err.Error()))
		c.HTML(http.StatusInternalServerError, "errors/500.html", gin.H{})
		return
	}

	c.HTML(http.StatusOK, "message/index.html", gin.H{
		"Title":      "Message test",
		"Active":     view.NameMessage,
		"Tests":      result.Items,
		"Pagination": result,
		"Filter":     req.Filter,
		"BaseURL":    view.Routes().Path(view.NameMessage),
		"CSRFToken":  middleware.GetCSRFToken(c),
	})
}

// CreateHTMX handles the new-message-test form.
// POST /message
func (h *MessagePageHandler) CreateHTMX(c *gin.Context) {
	var req CreateMessageTestRequest
	if err := c.ShouldBind(&req); err != nil {
		c.Header("HX-Retarget", "#message-form-errors")
		c.HTML(http.StatusOK, "fragments/form_errors.html", gin.H{
			"Error":  "Please check the highlighted fields",
			"Fields": pkg.FieldErrors(err, &req),
		})
		return
	}

	if _, err := h.svc.CreateMessageTest(c.Request.Context(), req.input()); err != nil {
		c.Header("HX-Retarget", "#message-form-errors")
		c.HTML(http.StatusOK, "fragments/form_errors.html", gin.H{
			"Error": pkg.SafeMessage(err, "Could not create message test, please retry"),
		})
		return
	}

	pkg.TriggerToast(c, "Message test created", pkg.ToastSuccess)
	c.Header("HX-Redirect", view.Routes().Path(view.NameMessage))
	c.Status(http.StatusOK)
}

// RunHTMX starts a message test in the background.
// POST /message/:id/run
func (h *MessagePageHandler) RunHTMX(c *gin.Context) {
	c.Header("HX-Reswap", "none")
	id, ok := parseID(c)
	if !ok {
		return
	}
	if _, err := h.svc.RunMessageTest(c.Request.Context(), id); err != nil {
		pkg.TriggerToast(c, pkg.SafeMessage(err, "Run failed"), pkg.ToastError)
		c.Status(http.StatusOK)
		return
	}
	pkg.TriggerToast(c, "Message test running", pkg.ToastSuccess, messagesChanged)
	c.Status(http.StatusOK)
}

// DeleteHTMX removes a message test.
// DELETE /message/:id
func (h *MessagePageHandler) DeleteHTMX(c *gin.Context) {
	c.Header("HX-Reswap", "none")
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteMessageTest(c.Request.Context(), id); err != nil {
		pkg.TriggerToast(c, pkg.SafeMessage(err, "Delete failed"), pkg.ToastError)
		c.Status(http.StatusOK)
		return
	}
	pkg.TriggerToast(c, "Message test deleted", pkg.ToastSuccess, messagesChanged)
	c.Status(http.StatusOK)
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		pkg.TriggerToast(c, "Invalid message test ID", pkg.ToastError)
		c.Status(http.StatusOK)
		return 0, false
	}
	return uint(id), true
}
