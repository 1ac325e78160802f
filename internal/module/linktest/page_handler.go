package linktest

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/mqttbench/internal/domain"
	"github.com/simp-lee/mqttbench/internal/middleware"
	"github.com/simp-lee/mqttbench/internal/pkg"
	"github.com/simp-lee/mqttbench/internal/view"
)

// linkTestsChanged is the client event that reloads the link test table.
const linkTestsChanged = "linkTestsChanged"

// SlaveLinks exposes the slave state shown next to the link tests.
// domain.SlaveService satisfies it.
type SlaveLinks interface {
	AllSlaves(ctx context.Context) ([]domain.Slave, error)
	ConfigResult(id int64) (*domain.ConfigResult, bool)
}

// LinkTestPageHandler renders the LinkTest view and its htmx actions.
type LinkTestPageHandler struct {
	svc    domain.LinkTestService
	slaves SlaveLinks
}

// NewLinkTestPageHandler creates a new LinkTestPageHandler.
func NewLinkTestPageHandler(svc domain.LinkTestService, slaves SlaveLinks) *LinkTestPageHandler {
	return &LinkTestPageHandler{svc: svc, slaves: slaves}
}

// Page renders link tests and the live link state of every slave.
// GET /linktest
func (h *LinkTestPageHandler) Page(c *gin.Context) {
	ctx := c.Request.Context()
	req := pkg.ParsePageRequest(c, listOptions.DefaultSort)

	result, err := h.svc.ListLinkTests(ctx, req)
	if err != nil {
		slog.ErrorContext(ctx, "list link tests failed", slog.String("error", err.Error()))
		c.HTML(http.StatusInternalServerError, "errors/500.html", gin.H{})
		return
	}

	links, err := h.linkStates(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "load link state failed", slog.String("error", err.Error()))
		c.HTML(http.StatusInternalServerError, "errors/500.html", gin.H{})
		return
	}

	c.HTML(http.StatusOK, "linktest/index.html", gin.H{
		"Title":      "Link test",
		"Active":     view.NameLinkTest,
		"Tests":      result.Items,
		"Pagination": result,
		"Links":      links,
		"BaseURL":    view.Routes().Path(view.NameLinkTest),
		"CSRFToken":  middleware.GetCSRFToken(c),
	})
}

func (h *LinkTestPageHandler) linkStates(ctx context.Context) ([]LinkState, error) {
	slaves, err := h.slaves.AllSlaves(ctx)
	if err != nil {
		return nil, err
	}
	states := make([]LinkState, 0, len(slaves))
	for _, s := range slaves {
		result, _ := h.slaves.ConfigResult(s.ID)
		states = append(states, LinkState{
			SlaveID:     s.ID,
			Name:        s.Name,
			Status:      s.Status,
			Connections: s.Connections,
			Result:      result,
		})
	}
	return states, nil
}

// CreateHTMX handles the new-link-test form.
// POST /linktest
func (h *LinkTestPageHandler) CreateHTMX(c *gin.Context) {
	var req CreateLinkTestRequest
	if err := c.ShouldBind(&req); err != nil {
		h.formError(c, pkg.FieldErrors(err, &req), "Please check the highlighted fields")
		return
	}

	if _, err := h.svc.CreateLinkTest(c.Request.Context(), req.input()); err != nil {
		h.formError(c, nil, pkg.SafeMessage(err, "Could not create link test, please retry"))
		return
	}

	pkg.TriggerToast(c, "Link test created", pkg.ToastSuccess)
	c.Header("HX-Redirect", view.Routes().Path(view.NameLinkTest))
	c.Status(http.StatusOK)
}

// StartHTMX starts a pending link test.
// POST /linktest/:id/start
func (h *LinkTestPageHandler) StartHTMX(c *gin.Context) {
	h.action(c, func(ctx context.Context, id uint) error {
		_, err := h.svc.StartLinkTest(ctx, id)
		return err
	}, "Link test started", "Start failed")
}

// FinishHTMX stops a running link test as completed.
// POST /linktest/:id/finish
func (h *LinkTestPageHandler) FinishHTMX(c *gin.Context) {
	failed := c.PostForm("failed") == "true"
	h.action(c, func(ctx context.Context, id uint) error {
		_, err := h.svc.FinishLinkTest(ctx, id, failed)
		return err
	}, "Link test finished", "Finish failed")
}

// DeleteHTMX removes a link test.
// DELETE /linktest/:id
func (h *LinkTestPageHandler) DeleteHTMX(c *gin.Context) {
	h.action(c, h.svc.DeleteLinkTest, "Link test deleted", "Delete failed")
}

func (h *LinkTestPageHandler) action(c *gin.Context, run func(context.Context, uint) error, okMsg, failMsg string) {
	c.Header("HX-Reswap", "none")
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		pkg.TriggerToast(c, "Invalid link test ID", pkg.ToastError)
		c.Status(http.StatusOK)
		return
	}
	if err := run(c.Request.Context(), uint(id)); err != nil {
		pkg.TriggerToast(c, pkg.SafeMessage(err, failMsg), pkg.ToastError)
		c.Status(http.StatusOK)
		return
	}
	pkg.TriggerToast(c, okMsg, pkg.ToastSuccess, linkTestsChanged)
	c.Status(http.StatusOK)
}

func (h *LinkTestPageHandler) formError(c *gin.Context, fields map[string]string, message string) {
	c.Header("HX-Retarget", "#linktest-form-errors")
	c.HTML(http.StatusOK, "fragments/form_errors.html", gin.H{
		"Error":  message,
		"Fields": fields,
	})
}
