package report

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/simp-lee/mqttbench/internal/domain"
	"github.com/simp-lee/mqttbench/internal/view"
)

// ReportPageHandler renders the Home and Report views.
type ReportPageHandler struct {
	svc domain.ReportService
}

// NewReportPageHandler creates a new ReportPageHandler with the given service.
func NewReportPageHandler(svc domain.ReportService) *ReportPageHandler {
	return &ReportPageHandler{svc: svc}
}

// Home renders the dashboard.
// GET /
func (h *ReportPageHandler) Home(c *gin.Context) {
	h.render(c, "home/index.html", "Dashboard", view.NameHome)
}

// Report renders the full report.
// GET /report
func (h *ReportPageHandler) Report(c *gin.Context) {
	h.render(c, "report/index.html", "Report", view.NameReport)
}

func (h *ReportPageHandler) render(c *gin.Context, page, title, active string) {
	report, err := h.svc.BuildReport(c.Request.Context())
	if err != nil {
		slog.ErrorContext(c.Request.Context(), "build report failed", slog.String("error", err.Error()))
		c.HTML(http.StatusInternalServerError, "errors/500.html", gin.H{})
		return
	}
	c.HTML(http.StatusOK, page, gin.H{
		"Title":  title,
		"Active": active,
		"Report": report,
	})
}
