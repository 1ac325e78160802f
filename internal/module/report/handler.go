package report

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/mqttbench/internal/domain"
	"github.com/simp-lee/mqttbench/internal/pkg"
)

// ReportHandler serves the report as JSON.
type ReportHandler struct {
	svc domain.ReportService
}

// NewReportHandler creates a new ReportHandler with the given service.
func NewReportHandler(svc domain.ReportService) *ReportHandler {
	return &ReportHandler{svc: svc}
}

// Get handles GET /api/v1/report.
func (h *ReportHandler) Get(c *gin.Context) {
	report, err := h.svc.BuildReport(c.Request.Context())
	if err != nil {
		pkg.Error(c, err)
		return
	}
	pkg.Success(c, report)
}
