package report

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/mqttbench/internal/view"
)

// ReportModule implements the app.Module interface for reporting.
type ReportModule struct {
	handler     *ReportHandler
	pageHandler *ReportPageHandler
}

// NewModule creates a new ReportModule. Panics if h or ph is nil.
func NewModule(h *ReportHandler, ph *ReportPageHandler) *ReportModule {
	if h == nil || ph == nil {
		panic("report.NewModule: handlers must not be nil")
	}
	return &ReportModule{handler: h, pageHandler: ph}
}

// RegisterRoutes registers the report API. The module has no htmx actions.
func (m *ReportModule) RegisterRoutes(api *gin.RouterGroup, _ *gin.RouterGroup) {
	api.GET("/report", m.handler.Get)
}

// Views binds the Home and Report views.
func (m *ReportModule) Views() map[string]gin.HandlerFunc {
	return map[string]gin.HandlerFunc{
		view.HomeView:   m.pageHandler.Home,
		view.ReportView: m.pageHandler.Report,
	}
}
