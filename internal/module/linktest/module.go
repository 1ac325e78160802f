package linktest

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/mqttbench/internal/view"
)

// LinkTestModule implements the app.Module interface for link tests.
type LinkTestModule struct {
	handler     *LinkTestHandler
	pageHandler *LinkTestPageHandler
}

// NewModule creates a new LinkTestModule with the given handlers.
// Panics if h or ph is nil.
func NewModule(h *LinkTestHandler, ph *LinkTestPageHandler) *LinkTestModule {
	if h == nil {
		panic("linktest.NewModule: handler must not be nil")
	}
	if ph == nil {
		panic("linktest.NewModule: pageHandler must not be nil")
	}
	return &LinkTestModule{handler: h, pageHandler: ph}
}

// RegisterRoutes registers link test API routes and htmx actions.
func (m *LinkTestModule) RegisterRoutes(api *gin.RouterGroup, pages *gin.RouterGroup) {
	api.GET("/linktests", m.handler.List)
	api.POST("/linktests", m.handler.Create)
	api.GET("/linktests/:id", m.handler.Get)
	api.DELETE("/linktests/:id", m.handler.Delete)
	api.POST("/linktests/:id/start", m.handler.Start)
	api.POST("/linktests/:id/finish", m.handler.Finish)

	pages.POST("/linktest", m.pageHandler.CreateHTMX)
	pages.POST("/linktest/:id/start", m.pageHandler.StartHTMX)
	pages.POST("/linktest/:id/finish", m.pageHandler.FinishHTMX)
	pages.DELETE("/linktest/:id", m.pageHandler.DeleteHTMX)
}

// Views binds the LinkTest view.
func (m *LinkTestModule) Views() map[string]gin.HandlerFunc {
	return map[string]gin.HandlerFunc{
		view.LinkTestView: m.pageHandler.Page,
	}
}
