package slave

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/mqttbench/internal/view"
)

// SlaveModule implements the app.Module interface for slave management.
type SlaveModule struct {
	handler     *SlaveHandler
	pageHandler *SlavePageHandler
}

// NewModule creates a new SlaveModule with the given handlers.
// Panics if h or ph is nil.
func NewModule(h *SlaveHandler, ph *SlavePageHandler) *SlaveModule {
	if h == nil {
		panic("slave.NewModule: handler must not be nil")
	}
	if ph == nil {
		panic("slave.NewModule: pageHandler must not be nil")
	}
	return &SlaveModule{handler: h, pageHandler: ph}
}

// RegisterRoutes registers slave API routes and htmx actions. The Slaves
// page itself is bound through Views.
func (m *SlaveModule) RegisterRoutes(api *gin.RouterGroup, pages *gin.RouterGroup) {
	api.GET("/slaves", m.handler.List)
	api.POST("/slaves", m.handler.Create)
	api.POST("/slaves/deploy", m.handler.Deploy)
	api.GET("/slaves/:id", m.handler.Get)
	api.PUT("/slaves/:id", m.handler.Update)
	api.DELETE("/slaves/:id", m.handler.Delete)
	api.POST("/slaves/:id/start", m.handler.Start)
	api.POST("/slaves/:id/stop", m.handler.Stop)
	api.GET("/slaves/:id/config-result", m.handler.ConfigResult)
	api.DELETE("/slaves/:id/config-result", m.handler.ClearConfigResult)
	api.GET("/config-results", m.handler.ConfigResults)

	pages.POST("/slaves", m.pageHandler.CreateHTMX)
	pages.POST("/slaves/deploy", m.pageHandler.DeployHTMX)
	pages.PUT("/slaves/:id", m.pageHandler.UpdateHTMX)
	pages.DELETE("/slaves/:id", m.pageHandler.DeleteHTMX)
	pages.POST("/slaves/:id/start", m.pageHandler.StartHTMX)
	pages.POST("/slaves/:id/stop", m.pageHandler.StopHTMX)
}

// Views binds the SlaveManager view.
func (m *SlaveModule) Views() map[string]gin.HandlerFunc {
	return map[string]gin.HandlerFunc{
		view.SlaveManager: m.pageHandler.ListPage,
	}
}
