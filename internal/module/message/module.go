package message

import (
	"github.com/gin-gonic/gin"

	"github.com/simp-lee/mqttbench/internal/view"
)

// MessageModule implements the app.Module interface for message tests.
type MessageModule struct {
	handler     *MessageTestHandler
	pageHandler *MessagePageHandler
}

// NewModule creates a new MessageModule with the given handlers.
// Panics if h or ph is nil.
func NewModule(h *MessageTestHandler, ph *MessagePageHandler) *MessageModule {
	if h == nil || ph == nil {
		panic("message.NewModule: handlers must not be nil")
	}
	return &MessageModule{handler: h, pageHandler: ph}
}

// RegisterRoutes registers message test API routes and htmx actions.
func (m *MessageModule) RegisterRoutes(api *gin.RouterGroup, pages *gin.RouterGroup) {
	api.GET("/messages", m.handler.List)
	api.POST("/messages", m.handler.Create)
	api.GET("/messages/:id", m.handler.Get)
	api.DELETE("/messages/:id", m.handler.Delete)
	api.POST("/messages/:id/run", m.handler.Run)
	api.POST("/messages/:id/execute", m.handler.Execute)

	pages.POST("/message", m.pageHandler.CreateHTMX)
	pages.POST("/message/:id/run", m.pageHandler.RunHTMX)
	pages.DELETE("/message/:id", m.pageHandler.DeleteHTMX)
}

// Views binds the Message view.
func (m *MessageModule) Views() map[string]gin.HandlerFunc {
	return map[string]gin.HandlerFunc{
		view.MessageView: m.pageHandler.Page,
	}
}
