package app

import "github.com/gin-gonic/gin"

// Module defines the contract for a self-registering business module.
// Each module registers its own API routes and htmx page actions.
type Module interface {
	RegisterRoutes(api *gin.RouterGroup, pages *gin.RouterGroup)
}

// ViewProvider is implemented by modules that render console views. Keys
// are view identifiers from the route table; the router binds each declared
// path to the handler of its view.
type ViewProvider interface {
	Views() map[string]gin.HandlerFunc
}
