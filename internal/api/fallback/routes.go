package fallback

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers fallback routes
func RegisterRoutes(g *echo.Group, handler *Handler) {
	g.GET("", handler.GetFallback)
	g.GET("/rules", handler.ListRules)
}
