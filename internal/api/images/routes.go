package images

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers image routes
func RegisterRoutes(g *echo.Group, handler *Handler) {
	g.GET("/resolve", handler.Resolve)
	g.POST("/resolve", handler.Resolve)
	g.POST("/errors", handler.ReportError)
}
