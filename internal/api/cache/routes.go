package cache

import (
	"github.com/labstack/echo/v4"

	"github.com/thrive-mt/imageapi/internal/middleware"
	authpkg "github.com/thrive-mt/imageapi/pkg/auth"
)

// RegisterRoutes registers cache admin routes
func RegisterRoutes(g *echo.Group, handler *Handler) {
	g.GET("/stats", handler.GetStats, middleware.RequireRole(authpkg.Viewer))
	g.DELETE("", handler.Clear, middleware.RequireRole(authpkg.Operator))
}
