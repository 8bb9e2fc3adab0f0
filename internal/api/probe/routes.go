package probe

import (
	"github.com/labstack/echo/v4"

	"github.com/thrive-mt/imageapi/internal/middleware"
	authpkg "github.com/thrive-mt/imageapi/pkg/auth"
)

// RegisterRoutes registers probe routes
func RegisterRoutes(g *echo.Group, handler *Handler) {
	g.Use(middleware.RequireRole(authpkg.Operator))
	g.POST("/check", handler.CheckImage)
}
