package middleware

import (
	"github.com/labstack/echo/v4"
)

// HeaderAPIVersion carries the build version on admin responses
const HeaderAPIVersion = "X-Image-API-Version"

// VersionMiddleware adds the X-Image-API-Version header to all responses
// This allows CLI clients to check server version for backward compatibility
func VersionMiddleware(version string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set(HeaderAPIVersion, version)
			return next(c)
		}
	}
}
