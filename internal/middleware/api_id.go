package middleware

import (
	"github.com/labstack/echo/v4"
)

// HeaderAPIID carries the instance id on every response
const HeaderAPIID = "X-Image-API-ID"

// APIIDMiddleware adds the X-Image-API-ID header to all responses
// This allows clients to verify they're talking to the correct API instance
func APIIDMiddleware(instanceID string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set(HeaderAPIID, instanceID)
			return next(c)
		}
	}
}
