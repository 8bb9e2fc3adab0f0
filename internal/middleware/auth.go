package middleware

import (
	"github.com/labstack/echo/v4"

	authpkg "github.com/thrive-mt/imageapi/pkg/auth"
	"github.com/thrive-mt/imageapi/pkg/config"
	"github.com/thrive-mt/imageapi/pkg/logging"
	"github.com/thrive-mt/imageapi/pkg/response"
)

// HeaderAPIKey is the request header carrying the API key
const HeaderAPIKey = "X-API-Key"

// User represents an authenticated API key holder
type User struct {
	Name string       `json:"name"`
	Role authpkg.Role `json:"role"`
}

// APIKeyMiddleware validates API keys against the configured list
func APIKeyMiddleware(apiKeys []config.APIKey) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Get API key from header
			apiKey := c.Request().Header.Get(HeaderAPIKey)
			if apiKey == "" {
				logging.LogDenied("missing_key", "", c.Path(), c.RealIP())
				return response.Unauthorized(c, "API key required")
			}

			// Validate API key
			keyData, found := config.FindAPIKeyByKey(apiKeys, apiKey)
			if !found {
				logging.LogDenied("invalid_key", maskKey(apiKey), c.Path(), c.RealIP())
				return response.Unauthorized(c, "Invalid API key")
			}

			// Set user in context
			user := &User{
				Name: keyData.Name,
				Role: authpkg.ParseRole(keyData.Role),
			}
			c.Set("user", user)

			return next(c)
		}
	}
}

// RequireRole middleware checks if user has sufficient role permissions
func RequireRole(requiredRole authpkg.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user, ok := GetUserFromContext(c)
			if !ok {
				return response.Unauthorized(c, "User not authenticated")
			}

			if !user.Role.HasPermission(requiredRole) {
				logging.LogDenied("insufficient_role", user.Name, c.Path(), c.RealIP())
				return response.Forbidden(c, "Insufficient permissions. Required: "+requiredRole.String())
			}

			return next(c)
		}
	}
}

// GetUserFromContext extracts user from Echo context
func GetUserFromContext(c echo.Context) (*User, bool) {
	user, ok := c.Get("user").(*User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

// maskKey keeps a short prefix so denied keys can be correlated in logs
func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
