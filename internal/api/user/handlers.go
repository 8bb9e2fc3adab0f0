package user

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/thrive-mt/imageapi/internal/api/common"
	"github.com/thrive-mt/imageapi/internal/middleware"
	"github.com/thrive-mt/imageapi/pkg/response"
)

// Handler handles API key holder requests
type Handler struct{}

// NewHandler creates a new user handler
func NewHandler() *Handler {
	return &Handler{}
}

// GetCurrentUser handles GET /admin/me
func (h *Handler) GetCurrentUser(c echo.Context) error {
	user, ok := middleware.GetUserFromContext(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	return c.JSON(http.StatusOK, common.UserInfoResponse{
		Name: user.Name,
		Role: user.Role.String(),
	})
}
