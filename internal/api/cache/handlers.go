package cache

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/thrive-mt/imageapi/internal/api/common"
	"github.com/thrive-mt/imageapi/internal/middleware"
	"github.com/thrive-mt/imageapi/pkg/image"
	"github.com/thrive-mt/imageapi/pkg/logging"
	"github.com/thrive-mt/imageapi/pkg/response"
)

// Handler exposes resolver cache administration
type Handler struct {
	resolver *image.Resolver
	backend  string
}

// NewHandler creates a new cache handler
func NewHandler(resolver *image.Resolver, backend string) *Handler {
	return &Handler{resolver: resolver, backend: backend}
}

// GetStats handles GET /admin/cache/stats
func (h *Handler) GetStats(c echo.Context) error {
	stats, err := h.resolver.Stats(c.Request().Context())
	if err != nil {
		logging.Logger.Error("Failed to read cache stats", zap.Error(err))
		return response.InternalServerError(c, "Failed to read cache stats")
	}
	return c.JSON(http.StatusOK, common.CacheStatsResponse{Backend: h.backend, Stats: stats})
}

// Clear handles DELETE /admin/cache: it wipes cached resolutions and the
// failure record so every image is recomputed and may be retried again
func (h *Handler) Clear(c echo.Context) error {
	user, _ := middleware.GetUserFromContext(c)
	if err := h.resolver.Clear(c.Request().Context()); err != nil {
		logging.Logger.Error("Failed to clear cache", zap.Error(err))
		return response.InternalServerError(c, "Failed to clear cache")
	}

	logging.Logger.Info("Resolver cache cleared",
		zap.String("user", user.Name),
		zap.String("ip", c.RealIP()))
	return response.OK(c, "Cache cleared", nil)
}
