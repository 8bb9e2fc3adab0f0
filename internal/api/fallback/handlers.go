package fallback

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/thrive-mt/imageapi/internal/api/common"
	"github.com/thrive-mt/imageapi/pkg/image"
	"github.com/thrive-mt/imageapi/pkg/response"
)

// Handler serves category fallback images
type Handler struct {
	resolver *image.Resolver
}

// NewHandler creates a new fallback handler
func NewHandler(resolver *image.Resolver) *Handler {
	return &Handler{resolver: resolver}
}

// GetFallback handles GET /fallbacks. An explicit category wins over the context tag.
func (h *Handler) GetFallback(c echo.Context) error {
	var req common.FallbackRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "Invalid request")
	}
	cat, err := common.ParseCategory(req.Category)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	u := h.resolver.FallbackFor(req.Context)
	if cat != image.CategoryUnknown {
		u = h.resolver.FallbackForCategory(cat)
	}
	return c.JSON(http.StatusOK, common.FallbackResponse{URL: u})
}

// ListRules handles GET /fallbacks/rules
func (h *Handler) ListRules(c echo.Context) error {
	return c.JSON(http.StatusOK, common.NewFallbackTableResponse(h.resolver.Fallbacks()))
}
