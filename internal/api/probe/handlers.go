package probe

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/thrive-mt/imageapi/internal/api/common"
	"github.com/thrive-mt/imageapi/pkg/image"
	"github.com/thrive-mt/imageapi/pkg/logging"
	"github.com/thrive-mt/imageapi/pkg/metrics"
	"github.com/thrive-mt/imageapi/pkg/response"
)

// Handler runs image existence probes on behalf of operators
type Handler struct {
	checker *image.ImageExistenceChecker
	metrics *metrics.Collector
}

// NewHandler creates a new probe handler. collector may be nil.
func NewHandler(checker *image.ImageExistenceChecker, collector *metrics.Collector) *Handler {
	return &Handler{checker: checker, metrics: collector}
}

// CheckImage handles POST /admin/images/check
func (h *Handler) CheckImage(c echo.Context) error {
	var req common.CheckImageRequest
	if err := c.Bind(&req); err != nil {
		return response.BadRequest(c, "Invalid request")
	}
	if err := c.Validate(&req); err != nil {
		return response.BadRequest(c, err.Error())
	}

	meta, err := h.checker.CheckImageExists(c.Request().Context(), req.URL)
	if err != nil {
		h.record("error")
		if errors.Is(err, image.ErrNotProbeable) {
			return response.BadRequest(c, err.Error())
		}
		logging.Logger.Warn("Image probe failed",
			zap.String("url", req.URL),
			zap.Error(err))
		return response.BadGateway(c, err.Error())
	}

	if meta.Exists {
		h.record("exists")
	} else {
		h.record("missing")
	}
	return c.JSON(http.StatusOK, meta)
}

func (h *Handler) record(result string) {
	if h.metrics != nil {
		h.metrics.RecordProbe(result)
	}
}
