package images

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/thrive-mt/imageapi/internal/api/common"
	"github.com/thrive-mt/imageapi/pkg/image"
	"github.com/thrive-mt/imageapi/pkg/logging"
	"github.com/thrive-mt/imageapi/pkg/response"
)

var (
	errInvalidRequest    = errors.New("invalid request")
	errRedirectForbidden = errors.New("redirect target is not allowed")
)

// Handler handles image resolution HTTP requests
type Handler struct {
	resolver      *image.Resolver
	redirectHosts map[string]struct{}
}

// NewHandler creates a new images handler. redirectHosts extend the hosts
// /img may redirect to; the fallback table hosts are always allowed.
func NewHandler(resolver *image.Resolver, redirectHosts ...string) *Handler {
	h := &Handler{resolver: resolver, redirectHosts: make(map[string]struct{}, len(redirectHosts))}
	for _, host := range redirectHosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host != "" {
			h.redirectHosts[host] = struct{}{}
		}
	}
	return h
}

// Resolve handles GET and POST /images/resolve
func (h *Handler) Resolve(c echo.Context) error {
	req, err := h.bindResolve(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	res := h.resolver.Resolve(c.Request().Context(), req)
	return c.JSON(http.StatusOK, common.NewResolveResponse(res))
}

// Redirect handles GET /img by redirecting to the resolved URL, so it can
// be used directly as an <img src>
func (h *Handler) Redirect(c echo.Context) error {
	req, err := h.bindResolve(c)
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	for _, target := range []string{req.RawPath, req.ExplicitFallback} {
		if image.IsUsable(target) && !h.canRedirectTo(strings.TrimSpace(target)) {
			logging.Logger.Warn("Refused image redirect",
				zap.String("target", target),
				zap.String("remote_ip", c.RealIP()))
			return response.BadRequest(c, errRedirectForbidden.Error())
		}
	}

	res := h.resolver.Resolve(c.Request().Context(), req)
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Redirect(http.StatusFound, res.URL)
}

// ReportError handles POST /images/errors
func (h *Handler) ReportError(c echo.Context) error {
	var req common.ImageErrorRequest
	if err := c.Bind(&req); err != nil {
		logging.Logger.Debug("Failed to bind request", zap.Error(err))
		return response.BadRequest(c, "Invalid request")
	}
	if err := c.Validate(&req); err != nil {
		return response.BadRequest(c, err.Error())
	}
	imgErr, err := req.ToImageError()
	if err != nil {
		return response.BadRequest(c, err.Error())
	}

	res := h.resolver.HandleError(c.Request().Context(), imgErr)
	return c.JSON(http.StatusOK, common.ImageErrorResponse{
		URL:     res.URL,
		Outcome: string(res.Outcome),
	})
}

func (h *Handler) bindResolve(c echo.Context) (image.ImageRequest, error) {
	var req common.ResolveRequest
	if err := c.Bind(&req); err != nil {
		logging.Logger.Debug("Failed to bind request", zap.Error(err))
		return image.ImageRequest{}, errInvalidRequest
	}
	if err := c.Validate(&req); err != nil {
		return image.ImageRequest{}, err
	}
	return req.ToImageRequest()
}

// canRedirectTo accepts same-origin paths and http(s) URLs on an allowed host
func (h *Handler) canRedirectTo(target string) bool {
	if strings.HasPrefix(target, "//") || strings.ContainsRune(target, '\\') {
		return false
	}
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	if u.Scheme == "" && u.Host == "" {
		return true
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.ToLower(u.Host)
	if _, ok := h.redirectHosts[host]; ok {
		return true
	}
	for _, allowed := range h.resolver.Fallbacks().Hosts() {
		if allowed == host {
			return true
		}
	}
	return false
}
