package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	cacheapi "github.com/thrive-mt/imageapi/internal/api/cache"
	"github.com/thrive-mt/imageapi/internal/api/fallback"
	"github.com/thrive-mt/imageapi/internal/api/images"
	"github.com/thrive-mt/imageapi/internal/api/probe"
	"github.com/thrive-mt/imageapi/internal/api/user"
	"github.com/thrive-mt/imageapi/internal/middleware"
	"github.com/thrive-mt/imageapi/pkg/config"
	"github.com/thrive-mt/imageapi/pkg/image"
	"github.com/thrive-mt/imageapi/pkg/logging"
	"github.com/thrive-mt/imageapi/pkg/metrics"
)

// VersionInfo contains build version information
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
}

// CustomValidator wraps the validator
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates the echo request validator
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate validates the struct
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// Deps are the collaborators the HTTP layer is built on
type Deps struct {
	Resolver     *image.Resolver
	Checker      *image.ImageExistenceChecker
	Metrics      *metrics.Collector
	CacheBackend string
}

// Server represents the API server
type Server struct {
	echo        *echo.Echo
	apiKeys     []config.APIKey
	apiKeysMu   sync.RWMutex
	instanceID  string
	publicURL   string
	versionInfo *VersionInfo
}

// GetAPIKeys returns a copy of the current API keys
func (s *Server) GetAPIKeys() []config.APIKey {
	s.apiKeysMu.RLock()
	defer s.apiKeysMu.RUnlock()
	keys := make([]config.APIKey, len(s.apiKeys))
	copy(keys, s.apiKeys)
	return keys
}

// UpdateAPIKeys updates the in-memory API keys list, e.g. after a config reload
func (s *Server) UpdateAPIKeys(keys []config.APIKey) {
	s.apiKeysMu.Lock()
	defer s.apiKeysMu.Unlock()
	s.apiKeys = make([]config.APIKey, len(keys))
	copy(s.apiKeys, keys)
}

// New creates a new API server instance and registers every route on e
func New(
	e *echo.Echo,
	cfg *config.Config,
	deps Deps,
	instanceID string, // API instance ID for verification
	versionInfo *VersionInfo, // Version information for /version endpoint
) *Server {
	srv := &Server{
		echo:        e,
		instanceID:  instanceID,
		publicURL:   cfg.Server.PublicURL,
		versionInfo: versionInfo,
	}
	srv.UpdateAPIKeys(cfg.APIKeys)

	if e.Validator == nil {
		e.Validator = NewValidator()
	}
	e.Use(middleware.APIIDMiddleware(instanceID))
	if deps.Metrics != nil {
		e.Use(middleware.MetricsMiddleware(deps.Metrics))
		e.GET("/metrics", echo.WrapHandler(deps.Metrics.Handler()))
	}

	// Create handlers with dependencies
	imagesHandler := images.NewHandler(deps.Resolver, cfg.Resolver.RedirectHosts...)
	fallbackHandler := fallback.NewHandler(deps.Resolver)
	cacheHandler := cacheapi.NewHandler(deps.Resolver, deps.CacheBackend)
	userHandler := user.NewHandler()

	// Public resolution routes
	api := e.Group("/api/v1")
	images.RegisterRoutes(api.Group("/images"), imagesHandler)
	fallback.RegisterRoutes(api.Group("/fallbacks"), fallbackHandler)
	e.GET("/img", imagesHandler.Redirect)

	// Admin routes with authentication
	// Use function-based middleware to get current keys dynamically
	admin := api.Group("/admin")
	admin.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return middleware.APIKeyMiddleware(srv.GetAPIKeys())(next)(c)
		}
	})
	// Add version header only to authenticated requests (prevents version fingerprinting)
	admin.Use(middleware.VersionMiddleware(srv.versionInfo.Version))

	user.RegisterRoutes(admin, userHandler)
	cacheapi.RegisterRoutes(admin.Group("/cache"), cacheHandler)
	if deps.Checker != nil {
		probe.RegisterRoutes(admin.Group("/images"), probe.NewHandler(deps.Checker, deps.Metrics))
	}
	admin.GET("/version", srv.handleVersion)

	// Health check (no auth required - for load balancers/probes)
	// Supports ?info=true to return API information (public URL and API ID)
	// Note: Does NOT expose version information
	e.GET("/health", srv.handleHealth)

	return srv
}

// handleHealth handles the health check endpoint
// Returns 200 OK for normal health checks
// Returns JSON with API info when ?info=true is specified
func (s *Server) handleHealth(c echo.Context) error {
	if c.QueryParam("info") == "true" {
		info := map[string]string{
			"public_url": s.publicURL,
			"api_id":     s.instanceID,
		}
		return c.JSON(http.StatusOK, info)
	}

	return c.NoContent(http.StatusOK)
}

// handleVersion handles the version endpoint
func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(http.StatusOK, s.versionInfo)
}

// Start starts the API server on port and blocks until it stops
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	logging.Logger.Info("Starting server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
