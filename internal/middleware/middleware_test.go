package middleware_test

import (
	"net/http"
	"net/http/httptest"

	"github.com/labstack/echo/v4"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/thrive-mt/imageapi/internal/middleware"
	authpkg "github.com/thrive-mt/imageapi/pkg/auth"
	"github.com/thrive-mt/imageapi/pkg/config"
	"github.com/thrive-mt/imageapi/pkg/metrics"
)

var _ = Describe("Middleware", func() {
	var e *echo.Echo

	keys := []config.APIKey{
		{Name: "dash", Role: "viewer", APIKey: "viewer-key-0123456789"},
		{Name: "ops", Role: "operator", APIKey: "operator-key-0123456789"},
	}

	do := func(method, path, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		if key != "" {
			req.Header.Set(middleware.HeaderAPIKey, key)
		}
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	BeforeEach(func() {
		e = echo.New()
		e.Use(middleware.RequestIDMiddleware())
		e.Use(middleware.APIIDMiddleware("instance-1"))

		admin := e.Group("/admin")
		admin.Use(middleware.APIKeyMiddleware(keys))
		admin.Use(middleware.VersionMiddleware("v1.2.3"))
		admin.GET("/me", func(c echo.Context) error {
			user, ok := middleware.GetUserFromContext(c)
			Expect(ok).To(BeTrue())
			return c.String(http.StatusOK, user.Name+":"+user.Role.String())
		})
		admin.DELETE("/cache", func(c echo.Context) error {
			return c.NoContent(http.StatusNoContent)
		}, middleware.RequireRole(authpkg.Operator))
	})

	It("should stamp the instance id and a request id on every response", func() {
		rec := do(http.MethodGet, "/nowhere", "")
		Expect(rec.Header().Get(middleware.HeaderAPIID)).To(Equal("instance-1"))
		Expect(rec.Header().Get(echo.HeaderXRequestID)).To(HaveLen(36))
	})

	It("should reject requests without a key", func() {
		rec := do(http.MethodGet, "/admin/me", "")
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(rec.Header().Get(middleware.HeaderAPIVersion)).To(BeEmpty())
	})

	It("should reject unknown keys", func() {
		rec := do(http.MethodGet, "/admin/me", "nope-nope-nope-nope")
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
	})

	It("should authenticate known keys and add the version header", func() {
		rec := do(http.MethodGet, "/admin/me", "viewer-key-0123456789")
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(Equal("dash:viewer"))
		Expect(rec.Header().Get(middleware.HeaderAPIVersion)).To(Equal("v1.2.3"))
	})

	DescribeTable("role enforcement",
		func(key string, expected int) {
			Expect(do(http.MethodDelete, "/admin/cache", key).Code).To(Equal(expected))
		},
		Entry("viewer is forbidden", "viewer-key-0123456789", http.StatusForbidden),
		Entry("operator is allowed", "operator-key-0123456789", http.StatusNoContent),
	)

	It("should count requests by route", func() {
		collector := metrics.NewCollector("test")
		e.Use(middleware.MetricsMiddleware(collector))
		e.GET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

		do(http.MethodGet, "/ping", "")
		do(http.MethodGet, "/ping", "")
		Expect(testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("GET", "/ping", "200"))).To(Equal(2.0))
	})
})
