package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/vibast-solutions/ms-go-account/app/service"
)

const HeaderAdminKey = "X-Admin-Key"

type adminAuthorizer interface {
	Authorize(apiKey string) error
}

type AdminKeyMiddleware struct {
	adminService adminAuthorizer
}

func NewAdminKeyMiddleware(adminService adminAuthorizer) *AdminKeyMiddleware {
	return &AdminKeyMiddleware{adminService: adminService}
}

func (m *AdminKeyMiddleware) RequireAdminKey(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		// Let CORS preflight pass.
		if c.Request().Method == http.MethodOptions {
			return next(c)
		}

		apiKey := strings.TrimSpace(c.Request().Header.Get(HeaderAdminKey))
		if apiKey == "" {
			logrus.Debug("Missing x-admin-key header")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "unauthorized",
			})
		}

		if err := m.adminService.Authorize(apiKey); err != nil {
			if errors.Is(err, service.ErrNotAuthorized) {
				logrus.WithField("remote_ip", c.RealIP()).Warn("Rejected admin key")
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "unauthorized",
				})
			}
			logrus.WithError(err).Error("Admin key validation failed")
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "internal server error",
			})
		}

		return next(c)
	}
}
