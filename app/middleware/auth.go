package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/vibast-solutions/ms-go-account/app/dto"
	"github.com/vibast-solutions/ms-go-account/app/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	ContextKeyAccountID = "account_id"
	ContextKeyUsername  = "username"
)

type accessTokenValidator interface {
	ValidateAccessToken(tokenString string) (*dto.TokenInfo, error)
}

type AuthMiddleware struct {
	accountService accessTokenValidator
}

func NewAuthMiddleware(accountService accessTokenValidator) *AuthMiddleware {
	return &AuthMiddleware{accountService: accountService}
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authHeader := c.Request().Header.Get("Authorization")
		if authHeader == "" {
			logrus.Debug("Missing authorization header")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "missing authorization header",
			})
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			logrus.Debug("Invalid authorization header format")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid authorization header format",
			})
		}

		info, err := m.accountService.ValidateAccessToken(parts[1])
		if err != nil {
			if errors.Is(err, service.ErrTokenExpired) {
				logrus.Debug("Expired access token")
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": "token has expired",
				})
			}
			logrus.Debug("Invalid access token")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid token",
			})
		}

		c.Set(ContextKeyAccountID, info.AccountID)
		c.Set(ContextKeyUsername, info.Username)

		return next(c)
	}
}

// AccountID returns the authenticated account set by RequireAuth.
func AccountID(c echo.Context) string {
	id, _ := c.Get(ContextKeyAccountID).(string)
	return id
}
