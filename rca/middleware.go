package rca

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	_ctx_user_key = "rca_user"

	detailMissingAuth = "Authorization header is missing"
	detailBadScheme   = "Invalid authorization header format. Use 'Bearer {token}'"
	detailBadToken    = "Invalid or expired token"
)

func unauthorized(c echo.Context, msg string) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
	return detail(c, http.StatusUnauthorized, msg)
}

// RequireToken rejects requests without a valid bearer token and stores the
// token owner in the echo context.
func RequireToken(authn Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return unauthorized(c, detailMissingAuth)
			}
			parts := strings.Fields(header)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return unauthorized(c, detailBadScheme)
			}

			user, err := authn.VerifyToken(c.Request().Context(), parts[1])
			if err != nil {
				return unauthorized(c, detailBadToken)
			}
			c.Set(_ctx_user_key, user)
			return next(c)
		}
	}
}

// UserFrom returns the authenticated user of the request, if any.
func UserFrom(c echo.Context) string {
	user, _ := c.Get(_ctx_user_key).(string)
	return user
}
