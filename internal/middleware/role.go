package middleware // middleware provides shared request processing for handlers

import (
    "crypto/subtle"
    "net/http" // http package defines standard HTTP status codes
    "strings"

    "github.com/labstack/echo/v4" // echo provides middleware chaining and context
)

// RequireAdmin returns a middleware that only lets requests through when
// they carry the configured admin token as a Bearer credential.  With an
// empty token every request is refused, which keeps the administrative
// booking routes closed unless explicitly configured.
func RequireAdmin(token string) echo.MiddlewareFunc {
    want := []byte(token)
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            got := strings.TrimPrefix(c.Request().Header.Get("Authorization"), "Bearer ")
            if len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
                return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
            }
            return next(c)
        }
    }
}
