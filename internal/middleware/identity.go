package middleware

// identity.go defines helpers shared across middleware and handlers for
// reading the caller's session from the Echo context.

import (
    "github.com/labstack/echo/v4"
)

// SessionID returns the session stored by SessionAuth, or "" when the
// request is unauthenticated.
func SessionID(c echo.Context) string {
    if v, ok := c.Get(sessionKey).(string); ok {
        return v
    }
    return ""
}

// rateSubject is SessionID with a placeholder for anonymous callers.
func rateSubject(c echo.Context) string {
    if s := SessionID(c); s != "" {
        return s
    }
    return "anon"
}
