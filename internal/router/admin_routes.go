package router

// This file registers the payment provider webhook and the administrative
// booking routes.  They are kept apart from the session routes because
// they authenticate with shared tokens instead of session JWTs.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-booking/internal/handler"
	"github.com/iliyamo/showtime-booking/internal/middleware"
)

// RegisterPayments registers POST /v1/payments/callback.  When token is
// non-empty the provider must send it as a Bearer credential.
func RegisterPayments(e *echo.Echo, h *handler.PaymentHandler, token string) {
	var mws []echo.MiddlewareFunc
	if token != "" {
		mws = append(mws, middleware.RequireAdmin(token))
	}
	e.POST("/v1/payments/callback", h.Callback, mws...)
}

// RegisterAdmin registers the booking ledger administration routes under
// /api.  They require the admin token; with no token configured every
// request is refused.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, token string) {
	g := e.Group("/api", middleware.RequireAdmin(token))
	g.GET("/bookings", h.ListBookings)
	g.DELETE("/bookings", h.ClearBookings)
}
