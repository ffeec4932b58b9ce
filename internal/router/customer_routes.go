package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/showtime-booking/internal/handler"
	"github.com/iliyamo/showtime-booking/internal/middleware"
)

// RegisterCustomer registers session-scoped endpoints under /v1.  All
// routes require a valid session token.  limits throttles the hold and
// payment writes and may be nil.
func RegisterCustomer(e *echo.Echo, h *handler.CustomerHandler, secret string, limits *middleware.TokenBucket) {
	g := e.Group("/v1", middleware.SessionAuth(secret))

	var holdMW, payMW []echo.MiddlewareFunc
	if limits != nil {
		holdMW = append(holdMW, limits.Holds())
		payMW = append(payMW, limits.Payments())
	}
	g.POST("/showtimes/:id/holds", h.HoldSeats, holdMW...)
	g.GET("/holds/:id", h.GetHold)
	g.DELETE("/holds/:id", h.ReleaseHold)
	g.POST("/holds/:id/payment", h.StartPayment, payMW...)
	g.POST("/holds/:id/confirm", h.ConfirmPayment, payMW...)
}
