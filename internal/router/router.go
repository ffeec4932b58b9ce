package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/showtime-booking/internal/handler" // import the handlers that implement business logic
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance: the health check and the Prometheus scrape
// endpoint.
func RegisterRoutes(e *echo.Echo) {
	// Load balancers and monitoring systems poll /healthz.
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterSession registers POST /v1/sessions, which issues the anonymous
// session tokens the hold routes require.
func RegisterSession(e *echo.Echo, s *handler.SessionHandler) {
	e.POST("/v1/sessions", s.CreateSession)
}

// RegisterPublic registers unauthenticated browse endpoints.  Seat
// availability is read live from the seat map on every request.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler) {
	e.GET("/readyz", p.Ready)
	e.GET("/v1/showtimes", p.ListShowtimes)
	e.GET("/v1/showtimes/:id/seats", p.GetShowtimeSeats)
}
