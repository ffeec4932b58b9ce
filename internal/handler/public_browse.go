// Package handler exposes HTTP handlers for both session-authenticated and
// public endpoints.  This file defines the public browsing API: showtimes
// and their live seat availability, readable without a session.
package handler

import (
    "net/http"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/showtime-booking/internal/inventory"
)

// PublicHandler serves unauthenticated availability reads.
type PublicHandler struct {
    Inventory *inventory.Service
}

// NewPublicHandler constructs a PublicHandler.
func NewPublicHandler(inv *inventory.Service) *PublicHandler {
    if inv == nil {
        panic("nil inventory passed to NewPublicHandler")
    }
    return &PublicHandler{Inventory: inv}
}

// ListShowtimes handles GET /v1/showtimes.  The optional ?movie= query
// filters by exact title.
func (h *PublicHandler) ListShowtimes(c echo.Context) error {
    shows, err := h.Inventory.Showtimes(strings.TrimSpace(c.QueryParam("movie")))
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"count": len(shows), "showtimes": shows})
}

// GetShowtimeSeats handles GET /v1/showtimes/:id/seats.  It returns every
// seat with its current state in row-major order; ?view=rows groups the
// seats by row instead.
func (h *PublicHandler) GetShowtimeSeats(c echo.Context) error {
    id := c.Param("id")
    if c.QueryParam("view") == "rows" {
        layout, err := h.Inventory.Layout(id)
        if err != nil {
            return writeError(c, err)
        }
        return c.JSON(http.StatusOK, layout)
    }
    seats, err := h.Inventory.DescribeSeats(id)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"showtime_id": id, "seats": seats})
}
