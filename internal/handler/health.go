package handler // declare the package name; contains HTTP handlers

import (
    "net/http"

    "github.com/labstack/echo/v4"
)

// Health is the liveness probe polled by load balancers.  It always answers
// 200 with a plain "ok".
func Health(c echo.Context) error {
    return c.String(http.StatusOK, "ok")
}

// Ready reports whether the seat map has been loaded.  It answers 503 until
// at least one showtime is registered, so traffic is only routed once the
// sold seats have been restored from the ledger.
func (h *PublicHandler) Ready(c echo.Context) error {
    shows, err := h.Inventory.Showtimes("")
    if err != nil {
        return writeError(c, err)
    }
    if len(shows) == 0 {
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "loading", "showtimes": 0})
    }
    return c.JSON(http.StatusOK, echo.Map{"status": "ready", "showtimes": len(shows)})
}
