package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/showtime-booking/internal/ledger"
)

// AdminHandler exposes the administrative booking surface.  Both routes
// pass straight through to the ledger and never touch seat state.
type AdminHandler struct {
    Ledger ledger.Ledger
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(l ledger.Ledger) *AdminHandler {
    if l == nil {
        panic("nil ledger passed to NewAdminHandler")
    }
    return &AdminHandler{Ledger: l}
}

// ListBookings handles GET /api/bookings.  Bookings are returned most
// recent first.
func (h *AdminHandler) ListBookings(c echo.Context) error {
    bookings, err := h.Ledger.ListAll(c.Request().Context())
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "success":  true,
        "count":    len(bookings),
        "bookings": bookings,
    })
}

// ClearBookings handles DELETE /api/bookings.  Sold seats stay sold.
func (h *AdminHandler) ClearBookings(c echo.Context) error {
    n, err := h.Ledger.Clear(c.Request().Context())
    if err != nil {
        return writeError(c, err)
    }
    logrus.WithField("deleted", n).Warn("booking ledger cleared")
    return c.JSON(http.StatusOK, echo.Map{
        "success":      true,
        "message":      "All bookings cleared",
        "deletedCount": n,
    })
}
