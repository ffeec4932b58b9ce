package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/showtime-booking/internal/middleware"
    "github.com/iliyamo/showtime-booking/internal/model"
    "github.com/iliyamo/showtime-booking/internal/payment"
    "github.com/iliyamo/showtime-booking/internal/reservation"
)

// CustomerHandler drives the hold -> payment -> booking flow for a session.
// All methods assume SessionAuth has run; a hold is only visible to the
// session that created it, other sessions get 404.
type CustomerHandler struct {
    Holds    *reservation.Manager
    Payments *payment.Reconciler
}

// NewCustomerHandler constructs a CustomerHandler.  All dependencies must
// be non-nil.
func NewCustomerHandler(holds *reservation.Manager, payments *payment.Reconciler) *CustomerHandler {
    if holds == nil || payments == nil {
        panic("nil dependency passed to NewCustomerHandler")
    }
    return &CustomerHandler{Holds: holds, Payments: payments}
}

type holdRequest struct {
    Seats []string `json:"seats"`
}

type paymentRequest struct {
    Customer      model.Customer `json:"customer"`
    PaymentMethod string         `json:"payment_method"`
}

type confirmRequest struct {
    PaymentMethod    string `json:"payment_method"`
    PaymentReference string `json:"payment_reference"`
}

// HoldSeats handles POST /v1/showtimes/:id/holds.  The body lists seat
// labels, e.g. {"seats":["A1","A2"]}.  It returns 201 with the hold and its
// expiry.  When any seat is taken it returns 409 with the blocking seats
// and nothing is held.
func (h *CustomerHandler) HoldSeats(c echo.Context) error {
    var body holdRequest
    if err := c.Bind(&body); err != nil {
        return badRequest(c, "invalid request body")
    }
    if len(body.Seats) == 0 {
        return badRequest(c, "seats is required")
    }
    seats, err := model.ParseSeatIDs(body.Seats)
    if err != nil {
        return writeError(c, err)
    }
    hold, err := h.Holds.RequestHold(c.Request().Context(), c.Param("id"), seats, middleware.SessionID(c))
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusCreated, hold)
}

// GetHold handles GET /v1/holds/:id.
func (h *CustomerHandler) GetHold(c echo.Context) error {
    hold, err := h.ownedHold(c)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, hold)
}

// ReleaseHold handles DELETE /v1/holds/:id.  Releasing an already resolved
// hold is a no-op and still returns 200 with its final state.
func (h *CustomerHandler) ReleaseHold(c echo.Context) error {
    if _, err := h.ownedHold(c); err != nil {
        return writeError(c, err)
    }
    hold, err := h.Holds.CancelHold(c.Request().Context(), c.Param("id"))
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, hold)
}

// StartPayment handles POST /v1/holds/:id/payment.  It records customer
// details and moves the hold to PENDING while the provider collects the
// payment.
func (h *CustomerHandler) StartPayment(c echo.Context) error {
    if _, err := h.ownedHold(c); err != nil {
        return writeError(c, err)
    }
    var body paymentRequest
    if err := c.Bind(&body); err != nil {
        return badRequest(c, "invalid request body")
    }
    hold, err := h.Payments.InitiatePayment(c.Request().Context(), c.Param("id"), body.Customer, body.PaymentMethod)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusAccepted, hold)
}

// ConfirmPayment handles POST /v1/holds/:id/confirm.  It commits the hold
// into a booking.  Repeating the call for a committed hold returns the
// same booking.
func (h *CustomerHandler) ConfirmPayment(c echo.Context) error {
    if _, err := h.ownedHold(c); err != nil {
        return writeError(c, err)
    }
    var body confirmRequest
    if err := c.Bind(&body); err != nil {
        return badRequest(c, "invalid request body")
    }
    booking, err := h.Payments.ConfirmPayment(c.Request().Context(), c.Param("id"), body.PaymentMethod, body.PaymentReference)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"success": true, "booking": booking})
}

// ownedHold loads the hold in :id and checks that the calling session owns
// it.  Foreign holds are reported as not found.
func (h *CustomerHandler) ownedHold(c echo.Context) (model.Hold, error) {
    hold, err := h.Holds.Hold(c.Param("id"))
    if err != nil {
        return model.Hold{}, err
    }
    if hold.SessionID != middleware.SessionID(c) {
        return model.Hold{}, model.ErrHoldNotFound
    }
    return hold, nil
}
