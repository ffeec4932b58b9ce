package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/showtime-booking/internal/payment"
)

// PaymentHandler receives payment provider webhooks.  It feeds the same
// idempotent reconciler path as the payment.outcome queue consumer.
type PaymentHandler struct {
    Payments *payment.Reconciler
}

// NewPaymentHandler constructs a PaymentHandler.
func NewPaymentHandler(p *payment.Reconciler) *PaymentHandler {
    if p == nil {
        panic("nil reconciler passed to NewPaymentHandler")
    }
    return &PaymentHandler{Payments: p}
}

// Callback handles POST /v1/payments/callback with a body like
// {"hold_id":"...","outcome":"success","reference":"pay_123"}.
// Duplicate deliveries answer 200 with "changed": false.
func (h *PaymentHandler) Callback(c echo.Context) error {
    var cb payment.Callback
    if err := c.Bind(&cb); err != nil {
        return badRequest(c, "invalid request body")
    }
    if cb.HoldID == "" {
        return badRequest(c, "hold_id is required")
    }
    res, err := h.Payments.HandleCallback(c.Request().Context(), cb)
    if err != nil {
        return writeError(c, err)
    }
    return c.JSON(http.StatusOK, res)
}
