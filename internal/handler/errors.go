package handler // handler defines http handlers

import (
    "context"
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/showtime-booking/internal/model"
)

// writeError translates a core error into its HTTP response.  Every body
// carries a machine-readable "error" code and the error text as "message".
func writeError(c echo.Context, err error) error {
    var pe *model.PersistError
    switch {
    case errors.As(err, &pe):
        // money has moved without a booking; keep this distinct from a
        // declined payment so the client can surface it
        return c.JSON(http.StatusBadGateway, echo.Map{
            "error":             "booking_persist_failed",
            "code":              "booking_persist_failed",
            "message":           "payment was received but the booking could not be recorded; the seats were released",
            "hold_id":           pe.HoldID,
            "payment_reference": pe.PaymentReference,
        })
    case errors.Is(err, model.ErrSeatUnavailable):
        return c.JSON(http.StatusConflict, echo.Map{
            "error":   "seat_unavailable",
            "message": err.Error(),
            "blocked": model.SeatLabels(model.BlockedSeats(err)),
        })
    case errors.Is(err, model.ErrDuplicateHold):
        return errJSON(c, http.StatusConflict, "duplicate_hold", err)
    case errors.Is(err, model.ErrPaymentInProgress):
        return errJSON(c, http.StatusConflict, "payment_in_progress", err)
    case errors.Is(err, model.ErrHoldAlreadyResolved):
        return errJSON(c, http.StatusConflict, "hold_already_resolved", err)
    case errors.Is(err, model.ErrHoldExpired):
        return errJSON(c, http.StatusGone, "hold_expired", err)
    case errors.Is(err, model.ErrHoldNotFound):
        return errJSON(c, http.StatusNotFound, "hold_not_found", err)
    case errors.Is(err, model.ErrShowtimeNotFound):
        return errJSON(c, http.StatusNotFound, "showtime_not_found", err)
    case errors.Is(err, model.ErrInvalidSeats):
        return errJSON(c, http.StatusBadRequest, "invalid_seats", err)
    case errors.Is(err, model.ErrInvalidPayment):
        return errJSON(c, http.StatusBadRequest, "invalid_payment", err)
    case errors.Is(err, model.ErrInvalidSession):
        return errJSON(c, http.StatusUnauthorized, "invalid_session", err)
    case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
        return errJSON(c, http.StatusServiceUnavailable, "request_cancelled", err)
    }
    logrus.WithError(err).WithFields(logrus.Fields{"method": c.Request().Method, "path": c.Path()}).Error("unhandled error")
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error", "message": "internal error"})
}

func errJSON(c echo.Context, status int, code string, err error) error {
    return c.JSON(status, echo.Map{"error": code, "message": err.Error()})
}

// badRequest is the response for malformed request bodies.
func badRequest(c echo.Context, msg string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_request", "message": msg})
}
