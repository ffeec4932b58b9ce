package model

import (
    "errors"
    "fmt"
    "strings"
)

// Sentinel errors shared by the booking core.  Handlers translate them into
// HTTP status codes; callers compare with errors.Is.
var (
    ErrSeatUnavailable      = errors.New("seat unavailable")
    ErrDuplicateHold        = errors.New("session already holds seats for this showtime")
    ErrHoldExpired          = errors.New("hold expired")
    ErrHoldAlreadyResolved  = errors.New("hold already resolved")
    ErrHoldNotFound         = errors.New("hold not found")
    ErrBookingPersistFailed = errors.New("payment succeeded but booking could not be recorded")
    ErrPaymentFailed        = errors.New("payment failed")
    ErrShowtimeNotFound     = errors.New("showtime not found")
    ErrShowtimeExists       = errors.New("showtime already registered")
    ErrInvalidShowtime      = errors.New("invalid showtime")
    ErrInvalidSeats         = errors.New("invalid seat selection")
    ErrInvalidPayment       = errors.New("invalid payment details")
    ErrInvalidSession       = errors.New("session id required")
    ErrPaymentInProgress    = errors.New("payment in progress for hold")
)

// SeatUnavailableError reports the seats that blocked a conditional seat
// transition.  It matches ErrSeatUnavailable.
type SeatUnavailableError struct {
    ShowtimeID string
    Blocked    []SeatID
}

func (e *SeatUnavailableError) Error() string {
    return fmt.Sprintf("seat unavailable: showtime %s seats [%s]", e.ShowtimeID, strings.Join(SeatLabels(e.Blocked), ","))
}

func (e *SeatUnavailableError) Is(target error) bool { return target == ErrSeatUnavailable }

// PersistError is returned when the provider reported a successful payment
// but the ledger append failed.  The held seats have been released; the
// payment reference is carried so the charge can be reconciled by hand.
type PersistError struct {
    HoldID           string
    PaymentReference string
    Err              error
}

func (e *PersistError) Error() string {
    return fmt.Sprintf("booking persist failed for hold %s (payment %s): %v", e.HoldID, e.PaymentReference, e.Err)
}

func (e *PersistError) Is(target error) bool { return target == ErrBookingPersistFailed }

func (e *PersistError) Unwrap() error { return e.Err }

// BlockedSeats extracts the blocking seats from a seat-unavailable error.
func BlockedSeats(err error) []SeatID {
    var su *SeatUnavailableError
    if errors.As(err, &su) {
        return su.Blocked
    }
    return nil
}
