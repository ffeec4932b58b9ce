// Package queue defines message payloads exchanged over the message broker
// and the RabbitMQ publisher and consumers that carry them.
package queue

import (
    "time"

    "github.com/iliyamo/showtime-booking/internal/model"
)

const (
    // BookingConfirmedQueue receives one message per committed booking.
    BookingConfirmedQueue = "booking.confirmed"
    // PaymentOutcomeQueue receives provider callbacks (payment.Callback).
    PaymentOutcomeQueue = "payment.outcome"
)

// BookingConfirmedEvent is published when a hold is committed.  It carries
// enough information for downstream consumers to log, notify or trigger
// analytics without reading the ledger.
type BookingConfirmedEvent struct {
    BookingID        uint64   `json:"booking_id"`
    HoldID           string   `json:"hold_id"`
    ShowtimeID       string   `json:"showtime_id"`
    MovieTitle       string   `json:"movie_title"`
    Date             string   `json:"date"`
    Time             string   `json:"time"`
    SeatLabels       []string `json:"seats"`
    CustomerName     string   `json:"customer_name"`
    CustomerEmail    string   `json:"customer_email"`
    TotalAmountCents int64    `json:"total_amount_cents"`
    PaymentMethod    string   `json:"payment_method"`
    PaymentReference string   `json:"payment_reference"`
    ConfirmedAt      string   `json:"confirmed_at"`
}

// NewBookingConfirmedEvent builds the event for a committed booking.
func NewBookingConfirmedEvent(b model.Booking) BookingConfirmedEvent {
    return BookingConfirmedEvent{
        BookingID:        b.ID,
        HoldID:           b.HoldID,
        ShowtimeID:       b.ShowtimeID,
        MovieTitle:       b.Movie,
        Date:             b.Date,
        Time:             b.Time,
        SeatLabels:       model.SeatLabels(b.Seats),
        CustomerName:     b.Customer.Name,
        CustomerEmail:    b.Customer.Email,
        TotalAmountCents: b.TotalCents,
        PaymentMethod:    b.PaymentMethod,
        PaymentReference: b.PaymentReference,
        ConfirmedAt:      b.CreatedAt.UTC().Format(time.RFC3339),
    }
}
