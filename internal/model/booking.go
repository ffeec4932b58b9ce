package model

import "time"

// PaymentStatusSuccess is the only status a committed booking can carry:
// bookings are written after the provider reported success.
const PaymentStatusSuccess = "Success"

// Customer holds the contact details attached to a booking.
type Customer struct {
    Name  string `json:"name"`
    Email string `json:"email"`
    Phone string `json:"phone"`
}

// Booking is the durable record of a committed hold.  It is created once
// by the payment reconciler and never mutated afterwards.
//
// Fields:
//  ID               – ledger-assigned, monotonically increasing id.
//  HoldID           – hold the booking was committed from.
//  ShowtimeID       – showtime the seats belong to.
//  Movie/Date/Time  – denormalised showtime description.
//  Seats            – booked seats, in hold order.
//  Customer         – contact details.
//  TotalCents       – len(Seats) × showtime price.
//  PaymentMethod    – e.g. "Razorpay", "Card", "UPI".
//  PaymentReference – provider payment id.
//  PaymentStatus    – always PaymentStatusSuccess.
//  CreatedAt        – commit timestamp (UTC).
type Booking struct {
    ID               uint64    `json:"id"`
    HoldID           string    `json:"hold_id"`
    ShowtimeID       string    `json:"showtime_id"`
    Movie            string    `json:"movie"`
    Date             string    `json:"date"`
    Time             string    `json:"time"`
    Seats            []SeatID  `json:"seats"`
    Customer         Customer  `json:"customer"`
    TotalCents       int64     `json:"total_price_cents"`
    PaymentMethod    string    `json:"payment_method"`
    PaymentReference string    `json:"payment_reference"`
    PaymentStatus    string    `json:"payment_status"`
    CreatedAt        time.Time `json:"timestamp"`
}
