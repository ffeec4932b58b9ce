package model

import "time"

// HoldState is the lifecycle state of a Hold.
//
//  ACTIVE ──payment initiated──▶ PENDING ──provider success──▶ COMMITTING ──ledger ok──▶ COMMITTED
//    │                             │                             │
//    ├─ttl elapsed──▶ EXPIRED      └─failure / timeout──▶ RELEASED ◀──ledger fault──┘
//    └─cancel──▶ RELEASED
type HoldState string

const (
    HoldActive     HoldState = "ACTIVE"
    HoldPending    HoldState = "PENDING"
    HoldCommitting HoldState = "COMMITTING"
    HoldCommitted  HoldState = "COMMITTED"
    HoldExpired    HoldState = "EXPIRED"
    HoldReleased   HoldState = "RELEASED"
)

// Terminal reports whether no further transition can leave the state.
func (s HoldState) Terminal() bool {
    return s == HoldCommitted || s == HoldExpired || s == HoldReleased
}

// Hold represents a time-bounded exclusive claim on a set of seats of one
// showtime, owned by one session, pending payment.  Values of this type are
// snapshots; the reservation manager owns the live record.
//
// Fields:
//  ID            – opaque hold token returned to the client.
//  ShowtimeID    – showtime whose seats are held.
//  SessionID     – session that requested the hold.
//  Seats         – held seats in request order.
//  State         – current lifecycle state.
//  CreatedAt     – when the hold was granted.
//  ExpiresAt     – CreatedAt + TTL; never extended.
//  Customer      – contact details supplied when payment was initiated.
//  PaymentMethod – payment method supplied when payment was initiated.
//  BookingID     – ledger id once COMMITTED, zero otherwise.
//  ResolvedAt    – when the hold reached a terminal state.
type Hold struct {
    ID            string     `json:"hold_id"`
    ShowtimeID    string     `json:"showtime_id"`
    SessionID     string     `json:"-"`
    Seats         []SeatID   `json:"seats"`
    State         HoldState  `json:"state"`
    CreatedAt     time.Time  `json:"created_at"`
    ExpiresAt     time.Time  `json:"expires_at"`
    Customer      *Customer  `json:"customer,omitempty"`
    PaymentMethod string     `json:"payment_method,omitempty"`
    BookingID     uint64     `json:"booking_id,omitempty"`
    ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

// ExpiredAt reports whether the hold's TTL has elapsed at the given instant.
func (h Hold) ExpiredAt(now time.Time) bool { return !now.Before(h.ExpiresAt) }
