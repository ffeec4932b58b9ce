package model

import "time"

// Showtime is a scheduled screening of a movie with a fixed seating layout.
// It is immutable once created: the layout and the per-seat price never
// change while seats are being sold.
//
// Fields:
//  ID          – stable identifier (e.g. "kantara-2025-10-05-1900").
//  Movie       – movie title.
//  Date        – screening date as displayed to customers.
//  Time        – screening time as displayed to customers.
//  Rows        – number of seat rows; rows are labelled A, B, C, ...
//  SeatsPerRow – number of seats in every row, numbered from 1.
//  PriceCents  – flat price of a single seat.
//  StartsAt    – optional absolute start time (zero when unknown).
type Showtime struct {
    ID          string    `json:"id"`
    Movie       string    `json:"movie"`
    Date        string    `json:"date"`
    Time        string    `json:"time"`
    Rows        int       `json:"rows"`
    SeatsPerRow int       `json:"seats_per_row"`
    PriceCents  int64     `json:"price_cents"`
    StartsAt    time.Time `json:"starts_at,omitempty"`
}

// Capacity returns the total number of seats in the layout.
func (s Showtime) Capacity() int { return s.Rows * s.SeatsPerRow }

// Contains reports whether the seat lies inside the showtime's layout.
func (s Showtime) Contains(id SeatID) bool {
    return id.Row >= 0 && id.Row < s.Rows && id.Number >= 1 && id.Number <= s.SeatsPerRow
}

// Index maps a seat onto its position in a row-major array of the layout.
// Callers must check Contains first.
func (s Showtime) Index(id SeatID) int { return id.Row*s.SeatsPerRow + (id.Number - 1) }

// SeatAt is the inverse of Index.
func (s Showtime) SeatAt(i int) SeatID {
    return SeatID{Row: i / s.SeatsPerRow, Number: i%s.SeatsPerRow + 1}
}

// Validate checks the layout and price of a showtime before it is registered.
func (s Showtime) Validate() error {
    switch {
    case s.ID == "":
        return ErrInvalidShowtime
    case s.Rows <= 0 || s.Rows > MaxRows:
        return ErrInvalidShowtime
    case s.SeatsPerRow <= 0:
        return ErrInvalidShowtime
    case s.PriceCents < 0:
        return ErrInvalidShowtime
    }
    return nil
}
