// Package inventory is the read-only view of seat availability used for
// rendering seat pickers.  It never mutates seat state and keeps no cache:
// every call reads the seat map directly.
package inventory

import (
	"github.com/samber/lo"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// SeatReader is the read side of the seat map.
type SeatReader interface {
	Showtime(id string) (model.Showtime, error)
	Showtimes() []model.Showtime
	Availability(showtimeID string) ([]model.Seat, error)
}

// Service answers availability queries.
type Service struct {
	seats SeatReader
}

// NewService returns a Service over the seat map.
func NewService(seats SeatReader) *Service { return &Service{seats: seats} }

// ShowtimeSummary describes one showtime with its current seat counts.
type ShowtimeSummary struct {
	model.Showtime
	Available int `json:"available"`
	Held      int `json:"held"`
	Sold      int `json:"sold"`
}

// SeatLayout is the seat picker payload of one showtime.
type SeatLayout struct {
	Showtime model.Showtime `json:"showtime"`
	Rows     []SeatRow      `json:"rows"`
}

// SeatRow is one row of the layout in seat-number order.
type SeatRow struct {
	Label string       `json:"label"`
	Seats []model.Seat `json:"seats"`
}

// DescribeSeats returns every seat of the showtime with its current state
// in row-major order.
func (s *Service) DescribeSeats(showtimeID string) ([]model.Seat, error) {
	return s.seats.Availability(showtimeID)
}

// Layout groups DescribeSeats by row.
func (s *Service) Layout(showtimeID string) (SeatLayout, error) {
	st, err := s.seats.Showtime(showtimeID)
	if err != nil {
		return SeatLayout{}, err
	}
	seats, err := s.seats.Availability(showtimeID)
	if err != nil {
		return SeatLayout{}, err
	}
	rows := lo.Chunk(seats, st.SeatsPerRow)
	out := SeatLayout{Showtime: st, Rows: make([]SeatRow, 0, len(rows))}
	for i, r := range rows {
		out.Rows = append(out.Rows, SeatRow{Label: model.RowLabel(i), Seats: r})
	}
	return out, nil
}

// Showtimes lists every showtime with seat counts.  movie filters by title
// when non-empty.
func (s *Service) Showtimes(movie string) ([]ShowtimeSummary, error) {
	all := s.seats.Showtimes()
	if movie != "" {
		all = lo.Filter(all, func(st model.Showtime, _ int) bool { return st.Movie == movie })
	}
	out := make([]ShowtimeSummary, 0, len(all))
	for _, st := range all {
		seats, err := s.seats.Availability(st.ID)
		if err != nil {
			return nil, err
		}
		counts := lo.CountValuesBy(seats, func(seat model.Seat) model.SeatState { return seat.State })
		out = append(out, ShowtimeSummary{
			Showtime:  st,
			Available: counts[model.SeatAvailable],
			Held:      counts[model.SeatHeld],
			Sold:      counts[model.SeatSold],
		})
	}
	return out, nil
}
