// Package seatmap holds the authoritative seat state of every showtime.
//
// Each showtime owns a fixed array of seat states indexed by (row, number)
// and its own mutex, so transitions on unrelated showtimes never contend.
// TryMark is the single serialization point for seat-state changes.
package seatmap

import (
	"fmt"
	"sort"
	"sync"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// SeatMap is safe for concurrent use.
type SeatMap struct {
	mu    sync.RWMutex
	shows map[string]*showSeats
}

type showSeats struct {
	mu       sync.Mutex
	showtime model.Showtime
	states   []model.SeatState
}

// New returns an empty seat map.
func New() *SeatMap {
	return &SeatMap{shows: make(map[string]*showSeats)}
}

// AddShowtime registers a showtime with every seat AVAILABLE.  Registering
// the same id twice returns ErrShowtimeExists and leaves the first intact.
func (m *SeatMap) AddShowtime(st model.Showtime) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("%w: %s", err, st.ID)
	}
	states := make([]model.SeatState, st.Capacity())
	for i := range states {
		states[i] = model.SeatAvailable
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.shows[st.ID]; ok {
		return fmt.Errorf("%w: %s", model.ErrShowtimeExists, st.ID)
	}
	m.shows[st.ID] = &showSeats{showtime: st, states: states}
	return nil
}

// Showtime returns the registered showtime.
func (m *SeatMap) Showtime(id string) (model.Showtime, error) {
	s, err := m.get(id)
	if err != nil {
		return model.Showtime{}, err
	}
	return s.showtime, nil
}

// Showtimes lists every registered showtime ordered by id.
func (m *SeatMap) Showtimes() []model.Showtime {
	m.mu.RLock()
	out := make([]model.Showtime, 0, len(m.shows))
	for _, s := range m.shows {
		out = append(out, s.showtime)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Availability returns a snapshot of every seat of the showtime in row-major
// order.  The snapshot is taken under the showtime lock so it never mixes
// the before and after states of a single TryMark.
func (m *SeatMap) Availability(showtimeID string) ([]model.Seat, error) {
	s, err := m.get(showtimeID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Seat, len(s.states))
	for i, st := range s.states {
		out[i] = model.Seat{ID: s.showtime.SeatAt(i), State: st}
	}
	return out, nil
}

// TryMark moves every seat in ids from one state to another.  It succeeds
// only if all seats are currently in from; otherwise nothing is changed and
// a *model.SeatUnavailableError lists the blocking seats.  Seats outside the
// layout or repeated in ids fail with ErrInvalidSeats.
func (m *SeatMap) TryMark(showtimeID string, ids []model.SeatID, from, to model.SeatState) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: no seats", model.ErrInvalidSeats)
	}
	s, err := m.get(showtimeID)
	if err != nil {
		return err
	}
	idx, err := s.indexes(ids)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var blocked []model.SeatID
	for k, i := range idx {
		if s.states[i] != from {
			blocked = append(blocked, ids[k])
		}
	}
	if len(blocked) > 0 {
		return &model.SeatUnavailableError{ShowtimeID: showtimeID, Blocked: blocked}
	}
	for _, i := range idx {
		s.states[i] = to
	}
	return nil
}

// Counts returns how many seats of the showtime are in each state.
func (m *SeatMap) Counts(showtimeID string) (map[model.SeatState]int, error) {
	s, err := m.get(showtimeID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[model.SeatState]int{model.SeatAvailable: 0, model.SeatHeld: 0, model.SeatSold: 0}
	for _, st := range s.states {
		out[st]++
	}
	return out, nil
}

// Validate checks that ids are non-empty, distinct and inside the layout of
// the showtime without touching seat state.
func (m *SeatMap) Validate(showtimeID string, ids []model.SeatID) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: no seats", model.ErrInvalidSeats)
	}
	s, err := m.get(showtimeID)
	if err != nil {
		return err
	}
	_, err = s.indexes(ids)
	return err
}

func (m *SeatMap) get(id string) (*showSeats, error) {
	m.mu.RLock()
	s, ok := m.shows[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrShowtimeNotFound, id)
	}
	return s, nil
}

// indexes resolves seats to array positions.  The layout is immutable so no
// lock is needed.
func (s *showSeats) indexes(ids []model.SeatID) ([]int, error) {
	out := make([]int, len(ids))
	seen := make(map[int]struct{}, len(ids))
	for k, id := range ids {
		if !s.showtime.Contains(id) {
			return nil, fmt.Errorf("%w: seat %s is not part of showtime %s", model.ErrInvalidSeats, id, s.showtime.ID)
		}
		i := s.showtime.Index(id)
		if _, dup := seen[i]; dup {
			return nil, fmt.Errorf("%w: seat %s requested twice", model.ErrInvalidSeats, id)
		}
		seen[i] = struct{}{}
		out[k] = i
	}
	return out, nil
}
