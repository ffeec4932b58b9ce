// Package ledger defines the append-only record of committed bookings.
//
// The MySQL implementation lives in internal/repository; Memory is used in
// tests and when the service runs without a database.
package ledger

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/iliyamo/showtime-booking/internal/model"
)

// Ledger is the durable store of bookings.  Append must be durable before
// it returns; ids increase monotonically.  ListAll returns bookings most
// recent first.  Clear removes every booking and reports how many were
// removed; it has no effect on seat state.
type Ledger interface {
	Append(ctx context.Context, b *model.Booking) (uint64, error)
	ListAll(ctx context.Context) ([]model.Booking, error)
	Clear(ctx context.Context) (int64, error)
}

// SoldSeats returns every booked seat of a showtime, as recorded in the
// ledger.  It is used to rebuild SOLD seat state after a restart.
func SoldSeats(ctx context.Context, l Ledger, showtimeID string) ([]model.SeatID, error) {
	all, err := l.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	booked := lo.Filter(all, func(b model.Booking, _ int) bool { return b.ShowtimeID == showtimeID })
	seats := lo.FlatMap(booked, func(b model.Booking, _ int) []model.SeatID { return b.Seats })
	return lo.Uniq(seats), nil
}

// FindByHold returns the booking committed for a hold, if the ledger has
// one.
func FindByHold(ctx context.Context, l Ledger, holdID string) (model.Booking, bool, error) {
	all, err := l.ListAll(ctx)
	if err != nil {
		return model.Booking{}, false, err
	}
	b, ok := lo.Find(all, func(b model.Booking) bool { return b.HoldID == holdID })
	return b, ok, nil
}

// ErrInjected is returned by a Memory ledger armed with FailNext.
var ErrInjected = errors.New("ledger: injected append failure")

// Memory is an in-process Ledger.  It is safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	nextID   uint64
	bookings []model.Booking
	failures int
	failErr  error
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{nextID: 1}
}

// FailNext makes the next n appends fail with err (ErrInjected when nil).
func (m *Memory) FailNext(n int, err error) {
	if err == nil {
		err = ErrInjected
	}
	m.mu.Lock()
	m.failures = n
	m.failErr = err
	m.mu.Unlock()
}

// Append stores a copy of b and assigns its id.
func (m *Memory) Append(ctx context.Context, b *model.Booking) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures > 0 {
		m.failures--
		return 0, m.failErr
	}
	id := m.nextID
	m.nextID++
	b.ID = id
	cp := *b
	cp.Seats = append([]model.SeatID(nil), b.Seats...)
	m.bookings = append(m.bookings, cp)
	return id, nil
}

// ListAll returns every booking, most recent first.
func (m *Memory) ListAll(ctx context.Context) ([]model.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	out := make([]model.Booking, len(m.bookings))
	copy(out, m.bookings)
	m.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Clear removes all bookings.  Ids keep increasing afterwards.
func (m *Memory) Clear(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	n := int64(len(m.bookings))
	m.bookings = nil
	m.mu.Unlock()
	return n, nil
}
