// Package reservation grants short-lived exclusive holds on showtime seats.
//
// The Manager is the only writer of the AVAILABLE<->HELD seat transitions.
// Each hold carries its own lock; every hold state change is a
// compare-and-set under that lock so a late payment confirmation and the
// expiry sweep can never both move a hold out of ACTIVE.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/showtime-booking/internal/metrics"
	"github.com/iliyamo/showtime-booking/internal/model"
)

const (
	DefaultTTL            = 5 * time.Minute
	DefaultPaymentTimeout = 10 * time.Minute
	DefaultRetention      = time.Hour
	DefaultSweepInterval  = 5 * time.Second
)

// SeatMarker is the part of the seat map the manager depends on.
type SeatMarker interface {
	Validate(showtimeID string, ids []model.SeatID) error
	TryMark(showtimeID string, ids []model.SeatID, from, to model.SeatState) error
}

// Manager tracks holds and their seats.  It is safe for concurrent use.
type Manager struct {
	seats          SeatMarker
	ttl            time.Duration
	paymentTimeout time.Duration
	retention      time.Duration
	now            func() time.Time
	newID          func() string
	log            logrus.FieldLogger

	mu       sync.Mutex
	holds    map[string]*entry
	sessions map[sessionKey]string
}

type sessionKey struct {
	session  string
	showtime string
}

// entry is the live record behind a hold.  hold.State only changes while mu
// is held; done is closed exactly once when the hold becomes terminal.
type entry struct {
	mu               sync.Mutex
	hold             model.Hold
	booking          *model.Booking
	paymentStartedAt time.Time
	done             chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithTTL overrides the hold lifetime.
func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

// WithPaymentTimeout bounds how long a hold may stay PENDING waiting for the
// payment provider before it is released.
func WithPaymentTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.paymentTimeout = d
		}
	}
}

// WithRetention sets how long terminal holds are kept to answer duplicate
// payment callbacks.
func WithRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.retention = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator replaces the hold token generator.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager builds a Manager over the given seat map.
func NewManager(seats SeatMarker, opts ...Option) *Manager {
	if seats == nil {
		panic("nil seat map passed to NewManager")
	}
	m := &Manager{
		seats:          seats,
		ttl:            DefaultTTL,
		paymentTimeout: DefaultPaymentTimeout,
		retention:      DefaultRetention,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          uuid.NewString,
		log:            logrus.StandardLogger(),
		holds:          make(map[string]*entry),
		sessions:       make(map[sessionKey]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the configured hold lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// RequestHold claims seats of a showtime for a session.  Seats must be
// non-empty, distinct and inside the layout.  The claim is all-or-nothing:
// on conflict a *model.SeatUnavailableError names the blocking seats and no
// seat changes state.  A session may own at most one live hold per
// showtime; a second request fails with ErrDuplicateHold.
func (m *Manager) RequestHold(ctx context.Context, showtimeID string, seats []model.SeatID, sessionID string) (model.Hold, error) {
	if sessionID == "" {
		metrics.HoldsRequested.WithLabelValues("invalid").Inc()
		return model.Hold{}, model.ErrInvalidSession
	}
	if err := m.seats.Validate(showtimeID, seats); err != nil {
		metrics.HoldsRequested.WithLabelValues("invalid").Inc()
		return model.Hold{}, err
	}

	now := m.now()
	id := m.newID()
	key := sessionKey{session: sessionID, showtime: showtimeID}

	stale, err := m.claimSession(key, id, now)
	if err != nil {
		metrics.HoldsRequested.WithLabelValues("duplicate").Inc()
		return model.Hold{}, err
	}
	if stale != nil {
		m.expire(stale, now)
	}

	if err := m.seats.TryMark(showtimeID, seats, model.SeatAvailable, model.SeatHeld); err != nil {
		m.forgetSession(key, id)
		if errors.Is(err, model.ErrSeatUnavailable) {
			metrics.HoldsRequested.WithLabelValues("unavailable").Inc()
		}
		return model.Hold{}, err
	}

	e := &entry{
		hold: model.Hold{
			ID:         id,
			ShowtimeID: showtimeID,
			SessionID:  sessionID,
			Seats:      append([]model.SeatID(nil), seats...),
			State:      model.HoldActive,
			CreatedAt:  now,
			ExpiresAt:  now.Add(m.ttl),
		},
		done: make(chan struct{}),
	}
	m.mu.Lock()
	m.holds[id] = e
	m.mu.Unlock()

	metrics.HoldsRequested.WithLabelValues("granted").Inc()
	metrics.ActiveHolds.Inc()
	m.log.WithFields(logrus.Fields{
		"hold_id":     id,
		"showtime_id": showtimeID,
		"session_id":  sessionID,
		"seats":       model.SeatLabels(seats),
		"expires_at":  e.hold.ExpiresAt,
	}).Info("hold granted")
	return e.snapshot(), nil
}

// claimSession reserves the (session, showtime) slot for a new hold id.  A
// previous hold that is ACTIVE but past its expiry is returned so the
// caller can expire it; any other live hold is a duplicate.
func (m *Manager) claimSession(key sessionKey, id string, now time.Time) (*entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stale *entry
	if prevID, ok := m.sessions[key]; ok {
		prev := m.holds[prevID]
		if prev == nil {
			// a request from the same session is still claiming seats
			return nil, model.ErrDuplicateHold
		}
		prev.mu.Lock()
		state := prev.hold.State
		due := state == model.HoldActive && prev.hold.ExpiredAt(now)
		prev.mu.Unlock()
		if !state.Terminal() && !due {
			return nil, model.ErrDuplicateHold
		}
		if due {
			stale = prev
		}
	}
	m.sessions[key] = id
	return stale, nil
}

// CancelHold releases an ACTIVE hold and its seats.  Cancelling a terminal
// hold is a no-op.  A hold whose payment is in flight cannot be cancelled.
func (m *Manager) CancelHold(ctx context.Context, holdID string) (model.Hold, error) {
	e, err := m.lookup(holdID)
	if err != nil {
		return model.Hold{}, err
	}
	now := m.now()

	e.mu.Lock()
	resolved := false
	switch e.hold.State {
	case model.HoldActive:
		state := model.HoldReleased
		if e.hold.ExpiredAt(now) {
			state = model.HoldExpired
		}
		m.finishLocked(e, state, now, true)
		resolved = true
	case model.HoldPending, model.HoldCommitting:
		h := e.snapshot()
		e.mu.Unlock()
		return h, model.ErrPaymentInProgress
	}
	h := e.snapshot()
	e.mu.Unlock()

	if resolved {
		m.forgetSession(sessionKey{session: h.SessionID, showtime: h.ShowtimeID}, h.ID)
		m.log.WithFields(logrus.Fields{"hold_id": h.ID, "state": h.State}).Info("hold cancelled")
	}
	return h, nil
}

// Hold returns a snapshot of a hold.
func (m *Manager) Hold(holdID string) (model.Hold, error) {
	e, err := m.lookup(holdID)
	if err != nil {
		return model.Hold{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot(), nil
}

// BeginPayment moves an ACTIVE, unexpired hold to PENDING and records who
// is paying.  Calling it again on a PENDING hold is a no-op.
func (m *Manager) BeginPayment(ctx context.Context, holdID string, customer model.Customer, method string) (model.Hold, error) {
	e, err := m.lookup(holdID)
	if err != nil {
		return model.Hold{}, err
	}
	now := m.now()

	e.mu.Lock()
	switch e.hold.State {
	case model.HoldActive:
		if e.hold.ExpiredAt(now) {
			m.finishLocked(e, model.HoldExpired, now, true)
			h := e.snapshot()
			e.mu.Unlock()
			m.forgetSession(sessionKey{session: h.SessionID, showtime: h.ShowtimeID}, h.ID)
			return h, model.ErrHoldExpired
		}
		c := customer
		e.hold.State = model.HoldPending
		e.hold.Customer = &c
		e.hold.PaymentMethod = method
		e.paymentStartedAt = now
	case model.HoldPending:
	case model.HoldExpired:
		h := e.snapshot()
		e.mu.Unlock()
		return h, model.ErrHoldExpired
	default:
		h := e.snapshot()
		e.mu.Unlock()
		return h, model.ErrHoldAlreadyResolved
	}
	h := e.snapshot()
	e.mu.Unlock()
	m.log.WithFields(logrus.Fields{"hold_id": h.ID, "payment_method": h.PaymentMethod}).Info("payment initiated")
	return h, nil
}

// BeginCommit claims the right to commit a hold, moving it to COMMITTING.
// ACTIVE holds must be unexpired; PENDING holds are bounded by the payment
// timeout instead.  When the hold is already COMMITTED the stored booking
// is returned and the caller must not commit again.  When another caller
// is committing, BeginCommit waits for it to finish.
func (m *Manager) BeginCommit(ctx context.Context, holdID string) (model.Hold, *model.Booking, error) {
	e, err := m.lookup(holdID)
	if err != nil {
		return model.Hold{}, nil, err
	}
	for {
		now := m.now()
		e.mu.Lock()
		switch e.hold.State {
		case model.HoldActive:
			if e.hold.ExpiredAt(now) {
				m.finishLocked(e, model.HoldExpired, now, true)
				h := e.snapshot()
				e.mu.Unlock()
				m.forgetSession(sessionKey{session: h.SessionID, showtime: h.ShowtimeID}, h.ID)
				return h, nil, model.ErrHoldExpired
			}
			e.hold.State = model.HoldCommitting
			h := e.snapshot()
			e.mu.Unlock()
			return h, nil, nil
		case model.HoldPending:
			e.hold.State = model.HoldCommitting
			h := e.snapshot()
			e.mu.Unlock()
			return h, nil, nil
		case model.HoldCommitting:
			done := e.done
			e.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return model.Hold{}, nil, ctx.Err()
			}
		case model.HoldCommitted:
			b := *e.booking
			h := e.snapshot()
			e.mu.Unlock()
			return h, &b, nil
		case model.HoldExpired:
			h := e.snapshot()
			e.mu.Unlock()
			return h, nil, model.ErrHoldExpired
		default:
			h := e.snapshot()
			e.mu.Unlock()
			return h, nil, model.ErrHoldAlreadyResolved
		}
	}
}

// CompleteCommit marks a COMMITTING hold COMMITTED once its booking is
// durable.  Only the caller that won BeginCommit may call it.
func (m *Manager) CompleteCommit(holdID string, booking model.Booking) (model.Hold, error) {
	e, err := m.lookup(holdID)
	if err != nil {
		return model.Hold{}, err
	}
	e.mu.Lock()
	if e.hold.State != model.HoldCommitting {
		h := e.snapshot()
		e.mu.Unlock()
		return h, fmt.Errorf("complete commit of hold %s in state %s: %w", holdID, h.State, model.ErrHoldAlreadyResolved)
	}
	b := booking
	e.booking = &b
	e.hold.BookingID = booking.ID
	m.finishLocked(e, model.HoldCommitted, m.now(), false)
	h := e.snapshot()
	e.mu.Unlock()

	m.forgetSession(sessionKey{session: h.SessionID, showtime: h.ShowtimeID}, h.ID)
	return h, nil
}

// AbortCommit releases a COMMITTING hold and returns its seats to
// AVAILABLE.  Only the caller that won BeginCommit may call it.
func (m *Manager) AbortCommit(holdID string) (model.Hold, error) {
	e, err := m.lookup(holdID)
	if err != nil {
		return model.Hold{}, err
	}
	e.mu.Lock()
	if e.hold.State != model.HoldCommitting {
		h := e.snapshot()
		e.mu.Unlock()
		return h, fmt.Errorf("abort commit of hold %s in state %s: %w", holdID, h.State, model.ErrHoldAlreadyResolved)
	}
	m.finishLocked(e, model.HoldReleased, m.now(), true)
	h := e.snapshot()
	e.mu.Unlock()

	m.forgetSession(sessionKey{session: h.SessionID, showtime: h.ShowtimeID}, h.ID)
	return h, nil
}

// FailPayment releases a hold whose payment failed.  ACTIVE and PENDING
// holds become RELEASED; terminal holds are left untouched and changed is
// false.  If a commit is in flight FailPayment waits for its outcome.
func (m *Manager) FailPayment(ctx context.Context, holdID string) (h model.Hold, changed bool, err error) {
	e, err := m.lookup(holdID)
	if err != nil {
		return model.Hold{}, false, err
	}
	for {
		e.mu.Lock()
		switch e.hold.State {
		case model.HoldActive, model.HoldPending:
			m.finishLocked(e, model.HoldReleased, m.now(), true)
			h = e.snapshot()
			e.mu.Unlock()
			m.forgetSession(sessionKey{session: h.SessionID, showtime: h.ShowtimeID}, h.ID)
			return h, true, nil
		case model.HoldCommitting:
			done := e.done
			e.mu.Unlock()
			select {
			case <-done:
				continue
			case <-ctx.Done():
				return model.Hold{}, false, ctx.Err()
			}
		default:
			h = e.snapshot()
			e.mu.Unlock()
			return h, false, nil
		}
	}
}

// SweepResult summarises one expiry sweep.
type SweepResult struct {
	Expired  int
	TimedOut int
	Pruned   int
}

// ExpireDue expires ACTIVE holds past their TTL, releases PENDING holds
// whose provider never answered, and forgets terminal holds older than the
// retention window.  It is a no-op for holds that already left ACTIVE.
func (m *Manager) ExpireDue(ctx context.Context) SweepResult {
	now := m.now()
	m.mu.Lock()
	entries := make([]*entry, 0, len(m.holds))
	for _, e := range m.holds {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	var res SweepResult
	var prune []string
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		e.mu.Lock()
		var resolved bool
		switch {
		case e.hold.State == model.HoldActive && e.hold.ExpiredAt(now):
			m.finishLocked(e, model.HoldExpired, now, true)
			res.Expired++
			resolved = true
		case e.hold.State == model.HoldPending && !now.Before(e.paymentStartedAt.Add(m.paymentTimeout)):
			m.finishLocked(e, model.HoldReleased, now, true)
			res.TimedOut++
			resolved = true
		case e.hold.State.Terminal() && e.hold.ResolvedAt != nil && !now.Before(e.hold.ResolvedAt.Add(m.retention)):
			prune = append(prune, e.hold.ID)
		}
		h := e.hold
		e.mu.Unlock()
		if resolved {
			m.forgetSession(sessionKey{session: h.SessionID, showtime: h.ShowtimeID}, h.ID)
			m.log.WithFields(logrus.Fields{"hold_id": h.ID, "state": h.State, "showtime_id": h.ShowtimeID}).Info("hold expired, seats released")
		}
	}

	if len(prune) > 0 {
		m.mu.Lock()
		for _, id := range prune {
			delete(m.holds, id)
		}
		m.mu.Unlock()
		res.Pruned = len(prune)
	}
	return res
}

// Run sweeps expired holds every interval until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.WithField("interval", interval).Info("hold expiry sweeper started")
	for {
		select {
		case <-ctx.Done():
			m.log.Info("hold expiry sweeper stopped")
			return
		case <-ticker.C:
			res := m.ExpireDue(ctx)
			if res.Expired+res.TimedOut > 0 {
				m.log.WithFields(logrus.Fields{
					"expired":   res.Expired,
					"timed_out": res.TimedOut,
					"pruned":    res.Pruned,
				}).Info("expiry sweep released holds")
			}
		}
	}
}

func (m *Manager) lookup(holdID string) (*entry, error) {
	m.mu.Lock()
	e, ok := m.holds[holdID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrHoldNotFound, holdID)
	}
	return e, nil
}

// expire moves a stale ACTIVE hold to EXPIRED.  The session slot has
// already been taken over by the caller so it is not touched here.
func (m *Manager) expire(e *entry, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hold.State == model.HoldActive && e.hold.ExpiredAt(now) {
		m.finishLocked(e, model.HoldExpired, now, true)
	}
}

// finishLocked performs the single terminal transition of a hold.  e.mu
// must be held.
func (m *Manager) finishLocked(e *entry, state model.HoldState, now time.Time, releaseSeats bool) {
	if releaseSeats {
		if err := m.seats.TryMark(e.hold.ShowtimeID, e.hold.Seats, model.SeatHeld, model.SeatAvailable); err != nil {
			m.log.WithError(err).WithField("hold_id", e.hold.ID).Error("held seats were not in HELD state on release")
		}
	}
	e.hold.State = state
	t := now
	e.hold.ResolvedAt = &t
	close(e.done)
	metrics.HoldsResolved.WithLabelValues(string(state)).Inc()
	metrics.ActiveHolds.Dec()
}

func (m *Manager) forgetSession(key sessionKey, holdID string) {
	m.mu.Lock()
	if m.sessions[key] == holdID {
		delete(m.sessions, key)
	}
	m.mu.Unlock()
}

func (e *entry) snapshot() model.Hold {
	h := e.hold
	h.Seats = append([]model.SeatID(nil), e.hold.Seats...)
	if e.hold.Customer != nil {
		c := *e.hold.Customer
		h.Customer = &c
	}
	return h
}
