package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/showtime-booking/internal/ledger"
	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/reservation"
	"github.com/iliyamo/showtime-booking/internal/seatmap"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu       sync.Mutex
	bookings []model.Booking
	err      error
}

func (n *recordingNotifier) BookingConfirmed(_ context.Context, b model.Booking) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bookings = append(n.bookings, b)
	return n.err
}

type fixture struct {
	seats    *seatmap.SeatMap
	holds    *reservation.Manager
	ledger   *ledger.Memory
	rec      *Reconciler
	clock    *clock
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	sm := seatmap.New()
	require.NoError(t, sm.AddShowtime(model.Showtime{
		ID: "S", Movie: "Inception", Date: "2025-01-10", Time: "19:00",
		Rows: 1, SeatsPerRow: 3, PriceCents: 35000,
	}))
	c := &clock{now: time.Date(2025, 1, 10, 18, 0, 0, 0, time.UTC)}
	var seq atomic.Int64
	holds := reservation.NewManager(sm,
		reservation.WithClock(c.Now),
		reservation.WithLogger(log),
		reservation.WithTTL(5*time.Minute),
		reservation.WithIDGenerator(func() string { return fmt.Sprintf("hold-%d", seq.Add(1)) }),
	)
	l := ledger.NewMemory()
	n := &recordingNotifier{}
	rec := NewReconciler(holds, sm, l, WithClock(c.Now), WithLogger(log), WithNotifier(n))
	return &fixture{seats: sm, holds: holds, ledger: l, rec: rec, clock: c, notifier: n}
}

func (f *fixture) hold(t *testing.T, session string, labels ...string) (model.Hold, error) {
	t.Helper()
	seats, err := model.ParseSeatIDs(labels)
	require.NoError(t, err)
	return f.holds.RequestHold(context.Background(), "S", seats, session)
}

func (f *fixture) states(t *testing.T) map[string]model.SeatState {
	t.Helper()
	seats, err := f.seats.Availability("S")
	require.NoError(t, err)
	out := make(map[string]model.SeatState, len(seats))
	for _, s := range seats {
		out[s.ID.String()] = s.State
	}
	return out
}

func TestConfirmPayment_CommitsBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, err := f.hold(t, "X", "A1", "A2")
	require.NoError(t, err)
	_, err = f.rec.InitiatePayment(ctx, h.ID, model.Customer{Name: "Asha", Email: "asha@example.com", Phone: "98450"}, "Razorpay")
	require.NoError(t, err)

	b, err := f.rec.ConfirmPayment(ctx, h.ID, "", "pay_123")
	require.NoError(t, err)
	assert.NotZero(t, b.ID)
	assert.Equal(t, "Inception", b.Movie)
	assert.Equal(t, int64(70000), b.TotalCents)
	assert.Equal(t, "Razorpay", b.PaymentMethod)
	assert.Equal(t, "pay_123", b.PaymentReference)
	assert.Equal(t, model.PaymentStatusSuccess, b.PaymentStatus)
	assert.Equal(t, "Asha", b.Customer.Name)

	st := f.states(t)
	assert.Equal(t, model.SeatSold, st["A1"])
	assert.Equal(t, model.SeatSold, st["A2"])
	assert.Equal(t, model.SeatAvailable, st["A3"])

	got, err := f.holds.Hold(h.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldCommitted, got.State)
	assert.Equal(t, b.ID, got.BookingID)
	require.Len(t, f.notifier.bookings, 1)
}

func TestConfirmPayment_RoundTripThroughLedger(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, err := f.hold(t, "X", "A3", "A1")
	require.NoError(t, err)

	b, err := f.rec.ConfirmPayment(ctx, h.ID, "Card", "pay_rt")
	require.NoError(t, err)

	all, err := f.ledger.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []string{"A3", "A1"}, model.SeatLabels(all[0].Seats))
	assert.Equal(t, b.TotalCents, all[0].TotalCents)
	assert.Equal(t, "pay_rt", all[0].PaymentReference)
	assert.Equal(t, b.ID, all[0].ID)
}

func TestConfirmPayment_GeneratesReference(t *testing.T) {
	f := newFixture(t)
	h, err := f.hold(t, "X", "A1")
	require.NoError(t, err)

	b, err := f.rec.ConfirmPayment(context.Background(), h.ID, "UPI", "")
	require.NoError(t, err)
	assert.Equal(t, NewReference(f.clock.Now()), b.PaymentReference)
	assert.Regexp(t, `^PAY\d+$`, b.PaymentReference)
}

func TestConfirmPayment_RequiresMethod(t *testing.T) {
	f := newFixture(t)
	h, err := f.hold(t, "X", "A1")
	require.NoError(t, err)

	_, err = f.rec.ConfirmPayment(context.Background(), h.ID, " ", "pay_1")
	require.ErrorIs(t, err, model.ErrInvalidPayment)

	got, err := f.holds.Hold(h.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldActive, got.State)
}

func TestConfirmPayment_DuplicateReturnsSameBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, err := f.hold(t, "X", "A1")
	require.NoError(t, err)

	first, err := f.rec.ConfirmPayment(ctx, h.ID, "Card", "pay_1")
	require.NoError(t, err)
	second, err := f.rec.ConfirmPayment(ctx, h.ID, "Card", "pay_1")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	all, err := f.ledger.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Equal(t, model.SeatSold, f.states(t)["A1"])
	assert.Len(t, f.notifier.bookings, 1)
}

func TestConfirmPayment_ConcurrentDuplicatesCommitOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, err := f.hold(t, "X", "A1", "A2")
	require.NoError(t, err)

	const n = 20
	results := make([]model.Booking, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.rec.ConfirmPayment(ctx, h.ID, "Card", "pay_c")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].ID, results[i].ID)
	}
	all, err := f.ledger.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestConfirmPayment_LedgerFailureReleasesSeats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, err := f.hold(t, "X", "A1", "A2")
	require.NoError(t, err)
	f.ledger.FailNext(1, errors.New("disk full"))

	b, err := f.rec.ConfirmPayment(ctx, h.ID, "Card", "pay_lost")
	require.ErrorIs(t, err, model.ErrBookingPersistFailed)
	assert.Zero(t, b.ID)

	var pe *model.PersistError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "pay_lost", pe.PaymentReference)
	assert.Equal(t, h.ID, pe.HoldID)

	st := f.states(t)
	assert.Equal(t, model.SeatAvailable, st["A1"])
	assert.Equal(t, model.SeatAvailable, st["A2"])

	got, err := f.holds.Hold(h.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldReleased, got.State)

	all, err := f.ledger.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, f.notifier.bookings)

	// a retry against the released hold is refused
	_, err = f.rec.ConfirmPayment(ctx, h.ID, "Card", "pay_lost")
	require.ErrorIs(t, err, model.ErrHoldAlreadyResolved)
}

func TestConfirmPayment_CommitSurvivesCallerCancellation(t *testing.T) {
	f := newFixture(t)
	h, err := f.hold(t, "X", "A1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b, err := f.rec.ConfirmPayment(ctx, h.ID, "Card", "pay_1")
	require.NoError(t, err)
	assert.NotZero(t, b.ID)

	got, err := f.holds.Hold(h.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldCommitted, got.State)
	assert.Equal(t, model.SeatSold, f.states(t)["A1"])

	all, err := f.ledger.ListAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Len(t, f.notifier.bookings, 1)
}

func TestConfirmPayment_NotifierFailureKeepsCommit(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("broker down")
	h, err := f.hold(t, "X", "A1")
	require.NoError(t, err)

	_, err = f.rec.ConfirmPayment(context.Background(), h.ID, "Card", "pay_1")
	require.NoError(t, err)
	assert.Equal(t, model.SeatSold, f.states(t)["A1"])
}

func TestScenario_OverlapThenCommitThenRetry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	x, err := f.hold(t, "X", "A1", "A2")
	require.NoError(t, err)

	_, err = f.hold(t, "Y", "A2", "A3")
	require.ErrorIs(t, err, model.ErrSeatUnavailable)
	assert.Equal(t, []string{"A2"}, model.SeatLabels(model.BlockedSeats(err)))
	st := f.states(t)
	assert.Equal(t, model.SeatHeld, st["A1"])
	assert.Equal(t, model.SeatHeld, st["A2"])
	assert.Equal(t, model.SeatAvailable, st["A3"])

	b, err := f.rec.ConfirmPayment(ctx, x.ID, "Card", "pay_x")
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2"}, model.SeatLabels(b.Seats))
	st = f.states(t)
	assert.Equal(t, model.SeatSold, st["A1"])
	assert.Equal(t, model.SeatSold, st["A2"])

	_, err = f.hold(t, "Y", "A2", "A3")
	require.ErrorIs(t, err, model.ErrSeatUnavailable)
	assert.Equal(t, []string{"A2"}, model.SeatLabels(model.BlockedSeats(err)))

	_, err = f.hold(t, "Y", "A3")
	require.NoError(t, err)
}

func TestScenario_ExpiryThenLateConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	x, err := f.hold(t, "X", "A1")
	require.NoError(t, err)

	f.clock.Advance(5 * time.Minute)
	f.holds.ExpireDue(ctx)
	assert.Equal(t, model.SeatAvailable, f.states(t)["A1"])

	_, err = f.rec.ConfirmPayment(ctx, x.ID, "Card", "pay_late")
	require.ErrorIs(t, err, model.ErrHoldExpired)
	assert.Equal(t, model.SeatAvailable, f.states(t)["A1"])
}

func TestInitiatePayment_Validation(t *testing.T) {
	f := newFixture(t)
	h, err := f.hold(t, "X", "A1")
	require.NoError(t, err)

	_, err = f.rec.InitiatePayment(context.Background(), h.ID, model.Customer{Name: "Asha"}, "Card")
	require.ErrorIs(t, err, model.ErrInvalidPayment)
	_, err = f.rec.InitiatePayment(context.Background(), h.ID, model.Customer{Name: "Asha", Email: "a@b.c"}, "")
	require.ErrorIs(t, err, model.ErrInvalidPayment)
}

func TestPendingHoldCanCommitPastTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	h, err := f.hold(t, "X", "A1")
	require.NoError(t, err)
	_, err = f.rec.InitiatePayment(ctx, h.ID, model.Customer{Name: "Asha", Email: "a@b.c"}, "UPI")
	require.NoError(t, err)

	f.clock.Advance(7 * time.Minute)
	f.holds.ExpireDue(ctx)

	_, err = f.rec.ConfirmPayment(ctx, h.ID, "", "pay_slow")
	require.NoError(t, err)
	assert.Equal(t, model.SeatSold, f.states(t)["A1"])
}

func TestHandleCallback(t *testing.T) {
	t.Run("success is idempotent", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		h, err := f.hold(t, "X", "A1")
		require.NoError(t, err)
		_, err = f.rec.InitiatePayment(ctx, h.ID, model.Customer{Name: "Asha", Email: "a@b.c"}, "Razorpay")
		require.NoError(t, err)

		cb := Callback{HoldID: h.ID, Outcome: OutcomeSuccess, Reference: "pay_cb"}
		first, err := f.rec.HandleCallback(ctx, cb)
		require.NoError(t, err)
		assert.True(t, first.Changed)
		require.NotNil(t, first.Booking)
		assert.Equal(t, model.HoldCommitted, first.Hold.State)

		second, err := f.rec.HandleCallback(ctx, cb)
		require.NoError(t, err)
		assert.False(t, second.Changed)
		require.NotNil(t, second.Booking)
		assert.Equal(t, first.Booking.ID, second.Booking.ID)

		all, err := f.ledger.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("failure releases then no-ops", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		h, err := f.hold(t, "X", "A1")
		require.NoError(t, err)

		cb := Callback{HoldID: h.ID, Outcome: OutcomeFailure}
		first, err := f.rec.HandleCallback(ctx, cb)
		require.NoError(t, err)
		assert.True(t, first.Changed)
		assert.Equal(t, model.HoldReleased, first.Hold.State)
		assert.Equal(t, model.SeatAvailable, f.states(t)["A1"])

		second, err := f.rec.HandleCallback(ctx, cb)
		require.NoError(t, err)
		assert.False(t, second.Changed)

		// a late success for a released hold commits nothing
		late, err := f.rec.HandleCallback(ctx, Callback{HoldID: h.ID, Outcome: OutcomeSuccess, Reference: "pay_x", PaymentMethod: "Card"})
		require.NoError(t, err)
		assert.False(t, late.Changed)
		all, err := f.ledger.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("failure after commit is a no-op", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		h, err := f.hold(t, "X", "A1")
		require.NoError(t, err)
		_, err = f.rec.ConfirmPayment(ctx, h.ID, "Card", "pay_1")
		require.NoError(t, err)

		res, err := f.rec.HandleCallback(ctx, Callback{HoldID: h.ID, Outcome: OutcomeFailure})
		require.NoError(t, err)
		assert.False(t, res.Changed)
		assert.Equal(t, model.SeatSold, f.states(t)["A1"])
	})

	t.Run("unknown outcome", func(t *testing.T) {
		f := newFixture(t)
		h, err := f.hold(t, "X", "A1")
		require.NoError(t, err)
		_, err = f.rec.HandleCallback(context.Background(), Callback{HoldID: h.ID, Outcome: "maybe"})
		require.ErrorIs(t, err, model.ErrInvalidPayment)
	})

	t.Run("success without payment method", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		h, err := f.hold(t, "X", "A1")
		require.NoError(t, err)

		res, err := f.rec.HandleCallback(ctx, Callback{HoldID: h.ID, Outcome: OutcomeSuccess, Reference: "pay_9"})
		require.NoError(t, err)
		assert.True(t, res.Changed)
		assert.Equal(t, model.HoldCommitted, res.Hold.State)
		require.NotNil(t, res.Booking)
		assert.Equal(t, CallbackPaymentMethod, res.Booking.PaymentMethod)
		assert.Equal(t, "pay_9", res.Booking.PaymentReference)
		assert.Equal(t, model.SeatSold, f.states(t)["A1"])
	})

	t.Run("success keeps the method chosen at payment", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		h, err := f.hold(t, "X", "A1")
		require.NoError(t, err)
		_, err = f.rec.InitiatePayment(ctx, h.ID, model.Customer{Name: "Asha", Email: "a@b.c"}, "UPI")
		require.NoError(t, err)

		res, err := f.rec.HandleCallback(ctx, Callback{HoldID: h.ID, Outcome: OutcomeSuccess, Reference: "pay_9"})
		require.NoError(t, err)
		require.NotNil(t, res.Booking)
		assert.Equal(t, "UPI", res.Booking.PaymentMethod)
	})

	t.Run("duplicate success after the hold was pruned", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		h, err := f.hold(t, "X", "A1")
		require.NoError(t, err)

		cb := Callback{HoldID: h.ID, Outcome: OutcomeSuccess, Reference: "pay_1", PaymentMethod: "Card"}
		first, err := f.rec.HandleCallback(ctx, cb)
		require.NoError(t, err)
		require.NotNil(t, first.Booking)

		f.clock.Advance(reservation.DefaultRetention + time.Minute)
		assert.Equal(t, 1, f.holds.ExpireDue(ctx).Pruned)
		_, err = f.holds.Hold(h.ID)
		require.ErrorIs(t, err, model.ErrHoldNotFound)

		late, err := f.rec.HandleCallback(ctx, cb)
		require.NoError(t, err)
		assert.False(t, late.Changed)
		assert.Equal(t, model.HoldCommitted, late.Hold.State)
		require.NotNil(t, late.Booking)
		assert.Equal(t, first.Booking.ID, late.Booking.ID)

		failed, err := f.rec.HandleCallback(ctx, Callback{HoldID: h.ID, Outcome: OutcomeFailure})
		require.NoError(t, err)
		assert.False(t, failed.Changed)

		all, err := f.ledger.ListAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
		assert.Equal(t, model.SeatSold, f.states(t)["A1"])
	})

	t.Run("unknown hold is a no-op", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		for _, outcome := range []Outcome{OutcomeFailure, OutcomeSuccess} {
			res, err := f.rec.HandleCallback(ctx, Callback{HoldID: "nope", Outcome: outcome, Reference: "pay_x"})
			require.NoError(t, err)
			assert.False(t, res.Changed)
			assert.Nil(t, res.Booking)
		}
		all, err := f.ledger.ListAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, all)
	})
}
