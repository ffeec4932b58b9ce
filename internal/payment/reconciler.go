// Package payment turns payment outcomes into bookings.
//
// The Reconciler is the only writer of the HELD->SOLD seat transition and
// of ledger inserts.  A commit runs in this order:
//
//	claim the hold (ACTIVE/PENDING -> COMMITTING)
//	append the booking to the ledger, seats still HELD
//	mark the seats HELD -> SOLD
//	mark the hold COMMITTED
//
// so a reader that sees COMMITTED knows the booking is durable, and a
// failed append can still hand the HELD seats back to the pool.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/showtime-booking/internal/ledger"
	"github.com/iliyamo/showtime-booking/internal/metrics"
	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/reservation"
)

// Outcome is the result a payment provider reports for a hold.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// CallbackPaymentMethod is recorded for a success callback when neither the
// callback nor the hold names a payment method.
const CallbackPaymentMethod = "provider"

// DefaultCommitTimeout bounds the ledger append and notification of one
// commit.
const DefaultCommitTimeout = 10 * time.Second

// Callback is one provider notification.  Providers may deliver the same
// callback more than once.
type Callback struct {
	HoldID        string  `json:"hold_id"`
	Outcome       Outcome `json:"outcome"`
	Reference     string  `json:"reference"`
	PaymentMethod string  `json:"payment_method,omitempty"`
}

// CallbackResult reports what a callback did.  Changed is false for
// duplicates that found the hold already resolved.
type CallbackResult struct {
	Hold    model.Hold     `json:"hold"`
	Booking *model.Booking `json:"booking,omitempty"`
	Changed bool           `json:"changed"`
}

// Seats is the part of the seat map the reconciler needs.
type Seats interface {
	Showtime(id string) (model.Showtime, error)
	TryMark(showtimeID string, ids []model.SeatID, from, to model.SeatState) error
}

// Notifier is told about every committed booking.  Failures are logged and
// never undo the commit.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b model.Booking) error
}

// Reconciler commits or releases holds based on payment outcomes.
type Reconciler struct {
	holds    *reservation.Manager
	seats    Seats
	ledger   ledger.Ledger
	notifier Notifier
	now      func() time.Time
	log      logrus.FieldLogger

	commitTimeout time.Duration
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithNotifier registers a booking.confirmed notifier.
func WithNotifier(n Notifier) Option { return func(r *Reconciler) { r.notifier = n } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// WithCommitTimeout bounds how long a claimed commit may spend writing the
// ledger and notifying.
func WithCommitTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.commitTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

// NewReconciler wires a reconciler over the hold manager, seat map and
// ledger.
func NewReconciler(holds *reservation.Manager, seats Seats, l ledger.Ledger, opts ...Option) *Reconciler {
	r := &Reconciler{
		holds:  holds,
		seats:  seats,
		ledger: l,
		now:    func() time.Time { return time.Now().UTC() },
		log:    logrus.StandardLogger(),

		commitTimeout: DefaultCommitTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// InitiatePayment records the customer and payment method and moves the
// hold to PENDING.  From here the hold is bounded by the payment timeout
// rather than its TTL.
func (r *Reconciler) InitiatePayment(ctx context.Context, holdID string, customer model.Customer, method string) (model.Hold, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	customer.Email = strings.TrimSpace(customer.Email)
	customer.Phone = strings.TrimSpace(customer.Phone)
	method = strings.TrimSpace(method)
	if customer.Name == "" || customer.Email == "" || method == "" {
		return model.Hold{}, fmt.Errorf("%w: name, email and payment method are required", model.ErrInvalidPayment)
	}
	return r.holds.BeginPayment(ctx, holdID, customer, method)
}

// ConfirmPayment commits a hold after the provider reported success.
//
// A hold that is already COMMITTED returns its existing booking.  An
// expired hold fails with ErrHoldExpired and a released one with
// ErrHoldAlreadyResolved.  When the ledger append fails the seats are
// released and a *model.PersistError carrying the payment reference is
// returned.
//
// Once the hold is claimed the commit no longer follows ctx: a client
// disconnect or shutdown cannot abandon a charged payment halfway.  The
// ledger write is bounded by the commit timeout instead.
func (r *Reconciler) ConfirmPayment(ctx context.Context, holdID, method, reference string) (model.Booking, error) {
	method = strings.TrimSpace(method)
	reference = strings.TrimSpace(reference)

	current, err := r.holds.Hold(holdID)
	if err != nil {
		return model.Booking{}, err
	}
	if method == "" {
		method = current.PaymentMethod
	}
	if method == "" && current.State != model.HoldCommitted {
		return model.Booking{}, fmt.Errorf("%w: payment method is required", model.ErrInvalidPayment)
	}

	h, existing, err := r.holds.BeginCommit(ctx, holdID)
	if err != nil {
		return model.Booking{}, err
	}
	if existing != nil {
		r.log.WithFields(logrus.Fields{"hold_id": holdID, "booking_id": existing.ID}).Info("duplicate confirmation, returning existing booking")
		return *existing, nil
	}

	if reference == "" {
		reference = NewReference(r.now())
	}
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.commitTimeout)
	defer cancel()

	booking, err := r.buildBooking(h, method, reference)
	if err != nil {
		r.abort(h, reference, err)
		return model.Booking{}, err
	}

	if _, err := r.ledger.Append(commitCtx, &booking); err != nil {
		r.abort(h, reference, err)
		metrics.BookingPersistFailures.Inc()
		return model.Booking{}, &model.PersistError{HoldID: h.ID, PaymentReference: reference, Err: err}
	}

	if err := r.seats.TryMark(h.ShowtimeID, h.Seats, model.SeatHeld, model.SeatSold); err != nil {
		// only possible if seat ownership was broken elsewhere; the booking
		// is already durable so the hold is still committed
		r.log.WithError(err).WithFields(logrus.Fields{
			"hold_id":    h.ID,
			"booking_id": booking.ID,
		}).Error("held seats could not be marked sold")
	}

	if _, err := r.holds.CompleteCommit(h.ID, booking); err != nil {
		r.log.WithError(err).WithField("hold_id", h.ID).Error("complete commit")
	}
	metrics.BookingsCommitted.Inc()

	r.log.WithFields(logrus.Fields{
		"hold_id":           h.ID,
		"booking_id":        booking.ID,
		"showtime_id":       booking.ShowtimeID,
		"seats":             model.SeatLabels(booking.Seats),
		"payment_reference": booking.PaymentReference,
	}).Info("booking committed")

	if r.notifier != nil {
		if err := r.notifier.BookingConfirmed(commitCtx, booking); err != nil {
			r.log.WithError(err).WithField("booking_id", booking.ID).Warn("booking.confirmed notification failed")
		}
	}
	return booking, nil
}

// FailPayment releases a hold whose payment failed.  Repeated failures
// and failures for holds that already resolved are no-ops.
func (r *Reconciler) FailPayment(ctx context.Context, holdID string) (model.Hold, bool, error) {
	h, changed, err := r.holds.FailPayment(ctx, holdID)
	if err != nil {
		return h, false, err
	}
	if changed {
		r.log.WithFields(logrus.Fields{"hold_id": h.ID, "showtime_id": h.ShowtimeID}).Info("payment failed, seats released")
	}
	return h, changed, nil
}

// HandleCallback applies a provider callback.  It is idempotent: a second
// success for a COMMITTED hold or any outcome for a released or expired
// hold reports Changed=false without an error.  So does a callback for a
// hold the manager no longer tracks; if the ledger has its booking, that
// booking is returned.  A success callback without a payment method falls
// back to the hold's method, then to CallbackPaymentMethod.
func (r *Reconciler) HandleCallback(ctx context.Context, cb Callback) (CallbackResult, error) {
	var (
		res CallbackResult
		err error
	)
	switch cb.Outcome {
	case OutcomeSuccess:
		res, err = r.handleSuccess(ctx, cb)
	case OutcomeFailure:
		res.Hold, res.Changed, err = r.FailPayment(ctx, cb.HoldID)
		if errors.Is(err, model.ErrHoldNotFound) {
			res, err = r.resolvedElsewhere(ctx, cb)
		}
	default:
		err = fmt.Errorf("%w: unknown outcome %q", model.ErrInvalidPayment, cb.Outcome)
	}

	result := "applied"
	switch {
	case err != nil:
		result = "error"
	case !res.Changed:
		result = "duplicate"
	}
	metrics.PaymentCallbacks.WithLabelValues(string(cb.Outcome), result).Inc()
	return res, err
}

func (r *Reconciler) handleSuccess(ctx context.Context, cb Callback) (CallbackResult, error) {
	before, err := r.holds.Hold(cb.HoldID)
	if errors.Is(err, model.ErrHoldNotFound) {
		return r.resolvedElsewhere(ctx, cb)
	}
	if err != nil {
		return CallbackResult{}, err
	}
	if before.State == model.HoldReleased || before.State == model.HoldExpired {
		// the charge arrived after the seats were given up; nothing to
		// commit, the reference is logged for a refund
		r.log.WithFields(logrus.Fields{
			"hold_id":           cb.HoldID,
			"state":             before.State,
			"payment_reference": cb.Reference,
		}).Warn("payment success for a hold that is no longer held")
		return CallbackResult{Hold: before}, nil
	}

	method := strings.TrimSpace(cb.PaymentMethod)
	if method == "" && before.PaymentMethod == "" {
		method = CallbackPaymentMethod
	}
	b, err := r.ConfirmPayment(ctx, cb.HoldID, method, cb.Reference)
	if err != nil {
		if errors.Is(err, model.ErrHoldExpired) || errors.Is(err, model.ErrHoldAlreadyResolved) {
			h, _ := r.holds.Hold(cb.HoldID)
			return CallbackResult{Hold: h}, nil
		}
		return CallbackResult{}, err
	}
	after, err := r.holds.Hold(cb.HoldID)
	if err != nil {
		return CallbackResult{}, err
	}
	return CallbackResult{Hold: after, Booking: &b, Changed: before.State != model.HoldCommitted}, nil
}

// resolvedElsewhere answers a callback for a hold that was pruned after it
// resolved.  A committed hold is found in the ledger by hold id; anything
// else was released or expired, and a success is logged for a refund.
func (r *Reconciler) resolvedElsewhere(ctx context.Context, cb Callback) (CallbackResult, error) {
	b, found, err := ledger.FindByHold(ctx, r.ledger, cb.HoldID)
	if err != nil {
		return CallbackResult{}, err
	}
	fields := logrus.Fields{
		"hold_id":           cb.HoldID,
		"outcome":           cb.Outcome,
		"payment_reference": cb.Reference,
	}
	if found {
		r.log.WithFields(fields).WithField("booking_id", b.ID).Info("duplicate callback for a pruned hold, returning existing booking")
		return CallbackResult{Hold: committedHold(b), Booking: &b}, nil
	}
	if cb.Outcome == OutcomeSuccess {
		r.log.WithFields(fields).Warn("payment success for an unknown hold")
	} else {
		r.log.WithFields(fields).Info("callback for an unknown hold ignored")
	}
	return CallbackResult{Hold: model.Hold{ID: cb.HoldID}}, nil
}

func committedHold(b model.Booking) model.Hold {
	c := b.Customer
	return model.Hold{
		ID:            b.HoldID,
		ShowtimeID:    b.ShowtimeID,
		Seats:         append([]model.SeatID(nil), b.Seats...),
		State:         model.HoldCommitted,
		Customer:      &c,
		PaymentMethod: b.PaymentMethod,
		BookingID:     b.ID,
	}
}

func (r *Reconciler) buildBooking(h model.Hold, method, reference string) (model.Booking, error) {
	st, err := r.seats.Showtime(h.ShowtimeID)
	if err != nil {
		return model.Booking{}, err
	}
	var customer model.Customer
	if h.Customer != nil {
		customer = *h.Customer
	}
	return model.Booking{
		HoldID:           h.ID,
		ShowtimeID:       h.ShowtimeID,
		Movie:            st.Movie,
		Date:             st.Date,
		Time:             st.Time,
		Seats:            append([]model.SeatID(nil), h.Seats...),
		Customer:         customer,
		TotalCents:       int64(len(h.Seats)) * st.PriceCents,
		PaymentMethod:    method,
		PaymentReference: reference,
		PaymentStatus:    model.PaymentStatusSuccess,
		CreatedAt:        r.now(),
	}, nil
}

func (r *Reconciler) abort(h model.Hold, reference string, cause error) {
	if _, err := r.holds.AbortCommit(h.ID); err != nil {
		r.log.WithError(err).WithField("hold_id", h.ID).Error("abort commit")
	}
	r.log.WithError(cause).WithFields(logrus.Fields{
		"hold_id":           h.ID,
		"showtime_id":       h.ShowtimeID,
		"seats":             model.SeatLabels(h.Seats),
		"payment_reference": reference,
	}).Error("payment succeeded but booking was not recorded; seats released")
}

// NewReference returns a provider-style payment reference for simulated
// payments.
func NewReference(now time.Time) string {
	return "PAY" + strconv.FormatInt(now.UnixMilli(), 10)
}
