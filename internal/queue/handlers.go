package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "sync"

    "github.com/sirupsen/logrus"

    "github.com/iliyamo/showtime-booking/internal/model"
    "github.com/iliyamo/showtime-booking/internal/payment"
)

// CallbackApplier applies a payment provider callback.
type CallbackApplier interface {
    HandleCallback(ctx context.Context, cb payment.Callback) (payment.CallbackResult, error)
}

// PaymentOutcomeHandler feeds payment.outcome messages into the
// reconciler.  Malformed messages and callbacks the reconciler refuses are
// rejected; messages interrupted by shutdown are requeued.
func PaymentOutcomeHandler(app CallbackApplier, log logrus.FieldLogger) Handler {
    return func(ctx context.Context, body []byte) error {
        var cb payment.Callback
        if err := json.Unmarshal(body, &cb); err != nil {
            return fmt.Errorf("unmarshal: %w", err)
        }
        if cb.HoldID == "" {
            return fmt.Errorf("%w: missing hold_id", model.ErrInvalidPayment)
        }
        res, err := app.HandleCallback(ctx, cb)
        if err != nil {
            // seats of a failed commit are already released, a redelivery
            // cannot book them
            var pe *model.PersistError
            if errors.As(err, &pe) {
                log.WithError(err).WithFields(logrus.Fields{
                    "hold_id":           pe.HoldID,
                    "payment_reference": pe.PaymentReference,
                }).Error("payment outcome: booking not recorded, refund required")
                return err
            }
            if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
                return Retry(err)
            }
            return err
        }
        log.WithFields(logrus.Fields{
            "hold_id": cb.HoldID,
            "outcome": cb.Outcome,
            "state":   res.Hold.State,
            "changed": res.Changed,
        }).Info("payment outcome applied")
        return nil
    }
}

// BookingLog appends booking.confirmed events to a log file, one
// human-friendly line per booking.
type BookingLog struct {
    path string
    mu   sync.Mutex
}

// NewBookingLog writes to path, creating its directory on first use.
func NewBookingLog(path string) *BookingLog {
    if path == "" {
        path = filepath.Join("logs", "booking.log")
    }
    return &BookingLog{path: path}
}

// Handle is a Handler for the booking.confirmed queue.
func (l *BookingLog) Handle(_ context.Context, body []byte) error {
    var ev BookingConfirmedEvent
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }

    l.mu.Lock()
    defer l.mu.Unlock()
    if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
        return Retry(fmt.Errorf("mkdir logs: %w", err))
    }
    f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return Retry(fmt.Errorf("open log file: %w", err))
    }
    defer f.Close()

    seats := "[]"
    if len(ev.SeatLabels) > 0 {
        seats = fmt.Sprintf("[%s]", strings.Join(ev.SeatLabels, ","))
    }
    line := fmt.Sprintf("[%s] Booking confirmed | booking_id=%d | hold_id=%s | showtime=%s | movie=\"%s\" | date=%s %s | customer=\"%s\" | total=%d cents | payment=%s %s | seats=%s\n",
        ev.ConfirmedAt, ev.BookingID, ev.HoldID, ev.ShowtimeID, ev.MovieTitle, ev.Date, ev.Time,
        ev.CustomerName, ev.TotalAmountCents, ev.PaymentMethod, ev.PaymentReference, seats)

    if _, err := f.WriteString(line); err != nil {
        return Retry(fmt.Errorf("write log: %w", err))
    }
    return nil
}
