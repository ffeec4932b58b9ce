package repository

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "fmt"

    "github.com/go-sql-driver/mysql"

    "github.com/iliyamo/showtime-booking/internal/model"
)

// BookingRepo is the MySQL-backed booking ledger.  Rows are only ever
// inserted, listed or deleted in bulk; a booking is never updated.  Seats
// are stored as a JSON array of labels ("A1", "A2") so the ledger can be
// read without the seat layout.
type BookingRepo struct {
    db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// mysqlDuplicateEntry is the server error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// Append inserts a booking in a single-row transaction and populates its
// generated ID.  A second booking for the same hold violates the unique
// key on hold_id and fails with ErrConflict.
func (r *BookingRepo) Append(ctx context.Context, b *model.Booking) (uint64, error) {
    seats, err := json.Marshal(model.SeatLabels(b.Seats))
    if err != nil {
        return 0, fmt.Errorf("encode seats: %w", err)
    }
    const q = `INSERT INTO bookings (hold_id, showtime_id, movie, show_date, show_time, seats,
                   name, email, phone, total_price_cents, payment_method, payment_status,
                   payment_reference, created_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    res, err := r.db.ExecContext(ctx, q,
        b.HoldID, b.ShowtimeID, b.Movie, b.Date, b.Time, string(seats),
        b.Customer.Name, b.Customer.Email, b.Customer.Phone,
        b.TotalCents, b.PaymentMethod, b.PaymentStatus, b.PaymentReference, b.CreatedAt.UTC(),
    )
    if err != nil {
        var me *mysql.MySQLError
        if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
            return 0, fmt.Errorf("%w: booking for hold %s already recorded", ErrConflict, b.HoldID)
        }
        return 0, fmt.Errorf("insert booking: %w", err)
    }
    id, err := res.LastInsertId()
    if err != nil {
        return 0, fmt.Errorf("insert booking: %w", err)
    }
    b.ID = uint64(id)
    return b.ID, nil
}

// ListAll returns every booking, most recent first.
func (r *BookingRepo) ListAll(ctx context.Context) ([]model.Booking, error) {
    const q = `SELECT id, hold_id, showtime_id, movie, show_date, show_time, seats,
                      name, email, phone, total_price_cents, payment_method, payment_status,
                      payment_reference, created_at
               FROM bookings
               ORDER BY created_at DESC, id DESC`
    rows, err := r.db.QueryContext(ctx, q)
    if err != nil {
        return nil, fmt.Errorf("list bookings: %w", err)
    }
    defer rows.Close()

    out := []model.Booking{}
    for rows.Next() {
        var b model.Booking
        var seats []byte
        if err := rows.Scan(
            &b.ID, &b.HoldID, &b.ShowtimeID, &b.Movie, &b.Date, &b.Time, &seats,
            &b.Customer.Name, &b.Customer.Email, &b.Customer.Phone,
            &b.TotalCents, &b.PaymentMethod, &b.PaymentStatus, &b.PaymentReference, &b.CreatedAt,
        ); err != nil {
            return nil, fmt.Errorf("scan booking: %w", err)
        }
        var labels []string
        if err := json.Unmarshal(seats, &labels); err != nil {
            return nil, fmt.Errorf("decode seats of booking %d: %w", b.ID, err)
        }
        if b.Seats, err = model.ParseSeatIDs(labels); err != nil {
            return nil, fmt.Errorf("decode seats of booking %d: %w", b.ID, err)
        }
        b.CreatedAt = b.CreatedAt.UTC()
        out = append(out, b)
    }
    if err := rows.Err(); err != nil {
        return nil, fmt.Errorf("list bookings: %w", err)
    }
    return out, nil
}

// Clear deletes every booking and reports how many rows were removed.
// Seat state is not touched.
func (r *BookingRepo) Clear(ctx context.Context) (int64, error) {
    res, err := r.db.ExecContext(ctx, `DELETE FROM bookings`)
    if err != nil {
        return 0, fmt.Errorf("clear bookings: %w", err)
    }
    return res.RowsAffected()
}
