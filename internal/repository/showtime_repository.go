package repository

import (
    "context"
    "database/sql"
    "fmt"
    "time"

    "github.com/iliyamo/showtime-booking/internal/model"
)

// ShowtimeRepo reads and seeds the showtime catalog.  Showtimes are
// immutable once inserted; Upsert leaves an existing row untouched.
type ShowtimeRepo struct {
    db *sql.DB
}

// NewShowtimeRepo returns a new ShowtimeRepo bound to the given database.
func NewShowtimeRepo(db *sql.DB) *ShowtimeRepo { return &ShowtimeRepo{db: db} }

// List returns every showtime ordered by id.
func (r *ShowtimeRepo) List(ctx context.Context) ([]model.Showtime, error) {
    const q = `SELECT id, movie, show_date, show_time, seat_rows, seats_per_row, price_cents, starts_at
               FROM showtimes ORDER BY id`
    rows, err := r.db.QueryContext(ctx, q)
    if err != nil {
        return nil, fmt.Errorf("list showtimes: %w", err)
    }
    defer rows.Close()

    var out []model.Showtime
    for rows.Next() {
        var st model.Showtime
        var startsAt sql.NullTime
        if err := rows.Scan(&st.ID, &st.Movie, &st.Date, &st.Time, &st.Rows, &st.SeatsPerRow, &st.PriceCents, &startsAt); err != nil {
            return nil, fmt.Errorf("scan showtime: %w", err)
        }
        if startsAt.Valid {
            st.StartsAt = startsAt.Time.UTC()
        }
        out = append(out, st)
    }
    if err := rows.Err(); err != nil {
        return nil, fmt.Errorf("list showtimes: %w", err)
    }
    return out, nil
}

// Upsert inserts the showtimes that do not exist yet inside one
// transaction and reports how many rows were added.
func (r *ShowtimeRepo) Upsert(ctx context.Context, showtimes []model.Showtime) (int64, error) {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return 0, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()

    const q = `INSERT IGNORE INTO showtimes (id, movie, show_date, show_time, seat_rows, seats_per_row, price_cents, starts_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
    var added int64
    for _, st := range showtimes {
        if err := st.Validate(); err != nil {
            return 0, fmt.Errorf("%w: %s", err, st.ID)
        }
        var startsAt *time.Time
        if !st.StartsAt.IsZero() {
            t := st.StartsAt.UTC()
            startsAt = &t
        }
        res, err := tx.ExecContext(ctx, q, st.ID, st.Movie, st.Date, st.Time, st.Rows, st.SeatsPerRow, st.PriceCents, startsAt)
        if err != nil {
            return 0, fmt.Errorf("insert showtime %s: %w", st.ID, err)
        }
        n, _ := res.RowsAffected()
        added += n
    }
    if err := tx.Commit(); err != nil {
        return 0, err
    }
    committed = true
    return added, nil
}
