// Package catalog loads the showtimes served by the booking core and
// rebuilds their sold seats from the ledger on startup.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/showtime-booking/internal/ledger"
	"github.com/iliyamo/showtime-booking/internal/model"
)

// Default layout: rows A-H with twelve seats each.
const (
	DefaultRows        = 8
	DefaultSeatsPerRow = 12
)

type demoMovie struct {
	title      string
	priceCents int64
}

var (
	demoMovies = []demoMovie{
		{"Kantara Chapter 1", 35000},
		{"Sunny Sanskari Ki Tulsi Kumari", 32000},
		{"Madharaasi", 30000},
	}
	demoDays  = []int{5, 6, 7, 8, 9}
	demoTimes = []string{"10:00 AM", "01:00 PM", "04:00 PM", "07:00 PM", "10:00 PM"}
)

// Demo returns the built-in catalog: every movie on October 5-9 of year at
// five daily times.
func Demo(year int) []model.Showtime {
	out := make([]model.Showtime, 0, len(demoMovies)*len(demoDays)*len(demoTimes))
	for _, m := range demoMovies {
		for _, day := range demoDays {
			for _, t := range demoTimes {
				clock, _ := time.Parse("03:04 PM", t)
				starts := time.Date(year, time.October, day, clock.Hour(), clock.Minute(), 0, 0, time.UTC)
				out = append(out, model.Showtime{
					ID:          fmt.Sprintf("%s-%s", slug(m.title), starts.Format("2006-01-02-1504")),
					Movie:       m.title,
					Date:        fmt.Sprintf("Oct %d", day),
					Time:        t,
					Rows:        DefaultRows,
					SeatsPerRow: DefaultSeatsPerRow,
					PriceCents:  m.priceCents,
					StartsAt:    starts,
				})
			}
		}
	}
	return out
}

// LoadFile reads a JSON array of showtimes.  Missing layouts default to
// rows A-H with twelve seats.
func LoadFile(path string) ([]model.Showtime, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read showtimes file: %w", err)
	}
	var shows []model.Showtime
	if err := json.Unmarshal(raw, &shows); err != nil {
		return nil, fmt.Errorf("decode showtimes file %s: %w", path, err)
	}
	for i := range shows {
		if shows[i].Rows == 0 {
			shows[i].Rows = DefaultRows
		}
		if shows[i].SeatsPerRow == 0 {
			shows[i].SeatsPerRow = DefaultSeatsPerRow
		}
		if err := shows[i].Validate(); err != nil {
			return nil, fmt.Errorf("showtime %d in %s: %w", i, path, err)
		}
	}
	return shows, nil
}

// Registry is where showtimes are installed.
type Registry interface {
	AddShowtime(st model.Showtime) error
	Showtime(id string) (model.Showtime, error)
	TryMark(showtimeID string, ids []model.SeatID, from, to model.SeatState) error
}

// Register installs every showtime.
func Register(r Registry, shows []model.Showtime) error {
	for _, st := range shows {
		if err := r.AddShowtime(st); err != nil {
			return err
		}
	}
	return nil
}

// RestoreSold marks every seat recorded in the ledger as SOLD.  It must run
// before the server accepts requests.  Bookings for unknown showtimes are
// logged and skipped.  It returns the number of seats restored.
func RestoreSold(ctx context.Context, r Registry, l ledger.Ledger, log logrus.FieldLogger) (int, error) {
	bookings, err := l.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore sold seats: %w", err)
	}
	restored := 0
	byShow := lo.GroupBy(bookings, func(b model.Booking) string { return b.ShowtimeID })
	for showID, group := range byShow {
		if _, err := r.Showtime(showID); err != nil {
			log.WithField("showtime_id", showID).WithField("bookings", len(group)).Warn("ledger references unknown showtime, skipped")
			continue
		}
		seats, err := ledger.SoldSeats(ctx, l, showID)
		if err != nil {
			return restored, fmt.Errorf("restore sold seats: %w", err)
		}
		for _, s := range seats {
			err := r.TryMark(showID, []model.SeatID{s}, model.SeatAvailable, model.SeatSold)
			if err != nil {
				log.WithError(err).WithFields(logrus.Fields{"showtime_id": showID, "seat": s.String()}).Warn("could not restore sold seat")
				continue
			}
			restored++
		}
	}
	return restored, nil
}

func slug(s string) string {
	s = strings.ToLower(s)
	var b strings.Builder
	dash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
