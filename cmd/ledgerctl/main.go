// Command ledgerctl inspects and clears the MySQL booking ledger.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/iliyamo/showtime-booking/internal/database"
	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/repository"
)

func openRepo(c *cli.Context) (*repository.BookingRepo, *sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	if dsn := c.String("dsn"); dsn != "" {
		db, err = database.OpenDSN(dsn)
	} else {
		db, err = database.Open(database.Options{
			User:     c.String("db-user"),
			Password: c.String("db-pass"),
			Host:     c.String("db-host"),
			Port:     c.String("db-port"),
			Name:     c.String("db-name"),
		})
	}
	if err != nil {
		return nil, nil, fmt.Errorf("connect to ledger: %w", err)
	}
	return repository.NewBookingRepo(db), db, nil
}

func printBookings(w io.Writer, bookings []model.Booking) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSHOWTIME\tSEATS\tNAME\tTOTAL\tREFERENCE")
	for _, b := range bookings {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\t%s\n",
			b.ID,
			b.CreatedAt.Format("2006-01-02 15:04:05"),
			b.ShowtimeID,
			strings.Join(model.SeatLabels(b.Seats), ","),
			b.Customer.Name,
			b.TotalCents,
			b.PaymentReference,
		)
	}
	return tw.Flush()
}

func listAction(c *cli.Context) error {
	repo, db, err := openRepo(c)
	if err != nil {
		return err
	}
	defer db.Close()

	bookings, err := repo.ListAll(c.Context)
	if err != nil {
		return err
	}
	if err := printBookings(c.App.Writer, bookings); err != nil {
		return err
	}
	logrus.WithField("count", len(bookings)).Debug("listed bookings")
	return nil
}

func clearAction(c *cli.Context) error {
	if !c.Bool("yes") {
		return cli.Exit("refusing to clear the ledger without --yes", 2)
	}
	repo, db, err := openRepo(c)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := repo.Clear(c.Context)
	if err != nil {
		return err
	}
	logrus.WithField("deleted", n).Warn("booking ledger cleared; sold seats stay sold until the server restarts")
	fmt.Fprintf(c.App.Writer, "deleted %d bookings\n", n)
	return nil
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ledgerctl",
		Usage: "Inspect the booking ledger",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "dsn", Usage: "full MySQL DSN (parseTime=true required)", EnvVars: []string{"LEDGER_DSN"}},
			&cli.StringFlag{Name: "db-user", EnvVars: []string{"DB_USER"}},
			&cli.StringFlag{Name: "db-pass", EnvVars: []string{"DB_PASS"}},
			&cli.StringFlag{Name: "db-host", Value: "127.0.0.1", EnvVars: []string{"DB_HOST"}},
			&cli.StringFlag{Name: "db-port", Value: "3306", EnvVars: []string{"DB_PORT"}},
			&cli.StringFlag{Name: "db-name", Value: "showtime_booking", EnvVars: []string{"DB_NAME"}},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("verbose") {
				logrus.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "list every booking, newest first",
				Action: listAction,
			},
			{
				Name:  "clear",
				Usage: "delete every booking",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Usage: "confirm deletion"},
				},
				Action: clearAction,
			},
		},
	}
}

func main() {
	_ = godotenv.Load()
	if err := newApp().RunContext(context.Background(), os.Args); err != nil {
		logrus.Fatal(err)
	}
}
