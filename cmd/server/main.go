package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/showtime-booking/internal/catalog"
	"github.com/iliyamo/showtime-booking/internal/config"
	"github.com/iliyamo/showtime-booking/internal/database"
	"github.com/iliyamo/showtime-booking/internal/handler"
	"github.com/iliyamo/showtime-booking/internal/inventory"
	"github.com/iliyamo/showtime-booking/internal/ledger"
	"github.com/iliyamo/showtime-booking/internal/middleware"
	"github.com/iliyamo/showtime-booking/internal/model"
	"github.com/iliyamo/showtime-booking/internal/payment"
	"github.com/iliyamo/showtime-booking/internal/queue"
	"github.com/iliyamo/showtime-booking/internal/repository"
	"github.com/iliyamo/showtime-booking/internal/reservation"
	"github.com/iliyamo/showtime-booking/internal/router"
	"github.com/iliyamo/showtime-booking/internal/seatmap"
)

func main() {
	cfg := config.Load() // Load environment config
	log := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("server exited")
	}
	log.Info("server stopped")
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	if cfg.Env == "prod" || cfg.Env == "production" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithError(err).Warn("invalid LOG_LEVEL, using info")
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// openLedger returns the booking ledger and the showtimes to serve.  With
// DB_HOST set both come from MySQL, otherwise the ledger is in memory and
// the showtimes come from SHOWTIMES_FILE or the demo catalog.
func openLedger(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (ledger.Ledger, []model.Showtime, func(), error) {
	shows, err := seedShowtimes(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	if !cfg.UseMySQL() {
		log.Warn("DB_HOST not set, bookings are kept in memory only")
		return ledger.NewMemory(), shows, func() {}, nil
	}

	db, err := database.Open(database.Options{
		User:     cfg.DBUser,
		Password: cfg.DBPass,
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		Name:     cfg.DBName,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	if err := database.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	showRepo := repository.NewShowtimeRepo(db)
	added, err := showRepo.Upsert(ctx, shows)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	if added > 0 {
		log.WithField("added", added).Info("seeded showtimes")
	}
	stored, err := showRepo.List(ctx)
	if err != nil {
		_ = db.Close()
		return nil, nil, nil, err
	}
	return repository.NewBookingRepo(db), stored, func() { _ = db.Close() }, nil
}

func seedShowtimes(cfg config.Config) ([]model.Showtime, error) {
	if cfg.ShowtimesFile != "" {
		return catalog.LoadFile(cfg.ShowtimesFile)
	}
	return catalog.Demo(time.Now().Year()), nil
}

func run(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	book, shows, closeDB, err := openLedger(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeDB()

	seats := seatmap.New()
	if err := catalog.Register(seats, shows); err != nil {
		return err
	}
	restored, err := catalog.RestoreSold(ctx, seats, book, log)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"showtimes": len(shows), "sold_seats": restored}).Info("seat map ready")

	holds := reservation.NewManager(seats,
		reservation.WithTTL(cfg.HoldTTL),
		reservation.WithPaymentTimeout(cfg.PaymentTimeout),
		reservation.WithRetention(cfg.HoldRetention),
		reservation.WithLogger(log),
	)

	payOpts := []payment.Option{payment.WithLogger(log)}
	var pub *queue.Publisher
	if cfg.AMQPEnabled {
		pub = queue.NewPublisher(cfg.RabbitURL, log)
		defer func() { _ = pub.Close() }()
		payOpts = append(payOpts, payment.WithNotifier(pub))
	}
	payments := payment.NewReconciler(holds, seats, book, payOpts...)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestLogger(log))

	rdb, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		log.WithError(err).Warn("redis unavailable, rate limiting disabled")
	} else {
		defer func() { _ = rdb.Close() }()
	}
	limits := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log)

	router.RegisterRoutes(e)
	router.RegisterSession(e, handler.NewSessionHandler(cfg.SessionSecret, cfg.SessionTTL))
	router.RegisterPublic(e, handler.NewPublicHandler(inventory.NewService(seats)))
	router.RegisterCustomer(e, handler.NewCustomerHandler(holds, payments), cfg.SessionSecret, limits)
	router.RegisterPayments(e, handler.NewPaymentHandler(payments), cfg.CallbackToken)
	router.RegisterAdmin(e, handler.NewAdminHandler(book), cfg.AdminToken)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		holds.Run(gctx, cfg.SweepInterval)
		return nil
	})

	if cfg.AMQPEnabled {
		outcomes := queue.NewConsumer(cfg.RabbitURL, queue.PaymentOutcomeQueue, queue.PaymentOutcomeHandler(payments, log), log)
		confirmed := queue.NewConsumer(cfg.RabbitURL, queue.BookingConfirmedQueue, queue.NewBookingLog(cfg.BookingLog).Handle, log)
		g.Go(func() error { return outcomes.Run(gctx) })
		g.Go(func() error { return confirmed.Run(gctx) })
	}

	addr := ":" + cfg.Port // Address string with port
	g.Go(func() error {
		log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
