package config // package config loads application configuration from environment variables

import (
    "os" // os provides access to environment variables
    "time"

    "github.com/joho/godotenv"
    "github.com/sirupsen/logrus"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Durations accept Go duration strings ("5m").
type Config struct {
    Env      string // application environment (e.g. "dev", "prod")
    Port     string // HTTP port to listen on
    LogLevel string // logrus level name

    DBUser string // database username
    DBPass string // database password (optional)
    DBHost string // database host; empty selects the in-memory ledger
    DBPort string // database port number
    DBName string // database name

    SessionSecret string        // secret used to sign session tokens
    SessionTTL    time.Duration // session token lifetime

    HoldTTL        time.Duration // hard lifetime of an ACTIVE hold
    SweepInterval  time.Duration // how often expired holds are swept
    PaymentTimeout time.Duration // PENDING holds older than this are released
    HoldRetention  time.Duration // terminal holds are kept this long for duplicate callbacks

    RabbitURL   string // broker URL for payment outcomes and booking events
    AMQPEnabled bool   // start the consumers and the booking.confirmed publisher
    BookingLog  string // file the booking.confirmed consumer appends to

    ShowtimesFile string // optional JSON catalog seed
    AdminToken    string // bearer token for /api/bookings; empty disables the admin routes
    CallbackToken string // bearer token the payment provider sends to the webhook; empty leaves it open

    Redis RedisConfig
}

// Load reads configuration values from the environment and returns a
// Config.  A .env file in the working directory is honoured when present.
// Required variables are enforced by must() and missing values cause the
// program to exit with a fatal log message.
func Load() Config {
    _ = godotenv.Load() // a missing .env file is not an error

    rabbit := os.Getenv("RABBITMQ_URL")
    if rabbit == "" {
        rabbit = os.Getenv("AMQP_URL")
    }
    return Config{
        Env:      must("APP_ENV"),
        Port:     must("APP_PORT"),
        LogLevel: envStr("LOG_LEVEL", "info"),

        DBUser: os.Getenv("DB_USER"),
        DBPass: os.Getenv("DB_PASS"),
        DBHost: os.Getenv("DB_HOST"),
        DBPort: envStr("DB_PORT", "3306"),
        DBName: envStr("DB_NAME", "showtime_booking"),

        SessionSecret: must("SESSION_SECRET"),
        SessionTTL:    envDur("SESSION_TTL", 2*time.Hour),

        HoldTTL:        envDur("HOLD_TTL", 5*time.Minute),
        SweepInterval:  envDur("SWEEP_INTERVAL", 5*time.Second),
        PaymentTimeout: envDur("PAYMENT_TIMEOUT", 10*time.Minute),
        HoldRetention:  envDur("HOLD_RETENTION", time.Hour),

        RabbitURL:   rabbit,
        AMQPEnabled: envBool("AMQP_ENABLED", rabbit != ""),
        BookingLog:  envStr("BOOKING_LOG_FILE", "logs/booking.log"),

        ShowtimesFile: os.Getenv("SHOWTIMES_FILE"),
        AdminToken:    os.Getenv("ADMIN_TOKEN"),
        CallbackToken: os.Getenv("PAYMENT_CALLBACK_TOKEN"),

        Redis: LoadRedisConfig(),
    }
}

// UseMySQL reports whether the MySQL ledger is configured.
func (c Config) UseMySQL() bool { return c.DBHost != "" }

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
    v, ok := os.LookupEnv(key)
    if !ok || v == "" {
        logrus.Fatalf("missing required env var: %s", key)
    }
    return v
}

