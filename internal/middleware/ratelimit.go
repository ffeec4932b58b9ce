package middleware

import (
    "context"
    "fmt"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/showtime-booking/internal/config"
    "github.com/iliyamo/showtime-booking/internal/metrics"
)

// takeToken refills the bucket by whole intervals, then tries to take one
// token.  It returns {allowed, tokens left, ms until the next token}.
var takeToken = redis.NewScript(`
local capacity, refill, interval, now, ttl =
    tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])

local b = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens, ts = tonumber(b[1]), tonumber(b[2])
if not tokens then
    tokens, ts = capacity, now
end

local steps = math.floor(math.max(0, now - ts) / interval)
if steps > 0 then
    tokens = math.min(capacity, tokens + steps * refill)
    ts = ts + steps * interval
end

local allowed, wait = 0, 0
if tokens >= 1 then
    allowed, tokens = 1, tokens - 1
else
    wait = math.max(0, interval - (now - ts))
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', ts)
redis.call('EXPIRE', KEYS[1], ttl)
return {allowed, tokens, wait}
`)

// TokenBucket limits write requests per caller with buckets kept in Redis,
// so every server instance shares the same budget.  With no Redis client,
// or when disabled, it lets everything through.  Redis errors fail open.
type TokenBucket struct {
    cfg config.RateLimitConfig
    rdb *redis.Client
    log logrus.FieldLogger
    now func() time.Time
}

// NewTokenBucket returns a limiter.  rdb may be nil.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, log logrus.FieldLogger) *TokenBucket {
    if log == nil {
        log = logrus.StandardLogger()
    }
    return &TokenBucket{cfg: cfg, rdb: rdb, log: log.WithField("component", "ratelimit"), now: time.Now}
}

// Holds limits seat hold requests.
func (tb *TokenBucket) Holds() echo.MiddlewareFunc { return tb.Limit("holds", tb.cfg.Holds) }

// Payments limits payment initiation and confirmation.
func (tb *TokenBucket) Payments() echo.MiddlewareFunc { return tb.Limit("payments", tb.cfg.Payments) }

// Limit returns middleware drawing from the bucket class for each caller.
func (tb *TokenBucket) Limit(class string, bucket config.BucketConfig) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        if !tb.cfg.Enabled || tb.rdb == nil {
            return next
        }
        return func(c echo.Context) error {
            key := rateKey(tb.cfg, class, c)
            d, err := tb.take(c.Request().Context(), key, bucket)
            if err != nil {
                tb.log.WithError(err).WithField("key", key).Warn("rate limit check failed, allowing request")
                return next(c)
            }

            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(bucket.Capacity))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))
            if tb.cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }
            if d.allowed {
                return next(c)
            }

            secs := int((d.wait + time.Second - 1) / time.Second)
            h.Set("Retry-After", strconv.Itoa(secs))
            metrics.RateLimited.WithLabelValues(class).Inc()
            if tb.cfg.Debug {
                tb.log.WithFields(logrus.Fields{"key": key, "retry_after": d.wait}).Info("request throttled")
            }
            return c.JSON(http.StatusTooManyRequests, echo.Map{
                "error":       "too_many_requests",
                "message":     "rate limit exceeded",
                "retry_after": secs,
            })
        }
    }
}

type decision struct {
    allowed   bool
    remaining int64
    wait      time.Duration
}

func bucketArgs(b config.BucketConfig, now time.Time) []interface{} {
    return []interface{}{
        b.Capacity,
        b.RefillTokens,
        b.RefillInterval.Milliseconds(),
        now.UnixMilli(),
        int64(b.TTL / time.Second),
    }
}

func (tb *TokenBucket) take(ctx context.Context, key string, b config.BucketConfig) (decision, error) {
    vals, err := takeToken.Run(ctx, tb.rdb, []string{key}, bucketArgs(b, tb.now())...).Int64Slice()
    if err != nil {
        return decision{}, err
    }
    if len(vals) != 3 {
        return decision{}, fmt.Errorf("unexpected rate limit reply %v", vals)
    }
    return decision{
        allowed:   vals[0] == 1,
        remaining: vals[1],
        wait:      time.Duration(vals[2]) * time.Millisecond,
    }, nil
}

// rateKey builds "<prefix>:<class>:ip:<ip>:session:<sid>" according to the
// key strategy.
func rateKey(cfg config.RateLimitConfig, class string, c echo.Context) string {
    ip := c.RealIP()
    if ip == "" {
        ip = "unknown"
    }
    parts := []string{cfg.Prefix, class}
    switch strings.ToLower(cfg.KeyStrategy) {
    case "ip":
        parts = append(parts, "ip", ip)
    case "session":
        parts = append(parts, "session", rateSubject(c))
    default:
        parts = append(parts, "ip", ip, "session", rateSubject(c))
    }
    return strings.Join(parts, ":")
}
