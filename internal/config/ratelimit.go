package config

import "time"

// BucketConfig sizes one token bucket.  A bucket starts full with Capacity
// tokens and regains RefillTokens every RefillInterval.  Idle buckets are
// dropped from Redis after TTL.
type BucketConfig struct {
    Capacity       int
    RefillTokens   int
    RefillInterval time.Duration
    TTL            time.Duration
}

// RateLimitConfig configures the limiter on the write routes.  Seat holds
// and payment calls draw from separate buckets: a customer polling confirm
// must not use up the budget for picking seats, and a bot sweeping seats
// is throttled long before it can pin a whole showtime.
//
// KeyStrategy is one of "ip", "session" or "ip_session" (default).
type RateLimitConfig struct {
    Enabled     bool
    Prefix      string
    KeyStrategy string
    Debug       bool

    Holds    BucketConfig
    Payments BucketConfig
}

// LoadRateLimitConfig reads RATE_LIMIT_* variables.  Bucket sizes are read
// per class, e.g. RATE_LIMIT_HOLD_CAPACITY or RATE_LIMIT_PAYMENT_REFILL_INTERVAL.
func LoadRateLimitConfig() RateLimitConfig {
    return RateLimitConfig{
        Enabled:     envBool("RATE_LIMIT_ENABLED", true),
        Prefix:      envStr("RATE_LIMIT_PREFIX", "rl"),
        KeyStrategy: envStr("RATE_LIMIT_KEY_STRATEGY", "ip_session"),
        Debug:       envBool("RATE_LIMIT_DEBUG", false),

        Holds: loadBucket("RATE_LIMIT_HOLD", BucketConfig{
            Capacity:       10,
            RefillTokens:   1,
            RefillInterval: 6 * time.Second,
            TTL:            10 * time.Minute,
        }),
        Payments: loadBucket("RATE_LIMIT_PAYMENT", BucketConfig{
            Capacity:       30,
            RefillTokens:   1,
            RefillInterval: 2 * time.Second,
            TTL:            10 * time.Minute,
        }),
    }
}

func loadBucket(prefix string, def BucketConfig) BucketConfig {
    b := BucketConfig{
        Capacity:       envInt(prefix+"_CAPACITY", def.Capacity),
        RefillTokens:   envInt(prefix+"_REFILL_TOKENS", def.RefillTokens),
        RefillInterval: envDur(prefix+"_REFILL_INTERVAL", def.RefillInterval),
        TTL:            envDur(prefix+"_TTL", def.TTL),
    }
    return b.clamped()
}

// clamped fixes values Redis cannot work with.  The TTL must outlive a few
// refill intervals or a slow client would always see a fresh bucket.
func (b BucketConfig) clamped() BucketConfig {
    if b.Capacity < 1 {
        b.Capacity = 1
    }
    if b.RefillTokens < 1 {
        b.RefillTokens = 1
    }
    if b.RefillInterval <= 0 {
        b.RefillInterval = time.Second
    }
    if minTTL := 5 * b.RefillInterval; b.TTL < minTTL {
        b.TTL = minTTL
    }
    return b
}
