package queue

import (
    "context"
    "errors"
    "fmt"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"
)

// Handler processes one message body.  Returning an error wrapped with
// Retry requeues the message; any other error rejects it for good.
type Handler func(ctx context.Context, body []byte) error

type retryable struct{ err error }

func (r retryable) Error() string { return r.err.Error() }
func (r retryable) Unwrap() error { return r.err }

// Retry marks err as transient so the message is redelivered.
func Retry(err error) error {
    if err == nil {
        return nil
    }
    return retryable{err: err}
}

// IsRetry reports whether err was marked with Retry.
func IsRetry(err error) bool {
    var r retryable
    return errors.As(err, &r)
}

// Consumer reads a durable queue with manual acks, reconnecting with
// exponential backoff whenever the broker goes away.  Delivery is
// at-least-once; handlers must be idempotent.
type Consumer struct {
    url      string
    queue    string
    prefetch int
    handle   Handler
    log      logrus.FieldLogger
    dial     func(url string) (*amqp.Connection, error)
}

// NewConsumer returns a consumer of queue that calls handle for each message.
func NewConsumer(url, queue string, handle Handler, log logrus.FieldLogger) *Consumer {
    if log == nil {
        log = logrus.StandardLogger()
    }
    return &Consumer{
        url:      url,
        queue:    queue,
        prefetch: 50,
        handle:   handle,
        log:      log.WithField("queue", queue),
        dial:     amqp.Dial,
    }
}

// Run consumes until ctx is cancelled.  Broker failures are logged and
// retried; Run only returns once ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        if ctx.Err() != nil {
            return nil
        }
        conn, err := c.dial(c.url)
        if err != nil {
            c.log.WithError(err).WithField("retry_in", backoff).Warn("consumer: failed to dial broker")
            if !sleep(ctx, backoff) {
                return nil
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return nil
        }
        c.log.WithError(err).Warn("consumer: consume loop ended, reconnecting")
        if !sleep(ctx, 2*time.Second) {
            return nil
        }
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(c.prefetch, 0, false); err != nil {
        c.log.WithError(err).Warn("consumer: set QoS failed")
    }
    if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    c.log.Info("consumer: started")
    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            c.deliver(ctx, d)
        }
    }
}

func (c *Consumer) deliver(ctx context.Context, d amqp.Delivery) {
    err := c.handle(ctx, d.Body)
    switch {
    case err == nil:
        _ = d.Ack(false)
    case IsRetry(err):
        c.log.WithError(err).Warn("consumer: handler failed, requeueing")
        _ = d.Nack(false, true)
    default:
        c.log.WithError(err).Error("consumer: handler failed, rejecting")
        _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
    }
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
