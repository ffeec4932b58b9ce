package queue

import (
    "context"
    "encoding/json"
    "fmt"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "github.com/sirupsen/logrus"

    "github.com/iliyamo/showtime-booking/internal/model"
)

// Publisher sends JSON messages to durable queues on the default exchange.
// The broker connection is opened lazily and reopened after it drops.
// Errors are logged and returned so callers can choose to ignore them.
type Publisher struct {
    url string
    log logrus.FieldLogger

    mu   sync.Mutex
    conn *amqp.Connection
}

// NewPublisher returns a publisher for the broker at url.
func NewPublisher(url string, log logrus.FieldLogger) *Publisher {
    if log == nil {
        log = logrus.StandardLogger()
    }
    return &Publisher{url: url, log: log}
}

// BookingConfirmed publishes a BookingConfirmedEvent for b.
func (p *Publisher) BookingConfirmed(ctx context.Context, b model.Booking) error {
    return p.Publish(ctx, BookingConfirmedQueue, NewBookingConfirmedEvent(b))
}

// Publish marshals v and sends it to queue as a persistent message.
func (p *Publisher) Publish(ctx context.Context, queue string, v any) error {
    body, err := json.Marshal(v)
    if err != nil {
        p.log.WithError(err).WithField("queue", queue).Error("rabbitmq: marshal event failed")
        return err
    }

    ch, err := p.channel()
    if err != nil {
        p.log.WithError(err).Warn("rabbitmq: channel open failed")
        return err
    }
    defer func() { _ = ch.Close() }()

    // Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
    if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
        p.log.WithError(err).WithField("queue", queue).Warn("rabbitmq: queue declare failed")
        return err
    }

    pub := amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    }
    if err := ch.PublishWithContext(ctx, "", queue, false, false, pub); err != nil {
        p.log.WithError(err).WithField("queue", queue).Warn("rabbitmq: publish failed")
        return err
    }
    return nil
}

// Close closes the broker connection if one is open.
func (p *Publisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.conn == nil || p.conn.IsClosed() {
        return nil
    }
    err := p.conn.Close()
    p.conn = nil
    return err
}

func (p *Publisher) channel() (*amqp.Channel, error) {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.conn == nil || p.conn.IsClosed() {
        conn, err := amqp.Dial(p.url)
        if err != nil {
            return nil, fmt.Errorf("dial broker: %w", err)
        }
        p.conn = conn
    }
    return p.conn.Channel()
}
