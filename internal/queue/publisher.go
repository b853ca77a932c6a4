package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher enqueues mail events. Each call dials, declares the queue and
// publishes; mail is rare enough that a pooled channel is not worth the
// reconnect handling.
type Publisher struct {
	url   string
	queue string
	log   *slog.Logger
}

func NewPublisher(url, queue string, log *slog.Logger) *Publisher {
	return &Publisher{url: url, queue: queue, log: log}
}

// Enqueue publishes ev as a persistent JSON message on the mail queue.
// Errors are logged and returned so the caller decides whether they matter.
func (p *Publisher) Enqueue(ctx context.Context, ev MailEvent) error {
	const op = "queue.Enqueue"
	log := p.log.With(slog.String("op", op), slog.String("kind", string(ev.Kind)))

	pub, err := publishing(ev)
	if err != nil {
		log.Error("encode event", slog.Any("err", err))
		return fmt.Errorf("%s: %w", op, err)
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.Error("dial failed", slog.Any("err", err))
		return fmt.Errorf("%s: dial: %w", op, err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Error("channel open failed", slog.Any("err", err))
		return fmt.Errorf("%s: channel: %w", op, err)
	}
	defer func() { _ = ch.Close() }()

	// idempotent; durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		log.Error("queue declare failed", slog.Any("err", err))
		return fmt.Errorf("%s: declare: %w", op, err)
	}

	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		log.Error("publish failed", slog.Any("err", err))
		return fmt.Errorf("%s: publish: %w", op, err)
	}
	return nil
}

func publishing(ev MailEvent) (amqp.Publishing, error) {
	if ev.QueuedAt.IsZero() {
		ev.QueuedAt = time.Now().UTC()
	}
	if err := ev.Validate(); err != nil {
		return amqp.Publishing{}, err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.QueuedAt,
		Type:         string(ev.Kind),
		Body:         body,
	}, nil
}
