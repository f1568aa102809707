// Package notify delivers account notifications over RabbitMQ. Gatekeeper
// only publishes; rendering and sending the actual email is a downstream
// consumer's job.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sentinelworks/gatekeeper/internal/auth/service"
	"github.com/sentinelworks/gatekeeper/pkg/idx"
	"github.com/sentinelworks/gatekeeper/pkg/slogx"
)

const DefaultResetQueue = "password.reset.requested"

type AMQPConfig struct {
	URL   string
	Queue string
}

// ResetNotifier publishes reset requests to a durable queue so they survive
// a broker restart while waiting for the mailer.
type ResetNotifier struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

var _ service.ResetNotifier = (*ResetNotifier)(nil)

func NewResetNotifier(cfg AMQPConfig) (*ResetNotifier, error) {
	if cfg.Queue == "" {
		cfg.Queue = DefaultResetQueue
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("notify: dial amqp: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify: open channel: %w", err)
	}

	if _, err := channel.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("notify: declare queue %q: %w", cfg.Queue, err)
	}

	return &ResetNotifier{conn: conn, channel: channel, queue: cfg.Queue}, nil
}

func (r *ResetNotifier) PasswordResetRequested(ctx context.Context, n service.ResetNotification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: marshal notification: %w", err)
	}

	err = r.channel.PublishWithContext(ctx, "", r.queue, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     idx.New().String(),
		CorrelationId: slogx.CorrelationID(ctx),
		Timestamp:     time.Now().UTC(),
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("notify: publish to %q: %w", r.queue, err)
	}
	return nil
}

func (r *ResetNotifier) Close() error {
	if err := r.channel.Close(); err != nil {
		_ = r.conn.Close()
		return err
	}
	return r.conn.Close()
}
