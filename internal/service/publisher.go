// Package service publishes domain events to RabbitMQ. Publishing is
// best effort: errors are logged and returned so callers can carry on.
package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-admission/internal/queue"
)

// Publisher dials the broker for each event. Payments are rare enough
// that a pooled connection is not worth keeping.
type Publisher struct {
	url string
	log *zap.Logger
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{url: url, log: log.With(zap.String("component", "publisher"))}
}

// PublishTransactionCompleted sends ev to the durable
// transaction.completed queue as a persistent JSON message.
func (p *Publisher) PublishTransactionCompleted(ctx context.Context, ev queue.TransactionCompletedEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("marshal event failed", zap.Error(err))
		return err
	}
	return p.publish(ctx, queue.TransactionCompletedQueue, body)
}

func (p *Publisher) publish(ctx context.Context, queueName string, body []byte) error {
	log := p.log.With(zap.String("queue", queueName))

	cfg := amqp.Config{Dial: amqp.DefaultDial(5 * time.Second)}
	conn, err := amqp.DialConfig(p.url, cfg)
	if err != nil {
		log.Warn("dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn("channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		log.Warn("queue declare failed", zap.Error(err))
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", queueName, false, false, pub); err != nil {
		log.Warn("publish failed", zap.Error(err))
		return err
	}
	return nil
}
