package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/ticket-admission/internal/queue"
)

// ErrNotConfirmed is returned when the broker nacks a published message.
var ErrNotConfirmed = errors.New("notify: broker did not confirm message")

// AMQPGateway publishes messages to the durable sms.outbound queue and
// treats the broker's publisher confirm as acceptance. The connection is
// opened lazily and re-opened after any channel error.
type AMQPGateway struct {
	url    string
	sender string
	log    *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewAMQPGateway returns a gateway that dials url on first use.
func NewAMQPGateway(url, sender string, log *zap.Logger) *AMQPGateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &AMQPGateway{url: url, sender: sender, log: log.With(zap.String("gateway", "amqp"))}
}

func (g *AMQPGateway) channel() (*amqp.Channel, error) {
	if g.ch != nil && !g.ch.IsClosed() {
		return g.ch, nil
	}
	g.resetLocked()
	conn, err := amqp.Dial(g.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	if _, err := ch.QueueDeclare(queue.SMSOutboundQueue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	g.conn, g.ch = conn, ch
	return ch, nil
}

func (g *AMQPGateway) resetLocked() {
	if g.ch != nil {
		_ = g.ch.Close()
		g.ch = nil
	}
	if g.conn != nil {
		_ = g.conn.Close()
		g.conn = nil
	}
}

// Send publishes one SMSMessage and waits for the broker's confirm. The
// returned time is when the confirm arrived.
func (g *AMQPGateway) Send(ctx context.Context, contact, body string) (time.Time, error) {
	msg := queue.SMSMessage{
		ID:        uuid.NewString(),
		Sender:    g.sender,
		To:        contact,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return time.Time{}, fmt.Errorf("marshal sms: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ch, err := g.channel()
	if err != nil {
		g.log.Warn("broker unavailable", zap.Error(err))
		return time.Time{}, err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Timestamp:    msg.CreatedAt,
		Body:         payload,
	}
	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue.SMSOutboundQueue, false, false, pub)
	if err != nil {
		g.resetLocked()
		return time.Time{}, fmt.Errorf("publish sms: %w", err)
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		g.resetLocked()
		return time.Time{}, fmt.Errorf("await confirm: %w", err)
	}
	if !acked {
		return time.Time{}, ErrNotConfirmed
	}
	return time.Now().UTC(), nil
}

// Close releases the broker connection.
func (g *AMQPGateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.resetLocked()
	return nil
}
