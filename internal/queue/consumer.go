package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// SMSConsumer drains sms.outbound and appends each message to a delivery
// log, one line per message. It stands in for the SMS provider bridge.
type SMSConsumer struct {
	url  string
	path string
	log  *zap.Logger
}

// NewSMSConsumer returns a consumer writing to path, typically
// logs/sms.log.
func NewSMSConsumer(url, path string, log *zap.Logger) *SMSConsumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &SMSConsumer{url: url, path: path, log: log.With(zap.String("component", "sms-consumer"))}
}

// Run connects, consumes and reconnects with capped exponential backoff
// until ctx is done. It returns ctx.Err().
func (c *SMSConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
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

func (c *SMSConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set qos failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(SMSOutboundQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, SMSOutboundQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Deliver(d.Body); err != nil {
				// a malformed message would loop forever if requeued
				c.log.Error("deliver sms failed", zap.Error(err), zap.String("message_id", d.MessageId))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Deliver decodes one SMSMessage and appends it to the delivery log.
func (c *SMSConsumer) Deliver(body []byte) error {
	var m SMSMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if m.To == "" {
		return errors.New("sms without recipient")
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] SMS id=%s | from=%s | to=%s | body=%s\n",
		m.CreatedAt.UTC().Format(time.RFC3339), m.ID, m.Sender, m.To, strconv.Quote(m.Body))
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
