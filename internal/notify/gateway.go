// Package notify sends offer and ticket messages to buyers through a
// Gateway. Delivery itself is someone else's job: a Gateway only has to
// accept the message and report when it did so.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Gateway accepts one message for one recipient and returns the time the
// message was accepted. A nil error means the message will be delivered.
type Gateway interface {
	Send(ctx context.Context, contact, body string) (time.Time, error)
}

// LogGateway writes messages to the logger instead of sending them. It
// is used in development and when no broker is configured.
type LogGateway struct {
	log *zap.Logger
	now func() time.Time
}

// NewLogGateway returns a LogGateway writing to log.
func NewLogGateway(log *zap.Logger) *LogGateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogGateway{log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (g *LogGateway) Send(ctx context.Context, contact, body string) (time.Time, error) {
	if err := ctx.Err(); err != nil {
		return time.Time{}, err
	}
	sentAt := g.now()
	g.log.Info("sms", zap.String("to", contact), zap.String("body", body), zap.Time("sent_at", sentAt))
	return sentAt, nil
}
