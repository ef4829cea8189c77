package devserver

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ziggy-ai/chat-client/pkg/logger"
)

// Subjects for chat lifecycle events.
const (
	SubjectSessionCreated  = "chat.session.created"
	SubjectSessionRenamed  = "chat.session.renamed"
	SubjectSessionDeleted  = "chat.session.deleted"
	SubjectMessageAppended = "chat.message.appended"
)

// LifecycleEvent is the payload published for every subject.
type LifecycleEvent struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role,omitempty"`
	At        time.Time `json:"at"`
}

// EventPublisher emits fire-and-forget lifecycle events over NATS. A nil
// publisher is valid and silently drops events, so the server runs the
// same with NATS disabled.
type EventPublisher struct {
	conn   *nats.Conn
	logger *logger.Logger
}

// ConnectEvents connects to NATS. An empty URL disables publishing and
// returns a nil publisher.
func ConnectEvents(url, token string, log *logger.Logger) (*EventPublisher, error) {
	if url == "" {
		return nil, nil
	}

	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, err
	}

	return &EventPublisher{conn: conn, logger: log}, nil
}

// Publish sends one event. Failures are logged, never surfaced: events
// are advisory and must not fail a request.
func (p *EventPublisher) Publish(subject string, event LifecycleEvent) {
	if p == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("failed to marshal event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

// Close drains the connection.
func (p *EventPublisher) Close() {
	if p != nil && p.conn != nil {
		p.conn.Close()
	}
}
