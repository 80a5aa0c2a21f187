// Package relay carries stored messages between server instances so members
// connected to different instances still see each other's messages.
package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/adi-253/skillswap/internal/logger"
	"github.com/adi-253/skillswap/internal/models"
)

// Conn is the part of *nats.Conn the relay uses.
type Conn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Drain() error
}

// envelope is the relayed wire form.
type envelope struct {
	Origin  string                `json:"origin"`
	Message models.MessagePayload `json:"message"`
}

// NATS publishes every locally stored message on <prefix>.<conversationId>
// and hands messages from other instances to a delivery callback.
type NATS struct {
	conn   Conn
	prefix string
	origin string
	log    *zap.Logger
}

// Connect dials the NATS server at url.
func Connect(url, prefix, origin string, log *zap.Logger) (*NATS, error) {
	log = logger.OrNop(log)
	nc, err := nats.Connect(url,
		nats.Name(origin),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return New(nc, prefix, origin, log), nil
}

// New wraps an existing connection.
func New(conn Conn, prefix, origin string, log *zap.Logger) *NATS {
	return &NATS{conn: conn, prefix: prefix, origin: origin, log: logger.OrNop(log)}
}

// Publish sends msg to the conversation's subject.
func (n *NATS) Publish(_ context.Context, msg models.MessagePayload) error {
	subject := n.subject(msg.ConversationID)
	data, err := json.Marshal(envelope{Origin: n.origin, Message: msg})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish message to subject '%s': %w", subject, err)
	}
	return nil
}

// Subscribe delivers every message published by another instance to deliver.
func (n *NATS) Subscribe(deliver func(models.MessagePayload)) error {
	subject := n.prefix + ".*"
	_, err := n.conn.Subscribe(subject, func(m *nats.Msg) {
		var env envelope
		if err := json.Unmarshal(m.Data, &env); err != nil {
			n.log.Warn("dropping malformed relay message", zap.String("subject", m.Subject), zap.Error(err))
			return
		}
		if env.Origin == n.origin {
			return
		}
		deliver(env.Message)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to '%s': %w", subject, err)
	}
	n.log.Info("relay subscribed", zap.String("subject", subject), zap.String("origin", n.origin))
	return nil
}

// Close drains the subscription and closes the connection.
func (n *NATS) Close() error {
	return n.conn.Drain()
}

func (n *NATS) subject(conversationID string) string {
	return fmt.Sprintf("%s.%s", n.prefix, conversationID)
}
