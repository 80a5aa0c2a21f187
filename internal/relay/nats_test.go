package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adi-253/skillswap/internal/models"
)

// bus is an in-process stand-in for a NATS server shared by several relays.
type bus struct {
	mu       sync.Mutex
	handlers map[string][]nats.MsgHandler
	subjects []string
	fail     bool
}

func newBus() *bus {
	return &bus{handlers: make(map[string][]nats.MsgHandler)}
}

func (b *bus) Publish(subject string, data []byte) error {
	b.mu.Lock()
	if b.fail {
		b.mu.Unlock()
		return errors.New("nats: connection closed")
	}
	b.subjects = append(b.subjects, subject)
	var matched []nats.MsgHandler
	for pattern, handlers := range b.handlers {
		if strings.TrimSuffix(pattern, "*") == subject[:strings.LastIndex(subject, ".")+1] {
			matched = append(matched, handlers...)
		}
	}
	b.mu.Unlock()

	for _, h := range matched {
		h(&nats.Msg{Subject: subject, Data: data})
	}
	return nil
}

func (b *bus) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[subject] = append(b.handlers[subject], cb)
	return nil, nil
}

func (b *bus) Drain() error { return nil }

func TestRelayBetweenInstances(t *testing.T) {
	b := newBus()
	a := New(b, "swapchat.conversations", "a", nil)
	c := New(b, "swapchat.conversations", "c", nil)

	var gotA, gotC []models.MessagePayload
	require.NoError(t, a.Subscribe(func(m models.MessagePayload) { gotA = append(gotA, m) }))
	require.NoError(t, c.Subscribe(func(m models.MessagePayload) { gotC = append(gotC, m) }))

	msg := models.MessagePayload{ID: "m1", ConversationID: "conv-1", SenderID: "u", SenderName: "Rosa", Content: "Hello"}
	require.NoError(t, a.Publish(context.Background(), msg))

	assert.Equal(t, []string{"swapchat.conversations.conv-1"}, b.subjects)
	assert.Empty(t, gotA, "origin must not receive its own message")
	require.Len(t, gotC, 1)
	assert.Equal(t, msg, gotC[0])
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	b := newBus()
	r := New(b, "p", "a", nil)
	called := false
	require.NoError(t, r.Subscribe(func(models.MessagePayload) { called = true }))

	require.NoError(t, b.Publish("p.conv", []byte("{")))
	assert.False(t, called)
}

func TestPublishError(t *testing.T) {
	b := newBus()
	b.fail = true
	err := New(b, "p", "a", nil).Publish(context.Background(), models.MessagePayload{ConversationID: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "p.x")
}
