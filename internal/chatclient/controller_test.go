package chatclient

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adi-253/skillswap/internal/models"
)

// scriptedRealtime is a Realtime whose Send runs a caller supplied script.
type scriptedRealtime struct {
	mu       sync.Mutex
	handlers map[int]func(models.MessagePayload)
	next     int
	send     func(conversationID, senderID, content string) error
}

func newScriptedRealtime() *scriptedRealtime {
	return &scriptedRealtime{handlers: make(map[int]func(models.MessagePayload))}
}

func (s *scriptedRealtime) Connect(context.Context) error {
	return nil
}

func (s *scriptedRealtime) Join(context.Context, string, string) error {
	return nil
}

func (s *scriptedRealtime) Leave(context.Context, string) error {
	return nil
}

func (s *scriptedRealtime) MarkRead(context.Context, string) error {
	return nil
}

func (s *scriptedRealtime) OnStateChange(func(State)) func() {
	return func() {}
}

func (s *scriptedRealtime) Send(_ context.Context, conv, sender, content string) error {
	return s.send(conv, sender, content)
}

func (s *scriptedRealtime) OnMessage(fn func(models.MessagePayload)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.handlers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.handlers, id)
	}
}

func (s *scriptedRealtime) emit(msg models.MessagePayload) {
	s.mu.Lock()
	handlers := make([]func(models.MessagePayload), 0, len(s.handlers))
	for _, fn := range s.handlers {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(msg)
	}
}

type emptyHistory struct{}

func (emptyHistory) History(context.Context, string, string) ([]models.MessagePayload, error) {
	return nil, nil
}

func (emptyHistory) MarkConversationRead(context.Context, string, string) error { return nil }

func echoOf(conv, sender, content string) models.MessagePayload {
	return models.MessagePayload{
		ID:             uuid.NewString(),
		ConversationID: conv,
		SenderID:       sender,
		SenderName:     "Rosa",
		Content:        content,
		SentAt:         time.Now().UTC(),
	}
}

func TestSendKeepsEchoedMessageWhenCompletionIsLost(t *testing.T) {
	rt := newScriptedRealtime()
	conv, user := uuid.NewString(), uuid.NewString()
	rt.send = func(conv, sender, content string) error {
		rt.emit(echoOf(conv, sender, content))
		return ErrConnectionLost
	}

	c := NewController(rt, emptyHistory{}, conv, user, nil)
	require.NoError(t, c.Mount(context.Background()))

	require.NoError(t, c.Send(context.Background(), "Hello"))
	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, Confirmed, entries[0].State)
	assert.Equal(t, "Hello", entries[0].Message.Content)
	assert.Empty(t, c.Draft())
	assert.Empty(t, c.Err())
}

func TestSendWithoutEchoStillRollsBack(t *testing.T) {
	rt := newScriptedRealtime()
	rt.send = func(string, string, string) error { return ErrConnectionLost }

	c := NewController(rt, emptyHistory{}, uuid.NewString(), uuid.NewString(), nil)
	require.NoError(t, c.Mount(context.Background()))

	err := c.Send(context.Background(), "Hello")
	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.Empty(t, c.Entries())
	assert.Equal(t, "Hello", c.Draft())
	assert.Equal(t, "Not connected", c.Err())
}

func TestControllerMatchesCanonicalEcho(t *testing.T) {
	rt := newScriptedRealtime()
	conv, user := uuid.NewString(), uuid.NewString()
	rt.send = func(_, _, content string) error {
		// the server reports ids in canonical form
		rt.emit(echoOf(conv, user, content))
		return nil
	}

	c := NewController(rt, emptyHistory{}, strings.ToUpper(conv), strings.ToUpper(user), nil)
	require.NoError(t, c.Mount(context.Background()))

	require.NoError(t, c.Send(context.Background(), "Hello"))
	entries := c.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, Confirmed, entries[0].State)
}
