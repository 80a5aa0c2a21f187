// Package chatclient is the client half of the chat core: one realtime
// connection shared by every subscriber, the REST client for history and
// previews, the per-conversation controller and the unread notifier.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/adi-253/skillswap/internal/logger"
	"github.com/adi-253/skillswap/internal/models"
	"github.com/adi-253/skillswap/internal/protocol"
)

var (
	// ErrNotConnected is returned by operations invoked while no connection is open.
	ErrNotConnected = errors.New("not connected")

	// ErrConnectionLost fails invocations still waiting when the connection drops.
	ErrConnectionLost = errors.New("connection lost")

	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("connection closed")
)

// DefaultReconnectDelays is the wait before each reconnect attempt. Once
// every attempt failed the connection goes offline.
var DefaultReconnectDelays = []time.Duration{0, 2 * time.Second, 10 * time.Second, 30 * time.Second}

const (
	writeWait   = 10 * time.Second
	dialTimeout = 10 * time.Second
)

// State is the lifecycle of the underlying connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateOffline:
		return "offline"
	default:
		return "disconnected"
	}
}

// ServerError is a failure the server reported for one invocation.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return e.Message
}

// Option configures a Connection.
type Option func(*Connection)

func WithReconnectDelays(delays ...time.Duration) Option {
	return func(c *Connection) {
		c.delays = delays
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Connection) {
		c.log = logger.OrNop(log)
	}
}

func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Connection) {
		c.dialer = dialer
	}
}

// Connection owns the single realtime connection of a client session. Every
// inbound message is handed to all registered subscribers.
type Connection struct {
	endpoint string
	dialer   *websocket.Dialer
	delays   []time.Duration
	log      *zap.Logger

	// connectMu serializes dials
	connectMu sync.Mutex

	// writeMu serializes frame writes
	writeMu sync.Mutex

	mu             sync.Mutex
	conn           *websocket.Conn
	state          State
	pending        map[string]chan error
	nextInvocation uint64
	closed         bool
	stop           chan struct{}

	nextSub   int
	onMessage map[int]func(models.MessagePayload)
	onError   map[int]func(string)
	onState   map[int]func(State)
}

// NewConnection prepares a connection to the chat hub of serverURL. Nothing
// is dialed until Connect. A non-empty userID binds the connection to that user.
func NewConnection(serverURL, userID string, opts ...Option) (*Connection, error) {
	endpoint, err := hubEndpoint(serverURL, userID)
	if err != nil {
		return nil, err
	}

	c := &Connection{
		endpoint:  endpoint,
		dialer:    websocket.DefaultDialer,
		delays:    DefaultReconnectDelays,
		log:       zap.NewNop(),
		pending:   make(map[string]chan error),
		stop:      make(chan struct{}),
		onMessage: make(map[int]func(models.MessagePayload)),
		onError:   make(map[int]func(string)),
		onState:   make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func hubEndpoint(serverURL, userID string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid server url scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/chathub"
	query := url.Values{}
	if userID != "" {
		query.Set("userId", userID)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// State returns the current connection state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect opens the connection if it is not already open.
func (c *Connection) Connect(ctx context.Context) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	closed, open := c.closed, c.conn != nil
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if open {
		return nil
	}

	c.setState(StateConnecting)
	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.attach(conn)
	return nil
}

func (c *Connection) dial(ctx context.Context) (*websocket.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	return conn, err
}

func (c *Connection) attach(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	c.setState(StateConnected)
	c.log.Info("connected", zap.String("endpoint", c.endpoint))
	go c.readLoop(conn)
}

// Close shuts the connection down for good; no reconnect follows.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.stop)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.setState(StateDisconnected)
		return nil
	}
	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return conn.Close()
}

// OnMessage registers fn for every inbound message and returns its unsubscribe func.
func (c *Connection) OnMessage(fn func(models.MessagePayload)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.onMessage[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.onMessage, id)
	}
}

// OnError registers fn for every Error event.
func (c *Connection) OnError(fn func(string)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.onError[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.onError, id)
	}
}

// OnStateChange registers fn for every state transition.
func (c *Connection) OnStateChange(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.onState[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.onState, id)
	}
}

func (c *Connection) Join(ctx context.Context, conversationID, userID string) error {
	return c.invoke(ctx, protocol.TypeJoinChat, protocol.JoinRequest{ConversationID: conversationID, UserID: userID})
}

func (c *Connection) Leave(ctx context.Context, conversationID string) error {
	return c.invoke(ctx, protocol.TypeLeaveChat, protocol.LeaveRequest{ConversationID: conversationID})
}

func (c *Connection) Send(ctx context.Context, conversationID, senderID, content string) error {
	return c.invoke(ctx, protocol.TypeSendMessage, protocol.SendRequest{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
	})
}

func (c *Connection) MarkRead(ctx context.Context, messageID string) error {
	return c.invoke(ctx, protocol.TypeMarkAsRead, protocol.MarkReadRequest{MessageID: messageID})
}

// invoke sends one operation and waits for its Completion. Events produced by
// the operation reach the subscribers before invoke returns.
func (c *Connection) invoke(ctx context.Context, frameType string, payload interface{}) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.nextInvocation++
	id := strconv.FormatUint(c.nextInvocation, 10)
	done := make(chan error, 1)
	c.pending[id] = done
	c.mu.Unlock()

	frame, err := protocol.Encode(frameType, id, payload)
	if err != nil {
		c.forget(id)
		return err
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteMessage(websocket.TextMessage, frame)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return fmt.Errorf("failed to send %s: %w", frameType, err)
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	}
}

func (c *Connection) forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, id)
}

func (c *Connection) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(conn, err)
			return
		}
		c.handleFrame(data)
	}
}

func (c *Connection) handleFrame(data []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.log.Warn("dropping malformed frame", zap.Error(err))
		return
	}

	switch env.Type {
	case protocol.TypeReceiveMessage:
		var msg models.MessagePayload
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			c.log.Warn("dropping malformed message", zap.Error(err))
			return
		}
		c.mu.Lock()
		subs := make([]func(models.MessagePayload), 0, len(c.onMessage))
		for _, fn := range c.onMessage {
			subs = append(subs, fn)
		}
		c.mu.Unlock()
		for _, fn := range subs {
			fn(msg)
		}

	case protocol.TypeError:
		var ev protocol.ErrorEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			c.log.Warn("dropping malformed error event", zap.Error(err))
			return
		}
		c.mu.Lock()
		subs := make([]func(string), 0, len(c.onError))
		for _, fn := range c.onError {
			subs = append(subs, fn)
		}
		c.mu.Unlock()
		for _, fn := range subs {
			fn(ev.Message)
		}

	case protocol.TypeCompletion:
		var ev protocol.CompletionEvent
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &ev); err != nil {
				ev.Error = "malformed completion"
			}
		}
		c.mu.Lock()
		done := c.pending[env.InvocationID]
		delete(c.pending, env.InvocationID)
		c.mu.Unlock()
		if done == nil {
			return
		}
		if ev.Error != "" {
			done <- &ServerError{Message: ev.Error}
		} else {
			done <- nil
		}

	default:
		c.log.Debug("ignoring frame", zap.String("type", env.Type))
	}
}

func (c *Connection) handleDrop(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	pending := c.pending
	c.pending = make(map[string]chan error)
	closed := c.closed
	// Reconnecting is entered before a concurrent Connect can attach
	next := StateReconnecting
	if closed {
		next = StateDisconnected
	}
	subs := c.transitionLocked(next)
	c.mu.Unlock()

	conn.Close()
	for _, done := range pending {
		done <- ErrConnectionLost
	}
	for _, fn := range subs {
		fn(next)
	}

	if closed {
		return
	}
	c.log.Warn("connection dropped", zap.Error(err))
	go c.reconnect()
}

func (c *Connection) reconnect() {
	for attempt, delay := range c.delays {
		select {
		case <-time.After(delay):
		case <-c.stop:
			return
		}

		c.connectMu.Lock()
		c.mu.Lock()
		closed, open := c.closed, c.conn != nil
		c.mu.Unlock()
		if closed {
			c.connectMu.Unlock()
			return
		}
		if open {
			// Connect attached first; subscribers may have seen Reconnecting after Connected
			c.connectMu.Unlock()
			c.announceState()
			return
		}
		conn, err := c.dial(context.Background())
		if err == nil {
			c.attach(conn)
			c.connectMu.Unlock()
			return
		}
		c.connectMu.Unlock()
		c.log.Info("reconnect attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	c.setState(StateOffline)
	c.log.Warn("giving up reconnecting", zap.Int("attempts", len(c.delays)))
}

func (c *Connection) setState(state State) {
	c.mu.Lock()
	subs := c.transitionLocked(state)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// announceState repeats the current state to every subscriber.
func (c *Connection) announceState() {
	c.mu.Lock()
	state := c.state
	subs := make([]func(State), 0, len(c.onState))
	for _, fn := range c.onState {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(state)
	}
}

// transitionLocked records state and returns the subscribers to notify,
// none when the state did not change. Callers hold c.mu.
func (c *Connection) transitionLocked(state State) []func(State) {
	if c.state == state {
		return nil
	}
	c.state = state
	subs := make([]func(State), 0, len(c.onState))
	for _, fn := range c.onState {
		subs = append(subs, fn)
	}
	return subs
}
