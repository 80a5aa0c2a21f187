package websocket

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adi-253/skillswap/internal/apperrors"
	"github.com/adi-253/skillswap/internal/logger"
	"github.com/adi-253/skillswap/internal/models"
	"github.com/adi-253/skillswap/internal/protocol"
	"github.com/adi-253/skillswap/internal/services"
)

// operationTimeout bounds the store work done for a single client frame.
const operationTimeout = 10 * time.Second

// Chat is the business layer behind the realtime operations.
type Chat interface {
	Authorize(ctx context.Context, conversationID, callerID string) error
	Send(ctx context.Context, conversationID, senderID, content string) (models.MessagePayload, error)
	MarkRead(ctx context.Context, messageID string) error
}

// Relay forwards persisted messages to other server instances.
type Relay interface {
	Publish(ctx context.Context, msg models.MessagePayload) error
}

// Hub maintains the set of active clients and the membership group of every
// conversation. Fan-out for a message happens inside the Send call that
// stored it, so membership changes and deliveries are ordered by the mutex.
type Hub struct {
	// rooms maps conversationID to the set of clients joined to it
	rooms map[string]map[*Client]bool

	// clients is every registered connection
	clients map[*Client]bool

	// register requests from clients
	register chan *Client

	// unregister requests from clients
	unregister chan *Client

	// done is closed when Run returns
	done chan struct{}

	// mutex for rooms, clients and per-client membership
	mu sync.RWMutex

	chat  Chat
	relay Relay
	log   *zap.Logger
}

// NewHub creates a new Hub instance
func NewHub(chat Chat, log *zap.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		chat:       chat,
		log:        logger.OrNop(log),
	}
}

// SetRelay enables cross-instance fan-out. Must be called before Run.
func (h *Hub) SetRelay(relay Relay) {
	h.relay = relay
}

// Run starts the hub's main event loop and returns when ctx is cancelled.
// This should be called in a goroutine: go hub.Run(ctx)
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

// Register hands a new connection to the hub. It returns false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	h.log.Info("client connected",
		zap.String("session_id", client.ID),
		zap.String("user_id", client.UserID),
		zap.Int("total", len(h.clients)))
}

// unregisterClient drops every membership the client holds and closes its send channel
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.closed {
		return
	}
	for conversationID := range client.rooms {
		h.removeLocked(client, conversationID)
	}
	delete(h.clients, client)
	client.closed = true
	close(client.send)

	h.log.Info("client disconnected",
		zap.String("session_id", client.ID),
		zap.Int("remaining", len(h.clients)))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		if !client.closed {
			client.closed = true
			close(client.send)
		}
	}
	h.clients = make(map[*Client]bool)
	h.rooms = make(map[string]map[*Client]bool)
	h.log.Info("hub stopped")
}

func (h *Hub) join(client *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.closed {
		return
	}
	if h.rooms[conversationID] == nil {
		h.rooms[conversationID] = make(map[*Client]bool)
	}
	h.rooms[conversationID][client] = true
	client.rooms[conversationID] = true
	h.clients[client] = true

	h.log.Debug("joined conversation",
		zap.String("conversation_id", conversationID),
		zap.String("session_id", client.ID),
		zap.Int("members", len(h.rooms[conversationID])))
}

func (h *Hub) leave(client *Client, conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client, conversationID)
}

func (h *Hub) removeLocked(client *Client, conversationID string) {
	delete(client.rooms, conversationID)
	if members, ok := h.rooms[conversationID]; ok {
		delete(members, client)
		// Clean up empty rooms
		if len(members) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// broadcast delivers frame to every member of the conversation except the sender.
func (h *Hub) broadcast(conversationID string, frame []byte, except *Client) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for client := range h.rooms[conversationID] {
		if client == except {
			continue
		}
		if h.deliverLocked(client, frame) {
			sent++
		}
	}
	return sent
}

func (h *Hub) deliver(client *Client, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.deliverLocked(client, frame)
}

// deliverLocked queues frame without blocking. A client whose buffer is full
// is disconnected; its ReadPump then unregisters it.
func (h *Hub) deliverLocked(client *Client, frame []byte) bool {
	if client.closed {
		return false
	}
	select {
	case client.send <- frame:
		return true
	default:
		h.log.Warn("client send buffer full, disconnecting", zap.String("session_id", client.ID))
		go client.closeConn()
		return false
	}
}

// DeliverRemote fans out a message stored by another instance to the local members.
func (h *Hub) DeliverRemote(msg models.MessagePayload) {
	frame, err := protocol.EncodeMessage(msg)
	if err != nil {
		h.log.Error("failed to encode relayed message", zap.Error(err))
		return
	}
	sent := h.broadcast(msg.ConversationID, frame, nil)
	h.log.Debug("delivered relayed message",
		zap.String("conversation_id", msg.ConversationID),
		zap.String("message_id", msg.ID),
		zap.Int("recipients", sent))
}

// MemberCount returns the number of connections joined to a conversation
func (h *Hub) MemberCount(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// handleFrame runs one client frame. Failures become an Error event on the
// caller's connection; a frame with an invocation id is always answered with
// a Completion after every event it produced.
func (h *Hub) handleFrame(client *Client, data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), operationTimeout)
	defer cancel()

	req, err := protocol.DecodeRequest(data)
	if err != nil {
		h.log.Debug("rejected frame", zap.String("session_id", client.ID), zap.Error(err))
		err = apperrors.Validation(services.MsgInvalidIDs, err)
	} else {
		err = h.dispatch(ctx, client, req)
	}

	errMessage := ""
	if err != nil {
		errMessage = apperrors.Message(err)
		h.sendError(client, errMessage)
	}
	if req.InvocationID != "" {
		frame, encErr := protocol.EncodeCompletion(req.InvocationID, errMessage)
		if encErr != nil {
			h.log.Error("failed to encode completion", zap.Error(encErr))
			return
		}
		h.deliver(client, frame)
	}
}

func (h *Hub) dispatch(ctx context.Context, client *Client, req protocol.Request) error {
	switch req.Type {
	case protocol.TypeJoinChat:
		return h.handleJoin(ctx, client, req.Join)
	case protocol.TypeLeaveChat:
		conversationID := req.Leave.ConversationID
		if id, ok := services.CanonicalID(conversationID); ok {
			conversationID = id
		}
		h.leave(client, conversationID)
		return nil
	case protocol.TypeSendMessage:
		return h.handleSend(ctx, client, req.Send)
	case protocol.TypeMarkAsRead:
		return h.chat.MarkRead(ctx, req.MarkRead.MessageID)
	}
	return apperrors.Validation(services.MsgInvalidIDs, nil)
}

func (h *Hub) handleJoin(ctx context.Context, client *Client, req *protocol.JoinRequest) error {
	if err := client.checkIdentity(req.UserID); err != nil {
		return err
	}
	if err := h.chat.Authorize(ctx, req.ConversationID, req.UserID); err != nil {
		h.log.Info("join refused",
			zap.String("conversation_id", req.ConversationID),
			zap.String("user_id", req.UserID),
			zap.Error(err))
		return err
	}
	// Group key is the canonical id so every spelling lands in one group
	conversationID, _ := services.CanonicalID(req.ConversationID)
	h.join(client, conversationID)
	return nil
}

func (h *Hub) handleSend(ctx context.Context, client *Client, req *protocol.SendRequest) error {
	if err := client.checkIdentity(req.SenderID); err != nil {
		return err
	}
	msg, err := h.chat.Send(ctx, req.ConversationID, req.SenderID, req.Content)
	if err != nil {
		return err
	}

	frame, err := protocol.EncodeMessage(msg)
	if err != nil {
		return apperrors.Internal("Failed to send message", err)
	}
	sent := h.broadcast(msg.ConversationID, frame, client)
	h.deliver(client, frame)

	h.log.Debug("message delivered",
		zap.String("conversation_id", msg.ConversationID),
		zap.String("message_id", msg.ID),
		zap.Int("recipients", sent))

	if h.relay != nil {
		if err := h.relay.Publish(ctx, msg); err != nil {
			h.log.Warn("failed to relay message",
				zap.String("message_id", msg.ID),
				zap.Error(err))
		}
	}
	return nil
}

func (h *Hub) sendError(client *Client, message string) {
	frame, err := protocol.EncodeError(message)
	if err != nil {
		h.log.Error("failed to encode error event", zap.Error(err))
		return
	}
	h.deliver(client, frame)
}

// ConnectionCount returns the number of registered connections
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
