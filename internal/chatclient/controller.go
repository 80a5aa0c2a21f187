package chatclient

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adi-253/skillswap/internal/logger"
	"github.com/adi-253/skillswap/internal/models"
)

const (
	// PendingSenderName labels a message that is not confirmed yet.
	PendingSenderName = "pending"

	tempIDPrefix    = "temp-"
	markReadTimeout = 10 * time.Second
	rejoinTimeout   = 10 * time.Second
)

var (
	ErrEmptyMessage = errors.New("message content is required")
	ErrNotMounted   = errors.New("chat is not open")
)

// Realtime is the part of Connection a Controller uses.
type Realtime interface {
	Connect(ctx context.Context) error
	Join(ctx context.Context, conversationID, userID string) error
	Leave(ctx context.Context, conversationID string) error
	Send(ctx context.Context, conversationID, senderID, content string) error
	MarkRead(ctx context.Context, messageID string) error
	OnMessage(fn func(models.MessagePayload)) func()
	OnStateChange(fn func(State)) func()
}

// HistoryLoader is the part of API a Controller uses.
type HistoryLoader interface {
	History(ctx context.Context, conversationID, userID string) ([]models.MessagePayload, error)
	MarkConversationRead(ctx context.Context, conversationID, userID string) error
}

type EntryState int

const (
	// Provisional entries are shown before the server confirmed them.
	Provisional EntryState = iota
	Confirmed
)

// Entry is one line of the chat view.
type Entry struct {
	State   EntryState
	Message models.MessagePayload
}

// Controller drives the view of one conversation: history, optimistic sends
// reconciled against the server echo, and read state for incoming messages.
type Controller struct {
	rt             Realtime
	api            HistoryLoader
	conversationID string
	userID         string
	log            *zap.Logger

	mu          sync.Mutex
	entries     []Entry
	mounted     bool
	rejoin      bool
	draft       string
	lastErr     string
	unsubscribe []func()

	// echoed holds temp ids whose server echo already replaced them
	echoed map[string]bool

	changes chan struct{}
}

// NewController creates a controller for conversationID viewed by userID.
func NewController(rt Realtime, api HistoryLoader, conversationID, userID string, log *zap.Logger) *Controller {
	return &Controller{
		rt:             rt,
		api:            api,
		conversationID: canonicalID(conversationID),
		userID:         canonicalID(userID),
		log:            logger.OrNop(log),
		echoed:         make(map[string]bool),
		changes:        make(chan struct{}, 1),
	}
}

// canonicalID lowercases a uuid the way the server reports it.
func canonicalID(id string) string {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return id
	}
	return parsed.String()
}

// Changes is signalled whenever the view state changes. Signals coalesce.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

func (c *Controller) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// Mount loads the history, joins the conversation and marks it read.
func (c *Controller) Mount(ctx context.Context) error {
	history, err := c.api.History(ctx, c.conversationID, c.userID)
	if err != nil {
		c.fail(err)
		return err
	}
	if err := c.rt.Connect(ctx); err != nil {
		c.fail(err)
		return err
	}

	c.mu.Lock()
	c.entries = make([]Entry, 0, len(history))
	for _, msg := range history {
		c.entries = append(c.entries, Entry{State: Confirmed, Message: msg})
	}
	c.mounted = true
	c.lastErr = ""
	c.unsubscribe = []func(){
		c.rt.OnMessage(c.handleMessage),
		c.rt.OnStateChange(c.handleState),
	}
	c.mu.Unlock()
	c.notify()

	if err := c.rt.Join(ctx, c.conversationID, c.userID); err != nil {
		c.fail(err)
		return err
	}

	if err := c.api.MarkConversationRead(ctx, c.conversationID, c.userID); err != nil {
		c.log.Warn("failed to mark conversation read",
			zap.String("conversation_id", c.conversationID),
			zap.Error(err))
		c.fail(err)
		return nil
	}
	c.mu.Lock()
	for i := range c.entries {
		if c.entries[i].Message.SenderID != c.userID {
			c.entries[i].Message.IsRead = true
		}
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// Unmount stops listening and leaves the conversation.
func (c *Controller) Unmount(ctx context.Context) error {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return nil
	}
	c.mounted = false
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	if err := c.rt.Leave(ctx, c.conversationID); err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	return nil
}

// Send shows content immediately as a provisional entry and sends it. On
// failure the entry is removed and the content is restored as the draft,
// unless the server echo already confirmed the message.
func (c *Controller) Send(ctx context.Context, content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	tempID := tempIDPrefix + uuid.NewString()
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return ErrNotMounted
	}
	c.entries = append(c.entries, Entry{
		State: Provisional,
		Message: models.MessagePayload{
			ID:             tempID,
			ConversationID: c.conversationID,
			SenderID:       c.userID,
			SenderName:     PendingSenderName,
			Content:        content,
			SentAt:         time.Now().UTC(),
		},
	})
	c.draft = ""
	c.lastErr = ""
	c.mu.Unlock()
	c.notify()

	err := c.rt.Send(ctx, c.conversationID, c.userID, content)

	c.mu.Lock()
	echoed := c.echoed[tempID]
	delete(c.echoed, tempID)
	if err == nil || echoed {
		c.mu.Unlock()
		if err != nil {
			c.log.Debug("send completion lost after echo", zap.String("conversation_id", c.conversationID), zap.Error(err))
		}
		return nil
	}
	if c.mounted {
		if i := c.indexOf(tempID); i >= 0 {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
		}
		c.draft = content
		c.lastErr = errorText(err)
	}
	c.mu.Unlock()
	c.notify()
	return err
}

func (c *Controller) handleMessage(msg models.MessagePayload) {
	c.mu.Lock()
	if !c.mounted || msg.ConversationID != c.conversationID || c.indexOf(msg.ID) >= 0 {
		c.mu.Unlock()
		return
	}
	own := msg.SenderID == c.userID
	if own {
		if tempID := c.removeProvisional(msg.Content); tempID != "" {
			c.echoed[tempID] = true
		}
	}
	c.insertConfirmed(msg)
	c.mu.Unlock()
	c.notify()

	if !own {
		// Runs off the connection's read loop, which delivers the Completion MarkRead waits for.
		go c.markRead(msg.ID)
	}
}

func (c *Controller) markRead(messageID string) {
	ctx, cancel := context.WithTimeout(context.Background(), markReadTimeout)
	defer cancel()

	if err := c.rt.MarkRead(ctx, messageID); err != nil {
		c.log.Debug("mark read failed", zap.String("message_id", messageID), zap.Error(err))
		return
	}
	c.mu.Lock()
	if i := c.indexOf(messageID); i >= 0 {
		c.entries[i].Message.IsRead = true
	}
	c.mu.Unlock()
	c.notify()
}

// handleState rejoins after an automatic reconnect; the server forgets
// memberships of dropped connections.
func (c *Controller) handleState(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch state {
	case StateReconnecting:
		c.rejoin = true
	case StateOffline:
		c.lastErr = "Connection lost"
	case StateConnected:
		if c.rejoin && c.mounted {
			c.rejoin = false
			go c.join()
		}
	}
	c.notify()
}

func (c *Controller) join() {
	ctx, cancel := context.WithTimeout(context.Background(), rejoinTimeout)
	defer cancel()
	if err := c.rt.Join(ctx, c.conversationID, c.userID); err != nil {
		c.fail(err)
		return
	}
	c.mu.Lock()
	c.lastErr = ""
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	c.lastErr = errorText(err)
	c.mu.Unlock()
	c.notify()
}

// Entries returns a snapshot of the view.
func (c *Controller) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries := make([]Entry, len(c.entries))
	copy(entries, c.entries)
	return entries
}

// Draft returns content restored after a failed send.
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// Err returns the last error shown to the user.
func (c *Controller) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) indexOf(id string) int {
	for i, entry := range c.entries {
		if entry.Message.ID == id {
			return i
		}
	}
	return -1
}

// removeProvisional drops the oldest provisional entry with content and
// returns its temp id, or "" when none matched.
func (c *Controller) removeProvisional(content string) string {
	for i, entry := range c.entries {
		if entry.State == Provisional && entry.Message.Content == content {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return entry.Message.ID
		}
	}
	return ""
}

// insertConfirmed places msg after the last confirmed entry not newer than it.
// Provisional entries stay below it.
func (c *Controller) insertConfirmed(msg models.MessagePayload) {
	pos := 0
	for i, entry := range c.entries {
		if entry.State == Confirmed && !entry.Message.SentAt.After(msg.SentAt) {
			pos = i + 1
		}
	}
	c.entries = append(c.entries, Entry{})
	copy(c.entries[pos+1:], c.entries[pos:])
	c.entries[pos] = Entry{State: Confirmed, Message: msg}
}

func errorText(err error) string {
	var serverErr *ServerError
	var apiErr *APIError
	switch {
	case errors.As(err, &serverErr):
		return serverErr.Message
	case errors.As(err, &apiErr):
		return apiErr.Error()
	case errors.Is(err, ErrNotConnected), errors.Is(err, ErrConnectionLost):
		return "Not connected"
	default:
		return err.Error()
	}
}
